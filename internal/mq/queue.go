package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/queue"
)

// pollInterval — пауза между basic.get при пустой очереди.
const pollInterval = 100 * time.Millisecond

var _ queue.Queue = (*Queue)(nil)

// Queue — очередь пайплайна поверх RabbitMQ, реализующая queue.Queue.
//
// Сообщения забираются через basic.get без auto-ack. Аренда
// (VisibilityTimeout) отслеживается на стороне клиента: по истечении
// аренды сообщение возвращается тем же путём, что и Nack.
//
// Receive count хранится в заголовке HeaderReceiveCount. Nack
// переопубликовывает сообщение с увеличенным счётчиком либо
// публикует его в dead-letter, после чего подтверждает исходную доставку.
type Queue struct {
	name   string
	policy queue.Policy
	conn   *Connection
	pub    *Publisher
	logger *slog.Logger
	onDead queue.DeadLetterHook

	mu     sync.Mutex
	leases map[string]*lease
}

type lease struct {
	delivery   amqp.Delivery
	msg        domain.Message
	generation uint64
	until      time.Time
}

// QueueConfig — конфигурация Queue.
type QueueConfig struct {
	// Name — имя очереди.
	Name string

	// Policy — политика доставки.
	Policy queue.Policy

	// OnDeadLetter — вызывается после переноса сообщения в dead-letter.
	OnDeadLetter queue.DeadLetterHook
}

// NewQueue объявляет топологию и возвращает очередь.
func NewQueue(ctx context.Context, conn *Connection, logger *slog.Logger, cfg QueueConfig) (*Queue, error) {
	policy := cfg.Policy.WithDefaults()

	if err := DeclareQueue(ctx, conn, cfg.Name, policy); err != nil {
		return nil, err
	}

	return &Queue{
		name:   cfg.Name,
		policy: policy,
		conn:   conn,
		pub:    NewPublisher(conn, logger),
		logger: logger.With("queue", cfg.Name),
		onDead: cfg.OnDeadLetter,
		leases: make(map[string]*lease),
	}, nil
}

// Name возвращает имя очереди.
func (q *Queue) Name() string { return q.name }

// Policy возвращает политику очереди.
func (q *Queue) Policy() queue.Policy { return q.policy }

// Enqueue публикует новое сообщение.
func (q *Queue) Enqueue(ctx context.Context, body []byte) (string, error) {
	env := Envelope{
		ID:         uuid.New().String(),
		Body:       body,
		EnqueuedAt: time.Now().UTC(),
		Headers:    amqp.Table{HeaderReceiveCount: int32(0)},
	}
	if err := q.pub.Publish(ctx, ExchangeQueues, q.name, env); err != nil {
		return "", err
	}
	return env.ID, nil
}

// Receive забирает до max сообщений, ожидая не дольше PollWait.
func (q *Queue) Receive(ctx context.Context, max int) ([]domain.Message, error) {
	if max <= 0 {
		max = 1
	}

	q.expireLeases(ctx)

	deadline := time.Now().Add(q.policy.PollWait)
	for {
		msgs, err := q.get(ctx, max)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 || !time.Now().Before(deadline) {
			return msgs, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *Queue) get(ctx context.Context, max int) ([]domain.Message, error) {
	var out []domain.Message

	err := q.conn.WithChannel(ctx, func(ch *amqp.Channel, gen uint64) error {
		for len(out) < max {
			d, ok, err := ch.Get(q.name, false)
			if err != nil {
				return fmt.Errorf("get from %s: %w", q.name, err)
			}
			if !ok {
				return nil
			}

			count, lost := deliveryCount(d)
			msg := domain.Message{
				ID:           d.MessageId,
				Queue:        q.name,
				Body:         d.Body,
				ReceiveCount: count,
				EnqueuedAt:   d.Timestamp,
			}
			if msg.ID == "" {
				msg.ID = uuid.New().String()
			}

			if lost {
				// Потерянная доставка учитывается переопубликацией с новым
				// счётчиком (или переносом в DLQ) до выдачи получателю.
				l := &lease{delivery: d, msg: msg, generation: gen}
				if err := q.redeliver(ctx, l, queue.ReasonLost); err != nil {
					return err
				}
				continue
			}

			q.mu.Lock()
			q.leases[msg.ID] = &lease{
				delivery:   d,
				msg:        msg,
				generation: gen,
				until:      time.Now().Add(q.policy.VisibilityTimeout),
			}
			q.mu.Unlock()

			out = append(out, msg)
		}
		return nil
	})
	return out, err
}

// Ack подтверждает доставку.
func (q *Queue) Ack(ctx context.Context, id string) error {
	l, err := q.takeLease(id)
	if err != nil {
		return err
	}
	if err := l.delivery.Ack(false); err != nil {
		return fmt.Errorf("ack %s/%s: %w", q.name, id, err)
	}
	return nil
}

// Nack возвращает сообщение в очередь или переносит в dead-letter.
func (q *Queue) Nack(ctx context.Context, id string) error {
	l, err := q.takeLease(id)
	if err != nil {
		return err
	}
	return q.redeliver(ctx, l, queue.ReasonNack)
}

func (q *Queue) takeLease(id string) (*lease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.leases[id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", q.name, id, queue.ErrNotLeased)
	}
	if l.generation != q.conn.Generation() {
		// Delivery tag принадлежит закрытому каналу: брокер уже вернул сообщение.
		delete(q.leases, id)
		return nil, fmt.Errorf("%s/%s: %w", q.name, id, queue.ErrLeaseExpired)
	}
	if time.Now().After(l.until) {
		// Возврат истёкшей аренды выполнит expireLeases.
		return nil, fmt.Errorf("%s/%s: %w", q.name, id, queue.ErrLeaseExpired)
	}

	delete(q.leases, id)
	return l, nil
}

// redeliver переопубликовывает сообщение с новым счётчиком или
// отправляет его в dead-letter, затем подтверждает исходную доставку.
func (q *Queue) redeliver(ctx context.Context, l *lease, reason string) error {
	env := Envelope{
		ID:         l.msg.ID,
		Body:       l.msg.Body,
		EnqueuedAt: l.msg.EnqueuedAt,
		Headers:    amqp.Table{HeaderReceiveCount: int32(l.msg.ReceiveCount)},
	}

	if q.policy.Exhausted(l.msg.ReceiveCount) {
		now := time.Now().UTC()
		env.Headers[HeaderSourceQueue] = q.name
		env.Headers[HeaderDeadLetteredAt] = now.Format(time.RFC3339Nano)
		env.Headers[HeaderReason] = reason

		if err := q.pub.Publish(ctx, ExchangeDeadLetter, q.name, env); err != nil {
			return fmt.Errorf("dead-letter %s/%s: %w", q.name, l.msg.ID, err)
		}
		if err := l.delivery.Ack(false); err != nil {
			return fmt.Errorf("ack dead-lettered %s/%s: %w", q.name, l.msg.ID, err)
		}

		q.logger.Warn("message dead-lettered",
			"message_id", l.msg.ID,
			"receive_count", l.msg.ReceiveCount,
			"reason", reason,
		)
		if q.onDead != nil {
			q.onDead(domain.DeadLetterMessage{
				Message:        l.msg,
				SourceQueue:    q.name,
				DeadLetteredAt: now,
				Reason:         reason,
			})
		}
		return nil
	}

	if err := q.pub.Publish(ctx, ExchangeQueues, q.name, env); err != nil {
		// Публикация не удалась — возвращаем доставку брокеру как есть.
		l.delivery.Nack(false, true)
		return fmt.Errorf("requeue %s/%s: %w", q.name, l.msg.ID, err)
	}
	if err := l.delivery.Ack(false); err != nil {
		return fmt.Errorf("ack requeued %s/%s: %w", q.name, l.msg.ID, err)
	}
	return nil
}

// expireLeases возвращает сообщения с истёкшей арендой.
func (q *Queue) expireLeases(ctx context.Context) {
	now := time.Now()
	gen := q.conn.Generation()

	q.mu.Lock()
	var expired []*lease
	for id, l := range q.leases {
		if l.generation != gen {
			delete(q.leases, id)
			continue
		}
		if now.After(l.until) {
			delete(q.leases, id)
			expired = append(expired, l)
		}
	}
	q.mu.Unlock()

	for _, l := range expired {
		if err := q.redeliver(ctx, l, queue.ReasonLeaseExpired); err != nil {
			q.logger.Error("failed to return expired lease", "message_id", l.msg.ID, "error", err)
		}
	}
}

// DeadLetters читает до limit сообщений dead-letter очереди без удаления.
// Чтение идёт на отдельном канале: его закрытие возвращает прочитанное в DLQ.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]domain.DeadLetterMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []domain.DeadLetterMessage
	err := q.conn.WithScratchChannel(ctx, func(ch *amqp.Channel) error {
		var err error
		out, err = peekDeadLetters(ch, q.name, limit)
		return err
	})
	return out, err
}

// getter — часть *amqp.Channel, нужная для basic.get.
type getter interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
}

// peekDeadLetters забирает до limit доставок из DLQ очереди name без подтверждения.
func peekDeadLetters(ch getter, name string, limit int) ([]domain.DeadLetterMessage, error) {
	dlq := DeadLetterQueueName(name)

	var out []domain.DeadLetterMessage
	for len(out) < limit {
		d, ok, err := ch.Get(dlq, false)
		if err != nil {
			return out, fmt.Errorf("get from %s: %w", dlq, err)
		}
		if !ok {
			break
		}

		at, _ := time.Parse(time.RFC3339Nano, headerString(d.Headers, HeaderDeadLetteredAt))
		out = append(out, domain.DeadLetterMessage{
			Message: domain.Message{
				ID:           d.MessageId,
				Queue:        name,
				Body:         d.Body,
				ReceiveCount: headerInt(d.Headers, HeaderReceiveCount),
				EnqueuedAt:   d.Timestamp,
			},
			SourceQueue:    headerString(d.Headers, HeaderSourceQueue),
			DeadLetteredAt: at,
			Reason:         headerString(d.Headers, HeaderReason),
		})
	}
	return out, nil
}

// deliveryCount возвращает номер доставки d. Redelivered выставляется
// брокером, когда предыдущая доставка пропала без Ack/Nack (падение
// процесса, закрытый канал): тогда count относится к пропавшей доставке,
// а lost == true.
func deliveryCount(d amqp.Delivery) (count int, lost bool) {
	return headerInt(d.Headers, HeaderReceiveCount) + 1, d.Redelivered
}

func headerInt(h amqp.Table, key string) int {
	switch v := h[key].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}

func headerString(h amqp.Table, key string) string {
	s, _ := h[key].(string)
	return s
}
