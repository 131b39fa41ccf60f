package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/fooroh/internal/domain"
)

// MemoryQueue — очередь в памяти процесса с той же семантикой аренды,
// что и брокерная.
//
// Используется в тестах и в однопроцессном режиме (QUEUE_BACKEND=memory).
type MemoryQueue struct {
	name   string
	policy Policy
	now    func() time.Time
	onDead DeadLetterHook

	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	dead    []domain.DeadLetterMessage
	changed chan struct{}
	closed  bool
}

type entry struct {
	msg        domain.Message
	leaseUntil time.Time
}

func (e *entry) leased(now time.Time) bool {
	return !e.leaseUntil.IsZero() && now.Before(e.leaseUntil)
}

func (e *entry) leaseExpired(now time.Time) bool {
	return !e.leaseUntil.IsZero() && !now.Before(e.leaseUntil)
}

// MemoryOption — опция MemoryQueue.
type MemoryOption func(*MemoryQueue)

// WithClock подменяет источник времени (для тестов аренды и retention).
func WithClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) { q.now = now }
}

// WithDeadLetterHook регистрирует обработчик переноса в dead-letter.
func WithDeadLetterHook(hook DeadLetterHook) MemoryOption {
	return func(q *MemoryQueue) { q.onDead = hook }
}

// NewMemory создаёт очередь в памяти.
func NewMemory(name string, policy Policy, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		name:    name,
		policy:  policy.WithDefaults(),
		now:     time.Now,
		entries: make(map[string]*entry),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name возвращает имя очереди.
func (q *MemoryQueue) Name() string { return q.name }

// Policy возвращает политику очереди.
func (q *MemoryQueue) Policy() Policy { return q.policy }

// Enqueue ставит сообщение в очередь.
func (q *MemoryQueue) Enqueue(ctx context.Context, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrClosed
	}

	id := uuid.New().String()
	q.entries[id] = &entry{msg: domain.Message{
		ID:         id,
		Queue:      q.name,
		Body:       append([]byte(nil), body...),
		EnqueuedAt: q.now(),
	}}
	q.order = append(q.order, id)
	q.notifyLocked()

	return id, nil
}

// Receive выдаёт до max доступных сообщений.
// При пустой очереди ждёт не дольше PollWait и возвращает пустой результат.
func (q *MemoryQueue) Receive(ctx context.Context, max int) ([]domain.Message, error) {
	if max <= 0 {
		max = 1
	}

	timer := time.NewTimer(q.policy.PollWait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		msgs := q.takeLocked(max)
		wait := q.changed
		q.mu.Unlock()

		if len(msgs) > 0 {
			return msgs, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			q.mu.Lock()
			msgs = q.takeLocked(max)
			q.mu.Unlock()
			return msgs, nil
		case <-wait:
		}
	}
}

// takeLocked выбирает доступные сообщения, попутно удаляя просроченные
// по retention и перенося исчерпавшие попытки в dead-letter.
func (q *MemoryQueue) takeLocked(max int) []domain.Message {
	now := q.now()
	var out []domain.Message

	for _, id := range append([]string(nil), q.order...) {
		e, ok := q.entries[id]
		if !ok {
			continue
		}

		if now.Sub(e.msg.EnqueuedAt) >= q.policy.Retention {
			q.removeLocked(id)
			continue
		}

		if e.leased(now) {
			continue
		}

		if e.leaseExpired(now) {
			// Аренда истекла без Ack — это неудачная доставка.
			if q.policy.Exhausted(e.msg.ReceiveCount) {
				q.deadLetterLocked(id, ReasonLeaseExpired)
				continue
			}
			e.leaseUntil = time.Time{}
		}

		if len(out) >= max {
			continue
		}

		e.msg.ReceiveCount++
		e.leaseUntil = now.Add(q.policy.VisibilityTimeout)
		out = append(out, copyMessage(e.msg))
	}

	return out
}

// Ack удаляет сообщение из очереди.
func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.leasedLocked(id); err != nil {
		return err
	}
	q.removeLocked(id)
	return nil
}

// Nack возвращает сообщение в очередь. Если попытки исчерпаны,
// сообщение переносится в dead-letter.
func (q *MemoryQueue) Nack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.leasedLocked(id)
	if err != nil {
		return err
	}

	if q.policy.Exhausted(e.msg.ReceiveCount) {
		q.deadLetterLocked(id, ReasonNack)
		return nil
	}

	e.leaseUntil = time.Time{}
	q.notifyLocked()
	return nil
}

func (q *MemoryQueue) leasedLocked(id string) (*entry, error) {
	e, ok := q.entries[id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", q.name, id, ErrNotFound)
	}
	now := q.now()
	if e.leaseUntil.IsZero() {
		return nil, fmt.Errorf("%s/%s: %w", q.name, id, ErrNotLeased)
	}
	if !e.leased(now) {
		return nil, fmt.Errorf("%s/%s: %w", q.name, id, ErrLeaseExpired)
	}
	return e, nil
}

// DeadLetters возвращает до limit сообщений dead-letter очереди (старые первыми).
func (q *MemoryQueue) DeadLetters(ctx context.Context, limit int) ([]domain.DeadLetterMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.expireDeadLocked()

	n := len(q.dead)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.DeadLetterMessage, n)
	for i := range n {
		out[i] = q.dead[i]
		out[i].Message = copyMessage(q.dead[i].Message)
	}
	return out, nil
}

// Len возвращает количество сообщений в очереди (включая арендованные).
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close закрывает очередь. Ожидающие Receive возвращают ErrClosed.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.notifyLocked()
	return nil
}

func (q *MemoryQueue) deadLetterLocked(id, reason string) {
	e := q.entries[id]
	q.removeLocked(id)

	dl := domain.DeadLetterMessage{
		Message:        e.msg,
		SourceQueue:    q.name,
		DeadLetteredAt: q.now(),
		Reason:         reason,
	}
	q.dead = append(q.dead, dl)

	if q.onDead != nil {
		q.onDead(dl)
	}
}

func (q *MemoryQueue) expireDeadLocked() {
	now := q.now()
	kept := q.dead[:0]
	for _, dl := range q.dead {
		if now.Sub(dl.DeadLetteredAt) < q.policy.Retention {
			kept = append(kept, dl)
		}
	}
	q.dead = kept
}

func (q *MemoryQueue) removeLocked(id string) {
	delete(q.entries, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// notifyLocked будит всех ожидающих Receive.
func (q *MemoryQueue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func copyMessage(m domain.Message) domain.Message {
	m.Body = append([]byte(nil), m.Body...)
	return m
}
