package queue

import (
	"context"
	"time"

	"github.com/shaiso/fooroh/internal/domain"
)

// Sender — право отправки сообщений в очередь.
//
// Worker получает Sender только для очередей, на которые ему выдан
// capability "send".
type Sender interface {
	// Name возвращает логическое имя очереди.
	Name() string

	// Enqueue ставит сообщение в очередь и возвращает присвоенный ID.
	Enqueue(ctx context.Context, body []byte) (string, error)
}

// Queue — durable at-least-once канал с dead-letter очередью.
//
// Контракт:
//   - Receive возвращает 0..max сообщений, не находящихся в аренде.
//     Никогда не блокируется дольше PollWait.
//   - Ack удаляет сообщение.
//   - Nack сразу делает сообщение доступным для повторной выдачи.
//   - После MaxReceiveCount неудачных выдач сообщение атомарно
//     переносится в dead-letter вместо повторной выдачи.
type Queue interface {
	Sender

	// Receive получает до max сообщений и берёт их в аренду на VisibilityTimeout.
	Receive(ctx context.Context, max int) ([]domain.Message, error)

	// Ack подтверждает обработку и удаляет сообщение.
	Ack(ctx context.Context, id string) error

	// Nack возвращает сообщение в очередь (или в dead-letter).
	Nack(ctx context.Context, id string) error

	// DeadLetters возвращает до limit сообщений из dead-letter (для разбора).
	DeadLetters(ctx context.Context, limit int) ([]domain.DeadLetterMessage, error)

	// Policy возвращает политику очереди.
	Policy() Policy
}

// Policy — политика доставки очереди.
type Policy struct {
	// VisibilityTimeout — сколько полученное, но не подтверждённое
	// сообщение скрыто от других получателей.
	VisibilityTimeout time.Duration

	// Retention — сколько живёт неполученное сообщение до тихого удаления.
	Retention time.Duration

	// MaxReceiveCount — количество неудачных выдач до переноса в dead-letter.
	MaxReceiveCount int

	// PollWait — максимальное ожидание в Receive при пустой очереди.
	PollWait time.Duration
}

// Значения по умолчанию.
const (
	DefaultVisibilityTimeout = 30 * time.Second
	DefaultRetention         = 14 * 24 * time.Hour
	DefaultMaxReceiveCount   = 3
	DefaultPollWait          = 2 * time.Second
)

// DefaultPolicy возвращает политику пайплайновых очередей по умолчанию.
func DefaultPolicy() Policy {
	return Policy{}.WithDefaults()
}

// WithDefaults заполняет незаданные поля значениями по умолчанию.
func (p Policy) WithDefaults() Policy {
	if p.VisibilityTimeout <= 0 {
		p.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if p.Retention <= 0 {
		p.Retention = DefaultRetention
	}
	if p.MaxReceiveCount <= 0 {
		p.MaxReceiveCount = DefaultMaxReceiveCount
	}
	if p.PollWait <= 0 {
		p.PollWait = DefaultPollWait
	}
	return p
}

// Exhausted возвращает true, если сообщение с receiveCount выдачами
// больше не может быть выдано повторно.
func (p Policy) Exhausted(receiveCount int) bool {
	return receiveCount >= p.MaxReceiveCount
}

// DeadLetterHook вызывается после переноса сообщения в dead-letter.
type DeadLetterHook func(msg domain.DeadLetterMessage)

// Причины переноса в dead-letter.
const (
	ReasonNack         = "nack"
	ReasonLeaseExpired = "lease_expired"
	ReasonLost         = "lost"
)
