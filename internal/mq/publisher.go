package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Заголовки сообщений.
const (
	// HeaderReceiveCount — сколько раз сообщение уже было выдано.
	HeaderReceiveCount = "x-fooroh-receive-count"

	// HeaderSourceQueue — исходная очередь dead-letter сообщения.
	HeaderSourceQueue = "x-fooroh-source-queue"

	// HeaderDeadLetteredAt — время переноса в dead-letter (RFC3339Nano).
	HeaderDeadLetteredAt = "x-fooroh-dead-lettered-at"

	// HeaderReason — причина переноса в dead-letter.
	HeaderReason = "x-fooroh-reason"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Envelope — тело и атрибуты публикуемого сообщения.
type Envelope struct {
	ID         string
	Body       []byte
	EnqueuedAt time.Time
	Headers    amqp.Table
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, env Envelope) error {
	return p.conn.WithChannel(ctx, func(ch *amqp.Channel, _ uint64) error {
		err := ch.PublishWithContext(
			ctx,
			exchange,   // exchange
			routingKey, // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    env.ID,
				Timestamp:    env.EnqueuedAt,
				Headers:      env.Headers,
				Body:         env.Body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", env.ID,
		)
		return nil
	})
}
