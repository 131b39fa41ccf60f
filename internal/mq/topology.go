package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/fooroh/internal/queue"
)

// Exchanges — имена обменников.
const (
	// ExchangeQueues — входные очереди пайплайнов (routing key = имя очереди).
	ExchangeQueues = "fooroh.queues"

	// ExchangeDeadLetter — dead-letter очереди (routing key = имя исходной очереди).
	ExchangeDeadLetter = "fooroh.dlq"
)

// DeadLetterQueueName возвращает имя dead-letter очереди для очереди name.
func DeadLetterQueueName(name string) string {
	return "dlq." + name
}

// DeclareQueue объявляет обменники, очередь пайплайна и её dead-letter очередь.
//
// Retention задаётся через x-message-ttl без dead-letter-exchange:
// просроченное сообщение удаляется тихо. В dead-letter сообщения
// переносит сам Queue после исчерпания MaxReceiveCount.
func DeclareQueue(ctx context.Context, conn *Connection, name string, policy queue.Policy) error {
	policy = policy.WithDefaults()

	return conn.WithChannel(ctx, func(ch *amqp.Channel, _ uint64) error {
		for _, ex := range []string{ExchangeQueues, ExchangeDeadLetter} {
			err := ch.ExchangeDeclare(
				ex,       // name
				"direct", // type
				true,     // durable
				false,    // auto-deleted
				false,    // internal
				false,    // no-wait
				nil,      // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		ttl := amqp.Table{"x-message-ttl": policy.Retention.Milliseconds()}

		queues := []struct {
			name     string
			exchange string
		}{
			{name, ExchangeQueues},
			{DeadLetterQueueName(name), ExchangeDeadLetter},
		}

		for _, q := range queues {
			_, err := ch.QueueDeclare(
				q.name, // name
				true,   // durable
				false,  // delete when unused
				false,  // exclusive
				false,  // no-wait
				ttl,    // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}

			if err := ch.QueueBind(q.name, name, q.exchange, false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.name, q.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(names []string) string {
	var b strings.Builder
	b.WriteString("\n  fooroh RabbitMQ Topology:\n\n")
	b.WriteString("    " + ExchangeQueues + " (direct)\n")
	for i, n := range names {
		branch := "├──"
		if i == len(names)-1 {
			branch = "└──"
		}
		fmt.Fprintf(&b, "    %s %s [routing: %s]\n", branch, n, n)
	}
	b.WriteString("\n    " + ExchangeDeadLetter + " (direct)\n")
	for i, n := range names {
		branch := "├──"
		if i == len(names)-1 {
			branch = "└──"
		}
		fmt.Fprintf(&b, "    %s %s [routing: %s] manual inspection\n", branch, DeadLetterQueueName(n), n)
	}
	return b.String()
}
