package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/fooroh/internal/engine"
	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/telemetry"
	"github.com/shaiso/fooroh/internal/worker"
)

// Default configuration values.
const (
	defaultIdleBackoff    = 500 * time.Millisecond
	defaultMaxIdleBackoff = 5 * time.Second
)

// QueueRouter связывает одну очередь с запуском одного пайплайна.
//
// Каждое сообщение (пачка размером 1) оборачивается в [{"body": <payload>}]
// и передаётся StartExecution без ожидания результата. Ack — после
// успешной передачи, Nack — если передача не удалась; дальнейшие
// повторы и DLQ определяет политика очереди.
//
// Занятый engine (ErrEngineBusy) не считается неудачей сообщения: router
// не забирает новые сообщения, пока starter не готов, а уже полученное
// повторяет с паузой в пределах половины VisibilityTimeout и без Nack.
type QueueRouter struct {
	pipeline string
	queue    queue.Queue
	starter  worker.Starter

	idleBackoff    time.Duration
	maxIdleBackoff time.Duration

	logger *slog.Logger
}

// readiness реализуют starter'ы, умеющие заранее сообщить о свободном месте.
type readiness interface {
	Ready() bool
}

// QueueConfig — конфигурация QueueRouter.
type QueueConfig struct {
	// Pipeline — имя пайплайна (для логов и метрик).
	Pipeline string

	// Queue — очередь-источник.
	Queue queue.Queue

	// Starter — engine пайплайна.
	Starter worker.Starter

	// IdleBackoff — начальная пауза после пустого Receive (default: 500ms).
	IdleBackoff time.Duration

	// MaxIdleBackoff — максимальная пауза (default: 5s).
	MaxIdleBackoff time.Duration

	// Logger
	Logger *slog.Logger
}

// NewQueue создаёт QueueRouter.
func NewQueue(cfg QueueConfig) *QueueRouter {
	idle := cfg.IdleBackoff
	if idle <= 0 {
		idle = defaultIdleBackoff
	}

	maxIdle := cfg.MaxIdleBackoff
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleBackoff
	}
	if maxIdle < idle {
		maxIdle = idle
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &QueueRouter{
		pipeline:       cfg.Pipeline,
		queue:          cfg.Queue,
		starter:        cfg.Starter,
		idleBackoff:    idle,
		maxIdleBackoff: maxIdle,
		logger:         logger.With("router", "queue", "pipeline", cfg.Pipeline, "queue", cfg.Queue.Name()),
	}
}

// Pipeline возвращает имя пайплайна.
func (r *QueueRouter) Pipeline() string { return r.pipeline }

// Queue возвращает очередь-источник.
func (r *QueueRouter) Queue() queue.Queue { return r.queue }

// Run обрабатывает очередь до отмены ctx.
func (r *QueueRouter) Run(ctx context.Context) error {
	r.logger.Info("queue router started")

	delay := r.idleBackoff
	for {
		handled, err := r.Poll(ctx)
		if ctx.Err() != nil {
			r.logger.Info("queue router stopped")
			return nil
		}

		if err != nil {
			r.logger.Error("queue receive failed", "error", err)
		}

		if handled {
			delay = r.idleBackoff
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("queue router stopped")
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > r.maxIdleBackoff {
			delay = r.maxIdleBackoff
		}
	}
}

// Poll выполняет один цикл Receive → StartExecution → Ack/Nack.
// Возвращает true, если сообщение было получено.
func (r *QueueRouter) Poll(ctx context.Context) (bool, error) {
	if rd, ok := r.starter.(readiness); ok && !rd.Ready() {
		telemetry.RouterDelivery(r.pipeline, "busy")
		return false, nil
	}

	msgs, err := r.queue.Receive(ctx, 1)
	if err != nil {
		return false, err
	}
	if len(msgs) == 0 {
		telemetry.RouterDelivery(r.pipeline, "empty")
		return false, nil
	}

	for _, msg := range msgs {
		r.dispatch(ctx, msg.ID, msg.ReceiveCount, msg.JSONBody())
	}
	return true, nil
}

func (r *QueueRouter) dispatch(ctx context.Context, id string, receiveCount int, body json.RawMessage) {
	logger := r.logger.With("message_id", id, "receive_count", receiveCount)

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		payload = string(body)
	}

	executionID, err := r.start(ctx, engine.Batch(payload))
	if err != nil && (errors.Is(err, engine.ErrEngineBusy) || ctx.Err() != nil) {
		// Аренда истечёт сама, сообщение вернётся в очередь.
		telemetry.RouterDelivery(r.pipeline, "busy")
		logger.Warn("engine busy, leaving message leased", "error", err)
		return
	}
	if err != nil {
		telemetry.RouterDelivery(r.pipeline, "nacked")
		logger.Warn("failed to start execution, nacking", "error", err)
		if nerr := r.queue.Nack(ctx, id); nerr != nil {
			logger.Error("nack failed", "error", nerr)
		}
		return
	}

	telemetry.RouterDelivery(r.pipeline, "started")
	logger.Info("execution started from message", "execution_id", executionID)

	if err := r.queue.Ack(ctx, id); err != nil {
		if errors.Is(err, queue.ErrLeaseExpired) {
			// Сообщение будет доставлено повторно: at-least-once.
			logger.Warn("lease expired before ack", "execution_id", executionID)
			return
		}
		logger.Error("ack failed", "execution_id", executionID, "error", err)
	}
}

// start вызывает StartExecution, пережидая ErrEngineBusy.
func (r *QueueRouter) start(ctx context.Context, input any) (string, error) {
	deadline := time.Now().Add(r.queue.Policy().VisibilityTimeout / 2)
	delay := r.idleBackoff

	for {
		id, err := r.starter.StartExecution(ctx, input)
		if !errors.Is(err, engine.ErrEngineBusy) || time.Now().Add(delay).After(deadline) {
			return id, err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > r.maxIdleBackoff {
			delay = r.maxIdleBackoff
		}
	}
}
