package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/telemetry"
	"github.com/shaiso/fooroh/internal/worker"
)

// Default configuration values.
const (
	defaultConcurrency = 4
	defaultQueueSize   = 100
	persistTimeout     = 5 * time.Second
	waitPollInterval   = 50 * time.Millisecond
)

// Engine выполняет execution'ы одного Definition.
//
// Engine — центральный компонент пайплайна, который:
//   - Принимает запросы на запуск (StartExecution) и сразу возвращает ID
//   - Передаёт execution пулу горутин через буферизованный канал
//   - Выполняет шаги строго по порядку, передавая payload между шагами
//   - Останавливает execution на первой ошибке worker'а
//   - Переводит execution в TIMED_OUT по истечении таймаута Definition
//
// Execution'ы выполняются параллельно, ошибки одного execution'а
// не влияют на остальные.
type Engine struct {
	def   Definition
	store ExecutionStore

	requests    chan *run
	concurrency int

	// waiters — каналы, закрываемые при завершении execution'а (id → chan)
	waiters map[uuid.UUID]chan struct{}
	mu      sync.RWMutex

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	stopped    bool
}

// Config — конфигурация Engine.
type Config struct {
	// Definition — единственный workflow этого engine.
	Definition Definition

	// Store — хранилище записей (default: MemoryStore).
	Store ExecutionStore

	// Concurrency — количество параллельных execution'ов (default: 4).
	Concurrency int

	// QueueSize — ёмкость канала передачи (default: 100).
	QueueSize int

	// Logger
	Logger *slog.Logger
}

// run — состояние одного выполняющегося execution'а.
type run struct {
	mu    sync.Mutex
	exec  *domain.Execution
	input any

	// persistMu упорядочивает записи снимков в хранилище.
	persistMu sync.Mutex
}

func (r *run) snapshot() *domain.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneExecution(r.exec)
}

// New создаёт Engine и проверяет Definition.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Definition.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", cfg.Definition.Name, err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(0)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		def:         cfg.Definition,
		store:       store,
		requests:    make(chan *run, queueSize),
		concurrency: concurrency,
		waiters:     make(map[uuid.UUID]chan struct{}),
		logger:      telemetry.WithPipeline(logger, cfg.Definition.Name),
	}, nil
}

// Name возвращает имя workflow.
func (e *Engine) Name() string { return e.def.Name }

// Definition возвращает определение workflow.
func (e *Engine) Definition() Definition { return e.def }

// Start запускает пул горутин.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true

	ctx, cancel := context.WithCancel(ctx)
	e.cancelFunc = cancel

	for i := 0; i < e.concurrency; i++ {
		e.wg.Add(1)
		go e.loop(ctx)
	}

	e.logger.Info("engine started",
		"concurrency", e.concurrency,
		"steps", e.def.StepNames(),
		"timeout", e.def.Timeout,
	)
}

// Stop останавливает engine. Выполняющиеся execution'ы отменяются,
// ещё не начатые переводятся в FAILED.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.logger.Info("stopping engine...")

	if e.cancelFunc != nil {
		e.cancelFunc()
	}
	e.wg.Wait()

	for {
		select {
		case r := <-e.requests:
			e.finish(r, func(exec *domain.Execution) bool {
				return exec.MarkFailed(ErrEngineStopped.Error())
			})
		default:
			e.logger.Info("engine stopped")
			return
		}
	}
}

// Ready сообщает, примет ли engine следующий StartExecution.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.stopped && len(e.requests) < cap(e.requests)
}

// StartExecution создаёт execution и передаёт его пулу.
//
// Возвращает ID сразу после передачи, не дожидаясь выполнения шагов.
// ErrEngineBusy — канал передачи заполнен, запись не создаётся.
func (e *Engine) StartExecution(ctx context.Context, input any) (string, error) {
	normalized, err := Normalize(input)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	exec := domain.NewExecution(e.def.Name, raw)
	r := &run{exec: exec, input: normalized}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return "", ErrEngineStopped
	}
	// Отправители держат e.mu, поэтому после проверки место в канале есть.
	if len(e.requests) == cap(e.requests) {
		e.logger.Warn("execution rejected", "error", ErrEngineBusy)
		return "", ErrEngineBusy
	}

	if err := e.store.Create(ctx, exec); err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}
	e.waiters[exec.ID] = make(chan struct{})
	e.requests <- r

	telemetry.ExecutionStarted(e.def.Name)
	e.logger.Debug("execution submitted", "execution_id", exec.ID)

	return exec.ID.String(), nil
}

// Get возвращает запись execution'а.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Execution, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return e.store.Get(ctx, uid)
}

// List возвращает записи execution'ов этого пайплайна.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]domain.Execution, error) {
	filter.Pipeline = e.def.Name
	return e.store.List(ctx, filter)
}

// Wait блокируется до завершения execution'а и возвращает его запись.
func (e *Engine) Wait(ctx context.Context, id string) (*domain.Execution, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	e.mu.RLock()
	done := e.waiters[uid]
	e.mu.RUnlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		exec, err := e.store.Get(ctx, uid)
		if err != nil || exec.IsFinished() {
			return exec, err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// loop — горутина пула.
func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-e.requests:
			e.safeExecute(ctx, r)
		}
	}
}

func (e *Engine) safeExecute(ctx context.Context, r *run) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("execution panicked",
				"execution_id", r.exec.ID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			e.finish(r, func(exec *domain.Execution) bool {
				return exec.MarkFailed(fmt.Sprintf("panic: %v", rec))
			})
		}
	}()
	e.execute(ctx, r)
}

type stepsResult struct {
	output any
	err    error
}

// execute выполняет execution с таймаутом Definition.
//
// Шаги выполняются в отдельной горутине: TIMED_OUT фиксируется
// по истечении таймаута, даже если worker игнорирует ctx.
func (e *Engine) execute(parent context.Context, r *run) {
	ctx, cancel := context.WithTimeout(parent, e.def.Timeout)
	defer cancel()

	logger := telemetry.WithExecution(e.logger, r.exec.ID.String())

	r.mu.Lock()
	r.exec.MarkStarted()
	r.mu.Unlock()
	e.persist(r)

	logger.Info("execution started")

	done := make(chan stepsResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- stepsResult{err: worker.Classify("", fmt.Errorf("panic: %v", rec))}
			}
		}()
		out, err := e.runSteps(ctx, r, logger)
		done <- stepsResult{output: out, err: err}
	}()

	var res stepsResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg := fmt.Sprintf("execution timed out after %s", e.def.Timeout)
		e.finish(r, func(exec *domain.Execution) bool {
			failRunningSteps(exec, msg)
			return exec.MarkTimedOut(msg)
		})
		logger.Warn("execution timed out", "timeout", e.def.Timeout)

	case parent.Err() != nil:
		msg := "execution canceled: " + ErrEngineStopped.Error()
		e.finish(r, func(exec *domain.Execution) bool {
			failRunningSteps(exec, msg)
			return exec.MarkFailed(msg)
		})
		logger.Warn("execution canceled")

	case res.err != nil:
		e.finish(r, func(exec *domain.Execution) bool {
			return exec.MarkFailed(res.err.Error())
		})
		logger.Warn("execution failed", "error", res.err, "kind", worker.KindOf(res.err))

	default:
		raw, err := json.Marshal(res.output)
		if err != nil {
			e.finish(r, func(exec *domain.Execution) bool {
				return exec.MarkFailed(fmt.Sprintf("%v: %v", ErrInvalidPayload, err))
			})
			return
		}
		e.finish(r, func(exec *domain.Execution) bool {
			return exec.MarkSucceeded(raw)
		})
		logger.Info("execution succeeded", "duration", r.snapshot().Duration())
	}
}

// runSteps выполняет шаги по порядку и возвращает результат последнего.
func (e *Engine) runSteps(ctx context.Context, r *run, logger *slog.Logger) (any, error) {
	payload := r.input

	for i := range e.def.Steps {
		step := &e.def.Steps[i]
		stepLogger := telemetry.WithStep(logger, step.Name)

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx, ok := e.beginStep(r, step)
		if !ok {
			return nil, ErrEngineStopped
		}

		out, err := e.runStep(ctx, r, idx, step, payload, stepLogger)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Name, err)
		}
		payload = out
	}

	return payload, nil
}

// runStep применяет selectors и вызывает worker с учётом RetryPolicy.
func (e *Engine) runStep(ctx context.Context, r *run, idx int, step *StepSpec, payload any, logger *slog.Logger) (any, error) {
	started := time.Now()
	defer func() {
		telemetry.StepObserved(e.def.Name, step.Name, time.Since(started))
	}()

	in, err := step.Input.Apply(payload)
	if err != nil {
		err = worker.Classify(step.Worker.Name(), worker.InputError(err))
		e.endStep(r, idx, err)
		return nil, err
	}

	attempts := step.Retry.Attempts()

	for attempt := 1; ; attempt++ {
		e.updateStep(r, idx, func(rec *domain.StepRecord) { rec.Attempts = attempt })

		logger.Debug("invoking worker", "worker", step.Worker.Name(), "attempt", attempt)

		out, err := invoke(ctx, step.Worker, in)
		if err == nil {
			out, err = e.applyOutput(step, out)
		}
		if err == nil {
			telemetry.StepAttempt(e.def.Name, step.Name, "ok")
			e.endStep(r, idx, nil)
			logger.Debug("step succeeded", "attempt", attempt)
			return out, nil
		}

		telemetry.StepAttempt(e.def.Name, step.Name, string(worker.KindOf(err)))

		if attempt >= attempts || !worker.Retryable(err) || ctx.Err() != nil {
			e.endStep(r, idx, err)
			return nil, err
		}

		delay := worker.RetryDelay(step.Retry)
		logger.Warn("retrying step",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			e.endStep(r, idx, ctx.Err())
			return nil, ctx.Err()
		}
	}
}

func (e *Engine) applyOutput(step *StepSpec, out any) (any, error) {
	out, err := Normalize(out)
	if err != nil {
		return nil, worker.Classify(step.Worker.Name(), err)
	}
	if err := step.Returns.Check(out); err != nil {
		return nil, worker.Classify(step.Worker.Name(), err)
	}
	out, err = step.Output.Apply(out)
	if err != nil {
		return nil, worker.Classify(step.Worker.Name(), err)
	}
	return out, nil
}

// invoke вызывает worker, превращая panic в ошибку.
func invoke(ctx context.Context, w Invoker, in any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, worker.Classify(w.Name(), fmt.Errorf("panic: %v", rec))
		}
	}()

	out, err = w.Invoke(ctx, in)
	if err != nil {
		return nil, worker.Classify(w.Name(), err)
	}
	return out, nil
}

// beginStep добавляет запись шага. false — execution уже завершён.
func (e *Engine) beginStep(r *run, step *StepSpec) (int, bool) {
	r.mu.Lock()
	if r.exec.IsFinished() {
		r.mu.Unlock()
		return 0, false
	}
	r.exec.Steps = append(r.exec.Steps, domain.StepRecord{
		Name:      step.Name,
		Worker:    step.Worker.Name(),
		Status:    domain.StepStatusRunning,
		StartedAt: time.Now(),
	})
	idx := len(r.exec.Steps) - 1
	r.mu.Unlock()

	e.persist(r)
	return idx, true
}

func (e *Engine) updateStep(r *run, idx int, fn func(rec *domain.StepRecord)) {
	r.mu.Lock()
	if r.exec.IsFinished() {
		r.mu.Unlock()
		return
	}
	fn(&r.exec.Steps[idx])
	r.mu.Unlock()
}

func (e *Engine) endStep(r *run, idx int, err error) {
	r.mu.Lock()
	if r.exec.IsFinished() {
		r.mu.Unlock()
		return
	}
	rec := &r.exec.Steps[idx]
	now := time.Now()
	rec.FinishedAt = &now
	if err != nil {
		rec.Status = domain.StepStatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = domain.StepStatusSucceeded
	}
	r.mu.Unlock()

	e.persist(r)
}

func failRunningSteps(exec *domain.Execution, msg string) {
	now := time.Now()
	for i := range exec.Steps {
		if exec.Steps[i].Status == domain.StepStatusRunning {
			exec.Steps[i].Status = domain.StepStatusFailed
			exec.Steps[i].Error = msg
			exec.Steps[i].FinishedAt = &now
		}
	}
}

// finish переводит execution в финальный статус однократно.
func (e *Engine) finish(r *run, mark func(exec *domain.Execution) bool) {
	r.mu.Lock()
	ok := mark(r.exec)
	status := r.exec.Status
	r.mu.Unlock()

	if !ok {
		return
	}

	e.persist(r)
	telemetry.ExecutionFinished(e.def.Name, string(status))

	e.mu.Lock()
	e.closeWaiterLocked(r.exec.ID)
	e.mu.Unlock()
}

func (e *Engine) closeWaiterLocked(id uuid.UUID) {
	if ch, ok := e.waiters[id]; ok {
		close(ch)
		delete(e.waiters, id)
	}
}

// persist сохраняет снимок execution'а. Ошибки хранилища только логируются.
//
// Записи одного execution'а идут по очереди, и снимок берётся уже под
// persistMu: поздний RUNNING не перезапишет финальный статус.
func (e *Engine) persist(r *run) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	snap := r.snapshot()
	if err := e.store.Update(ctx, snap); err != nil {
		e.logger.Error("failed to persist execution",
			"execution_id", snap.ID,
			"status", snap.Status,
			"error", err,
		)
	}
}
