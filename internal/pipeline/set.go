package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/engine"
	"github.com/shaiso/fooroh/internal/router"
	"github.com/shaiso/fooroh/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Runner — фоновый компонент, работающий до отмены ctx.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc — адаптер функции к Runner.
type RunnerFunc func(ctx context.Context) error

// Run вызывает f.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// SetConfig — конфигурация Set.
type SetConfig struct {
	// Resources — общие ресурсы.
	Resources *CommonResources

	// Options — параметры композиции.
	Options Options

	// Store — хранилище execution'ов всех engine (default: MemoryStore).
	Store engine.ExecutionStore

	// Concurrency — параллельных execution'ов на engine (default: 4).
	Concurrency int

	// Logger
	Logger *slog.Logger
}

// Set — запущенные пайплайны: engine, routers и дополнительные Runner'ы.
type Set struct {
	res       *CommonResources
	store     engine.ExecutionStore
	pipelines []*Pipeline
	engines   map[string]*engine.Engine
	queues    []*router.QueueRouter
	timers    map[string]*router.TimerRouter
	runners   map[string]Runner
	workers   *worker.Registry

	logger     *slog.Logger
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	group      *errgroup.Group
	started    bool
}

// NewSet строит пайплайны, их engine и routers.
func NewSet(cfg SetConfig) (*Set, error) {
	if cfg.Resources == nil {
		return nil, fmt.Errorf("%w: resources", ErrMissingResource)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := cfg.Options
	if opts.Logger == nil {
		opts.Logger = logger
	}

	store := cfg.Store
	if store == nil {
		store = engine.NewMemoryStore(0)
	}

	pipelines, err := Compose(cfg.Resources, opts)
	if err != nil {
		return nil, err
	}

	s := &Set{
		res:       cfg.Resources,
		store:     store,
		pipelines: pipelines,
		engines:   make(map[string]*engine.Engine, len(pipelines)),
		timers:    make(map[string]*router.TimerRouter),
		runners:   make(map[string]Runner),
		workers:   worker.NewRegistry(),
		logger:    logger,
	}

	for _, p := range pipelines {
		eng, err := engine.New(engine.Config{
			Definition:  p.Definition,
			Store:       store,
			Concurrency: cfg.Concurrency,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		s.engines[p.Name] = eng

		for _, step := range p.Definition.Steps {
			if b, ok := step.Worker.(*worker.Bound); ok {
				if err := s.workers.Register(b); err != nil {
					return nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
				}
			}
		}

		if p.Queue != "" {
			q, ok := cfg.Resources.Queue(p.Queue)
			if !ok {
				return nil, fmt.Errorf("pipeline %s: %w: %s", p.Name, ErrUnknownQueue, p.Queue)
			}
			s.queues = append(s.queues, router.NewQueue(router.QueueConfig{
				Pipeline: p.Name,
				Queue:    q,
				Starter:  eng,
				Logger:   logger,
			}))
		}

		if p.Timer != nil {
			ticker, err := bind(cfg.Resources, opts, p.Timer.Ticker(eng))
			if err != nil {
				return nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
			}
			if err := s.workers.Register(ticker); err != nil {
				return nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
			}
			timer, err := router.NewTimer(router.TimerConfig{
				Pipeline: p.Name,
				Schedule: p.Timer.Schedule,
				Enabled:  p.Timer.Enabled,
				Ticker:   ticker,
				Logger:   logger,
			})
			if err != nil {
				return nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
			}
			s.timers[p.Name] = timer
		}
	}

	return s, nil
}

// Add регистрирует дополнительный Runner (например, firehose).
// Вызывается до Start.
func (s *Set) Add(name string, r Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[name] = r
}

// Start запускает engine, routers и Runner'ы.
//
// Ошибка любого компонента останавливает остальные; её возвращает Stop.
func (s *Set) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	for _, p := range s.pipelines {
		s.engines[p.Name].Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	for _, r := range s.queues {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}
	for _, t := range s.timers {
		t := t
		g.Go(func() error { return t.Run(gctx) })
	}
	for name, r := range s.runners {
		name, r := name, r
		g.Go(func() error {
			if err := r.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	s.logger.Info("pipelines started",
		"pipelines", len(s.pipelines),
		"queue_routers", len(s.queues),
		"timers", len(s.timers),
		"runners", len(s.runners),
		"workers", len(s.workers.Names()),
	)
	return nil
}

// Stop останавливает routers и Runner'ы, затем engine.
func (s *Set) Stop() error {
	s.mu.Lock()
	cancel, g := s.cancelFunc, s.group
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	err := g.Wait()
	for _, p := range s.pipelines {
		s.engines[p.Name].Stop()
	}

	s.logger.Info("pipelines stopped")
	return err
}

// Pipelines возвращает пайплайны в порядке композиции.
func (s *Set) Pipelines() []*Pipeline { return s.pipelines }

// Resources возвращает общие ресурсы.
func (s *Set) Resources() *CommonResources { return s.res }

// Engine возвращает engine пайплайна.
func (s *Set) Engine(name string) (*engine.Engine, error) {
	eng, ok := s.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}
	return eng, nil
}

// Worker возвращает собранный worker по имени.
func (s *Set) Worker(name string) (*worker.Bound, error) {
	return s.workers.Get(name)
}

// Workers возвращает имена всех worker'ов по алфавиту.
func (s *Set) Workers() []string { return s.workers.Names() }

// Timer возвращает таймер пайплайна.
func (s *Set) Timer(name string) (*router.TimerRouter, bool) {
	t, ok := s.timers[name]
	return t, ok
}

// StartExecution запускает execution пайплайна вручную.
func (s *Set) StartExecution(ctx context.Context, pipeline string, input any) (string, error) {
	eng, err := s.Engine(pipeline)
	if err != nil {
		return "", err
	}
	return eng.StartExecution(ctx, input)
}

// Execution возвращает запись execution'а любого пайплайна.
func (s *Set) Execution(ctx context.Context, id string) (*domain.Execution, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrExecutionNotFound, id)
	}
	return s.store.Get(ctx, uid)
}

// Executions возвращает записи execution'ов по фильтру.
func (s *Set) Executions(ctx context.Context, filter engine.ListFilter) ([]domain.Execution, error) {
	if filter.Pipeline != "" {
		if _, err := s.Engine(filter.Pipeline); err != nil {
			return nil, err
		}
	}
	return s.store.List(ctx, filter.WithDefaults())
}

// DeadLetters возвращает сообщения dead-letter очереди name.
func (s *Set) DeadLetters(ctx context.Context, name string, limit int) ([]domain.DeadLetterMessage, error) {
	q, ok := s.res.Queue(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	return q.DeadLetters(ctx, limit)
}
