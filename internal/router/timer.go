package router

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/engine"
	"github.com/shaiso/fooroh/internal/telemetry"
)

// scheduleParser — парсер расписаний: 5 полей cron и дескрипторы (@every, @hourly).
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule разбирает расписание таймера.
//
// Поддерживает:
//   - "@every 2m" и другие дескрипторы cron
//   - "*/4 * * * *" — cron-выражение из 5 полей
//   - "rate(2 minutes)" — запись интервала из конфигурации развёртывания
//   - "2m" — длительность Go
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	if strings.HasPrefix(spec, "rate(") && strings.HasSuffix(spec, ")") {
		d, err := parseRate(spec[len("rate(") : len(spec)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
		}
		return cron.Every(d), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("invalid schedule %q: interval must be positive", spec)
		}
		return cron.Every(d), nil
	}

	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

func parseRate(s string) (time.Duration, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, fmt.Errorf("expected \"<n> <unit>\"")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid rate value %q", fields[0])
	}

	var unit time.Duration
	switch strings.TrimSuffix(fields[1], "s") {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown rate unit %q", fields[1])
	}
	return time.Duration(n) * unit, nil
}

// TimerRouter вызывает tick worker по расписанию.
//
// Тики не имеют очереди и DLQ: ошибка tick worker'а только логируется,
// следующий тик выполняется по расписанию. Перекрывающиеся тики
// пропускаются.
type TimerRouter struct {
	pipeline string
	spec     string
	schedule cron.Schedule
	ticker   engine.Invoker
	now      func() time.Time

	mu      sync.RWMutex
	trigger domain.Trigger

	logger *slog.Logger
}

// TimerConfig — конфигурация TimerRouter.
type TimerConfig struct {
	// Pipeline — имя пайплайна.
	Pipeline string

	// Schedule — расписание (см. ParseSchedule).
	Schedule string

	// Enabled — выключенный таймер не тикает.
	Enabled bool

	// Ticker — worker, вызываемый на каждый тик.
	Ticker engine.Invoker

	// Logger
	Logger *slog.Logger
}

// NewTimer создаёт TimerRouter.
func NewTimer(cfg TimerConfig) (*TimerRouter, error) {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.Ticker == nil {
		return nil, fmt.Errorf("timer %s: ticker is required", cfg.Pipeline)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TimerRouter{
		pipeline: cfg.Pipeline,
		spec:     cfg.Schedule,
		schedule: sched,
		ticker:   cfg.Ticker,
		now:      time.Now,
		trigger: domain.Trigger{
			Pipeline: cfg.Pipeline,
			Schedule: cfg.Schedule,
			Enabled:  cfg.Enabled,
		},
		logger: logger.With("router", "timer", "pipeline", cfg.Pipeline, "ticker", cfg.Ticker.Name()),
	}, nil
}

// Pipeline возвращает имя пайплайна.
func (r *TimerRouter) Pipeline() string { return r.pipeline }

// Status возвращает снимок состояния таймера.
func (r *TimerRouter) Status() domain.Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trigger
}

// Run запускает расписание и блокируется до отмены ctx.
func (r *TimerRouter) Run(ctx context.Context) error {
	if !r.Status().Enabled {
		r.logger.Info("timer disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{r.logger}),
		cron.WithChain(cron.Recover(cronLogger{r.logger}), cron.SkipIfStillRunning(cronLogger{r.logger})),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() { r.Tick(ctx) }))

	next := r.schedule.Next(r.now())
	r.mu.Lock()
	r.trigger.NextTickAt = &next
	r.mu.Unlock()

	c.Start()
	r.logger.Info("timer started", "schedule", r.spec, "next_tick_at", next)

	<-ctx.Done()
	<-c.Stop().Done()

	r.logger.Info("timer stopped")
	return nil
}

// Tick выполняет одно срабатывание. Ошибки только логируются.
func (r *TimerRouter) Tick(ctx context.Context) {
	at := r.now().UTC()
	input := map[string]any{
		"pipeline": r.pipeline,
		"time":     at.Format(time.RFC3339),
	}

	_, err := r.ticker.Invoke(ctx, input)
	next := r.schedule.Next(at)

	r.mu.Lock()
	r.trigger.RecordTick(at, next, err)
	r.mu.Unlock()

	if err != nil {
		telemetry.RouterDelivery(r.pipeline, "tick_failed")
		r.logger.Error("tick failed", "error", err)
		return
	}

	telemetry.RouterDelivery(r.pipeline, "tick")
	r.logger.Debug("tick completed", "next_tick_at", next)
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
