package worker

import (
	"context"
	"log/slog"
	"time"
)

// Worker — одна операция пайплайна.
//
// input и результат — JSON-совместимые значения (map[string]any, []any,
// string, float64, bool, nil) либо структуры, сериализуемые в JSON.
// Worker не хранит состояние между вызовами; всё состояние живёт
// во внешних хранилищах.
type Worker interface {
	Invoke(ctx context.Context, input any) (any, error)
}

// Func — адаптер функции к интерфейсу Worker.
type Func func(ctx context.Context, input any) (any, error)

// Invoke вызывает f.
func (f Func) Invoke(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

// Starter запускает execution одного пайплайна.
//
// Реализуется engine.Engine; нужен worker'ам, которые запускают
// execution другого пайплайна (signup-executor).
type Starter interface {
	StartExecution(ctx context.Context, input any) (string, error)
}

// Default configuration values.
const (
	defaultTimeout  = 30 * time.Second
	defaultMemoryMB = 128
)

// Spec — объявление worker'а: имя, ограничения, capability и фабрика.
type Spec struct {
	// Name — уникальное имя worker'а.
	Name string

	// Timeout — таймаут одного вызова (default: 30s).
	Timeout time.Duration

	// MemoryMB — объявленный бюджет памяти. Используется только
	// для отчётов (API), в процессе не ограничивается.
	MemoryMB int

	// LogLevel — уровень логгера worker'а.
	LogLevel slog.Level

	// Grants — доступ к ресурсам.
	Grants Grants

	// New создаёт worker из окружения с разрешёнными ресурсами.
	New func(env *Env) (Worker, error)
}

func (s Spec) withDefaults() Spec {
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	if s.MemoryMB <= 0 {
		s.MemoryMB = defaultMemoryMB
	}
	return s
}

// Bound — worker, собранный из Spec и готовый к вызову.
//
// Invoke ограничивает вызов таймаутом Spec и возвращает ошибки
// только в виде *Error.
type Bound struct {
	spec Spec
	impl Worker
}

// Bind проверяет capability, собирает Env и создаёт worker.
func Bind(spec Spec, catalog Catalog, logger *slog.Logger) (*Bound, error) {
	spec = spec.withDefaults()

	env, err := newEnv(spec, catalog, logger)
	if err != nil {
		return nil, err
	}

	impl, err := spec.New(env)
	if err != nil {
		return nil, Classify(spec.Name, err)
	}

	return &Bound{spec: spec, impl: impl}, nil
}

// Replace возвращает копию с другой реализацией (например, удалённой),
// сохраняя имя, таймаут и capability.
func (b *Bound) Replace(impl Worker) *Bound {
	return &Bound{spec: b.spec, impl: impl}
}

// Name возвращает имя worker'а.
func (b *Bound) Name() string { return b.spec.Name }

// Spec возвращает объявление worker'а.
func (b *Bound) Spec() Spec { return b.spec }

// Invoke вызывает worker с таймаутом из Spec.
func (b *Bound) Invoke(ctx context.Context, input any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, b.spec.Timeout)
	defer cancel()

	out, err := b.impl.Invoke(ctx, input)
	if err != nil {
		return nil, Classify(b.spec.Name, err)
	}
	return out, nil
}
