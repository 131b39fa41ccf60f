package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/storage"
	"github.com/shaiso/fooroh/internal/telemetry"
)

// SecretProvider — источник набора секретов.
type SecretProvider = secrets.Provider

// Env — окружение worker'а: логгер и ресурсы, разрешённые Grants.
type Env struct {
	// Name — имя worker'а.
	Name string

	// Logger — логгер с уровнем из Spec.LogLevel.
	Logger *slog.Logger

	buckets map[string]storage.Bucket
	senders map[string]queue.Sender
	queues  map[string]queue.Queue
	secrets secrets.Provider
}

func newEnv(spec Spec, catalog Catalog, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env := &Env{
		Name:    spec.Name,
		Logger:  telemetry.LevelLogger(logger, spec.LogLevel).With("worker", spec.Name),
		buckets: make(map[string]storage.Bucket),
		senders: make(map[string]queue.Sender),
		queues:  make(map[string]queue.Queue),
	}

	for name, access := range spec.Grants.Buckets {
		if access == BucketNone {
			continue
		}
		b, ok := catalog.Bucket(name)
		if !ok {
			return nil, fmt.Errorf("%w: worker %s: bucket %s", ErrUnknownResource, spec.Name, name)
		}
		env.buckets[name] = &guardedBucket{inner: b, access: access, worker: spec.Name}
	}

	for name, access := range spec.Grants.Queues {
		if access == QueueNone {
			continue
		}
		q, ok := catalog.Queue(name)
		if !ok {
			return nil, fmt.Errorf("%w: worker %s: queue %s", ErrUnknownResource, spec.Name, name)
		}
		switch access {
		case QueueSend:
			env.senders[name] = q
		case QueueConsume:
			env.queues[name] = q
		}
	}

	if spec.Grants.Secret {
		env.secrets = catalog.Secrets()
		if env.secrets == nil {
			return nil, fmt.Errorf("%w: worker %s: secret provider", ErrUnknownResource, spec.Name)
		}
	}

	return env, nil
}

// Bucket возвращает разрешённый bucket.
func (e *Env) Bucket(name string) (storage.Bucket, error) {
	b, ok := e.buckets[name]
	if !ok {
		return nil, fmt.Errorf("%w: worker %s has no grant for bucket %s", ErrAccessDenied, e.Name, name)
	}
	return b, nil
}

// Sender возвращает очередь, в которую worker может отправлять.
func (e *Env) Sender(name string) (queue.Sender, error) {
	s, ok := e.senders[name]
	if !ok {
		return nil, fmt.Errorf("%w: worker %s cannot send to queue %s", ErrAccessDenied, e.Name, name)
	}
	return s, nil
}

// Queue возвращает очередь, которую worker может читать.
func (e *Env) Queue(name string) (queue.Queue, error) {
	q, ok := e.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: worker %s cannot consume queue %s", ErrAccessDenied, e.Name, name)
	}
	return q, nil
}

// Secret читает актуальный набор секретов. Вызывается на каждый Invoke.
func (e *Env) Secret(ctx context.Context) (secrets.Bundle, error) {
	if e.secrets == nil {
		return secrets.Bundle{}, fmt.Errorf("%w: worker %s cannot read secrets", ErrAccessDenied, e.Name)
	}
	b, err := e.secrets.Bundle(ctx)
	if err != nil {
		return secrets.Bundle{}, DependencyError(fmt.Errorf("read secrets: %w", err))
	}
	return b, nil
}
