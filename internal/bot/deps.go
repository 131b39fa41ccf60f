package bot

import (
	"context"
	"time"

	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/social"
	"github.com/shaiso/fooroh/internal/worker"
)

// Default configuration values.
const (
	defaultWorkerTimeout = 30 * time.Second
	mediaWorkerTimeout   = 2 * time.Minute
	mediaWorkerMemoryMB  = 1024
)

// Deps — внешние зависимости worker'ов бота.
type Deps struct {
	// Accounts создаёт клиентов бота и пользователей.
	Accounts *Accounts

	// Signup — engine пайплайна signup; нужен signup-executor.
	Signup worker.Starter

	// Now (default: time.Now)
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// bot читает секреты и возвращает клиента бота.
func (d Deps) bot(ctx context.Context, env *worker.Env) (social.Client, secrets.Bundle, error) {
	b, err := env.Secret(ctx)
	if err != nil {
		return nil, secrets.Bundle{}, err
	}
	client, err := d.Accounts.Bot(ctx, b)
	if err != nil {
		return nil, secrets.Bundle{}, err
	}
	return client, b, nil
}

func readWrite(names ...string) map[string]worker.BucketAccess {
	return access(worker.BucketReadWrite, names...)
}

func access(a worker.BucketAccess, names ...string) map[string]worker.BucketAccess {
	out := make(map[string]worker.BucketAccess, len(names))
	for _, n := range names {
		out[n] = a
	}
	return out
}
