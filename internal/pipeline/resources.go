package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shaiso/fooroh/internal/bot"
	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/mq"
	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/storage"
	"github.com/shaiso/fooroh/internal/telemetry"
	"github.com/shaiso/fooroh/internal/worker"
)

// signoutVisibility — таймаут видимости очереди signout.
const signoutVisibility = 60 * time.Second

// BucketNames — хранилища, общие для всех пайплайнов.
var BucketNames = []string{
	bot.BucketOriginals,
	bot.BucketWatermarks,
	bot.BucketWatermarked,
	bot.BucketUserInfo,
}

// QueuePolicies возвращает очереди пайплайнов и их политики доставки.
//
// followed, set-watermark-img и watermarking: видимость 30s, хранение
// 14 дней, 3 выдачи до dead-letter. signout: видимость 60s.
func QueuePolicies() map[string]queue.Policy {
	base := queue.Policy{
		VisibilityTimeout: queue.DefaultVisibilityTimeout,
		Retention:         queue.DefaultRetention,
		MaxReceiveCount:   queue.DefaultMaxReceiveCount,
	}.WithDefaults()

	signout := base
	signout.VisibilityTimeout = signoutVisibility

	return map[string]queue.Policy{
		bot.QueueFollowed:        base,
		bot.QueueSetWatermarkImg: base,
		bot.QueueWatermarking:    base,
		bot.QueueSignout:         signout,
	}
}

// CommonResources — ресурсы, разделяемые пайплайнами: хранилища,
// очереди и провайдер секретов. Реализует worker.Catalog.
type CommonResources struct {
	buckets map[string]storage.Bucket
	queues  map[string]queue.Queue
	secrets secrets.Provider
}

// NewCommonResources проверяет, что заданы все хранилища и очереди.
func NewCommonResources(buckets map[string]storage.Bucket, queues map[string]queue.Queue, sp secrets.Provider) (*CommonResources, error) {
	for _, name := range BucketNames {
		if buckets[name] == nil {
			return nil, fmt.Errorf("%w: bucket %s", ErrMissingResource, name)
		}
	}
	for name := range QueuePolicies() {
		if queues[name] == nil {
			return nil, fmt.Errorf("%w: queue %s", ErrMissingResource, name)
		}
	}
	if sp == nil {
		return nil, fmt.Errorf("%w: secret provider", ErrMissingResource)
	}
	return &CommonResources{buckets: buckets, queues: queues, secrets: sp}, nil
}

// NewMemoryResources создаёт ресурсы в памяти процесса.
func NewMemoryResources(sp secrets.Provider) *CommonResources {
	return &CommonResources{buckets: NewMemoryBuckets(), queues: NewMemoryQueues(), secrets: sp}
}

// NewMemoryBuckets создаёт хранилища в памяти процесса.
func NewMemoryBuckets() map[string]storage.Bucket {
	out := make(map[string]storage.Bucket, len(BucketNames))
	for _, name := range BucketNames {
		out[name] = storage.NewMemory(name)
	}
	return out
}

// NewMemoryQueues создаёт очереди в памяти процесса.
func NewMemoryQueues() map[string]queue.Queue {
	out := make(map[string]queue.Queue)
	for name, policy := range QueuePolicies() {
		out[name] = queue.NewMemory(name, policy, queue.WithDeadLetterHook(deadLettered(name)))
	}
	return out
}

// NewS3Buckets создаёт хранилища S3 с именами <prefix><name>.
func NewS3Buckets(client storage.S3API, prefix string) map[string]storage.Bucket {
	out := make(map[string]storage.Bucket, len(BucketNames))
	for _, name := range BucketNames {
		out[name] = storage.NewS3(client, name, prefix+name)
	}
	return out
}

// NewAMQPQueues объявляет очереди RabbitMQ вместе с их dead-letter очередями.
func NewAMQPQueues(ctx context.Context, conn *mq.Connection, logger *slog.Logger) (map[string]queue.Queue, error) {
	out := make(map[string]queue.Queue)
	for name, policy := range QueuePolicies() {
		q, err := mq.NewQueue(ctx, conn, logger, mq.QueueConfig{
			Name:         name,
			Policy:       policy,
			OnDeadLetter: deadLettered(name),
		})
		if err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
		out[name] = q
	}

	names := make([]string, 0, len(out))
	for name := range out {
		names = append(names, name)
	}
	sort.Strings(names)
	logger.Debug("rabbitmq topology declared", "topology", mq.TopologyInfo(names))
	return out, nil
}

func deadLettered(name string) queue.DeadLetterHook {
	return func(domain.DeadLetterMessage) { telemetry.DeadLettered(name) }
}

// Bucket возвращает хранилище по имени.
func (r *CommonResources) Bucket(name string) (storage.Bucket, bool) {
	b, ok := r.buckets[name]
	return b, ok
}

// Queue возвращает очередь по имени.
func (r *CommonResources) Queue(name string) (queue.Queue, bool) {
	q, ok := r.queues[name]
	return q, ok
}

// Secrets возвращает провайдер секретов.
func (r *CommonResources) Secrets() worker.SecretProvider { return r.secrets }

// QueueNames возвращает имена очередей по алфавиту.
func (r *CommonResources) QueueNames() []string {
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ worker.Catalog = (*CommonResources)(nil)
