package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/storage"
)

// BucketAccess — доступ worker'а к bucket'у.
type BucketAccess int

const (
	BucketNone BucketAccess = iota
	BucketRead
	BucketWrite
	BucketReadWrite
)

func (a BucketAccess) canRead() bool  { return a == BucketRead || a == BucketReadWrite }
func (a BucketAccess) canWrite() bool { return a == BucketWrite || a == BucketReadWrite }

func (a BucketAccess) String() string {
	switch a {
	case BucketRead:
		return "read"
	case BucketWrite:
		return "write"
	case BucketReadWrite:
		return "read/write"
	default:
		return "none"
	}
}

// QueueAccess — доступ worker'а к очереди.
type QueueAccess int

const (
	QueueNone QueueAccess = iota
	QueueSend
	QueueConsume
)

func (a QueueAccess) String() string {
	switch a {
	case QueueSend:
		return "send"
	case QueueConsume:
		return "consume"
	default:
		return "none"
	}
}

// Grants — таблица capability worker'а.
type Grants struct {
	// Buckets — доступ к bucket'ам по логическому имени.
	Buckets map[string]BucketAccess

	// Queues — доступ к очередям по имени.
	Queues map[string]QueueAccess

	// Secret — чтение набора секретов.
	Secret bool
}

// Describe возвращает capability в виде строк "bucket:<name>=read".
func (g Grants) Describe() []string {
	var out []string
	for name, a := range g.Buckets {
		out = append(out, fmt.Sprintf("bucket:%s=%s", name, a))
	}
	for name, a := range g.Queues {
		out = append(out, fmt.Sprintf("queue:%s=%s", name, a))
	}
	if g.Secret {
		out = append(out, "secret=read")
	}
	sort.Strings(out)
	return out
}

// Catalog — общие ресурсы, из которых разрешаются capability.
// Реализуется pipeline.CommonResources.
type Catalog interface {
	Bucket(name string) (storage.Bucket, bool)
	Queue(name string) (queue.Queue, bool)
	Secrets() SecretProvider
}

// guardedBucket пропускает только разрешённые операции.
type guardedBucket struct {
	inner  storage.Bucket
	access BucketAccess
	worker string
}

func (b *guardedBucket) denied(op string) error {
	return fmt.Errorf("%w: worker %s cannot %s bucket %s", ErrAccessDenied, b.worker, op, b.inner.Name())
}

func (b *guardedBucket) Name() string { return b.inner.Name() }

func (b *guardedBucket) Get(ctx context.Context, key string) ([]byte, error) {
	if !b.access.canRead() {
		return nil, b.denied("read")
	}
	return b.inner.Get(ctx, key)
}

func (b *guardedBucket) Exists(ctx context.Context, key string) (bool, error) {
	if !b.access.canRead() {
		return false, b.denied("read")
	}
	return b.inner.Exists(ctx, key)
}

func (b *guardedBucket) List(ctx context.Context, prefix string) ([]string, error) {
	if !b.access.canRead() {
		return nil, b.denied("read")
	}
	return b.inner.List(ctx, prefix)
}

func (b *guardedBucket) Put(ctx context.Context, key string, body []byte) error {
	if !b.access.canWrite() {
		return b.denied("write")
	}
	return b.inner.Put(ctx, key, body)
}

func (b *guardedBucket) Delete(ctx context.Context, key string) error {
	if !b.access.canWrite() {
		return b.denied("write")
	}
	return b.inner.Delete(ctx, key)
}
