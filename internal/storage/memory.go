package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryBucket — bucket в памяти процесса.
type MemoryBucket struct {
	name string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory создаёт пустой bucket в памяти.
func NewMemory(name string) *MemoryBucket {
	return &MemoryBucket{name: name, objects: make(map[string][]byte)}
}

// Name возвращает имя bucket'а.
func (b *MemoryBucket) Name() string { return b.name }

// Get возвращает копию объекта.
func (b *MemoryBucket) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	body, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", b.name, key, ErrNotFound)
	}
	return append([]byte(nil), body...), nil
}

// Put записывает объект.
func (b *MemoryBucket) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), body...)
	return nil
}

// Delete удаляет объект.
func (b *MemoryBucket) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// Exists проверяет наличие объекта.
func (b *MemoryBucket) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok, nil
}

// List возвращает ключи с префиксом.
func (b *MemoryBucket) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
