package worker

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр собранных worker'ов по имени.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Bound
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Bound)}
}

// Register добавляет worker.
func (r *Registry) Register(b *Bound) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workers[b.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, b.Name())
	}
	r.workers[b.Name()] = b
	return nil
}

// Get возвращает worker по имени.
func (r *Registry) Get(name string) (*Bound, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	return b, nil
}

// Names возвращает отсортированные имена worker'ов.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
