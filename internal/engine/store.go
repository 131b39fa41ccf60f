package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/fooroh/internal/domain"
)

// ListFilter — фильтр списка execution'ов.
type ListFilter struct {
	// Pipeline — имя пайплайна; пустое — все.
	Pipeline string

	// Status — статус; nil — любой.
	Status *domain.ExecutionStatus

	// Limit — максимум записей (default: 50).
	Limit int
}

const defaultListLimit = 50

// WithDefaults возвращает фильтр с заполненными значениями по умолчанию.
func (f ListFilter) WithDefaults() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	return f
}

// Matches проверяет execution против фильтра.
func (f ListFilter) Matches(e *domain.Execution) bool {
	if f.Pipeline != "" && e.Pipeline != f.Pipeline {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	return true
}

// ExecutionStore — хранилище записей execution'ов.
//
// Реализации: MemoryStore (по умолчанию) и repo.ExecutionRepo (Postgres).
type ExecutionStore interface {
	Create(ctx context.Context, exec *domain.Execution) error
	Update(ctx context.Context, exec *domain.Execution) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Execution, error)
}

// MemoryStore — ExecutionStore в памяти процесса.
//
// Хранит не более capacity записей; при переполнении удаляются
// самые старые завершённые.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*domain.Execution
	order    []uuid.UUID
	capacity int
}

const defaultStoreCapacity = 10000

// NewMemoryStore создаёт MemoryStore. capacity <= 0 — 10000.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultStoreCapacity
	}
	return &MemoryStore{
		byID:     make(map[uuid.UUID]*domain.Execution),
		capacity: capacity,
	}
}

// Create сохраняет новую запись.
func (s *MemoryStore) Create(ctx context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[exec.ID] = cloneExecution(exec)
	s.order = append(s.order, exec.ID)
	s.evictLocked()
	return nil
}

// Update заменяет запись. Запись в терминальном статусе не заменяется.
func (s *MemoryStore) Update(ctx context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[exec.ID]
	if !ok {
		return ErrExecutionNotFound
	}
	if cur.Status.IsTerminal() {
		return ErrExecutionFinished
	}
	s.byID[exec.ID] = cloneExecution(exec)
	return nil
}

// Get возвращает копию записи.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return cloneExecution(e), nil
}

// List возвращает записи от новых к старым.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]domain.Execution, error) {
	filter = filter.WithDefaults()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Execution
	for i := len(s.order) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		e := s.byID[s.order[i]]
		if filter.Matches(e) {
			out = append(out, *cloneExecution(e))
		}
	}
	return out, nil
}

func (s *MemoryStore) evictLocked() {
	for i := 0; len(s.order) > s.capacity && i < len(s.order); {
		id := s.order[i]
		if s.byID[id].IsFinished() {
			delete(s.byID, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			continue
		}
		i++
	}
}

func cloneExecution(e *domain.Execution) *domain.Execution {
	c := *e
	c.Input = append(json.RawMessage(nil), e.Input...)
	c.Output = append(json.RawMessage(nil), e.Output...)
	c.Steps = append([]domain.StepRecord(nil), e.Steps...)
	return &c
}
