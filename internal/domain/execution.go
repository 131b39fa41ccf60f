package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Execution — один запуск workflow пайплайна против одного входного payload.
//
// Execution создаётся когда:
// - Router получил сообщение из очереди
// - Worker другого пайплайна вызвал StartExecution (например, signup-executor)
// - Оператор запустил пайплайн вручную через API
//
// Execution принадлежит ровно одному WorkflowEngine и привязан к его определению.
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя пайплайна (и workflow), к которому привязан execution.
	Pipeline string `json:"pipeline"`

	// Status — текущий статус выполнения.
	Status ExecutionStatus `json:"status"`

	// Input — исходный payload, с которым был запущен execution.
	Input json.RawMessage `json:"input,omitempty"`

	// Output — результат последнего шага (только для SUCCEEDED).
	Output json.RawMessage `json:"output,omitempty"`

	// Steps — история шагов в порядке выполнения.
	Steps []StepRecord `json:"steps,omitempty"`

	// Error — текст ошибки для FAILED и TIMED_OUT.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала первого шага.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в финальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания execution.
	CreatedAt time.Time `json:"created_at"`
}

// NewExecution создаёт execution в статусе RUNNING.
func NewExecution(pipeline string, input json.RawMessage) *Execution {
	return &Execution{
		ID:        uuid.New(),
		Pipeline:  pipeline,
		Status:    ExecutionStatusRunning,
		Input:     input,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution ещё не завершён.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// IsFinished возвращает true, если execution завершён (в любом статусе).
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkStarted фиксирует время начала выполнения шагов.
func (e *Execution) MarkStarted() {
	if e.StartedAt != nil {
		return
	}
	now := time.Now()
	e.StartedAt = &now
}

// MarkSucceeded переводит execution в статус SUCCEEDED.
// Возвращает false, если execution уже в финальном статусе.
func (e *Execution) MarkSucceeded(output json.RawMessage) bool {
	if !e.finish(ExecutionStatusSucceeded) {
		return false
	}
	e.Output = output
	return true
}

// MarkFailed переводит execution в статус FAILED с ошибкой.
func (e *Execution) MarkFailed(err string) bool {
	if !e.finish(ExecutionStatusFailed) {
		return false
	}
	e.Error = err
	return true
}

// MarkTimedOut переводит execution в статус TIMED_OUT.
func (e *Execution) MarkTimedOut(err string) bool {
	if !e.finish(ExecutionStatusTimedOut) {
		return false
	}
	e.Error = err
	return true
}

func (e *Execution) finish(status ExecutionStatus) bool {
	if e.Status.IsTerminal() {
		return false
	}
	now := time.Now()
	e.Status = status
	e.FinishedAt = &now
	return true
}

// StepRecord — запись о выполнении шага внутри execution.
type StepRecord struct {
	// Name — имя шага из WorkflowDefinition.
	Name string `json:"name"`

	// Worker — имя worker'а, который выполнял шаг.
	Worker string `json:"worker"`

	// Status — статус шага.
	Status StepStatus `json:"status"`

	// Attempts — количество сделанных вызовов worker'а (начиная с 1).
	Attempts int `json:"attempts"`

	// Error — текст последней ошибки worker'а.
	Error string `json:"error,omitempty"`

	// StartedAt — время первого вызова.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения шага.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность шага.
func (s *StepRecord) Duration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
