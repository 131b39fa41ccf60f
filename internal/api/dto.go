package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/pipeline"
	"github.com/shaiso/fooroh/internal/router"
)

// Pipeline DTOs

// PipelineResponse — ответ с описанием пайплайна.
type PipelineResponse struct {
	Name    string         `json:"name"`
	Queue   string         `json:"queue,omitempty"`
	Timeout string         `json:"timeout"`
	Steps   []string       `json:"steps"`
	Timer   *TimerResponse `json:"timer,omitempty"`
}

// TimerResponse — состояние таймерного триггера.
type TimerResponse struct {
	Worker     string     `json:"worker"`
	Schedule   string     `json:"schedule"`
	Enabled    bool       `json:"enabled"`
	Ticks      int64      `json:"ticks"`
	LastTickAt *time.Time `json:"last_tick_at,omitempty"`
	NextTickAt *time.Time `json:"next_tick_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// PipelineFromDomain конвертирует пайплайн и его таймер в PipelineResponse.
func PipelineFromDomain(p *pipeline.Pipeline, timer *router.TimerRouter) PipelineResponse {
	resp := PipelineResponse{
		Name:    p.Name,
		Queue:   p.Queue,
		Timeout: p.Definition.Timeout.String(),
		Steps:   p.Definition.StepNames(),
	}
	if p.Timer != nil {
		t := &TimerResponse{
			Worker:   p.Timer.Worker,
			Schedule: p.Timer.Schedule,
			Enabled:  p.Timer.Enabled,
		}
		if timer != nil {
			st := timer.Status()
			t.Ticks = st.Ticks
			t.LastTickAt = st.LastTickAt
			t.NextTickAt = st.NextTickAt
			t.LastError = st.LastError
		}
		resp.Timer = t
	}
	return resp
}

// StartExecutionRequest — запрос на ручной запуск.
// Input передаётся engine без изменений; для очередных пайплайнов это
// список сообщений [{"body": ...}].
type StartExecutionRequest struct {
	Input json.RawMessage `json:"input"`
}

// StartExecutionResponse — ответ на ручной запуск.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	Pipeline    string `json:"pipeline"`
}

// Execution DTOs

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID         uuid.UUID              `json:"id"`
	Pipeline   string                 `json:"pipeline"`
	Status     domain.ExecutionStatus `json:"status"`
	Input      json.RawMessage        `json:"input,omitempty"`
	Output     json.RawMessage        `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Steps      []StepResponse         `json:"steps,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// StepResponse — ответ с записью шага.
type StepResponse struct {
	Name       string            `json:"name"`
	Worker     string            `json:"worker"`
	Status     domain.StepStatus `json:"status"`
	Attempts   int               `json:"attempts"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
// TIMED_OUT отдаётся как FAILED.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:         e.ID,
		Pipeline:   e.Pipeline,
		Status:     e.Status.Reported(),
		Input:      e.Input,
		Output:     e.Output,
		Error:      e.Error,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
		CreatedAt:  e.CreatedAt,
	}
	for _, s := range e.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			Name:       s.Name,
			Worker:     s.Worker,
			Status:     s.Status,
			Attempts:   s.Attempts,
			Error:      s.Error,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
		})
	}
	return resp
}

// Queue DTOs

// DeadLetterResponse — ответ с сообщением dead-letter очереди.
type DeadLetterResponse struct {
	ID             string          `json:"id"`
	SourceQueue    string          `json:"source_queue"`
	Body           json.RawMessage `json:"body"`
	ReceiveCount   int             `json:"receive_count"`
	Reason         string          `json:"reason,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
}

// DeadLetterFromDomain конвертирует domain.DeadLetterMessage в DeadLetterResponse.
func DeadLetterFromDomain(m domain.DeadLetterMessage) DeadLetterResponse {
	return DeadLetterResponse{
		ID:             m.ID,
		SourceQueue:    m.SourceQueue,
		Body:           m.JSONBody(),
		ReceiveCount:   m.ReceiveCount,
		Reason:         m.Reason,
		EnqueuedAt:     m.EnqueuedAt,
		DeadLetteredAt: m.DeadLetteredAt,
	}
}
