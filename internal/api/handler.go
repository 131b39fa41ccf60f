package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/engine"
	"github.com/shaiso/fooroh/internal/pipeline"
	"github.com/shaiso/fooroh/internal/router"
)

// Service — операции над запущенными пайплайнами. Реализуется *pipeline.Set.
type Service interface {
	Pipelines() []*pipeline.Pipeline
	Timer(name string) (*router.TimerRouter, bool)
	StartExecution(ctx context.Context, pipeline string, input any) (string, error)
	Execution(ctx context.Context, id string) (*domain.Execution, error)
	Executions(ctx context.Context, filter engine.ListFilter) ([]domain.Execution, error)
	DeadLetters(ctx context.Context, queue string, limit int) ([]domain.DeadLetterMessage, error)
}

var _ Service = (*pipeline.Set)(nil)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service Service
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: cfg.Service,
		logger:  logger,
	}
}
