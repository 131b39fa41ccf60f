package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/engine"
)

// DB — подмножество pgxpool.Pool, используемое репозиторием.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ExecutionRepo — engine.ExecutionStore поверх PostgreSQL.
type ExecutionRepo struct {
	db DB
}

var _ engine.ExecutionStore = (*ExecutionRepo)(nil)

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(db DB) *ExecutionRepo {
	return &ExecutionRepo{db: db}
}

const selectColumns = `
	SELECT id, pipeline, status, input, output, steps, error,
	       started_at, finished_at, created_at
	FROM executions
`

// Create сохраняет новый execution.
func (r *ExecutionRepo) Create(ctx context.Context, exec *domain.Execution) error {
	steps, err := marshalSteps(exec.Steps)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (id, pipeline, status, input, output, steps, error,
		                        started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Exec(ctx, query,
		exec.ID,
		exec.Pipeline,
		string(exec.Status),
		nullJSON(exec.Input),
		nullJSON(exec.Output),
		steps,
		nullString(exec.Error),
		exec.StartedAt,
		exec.FinishedAt,
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Update сохраняет статус, шаги и результат execution'а.
func (r *ExecutionRepo) Update(ctx context.Context, exec *domain.Execution) error {
	steps, err := marshalSteps(exec.Steps)
	if err != nil {
		return err
	}

	query := `
		UPDATE executions
		SET status = $2, output = $3, steps = $4, error = $5, started_at = $6, finished_at = $7
		WHERE id = $1 AND status NOT IN ('SUCCEEDED', 'FAILED', 'TIMED_OUT')
	`
	result, err := r.db.Exec(ctx, query,
		exec.ID,
		string(exec.Status),
		nullJSON(exec.Output),
		steps,
		nullString(exec.Error),
		exec.StartedAt,
		exec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missedUpdate(ctx, exec.ID)
	}
	return nil
}

// missedUpdate различает отсутствующую запись и уже завершённую.
func (r *ExecutionRepo) missedUpdate(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check execution: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrFinished
}

// Get возвращает execution по ID.
func (r *ExecutionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	exec, err := scanExecution(r.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return exec, err
}

// List возвращает execution'ы от новых к старым.
func (r *ExecutionRepo) List(ctx context.Context, filter engine.ListFilter) ([]domain.Execution, error) {
	filter = filter.WithDefaults()

	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	query := selectColumns + `
		WHERE ($1::text IS NULL OR pipeline = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, nullString(filter.Pipeline), status, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *exec)
	}
	return out, rows.Err()
}

// --- Helpers ---

// scanExecution сканирует строку (pgx.Row или pgx.Rows) в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var status string
	var input, output, steps []byte
	var execError *string

	err := row.Scan(
		&exec.ID,
		&exec.Pipeline,
		&status,
		&input,
		&output,
		&steps,
		&execError,
		&exec.StartedAt,
		&exec.FinishedAt,
		&exec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	exec.Status = domain.ExecutionStatus(status)
	exec.Input = input
	exec.Output = output
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &exec.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	if execError != nil {
		exec.Error = *execError
	}
	return &exec, nil
}

func marshalSteps(steps []domain.StepRecord) ([]byte, error) {
	if steps == nil {
		steps = []domain.StepRecord{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}
	return data, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullJSON возвращает nil для пустого payload.
func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
