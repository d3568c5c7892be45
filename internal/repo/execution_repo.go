package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shaiso/agentflow/internal/domain"
)

// DB — подмножество *pgxpool.Pool, которое использует ExecutionRepo.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const executionSchema = `
CREATE TABLE IF NOT EXISTS workflow_executions (
	id                    uuid PRIMARY KEY,
	workflow_type         text        NOT NULL,
	status                text        NOT NULL DEFAULT 'pending',
	initial_context       jsonb       NOT NULL DEFAULT '{}'::jsonb,
	final_output          jsonb,
	error                 text,
	failed_task_name      text,
	full_trace            jsonb       NOT NULL DEFAULT '[]'::jsonb,
	workflow_execution_id uuid,
	job_id                text,
	started_at            timestamptz,
	finished_at           timestamptz,
	created_at            timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS workflow_executions_type_status_idx
	ON workflow_executions (workflow_type, status, created_at DESC);
`

const executionColumns = `
	id, workflow_type, status, initial_context, final_output, error,
	failed_task_name, full_trace, workflow_execution_id, job_id,
	started_at, finished_at, created_at
`

// ExecutionRepo — репозиторий Execution записей в PostgreSQL.
// Реализует worker.ExecutionStore.
type ExecutionRepo struct {
	db DB
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(db DB) *ExecutionRepo {
	return &ExecutionRepo{db: db}
}

// EnsureSchema создаёт таблицу workflow_executions, если её нет.
func (r *ExecutionRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, executionSchema); err != nil {
		return fmt.Errorf("ensure executions schema: %w", err)
	}
	return nil
}

// Create сохраняет новую запись.
func (r *ExecutionRepo) Create(ctx context.Context, e *domain.Execution) error {
	initialJSON, err := json.Marshal(e.InitialContext)
	if err != nil {
		return fmt.Errorf("marshal initial context: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_type, status, initial_context, job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Exec(ctx, query,
		e.ID,
		e.WorkflowType,
		e.Status,
		initialJSON,
		nullString(e.JobID),
		e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// CreatePending создаёт pending запись и возвращает её ID.
func (r *ExecutionRepo) CreatePending(ctx context.Context, workflowType string, initial map[string]any, jobID string) (uuid.UUID, error) {
	e := domain.NewExecution(workflowType, initial, jobID)
	if err := r.Create(ctx, e); err != nil {
		return uuid.Nil, err
	}
	return e.ID, nil
}

// MarkRunning переводит запись в running.
// Завершённую успешно запись повторно запустить нельзя.
func (r *ExecutionRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE workflow_executions
		SET status = 'running', started_at = $2, finished_at = NULL, error = NULL
		WHERE id = $1 AND status <> 'completed'
	`
	tag, err := r.db.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("mark execution running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrInvalid(ctx, id)
	}
	return nil
}

// Finalize переносит в запись поля WorkflowResult.
func (r *ExecutionRepo) Finalize(ctx context.Context, id uuid.UUID, result *domain.WorkflowResult) error {
	outputJSON, err := json.Marshal(result.FinalOutput)
	if err != nil {
		return fmt.Errorf("marshal final output: %w", err)
	}
	traceJSON, err := json.Marshal(result.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	status := domain.ExecutionStatusFailed
	if result.Completed() {
		status = domain.ExecutionStatusCompleted
	}

	query := `
		UPDATE workflow_executions
		SET status = $2, final_output = $3, error = $4, failed_task_name = $5,
		    full_trace = $6, workflow_execution_id = $7, finished_at = $8
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		id,
		status,
		outputJSON,
		nullString(result.Error),
		nullString(result.FailedStep),
		traceJSON,
		result.RunID,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail завершает запись ошибкой, случившейся вне Orchestrator'а.
func (r *ExecutionRepo) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE workflow_executions
		SET status = 'failed', error = $2, finished_at = $3
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, reason, time.Now())
	if err != nil {
		return fmt.Errorf("fail execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get возвращает запись по ID.
func (r *ExecutionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`
	return scanExecution(r.db.QueryRow(ctx, query, id))
}

// ExecutionFilter — параметры фильтрации записей.
type ExecutionFilter struct {
	WorkflowType string
	Status       domain.ExecutionStatus
	Limit        int
	Offset       int
}

// List возвращает записи, новые первыми.
func (r *ExecutionRepo) List(ctx context.Context, filter ExecutionFilter) ([]domain.Execution, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE ($1::text IS NULL OR workflow_type = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.WorkflowType),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

func (r *ExecutionRepo) missingOrInvalid(ctx context.Context, id uuid.UUID) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM workflow_executions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get execution status: %w", err)
	}
	return fmt.Errorf("%w: execution %s is %s", ErrInvalidState, id, status)
}

// scanExecution сканирует одну строку в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var e domain.Execution
	var status string
	var initialJSON, outputJSON, traceJSON []byte
	var execErr, failedStep, jobID *string

	err := row.Scan(
		&e.ID,
		&e.WorkflowType,
		&status,
		&initialJSON,
		&outputJSON,
		&execErr,
		&failedStep,
		&traceJSON,
		&e.RunID,
		&jobID,
		&e.StartedAt,
		&e.FinishedAt,
		&e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	e.Status = domain.ParseExecutionStatus(status)
	e.Error = derefString(execErr)
	e.FailedStep = derefString(failedStep)
	e.JobID = derefString(jobID)

	if len(initialJSON) > 0 {
		if err := json.Unmarshal(initialJSON, &e.InitialContext); err != nil {
			return nil, fmt.Errorf("unmarshal initial context: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &e.FinalOutput); err != nil {
			return nil, fmt.Errorf("unmarshal final output: %w", err)
		}
	}
	if len(traceJSON) > 0 {
		if err := json.Unmarshal(traceJSON, &e.Trace); err != nil {
			return nil, fmt.Errorf("unmarshal trace: %w", err)
		}
	}
	return &e, nil
}
