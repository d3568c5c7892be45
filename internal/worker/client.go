package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/mq"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// ExecutionStore хранит Execution записи async прогонов.
// Реализации: repo.ExecutionRepo (PostgreSQL), repo.RedisExecutionStore.
type ExecutionStore interface {
	// CreatePending создаёт запись со статусом pending.
	CreatePending(ctx context.Context, workflowType string, initial map[string]any, jobID string) (uuid.UUID, error)

	// MarkRunning переводит запись в running.
	MarkRunning(ctx context.Context, id uuid.UUID) error

	// Finalize переносит в запись поля WorkflowResult.
	Finalize(ctx context.Context, id uuid.UUID, result *domain.WorkflowResult) error

	// Fail завершает запись ошибкой, случившейся вне Orchestrator'а.
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}

// JobPublisher ставит job в очередь. Реализуется mq.Publisher.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string, payload mq.JobPayload) (string, error)
}

// JobHandle — ссылка на поставленный в очередь job.
type JobHandle struct {
	JobID        string     `json:"job_id"`
	ExecutionID  *uuid.UUID `json:"execution_id,omitempty"`
	WorkflowType string     `json:"workflow_type"`
}

// Client ставит workflow в очередь на отложенное выполнение.
type Client struct {
	catalog   *engine.Catalog
	publisher JobPublisher
	store     ExecutionStore
	logger    *slog.Logger
}

// ClientConfig — конфигурация Client.
type ClientConfig struct {
	// Catalog — если задан, имя workflow проверяется до постановки в очередь.
	Catalog *engine.Catalog

	// Publisher — очередь (обязателен).
	Publisher JobPublisher

	// Store — хранилище Execution (опционально).
	Store ExecutionStore

	// Logger
	Logger *slog.Logger
}

// NewClient создаёт Client.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		catalog:   cfg.Catalog,
		publisher: cfg.Publisher,
		store:     cfg.Store,
		logger:    logger,
	}
}

// RunLater сериализует Context и ставит job в очередь.
//
// Ошибка сериализации (*engine.SerializationError) возвращается до
// постановки в очередь и до создания Execution.
func (c *Client) RunLater(ctx context.Context, workflowType string, wctx *engine.Context) (*JobHandle, error) {
	if c.publisher == nil {
		return nil, ErrNoPublisher
	}
	if c.catalog != nil && !c.catalog.Has(workflowType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowType)
	}

	serialized, err := EncodeContext(wctx)
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	handle := &JobHandle{JobID: jobID, WorkflowType: workflowType}
	logger := c.logger.With("workflow", workflowType, "job_id", jobID)

	if c.store != nil {
		id, err := c.store.CreatePending(ctx, workflowType, serialized, jobID)
		if err != nil {
			return nil, fmt.Errorf("create execution: %w", err)
		}
		handle.ExecutionID = &id
		logger = telemetry.WithExecutionID(logger, id.String())
	}

	payload := mq.JobPayload{
		ExecutionID:  handle.ExecutionID,
		WorkflowType: workflowType,
		Context:      serialized,
	}
	if _, err := c.publisher.PublishJob(ctx, jobID, payload); err != nil {
		if handle.ExecutionID != nil {
			if ferr := c.store.Fail(ctx, *handle.ExecutionID, "enqueue failed: "+err.Error()); ferr != nil {
				logger.Warn("failed to mark execution failed", "error", ferr)
			}
		}
		return nil, fmt.Errorf("publish job: %w", err)
	}

	logger.Info("workflow enqueued", "keys", len(serialized))
	return handle, nil
}
