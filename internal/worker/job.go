package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/mq"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// Executor выполняет workflow по имени. Реализуется orchestrator.Orchestrator.
type Executor interface {
	ExecuteType(ctx context.Context, workflow string, wctx *engine.Context, onStep orchestrator.StepCallback) (*domain.WorkflowResult, error)
}

// Job — обработчик одного workflow.job: восстанавливает Context,
// ведёт Execution запись и один раз вызывает Orchestrator.
type Job struct {
	executor    Executor
	locator     *Locator
	store       ExecutionStore
	contextOpts []engine.ContextOption
	logger      *slog.Logger
}

// JobConfig — конфигурация Job.
type JobConfig struct {
	// Executor — Orchestrator (обязателен).
	Executor Executor

	// Locator — resolver'ы ссылок ref:// (опционально).
	Locator *Locator

	// Store — хранилище Execution (опционально).
	Store ExecutionStore

	// ContextOptions применяются к восстановленному Context
	// (приватные ключи для логов).
	ContextOptions []engine.ContextOption

	// Logger
	Logger *slog.Logger
}

// NewJob создаёт Job.
func NewJob(cfg JobConfig) *Job {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		executor:    cfg.Executor,
		locator:     cfg.Locator,
		store:       cfg.Store,
		contextOpts: cfg.ContextOptions,
		logger:      logger,
	}
}

// Perform выполняет job.
//
// Failed WorkflowResult — это нормальное завершение job: запись
// финализируется, ошибка не возвращается. Ошибка возвращается, если
// Context не восстановился или workflow неизвестен (обе обёрнуты
// mq.Permanent), если не удалось обновить запись, или если Orchestrator
// запаниковал. Тогда решает политика повтора очереди.
func (j *Job) Perform(ctx context.Context, payload mq.JobPayload) (result *domain.WorkflowResult, err error) {
	logger := telemetry.WithWorkflow(j.logger, payload.WorkflowType)
	if payload.ExecutionID != nil {
		logger = telemetry.WithExecutionID(logger, payload.ExecutionID.String())
	}
	ctx = telemetry.WithLogger(ctx, logger)

	wctx, err := DecodeContext(ctx, payload.Context, j.locator, j.contextOpts...)
	if err != nil {
		logger.Error("context rehydration failed", "error", err)
		j.fail(ctx, logger, payload.ExecutionID, err.Error())
		return nil, mq.Permanent(err)
	}

	if j.store != nil && payload.ExecutionID != nil {
		if err := j.store.MarkRunning(ctx, *payload.ExecutionID); err != nil {
			return nil, fmt.Errorf("mark execution running: %w", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("orchestrator panicked: %v", r)
			logger.Error("job panicked", "panic", r)
			j.fail(ctx, logger, payload.ExecutionID, err.Error())
		}
	}()

	result, err = j.executor.ExecuteType(ctx, payload.WorkflowType, wctx, nil)
	if err != nil {
		logger.Error("workflow dispatch failed", "error", err)
		j.fail(ctx, logger, payload.ExecutionID, err.Error())
		if errors.Is(err, ErrUnknownWorkflow) {
			return nil, mq.Permanent(err)
		}
		return nil, err
	}

	if j.store != nil && payload.ExecutionID != nil {
		if err := j.store.Finalize(ctx, *payload.ExecutionID, result); err != nil {
			return result, fmt.Errorf("finalize execution: %w", err)
		}
	}

	logger.Info("job finished", "status", result.Status, "run_id", result.RunID)
	return result, nil
}

// fail помечает Execution как failed. Ошибка хранилища только логируется.
func (j *Job) fail(ctx context.Context, logger *slog.Logger, id *uuid.UUID, reason string) {
	if j.store == nil || id == nil {
		return
	}
	if err := j.store.Fail(ctx, *id, reason); err != nil {
		logger.Warn("failed to mark execution failed", "error", err)
	}
}
