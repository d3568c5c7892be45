package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/scheduler"
)

// RunTracker — источник активных прогонов. Реализуется orchestrator.Orchestrator.
type RunTracker interface {
	ActiveRunsCount() int
	ActiveRuns() map[uuid.UUID]orchestrator.RunStats
}

// ExecutionReader читает Execution записи.
// Реализуется repo.ExecutionRepo и repo.RedisExecutionStore.
type ExecutionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
}

// Schedules — реестр расписаний. Реализуется scheduler.CronScheduler.
type Schedules interface {
	Entries() []scheduler.Entry
	Unschedule(id string) error
}

// Health сообщает о доступности зависимостей.
type Health func() map[string]bool

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs       RunTracker
	catalog    *engine.Catalog
	executions ExecutionReader
	schedules  Schedules
	health     Health
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runs       RunTracker
	Catalog    *engine.Catalog
	Executions ExecutionReader // опционально
	Schedules  Schedules       // опционально
	Health     Health          // опционально
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runs:       cfg.Runs,
		catalog:    cfg.Catalog,
		executions: cfg.Executions,
		schedules:  cfg.Schedules,
		health:     cfg.Health,
		logger:     logger,
	}
}
