package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/worker"
)

// ErrScheduleNotFound — расписание с таким ID не зарегистрировано.
var ErrScheduleNotFound = errors.New("schedule not found")

// Enqueuer ставит workflow в очередь. Реализуется worker.Client.
type Enqueuer interface {
	RunLater(ctx context.Context, workflowType string, wctx *engine.Context) (*worker.JobHandle, error)
}

// Entry — зарегистрированное расписание.
type Entry struct {
	ID       string         `json:"id"`
	Spec     string         `json:"schedule"`
	Workflow string         `json:"workflow"`
	Input    map[string]any `json:"initial_input,omitempty"`
	Next     time.Time      `json:"next_run_at"`
	Prev     time.Time      `json:"last_run_at,omitempty"`
	LastJob  string         `json:"last_job_id,omitempty"`

	cronID cron.EntryID
}

// CronScheduler — in-process планировщик на robfig/cron.
type CronScheduler struct {
	cron     *cron.Cron
	enqueuer Enqueuer
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
}

// Config — конфигурация CronScheduler.
type Config struct {
	// Enqueuer — worker.Client (обязателен).
	Enqueuer Enqueuer

	// Location — timezone расписаний (default: UTC).
	Location *time.Location

	// EnqueueTimeout — таймаут постановки в очередь (default: 10s).
	EnqueueTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// NewCronScheduler создаёт CronScheduler. Start запускает срабатывания.
func NewCronScheduler(cfg Config) *CronScheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.EnqueueTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CronScheduler{
		cron:     cron.New(cron.WithParser(cronParser), cron.WithLocation(loc)),
		enqueuer: cfg.Enqueuer,
		timeout:  timeout,
		logger:   logger.With("component", "scheduler"),
		entries:  make(map[string]*Entry),
	}
}

// Schedule регистрирует периодический запуск workflow и возвращает ID расписания.
func (s *CronScheduler) Schedule(_ context.Context, spec, workflow string, input map[string]any) (string, error) {
	if s.enqueuer == nil {
		return "", errors.New("scheduler has no enqueuer")
	}
	if workflow == "" {
		return "", errors.New("workflow is required")
	}
	if err := ValidateCronExpr(spec); err != nil {
		return "", err
	}

	entry := &Entry{
		ID:       uuid.NewString(),
		Spec:     spec,
		Workflow: workflow,
		Input:    maps.Clone(input),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cronID, err := s.cron.AddFunc(spec, func() { s.fire(entry.ID) })
	if err != nil {
		return "", fmt.Errorf("add schedule: %w", err)
	}
	entry.cronID = cronID
	s.entries[entry.ID] = entry

	s.logger.Info("workflow scheduled", "schedule_id", entry.ID, "workflow", workflow, "schedule", spec)
	return entry.ID, nil
}

// Unschedule удаляет расписание.
func (s *CronScheduler) Unschedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	s.cron.Remove(entry.cronID)
	delete(s.entries, id)
	return nil
}

// Entries возвращает расписания, отсортированные по ID.
func (s *CronScheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.entries))
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e := *s.entries[id]
		ce := s.cron.Entry(e.cronID)
		e.Next, e.Prev = ce.Next, ce.Prev
		out = append(out, e)
	}
	return out
}

// Start запускает планировщик в фоне.
func (s *CronScheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop останавливает планировщик и ждёт текущие срабатывания.
func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// fire ставит workflow расписания в очередь.
// Ошибка одного срабатывания не отменяет расписание.
func (s *CronScheduler) fire(id string) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	var workflow string
	var input map[string]any
	if ok {
		workflow, input = entry.Workflow, maps.Clone(entry.Input)
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	handle, err := s.enqueuer.RunLater(ctx, workflow, engine.NewContext(input))
	if err != nil {
		s.logger.Error("scheduled enqueue failed", "schedule_id", id, "workflow", workflow, "error", err)
		return
	}

	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.LastJob = handle.JobID
	}
	s.mu.Unlock()

	s.logger.Info("scheduled workflow enqueued", "schedule_id", id, "workflow", workflow, "job_id", handle.JobID)
}
