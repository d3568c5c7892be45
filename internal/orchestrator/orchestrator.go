package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/tasks"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// TaskResolver создаёт Task для шага. Реализуется tasks.Registry.
type TaskResolver interface {
	Resolve(taskType, name string, cfg map[string]any) (tasks.Task, error)
}

// Observer получает события прогона. Реализуется telemetry.Metrics.
type Observer interface {
	RunFinished(workflow, status string, d time.Duration)
	StepFinished(taskType, status string, d time.Duration)
	StepSkipped(workflow, step string)
}

type nopObserver struct{}

func (nopObserver) RunFinished(string, string, time.Duration)  {}
func (nopObserver) StepFinished(string, string, time.Duration) {}
func (nopObserver) StepSkipped(string, string)                 {}

// StepCallback вызывается синхронно после каждого выполненного шага.
// Следующий шаг не начнётся, пока callback не вернётся.
// Ошибка callback останавливает прогон.
type StepCallback func(domain.StepResult) error

// Orchestrator выполняет workflow.
//
// Шаги идут строго по порядку объявления:
//   - Task создаётся через TaskResolver
//   - guard-условие проверяется на текущем Context
//   - output успешного шага кладётся в Context под именем шага
//   - первая ошибка останавливает прогон, накопленный trace сохраняется
//
// Orchestrator не хранит состояние между прогонами и безопасен для
// одновременного вызова из разных горутин: у каждого прогона своя
// цепочка неизменяемых Context.
type Orchestrator struct {
	resolver TaskResolver
	catalog  *engine.Catalog
	observer Observer
	logger   *slog.Logger

	// activeRuns — прогоны в процессе выполнения (runID → state).
	activeRuns map[uuid.UUID]*runState
	mu         sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Resolver — реестр типов задач (обязателен).
	Resolver TaskResolver

	// Catalog — каталог workflow для ExecuteType (опционально).
	Catalog *engine.Catalog

	// Observer — метрики (опционально).
	Observer Observer

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var observer Observer = nopObserver{}
	if cfg.Observer != nil {
		observer = cfg.Observer
	}

	return &Orchestrator{
		resolver:   cfg.Resolver,
		catalog:    cfg.Catalog,
		observer:   observer,
		logger:     logger,
		activeRuns: make(map[uuid.UUID]*runState),
	}
}

// Catalog возвращает каталог workflow.
func (o *Orchestrator) Catalog() *engine.Catalog {
	return o.catalog
}

// ExecuteType находит workflow в каталоге по имени и выполняет его.
// Ошибка возвращается только если workflow не найден.
func (o *Orchestrator) ExecuteType(ctx context.Context, workflow string, wctx *engine.Context, onStep StepCallback) (*domain.WorkflowResult, error) {
	if o.catalog == nil {
		return nil, ErrNoCatalog
	}
	def, ok := o.catalog.Get(workflow)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
	}
	return o.Execute(ctx, def, wctx, onStep), nil
}

// Execute выполняет определение против начального Context.
//
// Всегда возвращает результат: ошибки шагов, неизвестные типы задач
// и отмена ctx превращаются в failed WorkflowResult.
func (o *Orchestrator) Execute(ctx context.Context, def *engine.Definition, wctx *engine.Context, onStep StepCallback) *domain.WorkflowResult {
	if def == nil {
		return domain.NewFailedResult("", uuid.New(), nil, nil, "", ErrNilDefinition, 0)
	}

	state := newRunState(def, wctx)
	logger := telemetry.WithRunID(telemetry.WithWorkflow(o.logger, def.Name), state.runID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	o.addActiveRun(state)
	defer o.removeActiveRun(state.runID)

	logger.Info("workflow started",
		"steps", len(def.Steps),
		"context", state.context().Filtered(),
	)

	result := o.run(ctx, state, logger, onStep)

	o.observer.RunFinished(def.Name, string(result.Status), time.Duration(result.DurationMs)*time.Millisecond)
	if result.Completed() {
		logger.Info("workflow completed",
			"duration_ms", result.DurationMs,
			"executed", len(result.Trace),
			"skipped", len(result.SkippedSteps),
		)
	} else {
		logger.Error("workflow failed",
			"duration_ms", result.DurationMs,
			"failed_step", result.FailedStep,
			"error", result.Error,
			"context", state.context().Filtered(),
		)
	}
	return result
}

// run — основной цикл по шагам.
func (o *Orchestrator) run(ctx context.Context, state *runState, logger *slog.Logger, onStep StepCallback) *domain.WorkflowResult {
	if err := state.def.Validate(); err != nil {
		return state.failed("", err)
	}
	if o.resolver == nil {
		return state.failed("", fmt.Errorf("%w: task resolver is not configured", engine.ErrUnknownTaskType))
	}

	for _, step := range state.def.Steps {
		if err := ctx.Err(); err != nil {
			return state.failed("", fmt.Errorf("%w: %v", ErrRunCancelled, err))
		}

		stepLogger := telemetry.WithStep(logger, step.Name, step.Type)
		current := state.context()

		task, err := o.resolver.Resolve(step.Type, step.Name, step.Config)
		if err != nil {
			stepLogger.Error("task resolution failed", "error", err)
			return state.failed(step.Name, err)
		}

		ok, err := shouldExecute(task, current)
		if err != nil {
			stepLogger.Error("guard evaluation failed", "error", err)
			return state.failed(step.Name, err)
		}
		if !ok {
			state.skip(step.Name)
			o.observer.StepSkipped(state.def.Name, step.Name)
			stepLogger.Info("step skipped")
			continue
		}

		state.begin(step.Name)
		stepLogger.Debug("step started", "description", task.Description())

		start := time.Now()
		output, err := execute(telemetry.WithLogger(ctx, stepLogger), task, current)
		duration := time.Since(start)

		if err != nil {
			err = engine.WrapTaskError(step.Name, err)
			res := state.failStep(step.Name, err, duration)
			o.observer.StepFinished(step.Type, string(res.Status), duration)
			stepLogger.Error("step failed",
				"duration_ms", res.DurationMs,
				"error_kind", res.ErrorKind,
				"error", err,
			)
			if cbErr := notify(onStep, step.Name, res); cbErr != nil {
				stepLogger.Warn("step callback failed", "error", cbErr)
			}
			return state.failed(step.Name, err)
		}

		res := state.succeed(step.Name, output, duration)
		o.observer.StepFinished(step.Type, string(res.Status), duration)
		stepLogger.Info("step completed", "duration_ms", res.DurationMs)

		if cbErr := notify(onStep, step.Name, res); cbErr != nil {
			stepLogger.Error("step callback failed", "error", cbErr)
			return state.failed(step.Name, cbErr)
		}
	}

	return state.completed()
}

// shouldExecute проверяет guard; паника превращается в ошибку.
func shouldExecute(task tasks.Task, c *engine.Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = &engine.TaskError{
				Task:    task.Name(),
				Kind:    engine.KindGuard,
				Message: fmt.Sprintf("guard panicked: %v", r),
			}
		}
	}()
	return task.ShouldExecute(c)
}

// notify вызывает StepCallback; ошибка и паника становятся TaskError
// вида callback.
func notify(onStep StepCallback, step string, res domain.StepResult) (err error) {
	if onStep == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &engine.TaskError{
				Task:    step,
				Kind:    engine.KindCallback,
				Message: fmt.Sprintf("%v: step callback panicked: %v", ErrCallback, r),
				Err:     ErrCallback,
			}
		}
	}()
	if cbErr := onStep(res); cbErr != nil {
		return &engine.TaskError{
			Task:    step,
			Kind:    engine.KindCallback,
			Message: fmt.Sprintf("%v: %v", ErrCallback, cbErr),
			Err:     cbErr,
		}
	}
	return nil
}

// execute вызывает Task; паника превращается в ошибку шага.
func execute(ctx context.Context, task tasks.Task, c *engine.Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &engine.TaskError{
				Task:    task.Name(),
				Kind:    engine.KindPanic,
				Message: fmt.Sprintf("task panicked: %v", r),
			}
		}
	}()
	return task.Execute(ctx, c)
}

func (o *Orchestrator) addActiveRun(state *runState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeRuns[state.runID] = state
}

func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// ActiveRunsCount возвращает количество выполняющихся прогонов.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// GetActiveRunStats возвращает статистику по активному прогону.
func (o *Orchestrator) GetActiveRunStats(runID uuid.UUID) (RunStats, bool) {
	o.mu.RLock()
	state, exists := o.activeRuns[runID]
	o.mu.RUnlock()

	if !exists {
		return RunStats{}, false
	}
	return state.stats(), true
}

// ActiveRuns возвращает статистику всех активных прогонов.
func (o *Orchestrator) ActiveRuns() map[uuid.UUID]RunStats {
	o.mu.RLock()
	states := make([]*runState, 0, len(o.activeRuns))
	for _, s := range o.activeRuns {
		states = append(states, s)
	}
	o.mu.RUnlock()

	out := make(map[uuid.UUID]RunStats, len(states))
	for _, s := range states {
		out[s.runID] = s.stats()
	}
	return out
}
