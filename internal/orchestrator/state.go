package orchestrator

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
)

// runState — состояние одного прогона в памяти.
//
// Создаётся в начале Execute и удаляется из активных, когда
// прогон завершён. Шаги меняют состояние последовательно из одной
// горутины, мьютекс нужен только для чтения Stats снаружи.
type runState struct {
	runID     uuid.UUID
	def       *engine.Definition
	startedAt time.Time

	// current — контекст после последнего успешного шага.
	current *engine.Context

	trace   []domain.StepResult
	skipped []string
	step    string

	mu sync.RWMutex
}

func newRunState(def *engine.Definition, initial *engine.Context) *runState {
	if initial == nil {
		initial = engine.NewContext(nil)
	}
	return &runState{
		runID:     uuid.New(),
		def:       def,
		startedAt: time.Now(),
		current:   initial,
		trace:     make([]domain.StepResult, 0, len(def.Steps)),
	}
}

// context возвращает текущий снимок Context.
func (s *runState) context() *engine.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// begin отмечает шаг как выполняющийся.
func (s *runState) begin(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
}

// succeed добавляет запись success в trace и кладёт output
// в Context под именем шага.
func (s *runState) succeed(step string, output any, d time.Duration) domain.StepResult {
	res := domain.StepResult{
		StepName:   step,
		Status:     domain.StepStatusSuccess,
		Output:     output,
		DurationMs: d.Milliseconds(),
		Timestamp:  time.Now(),
		RunID:      s.runID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trace = append(s.trace, res)
	s.current = s.current.Set(step, output)
	s.step = ""
	return res
}

// failStep добавляет запись failed в trace.
func (s *runState) failStep(step string, err error, d time.Duration) domain.StepResult {
	res := domain.StepResult{
		StepName:   step,
		Status:     domain.StepStatusFailed,
		Error:      err.Error(),
		ErrorKind:  engine.ErrorKind(err),
		DurationMs: d.Milliseconds(),
		Timestamp:  time.Now(),
		RunID:      s.runID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trace = append(s.trace, res)
	s.step = ""
	return res
}

// skip запоминает шаг, пропущенный guard-условием. В trace он не попадает.
func (s *runState) skip(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skipped = append(s.skipped, step)
	s.step = ""
}

// completed строит успешный WorkflowResult.
func (s *runState) completed() *domain.WorkflowResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.NewCompletedResult(s.def.Name, s.runID,
		slices.Clone(s.trace), slices.Clone(s.skipped), time.Since(s.startedAt))
}

// failed строит WorkflowResult с ошибкой.
// step пуст, если прогон упал не на шаге (например, отмена).
func (s *runState) failed(step string, err error) *domain.WorkflowResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.NewFailedResult(s.def.Name, s.runID,
		slices.Clone(s.trace), slices.Clone(s.skipped), step, err, time.Since(s.startedAt))
}

// stats возвращает статистику прогона.
func (s *runState) stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.def.Steps)
	done := len(s.trace) + len(s.skipped)
	return RunStats{
		Workflow:      s.def.Name,
		TotalSteps:    total,
		ExecutedSteps: len(s.trace),
		SkippedSteps:  len(s.skipped),
		PendingSteps:  total - done,
		CurrentStep:   s.step,
		Elapsed:       time.Since(s.startedAt),
	}
}

// RunStats — статистика активного прогона.
type RunStats struct {
	Workflow      string
	TotalSteps    int
	ExecutedSteps int
	SkippedSteps  int
	PendingSteps  int
	CurrentStep   string
	Elapsed       time.Duration
}
