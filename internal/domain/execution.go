package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — запись об асинхронном выполнении workflow.
//
// Execution создаётся при постановке job в очередь (pending),
// переводится в running, когда worker начинает выполнение,
// и финализируется результатом Orchestrator'а.
//
// Orchestrator ничего не знает об Execution — это бухгалтерия
// асинхронного слоя.
type Execution struct {
	// ID — уникальный идентификатор выполнения.
	ID uuid.UUID `json:"id"`

	// WorkflowType — имя workflow в каталоге.
	WorkflowType string `json:"workflow_type"`

	// Status — текущий статус.
	Status ExecutionStatus `json:"status"`

	// InitialContext — сериализованный начальный контекст.
	InitialContext map[string]any `json:"initial_context,omitempty"`

	// FinalOutput — итоговый output workflow.
	FinalOutput any `json:"final_output,omitempty"`

	// Error — текст ошибки.
	Error string `json:"error,omitempty"`

	// FailedStep — имя упавшего шага.
	FailedStep string `json:"failed_task_name,omitempty"`

	// Trace — полный trace прогона.
	Trace []StepResult `json:"full_trace,omitempty"`

	// RunID — идентификатор прогона Orchestrator'а.
	// Nil, пока workflow не выполнялся.
	RunID *uuid.UUID `json:"workflow_execution_id,omitempty"`

	// JobID — идентификатор сообщения в очереди.
	JobID string `json:"job_id,omitempty"`

	// StartedAt — время перехода в running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время финализации.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время постановки в очередь.
	CreatedAt time.Time `json:"created_at"`
}

// NewExecution создаёт pending-запись.
func NewExecution(workflowType string, initial map[string]any, jobID string) *Execution {
	return &Execution{
		ID:             uuid.New(),
		WorkflowType:   workflowType,
		Status:         ExecutionStatusPending,
		InitialContext: initial,
		JobID:          jobID,
		CreatedAt:      time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если выполнение ещё не завершено.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// IsFinished возвращает true, если выполнение завершено.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkRunning переводит выполнение в статус running.
func (e *Execution) MarkRunning() {
	now := time.Now()
	e.Status = ExecutionStatusRunning
	e.StartedAt = &now
}

// ApplyResult переносит поля WorkflowResult в запись.
func (e *Execution) ApplyResult(result *WorkflowResult) {
	now := time.Now()
	e.FinishedAt = &now
	e.FinalOutput = result.FinalOutput
	e.Error = result.Error
	e.FailedStep = result.FailedStep
	e.Trace = result.Trace

	runID := result.RunID
	e.RunID = &runID

	if result.Completed() {
		e.Status = ExecutionStatusCompleted
	} else {
		e.Status = ExecutionStatusFailed
	}
}

// MarkFailed финализирует выполнение ошибкой, случившейся вне Orchestrator'а.
func (e *Execution) MarkFailed(err string) {
	now := time.Now()
	e.Status = ExecutionStatusFailed
	e.FinishedAt = &now
	e.Error = err
}
