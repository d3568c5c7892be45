package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrResultNotSerializable — результат содержит значение, не представимое в JSON.
var ErrResultNotSerializable = errors.New("workflow result is not serializable")

// StepResult — запись trace об одном шаге.
//
// Создаётся Orchestrator'ом сразу после попытки выполнить шаг
// и больше не изменяется.
type StepResult struct {
	// StepName — имя шага (ключ в trace и в Context).
	StepName string `json:"step_name"`

	// Status — success или failed.
	Status StepStatus `json:"status"`

	// Output — результат шага (только для success).
	Output any `json:"output,omitempty"`

	// Error — сообщение об ошибке (только для failed).
	Error string `json:"error,omitempty"`

	// ErrorKind — класс ошибки: "task", "config", "panic" и т.п.
	ErrorKind string `json:"error_kind,omitempty"`

	// DurationMs — длительность выполнения шага.
	DurationMs int64 `json:"duration_ms"`

	// Timestamp — момент завершения шага.
	Timestamp time.Time `json:"timestamp"`

	// RunID — идентификатор прогона, которому принадлежит шаг.
	RunID uuid.UUID `json:"workflow_execution_id"`
}

// Succeeded возвращает true для успешного шага.
func (s StepResult) Succeeded() bool {
	return s.Status == StepStatusSuccess
}

// Failed возвращает true для упавшего шага.
func (s StepResult) Failed() bool {
	return s.Status == StepStatusFailed
}

// WorkflowResult — результат одного прогона workflow.
//
// Инварианты:
//   - Status == failed тогда и только тогда, когда Error != ""
//   - FinalOutput — output последней записи trace (nil для пустого trace)
//
// После создания не изменяется.
type WorkflowResult struct {
	// Workflow — имя определения workflow.
	Workflow string `json:"workflow,omitempty"`

	// Status — completed или failed.
	Status RunStatus `json:"status"`

	// FinalOutput — output последнего выполненного шага.
	FinalOutput any `json:"final_output,omitempty"`

	// Trace — упорядоченный список результатов шагов.
	Trace []StepResult `json:"full_trace"`

	// SkippedSteps — имена шагов, пропущенных guard-условием.
	SkippedSteps []string `json:"skipped_steps,omitempty"`

	// FailedStep — имя упавшего шага (если известно).
	FailedStep string `json:"failed_task_name,omitempty"`

	// FailedStepError — сообщение ошибки упавшего шага.
	FailedStepError string `json:"failed_task_error,omitempty"`

	// Error — общая ошибка прогона.
	Error string `json:"error,omitempty"`

	// RunID — уникальный идентификатор прогона.
	RunID uuid.UUID `json:"workflow_execution_id"`

	// DurationMs — общая длительность прогона.
	DurationMs int64 `json:"duration_ms"`
}

// NewCompletedResult создаёт успешный результат.
// FinalOutput берётся из последней записи trace.
func NewCompletedResult(workflow string, runID uuid.UUID, trace []StepResult, skipped []string, duration time.Duration) *WorkflowResult {
	var final any
	if len(trace) > 0 {
		final = trace[len(trace)-1].Output
	}
	return &WorkflowResult{
		Workflow:     workflow,
		Status:       RunStatusCompleted,
		FinalOutput:  final,
		Trace:        trace,
		SkippedSteps: skipped,
		RunID:        runID,
		DurationMs:   duration.Milliseconds(),
	}
}

// NewFailedResult создаёт результат с ошибкой.
// failedStep может быть пустым, если ошибка произошла вне шага.
func NewFailedResult(workflow string, runID uuid.UUID, trace []StepResult, skipped []string, failedStep string, err error, duration time.Duration) *WorkflowResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	res := &WorkflowResult{
		Workflow:     workflow,
		Status:       RunStatusFailed,
		Trace:        trace,
		SkippedSteps: skipped,
		FailedStep:   failedStep,
		Error:        msg,
		RunID:        runID,
		DurationMs:   duration.Milliseconds(),
	}
	if failedStep != "" {
		res.FailedStepError = msg
	}
	return res
}

// Completed возвращает true для успешного прогона.
func (r *WorkflowResult) Completed() bool {
	return r.Status == RunStatusCompleted
}

// Failed возвращает true для упавшего прогона.
func (r *WorkflowResult) Failed() bool {
	return r.Status == RunStatusFailed
}

// OutputFor возвращает output шага по имени.
// Для неизвестных, пропущенных и недостигнутых шагов возвращает nil.
func (r *WorkflowResult) OutputFor(stepName string) any {
	for i := range r.Trace {
		if r.Trace[i].StepName == stepName {
			return r.Trace[i].Output
		}
	}
	return nil
}

// Outputs возвращает outputs всех шагов из trace (stepName → output).
func (r *WorkflowResult) Outputs() map[string]any {
	outputs := make(map[string]any, len(r.Trace))
	for _, step := range r.Trace {
		outputs[step.StepName] = step.Output
	}
	return outputs
}

// ErrorMessage возвращает сообщение об ошибке для пользователя.
// Пустая строка для успешного прогона.
func (r *WorkflowResult) ErrorMessage() string {
	if !r.Failed() {
		return ""
	}
	if r.FailedStep != "" && r.FailedStepError != "" {
		return fmt.Sprintf("Failed at task '%s': %s", r.FailedStep, r.FailedStepError)
	}
	return "Workflow failed: " + r.Error
}

// Summary — краткое описание результата.
func (r *WorkflowResult) Summary() string {
	if r.Completed() {
		return fmt.Sprintf("Workflow completed successfully in %dms", r.DurationMs)
	}
	return r.ErrorMessage()
}

// JSON сериализует результат.
// Если какой-либо output не представим в JSON, возвращает ошибку
// ErrResultNotSerializable с именем шага, а не молча теряет данные.
func (r *WorkflowResult) JSON() ([]byte, error) {
	for _, step := range r.Trace {
		if _, err := json.Marshal(step.Output); err != nil {
			return nil, fmt.Errorf("%w: step %s: %v", ErrResultNotSerializable, step.StepName, err)
		}
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultNotSerializable, err)
	}
	return data, nil
}
