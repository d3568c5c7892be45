package engine

import (
	"context"
	"errors"
	"fmt"
)

// Ошибки валидации Definition.
var (
	// ErrEmptyWorkflowName — определение без имени.
	ErrEmptyWorkflowName = errors.New("workflow has empty name")

	// ErrEmptySteps — workflow не содержит шагов.
	ErrEmptySteps = errors.New("workflow has no steps")

	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrDuplicateStepName — несколько шагов с одинаковым именем.
	ErrDuplicateStepName = errors.New("duplicate step name")

	// ErrEmptyStepType — шаг не указывает тип задачи.
	ErrEmptyStepType = errors.New("step has empty task type")

	// ErrUnknownTaskType — тип задачи не зарегистрирован.
	ErrUnknownTaskType = errors.New("task type not found")

	// ErrDuplicateWorkflow — workflow с таким именем уже в каталоге.
	ErrDuplicateWorkflow = errors.New("workflow already registered")
)

// Ошибки конфигурации и шаблонов.
var (
	// ErrInvalidConfig — задача сконфигурирована неверно.
	ErrInvalidConfig = errors.New("invalid task configuration")

	// ErrInvalidGuard — условие if имеет неподдерживаемую форму.
	ErrInvalidGuard = errors.New("invalid guard condition")

	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// Виды ошибок шага, попадают в StepResult.ErrorKind.
const (
	KindTask        = "task"
	KindConfig      = "config"
	KindUnknownType = "unknown_type"
	KindGuard       = "guard"
	KindPanic       = "panic"
	KindTimeout     = "timeout"
	KindCancelled   = "cancelled"
	KindCallback    = "callback"
)

// ValidationError — ошибка валидации определения с контекстом.
type ValidationError struct {
	Step    string // имя шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Step != "" {
		return "step " + e.Step + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(step, field, message string, err error) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ConfigError — задача сконфигурирована неверно (нет обязательного
// параметра, неверный тип значения и т.п.). Всегда фатальна для прогона.
type ConfigError struct {
	Task    string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("task %s: %s: %s", e.Task, e.Field, e.Message)
	}
	return fmt.Sprintf("task %s: %s", e.Task, e.Message)
}

// Unwrap позволяет проверять errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// NewConfigError создаёт ConfigError.
func NewConfigError(task, field, message string) *ConfigError {
	return &ConfigError{Task: task, Field: field, Message: message}
}

// TaskError — единая обёртка над любой ошибкой внутри Execute.
//
// Интеграционные задачи никогда не возвращают транспортные ошибки
// напрямую: исходная ошибка сохраняется в Err для логов,
// а Message — человекочитаемое описание для trace.
type TaskError struct {
	Task    string
	Kind    string
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	return e.Message
}

// Unwrap возвращает исходную ошибку.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError создаёт TaskError вида KindTask.
func NewTaskError(task, message string, err error) *TaskError {
	return &TaskError{Task: task, Kind: KindTask, Message: message, Err: err}
}

// WrapTaskError оборачивает произвольную ошибку в TaskError.
// Уже обёрнутые ошибки возвращаются как есть.
func WrapTaskError(task string, err error) *TaskError {
	if err == nil {
		return nil
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}
	return &TaskError{Task: task, Kind: ErrorKind(err), Message: err.Error(), Err: err}
}

// SerializationError — значение контекста нельзя передать через
// асинхронную границу. Возникает до постановки job в очередь.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("context key %q is not serializable: %v", e.Key, e.Err)
}

// Unwrap возвращает исходную ошибку.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ErrorKind определяет вид ошибки для trace.
func ErrorKind(err error) string {
	var te *TaskError
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrUnknownTaskType):
		return KindUnknownType
	case errors.Is(err, ErrInvalidConfig):
		return KindConfig
	case errors.Is(err, ErrInvalidGuard):
		return KindGuard
	default:
		return KindTask
	}
}
