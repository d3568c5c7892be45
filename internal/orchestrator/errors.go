package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrUnknownWorkflow — workflow с таким именем нет в каталоге.
	ErrUnknownWorkflow = errors.New("workflow not found")

	// ErrNoCatalog — ExecuteType вызван без каталога.
	ErrNoCatalog = errors.New("workflow catalog is not configured")

	// ErrNilDefinition — Execute вызван без определения.
	ErrNilDefinition = errors.New("workflow definition is nil")

	// ErrRunCancelled — контекст вызова отменён между шагами.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrCallback — обработчик OnStep вернул ошибку.
	ErrCallback = errors.New("step callback failed")
)
