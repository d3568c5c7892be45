package worker

import (
	"errors"

	"github.com/shaiso/agentflow/internal/orchestrator"
)

// Ошибки async слоя.
var (
	// ErrUnknownWorkflow — workflow нет в каталоге.
	ErrUnknownWorkflow = orchestrator.ErrUnknownWorkflow

	// ErrRehydration — Context из job не удалось восстановить.
	ErrRehydration = errors.New("context rehydration failed")

	// ErrUnknownRefKind — нет resolver'а для вида ссылки.
	ErrUnknownRefKind = errors.New("unknown reference kind")

	// ErrInvalidRef — строка с префиксом ref:// не разбирается.
	ErrInvalidRef = errors.New("invalid reference token")

	// ErrUnsupportedValue — значение не представимо в JSON.
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrNoPublisher — Client создан без publisher.
	ErrNoPublisher = errors.New("job publisher is not configured")

	// ErrUnexpectedMessage — в очереди сообщение чужого типа.
	ErrUnexpectedMessage = errors.New("unexpected message type")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
