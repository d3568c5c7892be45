package domain

// RunStatus — итоговый статус выполнения workflow.
//
// Жизненный цикл одного прогона:
//
//	not_started → running → completed
//	                      ↘ failed
//
// Промежуточные состояния живут только внутри Orchestrator,
// в результат попадают лишь финальные.
type RunStatus string

const (
	// RunStatusCompleted — все шаги выполнены или пропущены.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed — выполнение остановлено на упавшем шаге.
	RunStatusFailed RunStatus = "failed"
)

// StepStatus — статус отдельного шага в trace.
type StepStatus string

const (
	// StepStatusSuccess — шаг выполнен успешно.
	StepStatusSuccess StepStatus = "success"

	// StepStatusFailed — шаг завершился ошибкой.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped — шаг пропущен guard-условием.
	// Orchestrator не пишет такие записи в trace, статус оставлен
	// для совместимости формата.
	StepStatusSkipped StepStatus = "skipped"
)

// ExecutionStatus — статус асинхронного выполнения (Execution).
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	(или) pending → failed (ошибка до старта, например rehydration)
type ExecutionStatus string

const (
	// ExecutionStatusPending — job поставлен в очередь.
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusRunning — worker начал выполнение.
	ExecutionStatusRunning ExecutionStatus = "running"

	// ExecutionStatusCompleted — workflow завершился успешно.
	ExecutionStatusCompleted ExecutionStatus = "completed"

	// ExecutionStatusFailed — workflow или job завершился ошибкой.
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// ParseExecutionStatus парсит строку в ExecutionStatus.
// Неизвестные значения трактуются как pending.
func ParseExecutionStatus(s string) ExecutionStatus {
	switch s {
	case "running":
		return ExecutionStatusRunning
	case "completed":
		return ExecutionStatusCompleted
	case "failed":
		return ExecutionStatusFailed
	default:
		return ExecutionStatusPending
	}
}
