package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel переводит строку уровня в slog.Level.
// DEBUG, INFO, WARN (WARNING), ERROR без учёта регистра; иначе INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger настраивает глобальный логгер по LOG_LEVEL и LOG_FORMAT.
// Используется до загрузки конфигурации.
func SetupLogger() *slog.Logger {
	return NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), true)
}

// NewLogger создаёт логгер: format "text" или JSON во всех остальных случаях.
// На уровне DEBUG в запись добавляется source.
func NewLogger(w io.Writer, level, format string, setDefault bool) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if setDefault {
		slog.SetDefault(logger)
	}
	return logger
}

type loggerKey struct{}

// WithLogger кладёт логгер прогона в context.Context.
// Задачи достают его через FromContext и пишут с атрибутами шага.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext возвращает логгер из контекста или slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// WithRunID добавляет run_id прогона Orchestrator'а.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithWorkflow добавляет тип workflow.
func WithWorkflow(logger *slog.Logger, workflow string) *slog.Logger {
	return logger.With("workflow", workflow)
}

// WithStep добавляет имя шага и тип задачи.
func WithStep(logger *slog.Logger, step, taskType string) *slog.Logger {
	return logger.With("step", step, "task_type", taskType)
}

// WithExecutionID добавляет ID Execution записи.
func WithExecutionID(logger *slog.Logger, executionID string) *slog.Logger {
	return logger.With("execution_id", executionID)
}
