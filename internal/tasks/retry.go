package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/agentflow/internal/llm"
)

// Параметры backoff для повторов внутри задач.
// Переменные, чтобы тесты могли их уменьшить.
var (
	retryInitialDelay = time.Second
	retryMaxDelay     = 30 * time.Second
)

// calculateBackoff вычисляет задержку перед повтором:
// initial * 2^(attempt-1), но не больше max.
func calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	if delay > max {
		delay = max
	}
	return delay
}

// withRetry выполняет fn, повторяя временные ошибки до retries раз.
// Временность определяет llm.IsRetryable. Orchestrator об этих
// повторах ничего не знает: для него шаг либо успешен, либо нет.
func withRetry[T any](ctx context.Context, logger *slog.Logger, task string, retries int, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt > retries || !llm.IsRetryable(err) {
			return zero, err
		}

		delay := calculateBackoff(attempt, retryInitialDelay, retryMaxDelay)
		logger.Debug("retrying task call",
			"task", task,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		// Ждём с учётом context
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}
}
