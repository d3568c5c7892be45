package tasks

import (
	"context"
	"time"

	"github.com/shaiso/agentflow/internal/engine"
)

// DelayTask — пауза между шагами.
//
//	duration_sec: 10   # или
//	duration_ms: 500
//
// Прерывается отменой context.
type DelayTask struct {
	Base
	duration time.Duration
}

// NewDelayTask создаёт DelayTask.
func NewDelayTask(name string, cfg map[string]any, d Defaults) (*DelayTask, error) {
	base, err := NewBase(TypeDelay, name, cfg, d)
	if err != nil {
		return nil, err
	}

	var duration time.Duration
	if sec := GetConfigInt(cfg, "duration_sec"); sec > 0 {
		duration = time.Duration(sec) * time.Second
	} else if ms := GetConfigInt(cfg, "duration_ms"); ms > 0 {
		duration = time.Duration(ms) * time.Millisecond
	} else {
		return nil, base.configErr("duration_sec", "duration_sec or duration_ms required")
	}

	return &DelayTask{Base: base, duration: duration}, nil
}

// Execute ждёт заданное время.
func (t *DelayTask) Execute(ctx context.Context, _ *engine.Context) (any, error) {
	timer := time.NewTimer(t.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, engine.WrapTaskError(t.name, ctx.Err())
	case <-timer.C:
		return map[string]any{"duration_ms": t.duration.Milliseconds()}, nil
	}
}
