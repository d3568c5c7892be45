package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/agentflow/internal/engine"
)

// CronTask — регистрация периодического запуска другого workflow.
//
//	schedule: "0 9 * * *"
//	workflow: daily_report
//	initial_input: report_input   # ключ Context с начальным Context, по умолчанию initial_input
//	as: job_id
//
// Ключи schedule и workflow в Context имеют приоритет над конфигурацией.
// Результат: {<as>: id, schedule, workflow, scheduled_at, status}.
type CronTask struct {
	Base
	scheduler Scheduler
}

// NewCronTask создаёт CronTask.
func NewCronTask(name string, cfg map[string]any, deps Deps) (*CronTask, error) {
	base, err := NewBase(TypeCron, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	if deps.Scheduler == nil {
		return nil, base.configErr("", "scheduler is not configured")
	}
	return &CronTask{Base: base, scheduler: deps.Scheduler}, nil
}

// Description возвращает расписание.
func (t *CronTask) Description() string {
	return fmt.Sprintf("schedule %s at %s", GetConfigString(t.config, "workflow"), GetConfigString(t.config, "schedule"))
}

// Execute регистрирует расписание.
func (t *CronTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	schedule := textParam(c.Get("schedule"), "schedule", "cron")
	if schedule == "" {
		schedule = GetConfigString(raw, "schedule")
	}
	if schedule == "" {
		return nil, t.configErr("schedule", "schedule is required")
	}

	workflow := textParam(c.Get("workflow"))
	if workflow == "" {
		workflow = GetConfigString(raw, "workflow")
	}
	if workflow == "" {
		return nil, t.configErr("workflow", "workflow is required")
	}

	input := map[string]any{}
	switch v := fromContext(c, raw["initial_input"], "initial_input").(type) {
	case map[string]any:
		input = v
	case string:
		if v != "" && raw["initial_input"] != nil {
			input = map[string]any{engine.NormalizeKey(v): true}
		}
	}

	id, err := t.scheduler.Schedule(ctx, schedule, workflow, input)
	if err != nil {
		return nil, t.fail("Schedule failed: "+err.Error(), err)
	}

	return map[string]any{
		resultKey(raw, "job_id"): id,
		"schedule":               schedule,
		"workflow":               workflow,
		"scheduled_at":           time.Now().UTC().Format(time.RFC3339),
		"status":                 "scheduled",
	}, nil
}
