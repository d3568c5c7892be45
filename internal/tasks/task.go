package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/agentflow/internal/engine"
)

// Task — единый контракт исполняемого шага.
//
// Orchestrator не знает, что делает конкретная задача: он вызывает
// ShouldExecute, затем Execute, и кладёт результат в Context под именем шага.
// Экземпляр создаётся заново для каждого выполнения шага.
type Task interface {
	// Name возвращает имя шага.
	Name() string

	// Type возвращает идентификатор типа задачи.
	Type() string

	// Description — описание для логов.
	Description() string

	// Execute выполняет задачу над текущим Context.
	// Ошибки возвращаются как *engine.TaskError или *engine.ConfigError.
	Execute(ctx context.Context, c *engine.Context) (any, error)

	// ShouldExecute вычисляет условие if. Без условия — true.
	ShouldExecute(c *engine.Context) (bool, error)

	// Timeout — рекомендуемый таймаут внешних вызовов.
	Timeout() time.Duration

	// Retries — сколько раз задача может повторить временную ошибку.
	Retries() int
}

// Defaults — значения по умолчанию для всех задач.
type Defaults struct {
	Timeout    time.Duration
	Retries    int
	Model      string
	ImageModel string
}

// DefaultDefaults — значения по умолчанию.
var DefaultDefaults = Defaults{
	Timeout:    30 * time.Second,
	Retries:    3,
	Model:      "gpt-4",
	ImageModel: "dall-e-3",
}

func (d Defaults) withFallback() Defaults {
	if d.Timeout <= 0 {
		d.Timeout = DefaultDefaults.Timeout
	}
	if d.Retries < 0 {
		d.Retries = 0
	}
	if d.Model == "" {
		d.Model = DefaultDefaults.Model
	}
	if d.ImageModel == "" {
		d.ImageModel = DefaultDefaults.ImageModel
	}
	return d
}

// Base — общая часть всех задач: имя, конфигурация, условие,
// таймаут и число повторов. Встраивается в конкретные задачи.
type Base struct {
	name     string
	taskType string
	config   map[string]any
	guard    engine.Guard
	timeout  time.Duration
	retries  int
	defaults Defaults
}

// NewBase разбирает общую часть конфигурации.
//
// Ключи:
//   - if      — условие выполнения (см. engine.ParseGuard)
//   - timeout — секунды (число) или длительность ("1m30s")
//   - retries — число повторов временных ошибок
func NewBase(taskType, name string, cfg map[string]any, d Defaults) (Base, error) {
	d = d.withFallback()
	if cfg == nil {
		cfg = map[string]any{}
	}

	guard, err := engine.ParseGuard(cfg[engine.GuardKey])
	if err != nil {
		return Base{}, engine.NewConfigError(name, engine.GuardKey, err.Error())
	}

	b := Base{
		name:     name,
		taskType: taskType,
		config:   cfg,
		guard:    guard,
		timeout:  d.Timeout,
		retries:  d.Retries,
		defaults: d,
	}

	if v, ok := cfg["timeout"]; ok && v != nil {
		timeout, err := parseSeconds(v)
		if err != nil || timeout <= 0 {
			return Base{}, engine.NewConfigError(name, "timeout", fmt.Sprintf("invalid timeout %v", v))
		}
		b.timeout = timeout
	}

	if v, ok := cfg["retries"]; ok && v != nil {
		n, ok := toInt(v)
		if !ok || n < 0 {
			return Base{}, engine.NewConfigError(name, "retries", fmt.Sprintf("invalid retries %v", v))
		}
		b.retries = n
	}

	return b, nil
}

// Name возвращает имя шага.
func (b *Base) Name() string { return b.name }

// Type возвращает тип задачи.
func (b *Base) Type() string { return b.taskType }

// Description — описание по умолчанию.
func (b *Base) Description() string { return b.taskType + " task" }

// Timeout возвращает таймаут.
func (b *Base) Timeout() time.Duration { return b.timeout }

// Retries возвращает число повторов.
func (b *Base) Retries() int { return b.retries }

// Config возвращает исходную конфигурацию (без подстановок).
func (b *Base) Config() map[string]any { return b.config }

// ShouldExecute вычисляет условие if.
func (b *Base) ShouldExecute(c *engine.Context) (bool, error) {
	if b.guard == nil {
		return true, nil
	}
	return b.guard(c)
}

// render разворачивает шаблоны конфигурации над текущим Context.
func (b *Base) render(ctx context.Context, c *engine.Context) (map[string]any, error) {
	cfg, err := engine.RenderConfig(ctx, b.config, c)
	if err != nil {
		return nil, &engine.TaskError{Task: b.name, Kind: engine.KindConfig, Message: err.Error(), Err: err}
	}
	return cfg, nil
}

// fail создаёт TaskError с сообщением для trace.
func (b *Base) fail(message string, err error) *engine.TaskError {
	return engine.NewTaskError(b.name, message, err)
}

// configErr создаёт ConfigError для этой задачи.
func (b *Base) configErr(field, message string) *engine.ConfigError {
	return engine.NewConfigError(b.name, field, message)
}

// withTimeout ограничивает внешний вызов таймаутом задачи.
func (b *Base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}
