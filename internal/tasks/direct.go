package tasks

import (
	"context"
	"fmt"

	"github.com/shaiso/agentflow/internal/engine"
)

// HandlerFunc — пользовательский обработчик шага.
type HandlerFunc func(ctx context.Context, c *engine.Context) (any, error)

// DirectHandlerTask вызывает обработчик из конфигурации.
//
// Ключи:
//   - with   — HandlerFunc, func(*engine.Context) (any, error),
//     func(*engine.Context) any или любое значение (возвращается как есть)
//   - method — имя ключа Context, значение которого станет результатом
//
// Конфигурация не проходит через шаблоны.
type DirectHandlerTask struct {
	Base
	handler HandlerFunc
}

// NewDirectHandlerTask создаёт DirectHandlerTask.
func NewDirectHandlerTask(name string, cfg map[string]any, d Defaults) (*DirectHandlerTask, error) {
	base, err := NewBase(TypeDirectHandler, name, cfg, d)
	if err != nil {
		return nil, err
	}

	with, hasWith := cfg["with"]
	method := GetConfigString(cfg, "method")

	var handler HandlerFunc
	switch {
	case hasWith:
		handler = asHandler(with)
	case method != "":
		key := engine.NormalizeKey(method)
		handler = func(_ context.Context, c *engine.Context) (any, error) {
			return c.Get(key), nil
		}
	default:
		return nil, base.configErr("with", "direct_handler requires 'with' or 'method'")
	}

	return &DirectHandlerTask{Base: base, handler: handler}, nil
}

func asHandler(v any) HandlerFunc {
	switch fn := v.(type) {
	case HandlerFunc:
		return fn
	case func(context.Context, *engine.Context) (any, error):
		return fn
	case func(*engine.Context) (any, error):
		return func(_ context.Context, c *engine.Context) (any, error) { return fn(c) }
	case func(*engine.Context) any:
		return func(_ context.Context, c *engine.Context) (any, error) { return fn(c), nil }
	default:
		return func(context.Context, *engine.Context) (any, error) { return v, nil }
	}
}

// Execute вызывает обработчик. Паника обработчика превращается в ошибку шага.
func (t *DirectHandlerTask) Execute(ctx context.Context, c *engine.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &engine.TaskError{
				Task:    t.name,
				Kind:    engine.KindPanic,
				Message: fmt.Sprintf("handler panicked: %v", r),
			}
		}
	}()

	result, err = t.handler(ctx, c)
	if err != nil {
		return nil, engine.WrapTaskError(t.name, err)
	}
	return result, nil
}
