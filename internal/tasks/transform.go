package tasks

import (
	"context"
	"encoding/json"

	"github.com/shaiso/agentflow/internal/engine"
)

// TransformTask — сборка нового значения из Context через шаблоны.
//
//	mappings:
//	  total: "{{ len .items }}"
//	  first: "{{ index .items 0 }}"
//	  user: "{{user}}"
//
// Строковые результаты разбираются как JSON, если это возможно.
type TransformTask struct {
	Base
}

// NewTransformTask создаёт TransformTask.
func NewTransformTask(name string, cfg map[string]any, d Defaults) (*TransformTask, error) {
	base, err := NewBase(TypeTransform, name, cfg, d)
	if err != nil {
		return nil, err
	}
	if _, ok := cfg["mappings"].(map[string]any); !ok {
		return nil, base.configErr("mappings", "mappings must be a map")
	}
	return &TransformTask{Base: base}, nil
}

// Execute рендерит mappings.
func (t *TransformTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	mappings := GetConfigMap(raw, "mappings")
	outputs := make(map[string]any, len(mappings))
	for key, val := range mappings {
		if s, ok := val.(string); ok {
			outputs[key] = parseValue(s)
			continue
		}
		outputs[key] = val
	}
	return outputs, nil
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}
