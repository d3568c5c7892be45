package tasks

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/shaiso/agentflow/internal/engine"
)

// decodeConfig декодирует конфигурацию в типизированную структуру.
// Строки приводятся к числам и bool там, где это нужно ("5" → 5).
func decodeConfig(task string, raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return engine.NewConfigError(task, "", err.Error())
	}
	if err := dec.Decode(raw); err != nil {
		return engine.NewConfigError(task, "", err.Error())
	}
	return nil
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		if n, ok := toInt(v); ok {
			return n
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из конфига.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}

// fromContext разрешает параметр, который может быть именем ключа Context.
//
// Если ref == nil, берётся значение ключа defaultKey. Если ref — строка
// и в Context есть такой ключ, возвращается его значение. Иначе ref
// считается литералом.
func fromContext(c *engine.Context, ref any, defaultKey string) any {
	if ref == nil {
		return c.Get(defaultKey)
	}
	if s, ok := ref.(string); ok {
		if v, ok := c.Lookup(s); ok {
			return v
		}
	}
	return ref
}

// textParam приводит параметр к строке. Для map берутся ключи-синонимы
// (например, query/search), как это делают интеграционные задачи.
func textParam(v any, mapKeys ...string) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any:
		for _, k := range mapKeys {
			if s, ok := val[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// stringList приводит параметр к списку строк.
func stringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}

// resultKey возвращает ключ результата из параметра as.
func resultKey(cfg map[string]any, def string) string {
	if s := GetConfigString(cfg, "as"); s != "" {
		return engine.NormalizeKey(s)
	}
	return def
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// parseSeconds принимает секунды числом или строку длительности.
func parseSeconds(v any) (time.Duration, error) {
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second, nil
	case int64:
		return time.Duration(n) * time.Second, nil
	case float64:
		return time.Duration(n * float64(time.Second)), nil
	case time.Duration:
		return n, nil
	case string:
		if secs, err := strconv.ParseFloat(n, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return time.ParseDuration(n)
	}
	return 0, fmt.Errorf("unsupported duration %T", v)
}
