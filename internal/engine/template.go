package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/shaiso/agentflow/internal/telemetry"
)

// MissingMarker — формат подстановки для отсутствующего ключа.
const MissingMarker = "[MISSING: %s]"

// Шаблоны бывают двух видов:
//
//	{{key}}               — простая подстановка значения из Context
//	{{ .key }}, {{if ...}} — Go template над данными Context
//
// Простые подстановки никогда не прерывают выполнение: отсутствующий
// ключ заменяется на "[MISSING: key]" с предупреждением в лог.
var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([^{}.\s$-][^{}]*?)\s*\}\}`)
	exactRe       = regexp.MustCompile(`^\s*\{\{\s*([^{}.\s$-][^{}]*?)\s*\}\}\s*$`)
	goActionRe    = regexp.MustCompile(`\{\{-?\s*(\.|\$|if\s|else|end\b|range\s|with\s|not\s|eq\s|ne\s|and\s|or\s|len\s|index\s|printf\s|json\s|toJSON\s|default\s|coalesce\s|lower\s|upper\s|trim\s|join\s|split\s|replace\s|contains\s|hasPrefix\s|hasSuffix\s|fromJSON\s)`)
)

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	"toJSON": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	},

	"fromJSON": func(s string) any {
		var result any
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil
		}
		return result
	},

	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	"split": func(sep, s string) []string {
		return strings.Split(s, sep)
	},

	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

// Interpolate заменяет {{key}} на значения из Context.
//
// Отсутствующие ключи и ключи со значением nil заменяются на "[MISSING: key]", в лог из ctx
// пишется предупреждение. Выражения Go template ({{ .key }}) не трогаются.
func Interpolate(ctx context.Context, tmpl string, c *Context) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := strings.TrimSpace(placeholderRe.FindStringSubmatch(match)[1])
		if isTemplateKeyword(key) {
			return match
		}
		return lookupString(ctx, key, c)
	})
}

// lookupFunc — имя функции шаблона, в которую переписываются {{key}}.
const lookupFunc = "ctxValue"

// Expand выполняет обе стадии за один разбор шаблона.
//
// В строке с действиями Go template каждая {{key}} переписывается в
// {{ctxValue "key"}}, поэтому значения из Context попадают в вывод как данные
// и никогда не разбираются как шаблон.
func Expand(ctx context.Context, tmpl string, c *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	if !goActionRe.MatchString(tmpl) {
		return Interpolate(ctx, tmpl, c), nil
	}

	rewritten := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := strings.TrimSpace(placeholderRe.FindStringSubmatch(match)[1])
		if isTemplateKeyword(key) {
			return match
		}
		return "{{" + lookupFunc + " " + strconv.Quote(key) + "}}"
	})

	return render(rewritten, c, template.FuncMap{
		lookupFunc: func(key string) string { return lookupString(ctx, key, c) },
	})
}

// lookupString — значение ключа строкой или "[MISSING: key]".
func lookupString(ctx context.Context, key string, c *Context) string {
	value, ok := c.Lookup(key)
	if !ok || value == nil {
		telemetry.FromContext(ctx).Warn("template variable missing from context", "key", key)
		return fmt.Sprintf(MissingMarker, key)
	}
	return stringify(value)
}

// Render рендерит Go template над данными Context.
//
//	{{ .name }}
//	{{ .fetch.body }}
//	{{ if .is_valid }}...{{ end }}
func Render(tmpl string, c *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	return render(tmpl, c, nil)
}

func render(tmpl string, c *Context, extra template.FuncMap) (string, error) {
	t, err := template.New("").Funcs(templateFuncs).Funcs(extra).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, c.ToMap()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// ResolveValue рекурсивно разворачивает шаблоны в значении конфигурации.
//
// Строка, которая целиком состоит из одной ссылки {{key}}, заменяется
// исходным значением из Context без приведения к строке, так что
// задачи получают map, slice и числа без потерь.
func ResolveValue(ctx context.Context, value any, c *Context) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		if m := exactRe.FindStringSubmatch(v); m != nil && !isTemplateKeyword(strings.TrimSpace(m[1])) {
			if raw, ok := c.Lookup(strings.TrimSpace(m[1])); ok {
				return raw, nil
			}
		}
		return Expand(ctx, v, c)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := ResolveValue(ctx, val, c)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			resolved, err := ResolveValue(ctx, val, c)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			resolved, err := Expand(ctx, val, c)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []string:
		result := make([]string, len(v))
		for i, val := range v {
			resolved, err := Expand(ctx, val, c)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	default:
		// int, float, bool, функции — как есть
		return value, nil
	}
}

// RenderConfig разворачивает шаблоны во всей конфигурации шага.
// Ключ "if" не трогается: условие вычисляется отдельно.
func RenderConfig(ctx context.Context, config map[string]any, c *Context) (map[string]any, error) {
	result := make(map[string]any, len(config))
	for key, val := range config {
		if key == GuardKey {
			result[key] = val
			continue
		}
		resolved, err := ResolveValue(ctx, val, c)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", key, err)
		}
		result[key] = resolved
	}
	return result, nil
}

// RenderCondition рендерит и вычисляет Go template условие.
// Возвращает true, если условие выполняется.
func RenderCondition(condition string, c *Context) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}

	// Оборачиваем условие в if, чтобы получить bool
	tmpl := fmt.Sprintf(`{{if %s}}true{{else}}false{{end}}`, condition)

	result, err := Render(tmpl, c)
	if err != nil {
		return false, err
	}

	return result == "true", nil
}

// isTemplateKeyword отличает действие Go template от ссылки на ключ.
// Ключи Context не содержат пробелов, поэтому всё с пробелами — действие.
func isTemplateKeyword(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return true
	}
	switch s {
	case "else", "end", "break", "continue":
		return true
	}
	return false
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
