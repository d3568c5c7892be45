package engine

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// GuardKey — ключ конфигурации шага, в котором хранится условие.
const GuardKey = "if"

// Guard — предикат над текущим Context.
type Guard func(c *Context) (bool, error)

var identRe = regexp.MustCompile(`^:?[A-Za-z_][A-Za-z0-9_]*$`)

// ParseGuard приводит значение из конфигурации шага к Guard.
//
// Поддерживаемые формы:
//   - nil — шаг выполняется всегда (возвращается nil Guard)
//   - bool — литерал
//   - Guard, func(*Context) bool, func(*Context) (bool, error)
//   - "name" или "{{name}}" — истинность значения ключа name
//   - любая другая строка — условие Go template: `.tier | eq "gold"`
func ParseGuard(v any) (Guard, error) {
	switch g := v.(type) {
	case nil:
		return nil, nil

	case bool:
		return func(*Context) (bool, error) { return g, nil }, nil

	case Guard:
		return g, nil

	case func(*Context) (bool, error):
		return g, nil

	case func(*Context) bool:
		return func(c *Context) (bool, error) { return g(c), nil }, nil

	case string:
		expr := strings.TrimSpace(g)
		if m := exactRe.FindStringSubmatch(expr); m != nil {
			expr = strings.TrimSpace(m[1])
		}

		switch strings.ToLower(expr) {
		case "", "true":
			return func(*Context) (bool, error) { return true, nil }, nil
		case "false":
			return func(*Context) (bool, error) { return false, nil }, nil
		}

		if identRe.MatchString(expr) {
			key := expr
			return func(c *Context) (bool, error) { return Truthy(c.Get(key)), nil }, nil
		}

		return func(c *Context) (bool, error) {
			ok, err := RenderCondition(expr, c)
			if err != nil {
				return false, fmt.Errorf("%w: %s: %v", ErrInvalidGuard, expr, err)
			}
			return ok, nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidGuard, v)
	}
}

// Truthy вычисляет истинность значения по правилам Go template:
// nil, false, 0, пустые строки и коллекции ложны. Строка "false" тоже ложна.
func Truthy(v any) bool {
	if v == nil {
		return false
	}

	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && !strings.EqualFold(val, "false")
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
