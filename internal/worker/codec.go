package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/agentflow/internal/engine"
)

// RefPrefix — префикс строки-ссылки на внешнюю сущность.
const RefPrefix = "ref://"

var refKindRe = regexp.MustCompile(`^[a-z][a-z0-9_.-]*$`)

// Ref — ссылка на внешнюю сущность: вид и идентификатор.
// В сериализованном Context выглядит как "ref://kind/id".
type Ref struct {
	Kind string
	ID   string
}

// String возвращает токен ссылки.
func (r Ref) String() string {
	return RefPrefix + r.Kind + "/" + r.ID
}

// Reference реализует Referencer.
func (r Ref) Reference() Ref { return r }

// Referencer — значение, которое через async границу передаётся
// ссылкой, а не копией. На стороне worker'а ссылка превращается
// обратно в живой объект через Locator.
type Referencer interface {
	Reference() Ref
}

// ParseRef разбирает токен. ok == false, если строка не ссылка.
// err != nil, если строка начинается с ref://, но формат неверный.
func ParseRef(s string) (ref Ref, ok bool, err error) {
	rest, found := strings.CutPrefix(s, RefPrefix)
	if !found {
		return Ref{}, false, nil
	}
	kind, id, _ := strings.Cut(rest, "/")
	if !refKindRe.MatchString(kind) || id == "" {
		return Ref{}, true, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Ref{Kind: kind, ID: id}, true, nil
}

// Resolver загружает сущность по идентификатору.
type Resolver func(ctx context.Context, id string) (any, error)

// Locator — реестр Resolver'ов по виду ссылки.
// Заполняется при старте worker'а.
type Locator struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewLocator создаёт пустой Locator.
func NewLocator() *Locator {
	return &Locator{resolvers: make(map[string]Resolver)}
}

// Register добавляет или заменяет Resolver для вида.
func (l *Locator) Register(kind string, r Resolver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolvers[kind] = r
}

// Kinds возвращает зарегистрированные виды.
func (l *Locator) Kinds() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	kinds := make([]string, 0, len(l.resolvers))
	for k := range l.resolvers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Resolve загружает сущность по ссылке.
func (l *Locator) Resolve(ctx context.Context, ref Ref) (any, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRefKind, ref.Kind)
	}

	l.mu.RLock()
	r, ok := l.resolvers[ref.Kind]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRefKind, ref.Kind)
	}

	v, err := r(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return v, nil
}

// EncodeContext превращает Context в JSON-совместимую map.
//
// Referencer значения становятся токенами ref://, time.Time — строкой RFC3339.
// float32/float64 пишутся с дробной частью (5 → 5.0), чтобы на стороне
// worker'а они остались float64. Функции, каналы, комплексные числа, NaN и Inf дают *engine.SerializationError
// с именем ключа.
func EncodeContext(c *engine.Context) (map[string]any, error) {
	if c == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, c.Len())
	for _, key := range c.Keys() {
		v, err := encodeValue(c.Get(key))
		if err != nil {
			return nil, &engine.SerializationError{Key: key, Err: err}
		}
		out[key] = v
	}
	return out, nil
}

func encodeValue(v any) (any, error) {
	switch x := v.(type) {
	case Referencer:
		return x.Reference().String(), nil
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float32:
		return encodeFloat(float64(x))
	case float64:
		return encodeFloat(x)
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			ev, err := encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			ev, err := encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}

	// структуры, типизированные слайсы и map проходят через JSON
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUnsupportedValue, v, err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUnsupportedValue, v, err)
	}
	return generic, nil
}

func encodeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s), nil
}

// DecodeContext восстанавливает Context из сериализованной map.
//
// Строки ref:// разрешаются через loc. Числа приводятся к каноничной форме:
// целое, помещающееся в int, становится int (как в синхронном Context),
// целое вне диапазона int — int64, всё остальное — float64.
// Любая ошибка оборачивается в ErrRehydration.
func DecodeContext(ctx context.Context, data map[string]any, loc *Locator, opts ...engine.ContextOption) (*engine.Context, error) {
	out := make(map[string]any, len(data))
	for key, v := range data {
		dv, err := decodeValue(ctx, v, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %w", ErrRehydration, key, err)
		}
		out[key] = dv
	}
	return engine.NewContext(out, opts...), nil
}

func decodeNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt && i <= math.MaxInt {
			return int(i), nil
		}
		return i, nil
	}
	return n.Float64()
}

func decodeValue(ctx context.Context, v any, loc *Locator) (any, error) {
	switch x := v.(type) {
	case string:
		ref, ok, err := ParseRef(x)
		if err != nil {
			return nil, err
		}
		if !ok {
			return x, nil
		}
		return loc.Resolve(ctx, ref)
	case json.Number:
		return decodeNumber(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			dv, err := decodeValue(ctx, item, loc)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			dv, err := decodeValue(ctx, item, loc)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	default:
		return x, nil
	}
}
