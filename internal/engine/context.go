package engine

import (
	"maps"
	"slices"
	"strings"
)

// FilteredMarker — значение, которым заменяются приватные ключи в логах.
const FilteredMarker = "[FILTERED]"

// DefaultSensitivePatterns — подстроки ключей, которые считаются приватными
// даже без явного объявления.
var DefaultSensitivePatterns = []string{"password", "token", "secret", "key"}

// Context — неизменяемое хранилище key → value, которое передаётся
// между шагами workflow.
//
// Любая «модификация» (Set, Merge) возвращает новый экземпляр,
// исходный Context никогда не меняется. Благодаря этому разные прогоны
// могут работать параллельно без блокировок.
//
// Ключи приводятся к канонической форме один раз при записи:
// пробелы по краям и ведущий ':' отбрасываются, так что "user",
// " user " и ":user" — один и тот же ключ.
type Context struct {
	values   map[string]any
	private  map[string]struct{}
	patterns []string
}

// ContextOption настраивает Context при создании.
type ContextOption func(*Context)

// WithPrivateKeys помечает ключи как приватные.
func WithPrivateKeys(keys ...string) ContextOption {
	return func(c *Context) {
		for _, k := range keys {
			c.private[NormalizeKey(k)] = struct{}{}
		}
	}
}

// WithSensitivePatterns заменяет набор подстрок для автоматической фильтрации.
// Пустой вызов отключает фильтрацию по подстрокам.
func WithSensitivePatterns(patterns ...string) ContextOption {
	return func(c *Context) {
		c.patterns = make([]string, 0, len(patterns))
		for _, p := range patterns {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				c.patterns = append(c.patterns, p)
			}
		}
	}
}

// NormalizeKey приводит ключ к канонической форме.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	return strings.TrimPrefix(key, ":")
}

// NewContext создаёт Context из начальных данных.
// Переданная map копируется, вызывающий может дальше её менять.
func NewContext(initial map[string]any, opts ...ContextOption) *Context {
	c := &Context{
		values:   make(map[string]any, len(initial)),
		private:  make(map[string]struct{}),
		patterns: DefaultSensitivePatterns,
	}
	for k, v := range initial {
		c.values[NormalizeKey(k)] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get возвращает значение по ключу или nil.
func (c *Context) Get(key string) any {
	if c == nil {
		return nil
	}
	return c.values[NormalizeKey(key)]
}

// Lookup возвращает значение и признак его наличия.
// Позволяет отличить отсутствующий ключ от ключа со значением nil.
func (c *Context) Lookup(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[NormalizeKey(key)]
	return v, ok
}

// Has проверяет наличие ключа.
func (c *Context) Has(key string) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Set возвращает новый Context с добавленным или обновлённым ключом.
func (c *Context) Set(key string, value any) *Context {
	next := c.clone(1)
	next.values[NormalizeKey(key)] = value
	return next
}

// Merge возвращает новый Context с несколькими ключами.
// При конфликте побеждает значение из updates.
func (c *Context) Merge(updates map[string]any) *Context {
	next := c.clone(len(updates))
	for k, v := range updates {
		next.values[NormalizeKey(k)] = v
	}
	return next
}

// WithPrivate возвращает новый Context, в котором keys помечены приватными.
func (c *Context) WithPrivate(keys ...string) *Context {
	next := c.clone(0)
	for _, k := range keys {
		next.private[NormalizeKey(k)] = struct{}{}
	}
	return next
}

// IsPrivate сообщает, будет ли ключ скрыт в Filtered.
func (c *Context) IsPrivate(key string) bool {
	key = NormalizeKey(key)
	if _, ok := c.private[key]; ok {
		return true
	}
	lower := strings.ToLower(key)
	for _, p := range c.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Filtered возвращает копию данных, в которой приватные значения
// заменены на FilteredMarker. Используется только для логов и trace.
func (c *Context) Filtered() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		if c.IsPrivate(k) {
			out[k] = FilteredMarker
			continue
		}
		out[k] = v
	}
	return out
}

// ToMap возвращает поверхностную копию данных.
func (c *Context) ToMap() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	return maps.Clone(c.values)
}

// Keys возвращает отсортированный список ключей.
func (c *Context) Keys() []string {
	if c == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(c.values))
}

// Len возвращает количество ключей.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

func (c *Context) clone(extra int) *Context {
	if c == nil {
		return NewContext(nil)
	}
	next := &Context{
		values:   make(map[string]any, len(c.values)+extra),
		private:  maps.Clone(c.private),
		patterns: c.patterns,
	}
	maps.Copy(next.values, c.values)
	return next
}
