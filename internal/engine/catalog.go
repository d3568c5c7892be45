package engine

import (
	"fmt"
	"slices"
	"sync"
)

// TypeChecker сообщает, зарегистрирован ли тип задачи.
// Реализуется tasks.Registry.
type TypeChecker interface {
	Has(taskType string) bool
}

// Catalog — реестр типов workflow: имя → Definition.
//
// Заполняется при старте процесса и дальше только читается.
// Async worker находит по нему определение, имя которого пришло в job.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[string]*Definition
	types TypeChecker
}

// NewCatalog создаёт пустой каталог.
// Если types != nil, при регистрации проверяется, что все типы задач известны.
func NewCatalog(types TypeChecker) *Catalog {
	return &Catalog{
		defs:  make(map[string]*Definition),
		types: types,
	}
}

// Register валидирует и добавляет определение.
// Повторная регистрация того же имени — ошибка.
func (c *Catalog) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	if c.types != nil {
		for _, step := range def.Steps {
			if !c.types.Has(step.Type) {
				return NewValidationError(step.Name, "uses",
					fmt.Sprintf("task type %q not found", step.Type), ErrUnknownTaskType)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// MustRegister — как Register, но паникует при ошибке.
// Для регистрации встроенных определений при старте.
func (c *Catalog) MustRegister(def *Definition) {
	if err := c.Register(def); err != nil {
		panic(err)
	}
}

// Get возвращает определение по имени.
func (c *Catalog) Get(name string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	return def, ok
}

// Has проверяет наличие определения.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Names возвращает отсортированный список имён.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
