package engine

import (
	"fmt"
	"maps"
)

// Config — нетипизированная конфигурация шага.
type Config = map[string]any

// StepDef — объявление шага в определении workflow.
type StepDef struct {
	// Name — имя шага, уникальное в рамках workflow.
	// Используется и как ключ trace, и как ключ Context для output.
	Name string `json:"name" yaml:"name"`

	// Type — идентификатор типа задачи в Registry.
	Type string `json:"uses" yaml:"uses"`

	// Config — конфигурация задачи. Может содержать условие "if"
	// и строки с {{key}} ссылками на Context.
	Config Config `json:"with,omitempty" yaml:"with,omitempty"`
}

// Guard возвращает условие шага или nil.
func (s StepDef) Guard() any {
	return s.Config[GuardKey]
}

// StepOption настраивает StepDef.
type StepOption func(*StepDef)

// If задаёт условие выполнения шага. Формы см. ParseGuard.
func If(guard any) StepOption {
	return func(s *StepDef) {
		s.Config[GuardKey] = guard
	}
}

// Step создаёт объявление шага.
func Step(name, taskType string, cfg Config, opts ...StepOption) StepDef {
	s := StepDef{
		Name:   NormalizeKey(name),
		Type:   taskType,
		Config: maps.Clone(cfg),
	}
	if s.Config == nil {
		s.Config = Config{}
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Definition — статическое упорядоченное описание workflow.
//
// Шаги выполняются строго в порядке объявления. После создания
// Definition только читается и может использоваться несколькими
// прогонами одновременно.
type Definition struct {
	Name  string
	Steps []StepDef

	index map[string]int
}

// NewDefinition создаёт определение из шагов.
func NewDefinition(name string, steps ...StepDef) *Definition {
	d := &Definition{
		Name:  name,
		Steps: steps,
		index: make(map[string]int, len(steps)),
	}
	for i := range d.Steps {
		d.Steps[i].Name = NormalizeKey(d.Steps[i].Name)
		if _, dup := d.index[d.Steps[i].Name]; !dup {
			d.index[d.Steps[i].Name] = i
		}
	}
	return d
}

// FindStep возвращает объявление шага по имени или nil.
func (d *Definition) FindStep(name string) *StepDef {
	i, ok := d.index[NormalizeKey(name)]
	if !ok {
		return nil
	}
	return &d.Steps[i]
}

// StepNames возвращает имена шагов в порядке объявления.
func (d *Definition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Name
	}
	return names
}

// Validate проверяет определение.
//
// Проверяет:
//   - наличие имени и шагов
//   - непустые и уникальные имена шагов
//   - непустые типы задач
//   - корректную форму условий if
func (d *Definition) Validate() error {
	if d == nil || len(d.Steps) == 0 {
		return ErrEmptySteps
	}
	if d.Name == "" {
		return NewValidationError("", "name", "workflow has empty name", ErrEmptyWorkflowName)
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return NewValidationError("", "name",
				fmt.Sprintf("step %d has empty name", i), ErrEmptyStepName)
		}
		if seen[step.Name] {
			return NewValidationError(step.Name, "name",
				fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
		}
		seen[step.Name] = true

		if step.Type == "" {
			return NewValidationError(step.Name, "uses",
				"step has empty task type", ErrEmptyStepType)
		}

		if _, err := ParseGuard(step.Guard()); err != nil {
			return NewValidationError(step.Name, GuardKey, err.Error(), ErrInvalidGuard)
		}
	}

	return nil
}
