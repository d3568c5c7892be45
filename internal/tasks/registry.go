package tasks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/agentflow/internal/engine"
)

// Factory создаёт задачу по имени шага и его конфигурации.
type Factory func(name string, cfg map[string]any) (Task, error)

// Registry — реестр типов задач: идентификатор типа → Factory.
//
// Заполняется при старте процесса, до первого прогона.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register связывает тип с Factory.
// Если тип уже зарегистрирован, Factory будет перезаписана.
func (r *Registry) Register(taskType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = factory
}

// Resolve создаёт задачу.
// Возвращает engine.ErrUnknownTaskType, если тип не зарегистрирован.
func (r *Registry) Resolve(taskType, name string, cfg map[string]any) (Task, error) {
	r.mu.RLock()
	factory, exists := r.factories[taskType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownTaskType, taskType)
	}
	return factory(name, cfg)
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[taskType]
	return exists
}

// Types возвращает отсортированный список типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Unregister удаляет тип из реестра.
func (r *Registry) Unregister(taskType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, taskType)
}

// DefaultRegistry создаёт реестр со всеми встроенными типами.
// Задачи, которым нужна недоступная зависимость из deps,
// регистрируются всё равно и возвращают ConfigError при создании.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	d := deps.Defaults

	r.Register(TypeDirectHandler, func(name string, cfg map[string]any) (Task, error) {
		return NewDirectHandlerTask(name, cfg, d)
	})

	llmFactory := func(name string, cfg map[string]any) (Task, error) {
		return NewLLMTask(name, cfg, deps)
	}
	r.Register(TypeLLM, llmFactory)
	r.Register(TypeLLMAlias, llmFactory)

	r.Register(TypeLLMCompletion, func(name string, cfg map[string]any) (Task, error) {
		return NewLLMCompletionTask(name, cfg, deps)
	})
	r.Register(TypeWebSearch, func(name string, cfg map[string]any) (Task, error) {
		return NewWebSearchTask(name, cfg, deps)
	})
	r.Register(TypeFileSearch, func(name string, cfg map[string]any) (Task, error) {
		return NewFileSearchTask(name, cfg, deps)
	})
	r.Register(TypeFileUpload, func(name string, cfg map[string]any) (Task, error) {
		return NewFileUploadTask(name, cfg, deps)
	})
	r.Register(TypeVectorStore, func(name string, cfg map[string]any) (Task, error) {
		return NewVectorStoreTask(name, cfg, deps)
	})
	r.Register(TypeImageGeneration, func(name string, cfg map[string]any) (Task, error) {
		return NewImageGenerationTask(name, cfg, deps)
	})
	r.Register(TypeMarkdown, func(name string, cfg map[string]any) (Task, error) {
		return NewMarkdownTask(name, cfg, deps)
	})
	r.Register(TypeRecordFind, func(name string, cfg map[string]any) (Task, error) {
		return NewRecordFindTask(name, cfg, deps)
	})
	r.Register(TypeRecordScope, func(name string, cfg map[string]any) (Task, error) {
		return NewRecordScopeTask(name, cfg, deps)
	})
	r.Register(TypeMailer, func(name string, cfg map[string]any) (Task, error) {
		return NewMailerTask(name, cfg, deps)
	})
	r.Register(TypeCron, func(name string, cfg map[string]any) (Task, error) {
		return NewCronTask(name, cfg, deps)
	})
	r.Register(TypeUIPush, func(name string, cfg map[string]any) (Task, error) {
		return NewUIPushTask(name, cfg, deps)
	})

	r.Register(TypeHTTP, func(name string, cfg map[string]any) (Task, error) {
		return NewHTTPTask(name, cfg, deps)
	})
	r.Register(TypeDelay, func(name string, cfg map[string]any) (Task, error) {
		return NewDelayTask(name, cfg, d)
	})
	r.Register(TypeTransform, func(name string, cfg map[string]any) (Task, error) {
		return NewTransformTask(name, cfg, d)
	})

	return r
}
