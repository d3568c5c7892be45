// Package engine содержит модель workflow: всё, что нужно Orchestrator'у,
// но не зависит от конкретных задач.
//
// Включает:
//   - context.go    — неизменяемый Context, передаваемый между шагами
//   - definition.go — Definition и StepDef, валидация
//   - catalog.go    — реестр типов workflow по имени
//   - loader.go     — загрузка определений из YAML
//   - guard.go      — условия выполнения шагов (if)
//   - template.go   — {{key}} подстановки и Go templates
//   - errors.go     — таксономия ошибок (ValidationError, ConfigError, TaskError)
package engine
