// Package orchestrator выполняет workflow.
//
// Orchestrator проходит шаги определения по порядку, создаёт для каждого
// Task через реестр, проверяет guard-условие, выполняет задачу и кладёт
// её output в Context под именем шага. Первая ошибка останавливает прогон,
// накопленный trace попадает в WorkflowResult.
//
//	orch := orchestrator.New(orchestrator.Config{
//	    Resolver: tasks.DefaultRegistry(deps),
//	    Catalog:  catalog,
//	    Observer: metrics,
//	})
//	result := orch.Execute(ctx, def, engine.NewContext(input), nil)
//	if result.Failed() {
//	    log.Println(result.ErrorMessage())
//	}
//
// Пропущенные шаги не попадают в trace, их имена лежат в SkippedSteps.
// Повторы Orchestrator не делает: Retries() задачи используется самой задачей.
// Отмена ctx проверяется перед каждым шагом.
package orchestrator
