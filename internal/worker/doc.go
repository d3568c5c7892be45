// Package worker — отложенное выполнение workflow через очередь.
//
// # Обзор
//
// Client.RunLater сериализует Context, создаёт pending Execution
// (если настроено хранилище) и публикует workflow.job. Worker потребляет
// очередь workflows.jobs и для каждого сообщения вызывает Job.Perform,
// который восстанавливает Context, переводит Execution в running,
// один раз вызывает Orchestrator и финализирует запись результатом.
//
//	client := worker.NewClient(worker.ClientConfig{
//	    Catalog:   catalog,
//	    Publisher: publisher,
//	    Store:     executions,
//	})
//	handle, err := client.RunLater(ctx, "daily_report", engine.NewContext(input))
//
// # Ссылки
//
// Значения, реализующие Referencer, передаются строкой ref://kind/id.
// На стороне worker'а Locator находит Resolver по kind и загружает объект
// до первого шага:
//
//	locator := worker.NewLocator()
//	locator.Register("user", repo.NewRecordLocator(pool).Resolver("users"))
//
// Значения, которые нельзя представить в JSON, дают *engine.SerializationError
// ещё в RunLater, до постановки в очередь.
//
// # Ошибки
//
// Failed WorkflowResult — нормальное завершение job. Ошибка восстановления
// Context или неизвестный workflow отправляют сообщение в DLQ сразу.
// Прочие ошибки job (хранилище, паника) дают одну повторную доставку.
package worker
