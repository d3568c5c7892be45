// Package tasks содержит контракт Task, реестр типов задач
// и встроенные задачи.
//
// # Контракт
//
// Задача получает неизменяемый engine.Context и возвращает значение,
// которое orchestrator кладёт в Context под именем шага:
//
//	type Task interface {
//	    Name() string
//	    Type() string
//	    Description() string
//	    Execute(ctx context.Context, c *engine.Context) (any, error)
//	    ShouldExecute(c *engine.Context) (bool, error)
//	    Timeout() time.Duration
//	    Retries() int
//	}
//
// Общая часть (условие if, timeout, retries) живёт в Base.
// Шаблоны {{key}} в конфигурации разворачиваются в момент Execute.
//
// # Registry
//
//	registry := tasks.DefaultRegistry(tasks.Deps{LLM: client, DB: pool})
//	task, err := registry.Resolve("llm", "summarize", cfg)
//	if errors.Is(err, engine.ErrUnknownTaskType) {
//	    // тип не зарегистрирован
//	}
//
// # Встроенные типы
//
//   - direct_handler          — функция из конфигурации
//   - llm, llm_task           — chat запрос с шаблоном промпта
//   - llm_completion          — chat запрос с параметрами из Context
//   - web_search, file_search — Responses API с инструментами поиска
//   - file_upload             — загрузка файла
//   - vector_store_management — create, add_file, delete, list
//   - image_generation        — генерация изображения
//   - markdown                — LLM обработка и рендеринг через glamour
//   - record_find, record_scope — чтение из PostgreSQL
//   - mailer                  — отправка письма по SMTP
//   - cron                    — периодический запуск workflow
//   - ui_push                 — turbo-stream фрагмент в Redis канал
//   - http, delay, transform  — HTTP запрос, пауза, сборка значений
//
// # Ошибки
//
// Execute возвращает *engine.TaskError или *engine.ConfigError, транспортные
// ошибки оборачиваются. Временные ошибки API (429, 5xx) повторяются внутри
// задачи с экспоненциальной задержкой, не больше Retries() раз.
package tasks
