// Package api — служебный HTTP сервер worker'а.
//
// Структура:
//   - handler.go    — Handler с DI (Orchestrator, Catalog, хранилище, планировщик)
//   - routes.go     — регистрация маршрутов
//   - middleware.go — middleware (logging, recovery)
//   - response.go   — унифицированные JSON-ответы и обработка ошибок
//
// Маршруты: /healthz, /metrics, активные прогоны, каталог workflow,
// Execution записи, список расписаний и их отмена. Постановки в очередь
// по HTTP нет: workflow ставятся через RunLater.
package api
