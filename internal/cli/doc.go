// Package cli реализует команды agentflow.
//
// В отличие от worker'а, CLI выполняет workflow в своём процессе:
// run запускает Orchestrator синхронно и печатает каждый шаг по мере
// выполнения, enqueue ставит workflow в очередь через worker.Client.
//
// # Output
//
// Форматирование вывода. Поддерживает два режима:
//   - таблицы (text/tabwriter) и цветные строки шагов (lipgloss), по умолчанию
//   - JSON, с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) в stderr:
//
//	agentflow run onboarding --input user_id=42 --json | jq .status
//
// # Commands
//
//   - run WORKFLOW, enqueue WORKFLOW: --input KEY=VALUE, --input-json
//   - validate FILE...
//   - workflows, tasks
//
// Каждая команда создаётся фабричной функцией, принимающей *Env:
// флаги разбираются cobra до вызова RunE, runtime собирается лениво.
package cli
