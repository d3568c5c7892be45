// agentflow — инструмент командной строки: запуск workflow в процессе,
// постановка в очередь и проверка файлов определений.
//
// Использование:
//
//	agentflow [--config FILE] [-f workflows.yaml] [--json] <command> [flags]
//
// Команды:
//
//	run        Выполнить workflow синхронно
//	enqueue    Поставить workflow в очередь
//	validate   Проверить файлы определений
//	workflows  Список workflow
//	tasks      Список типов задач
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/agentflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
