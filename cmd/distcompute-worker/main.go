// distcompute-worker: воркер распределённого трекера задач.
//
// Использование:
//
//	distcompute-worker [--config FILE] [--url URL] [--stage NAME] [--json] <command> [flags]
//
// Команды:
//
//	run    Получать и выполнять задачи до остановки
//	count  Число задач на стадии
//	check  Проверить, что воркер активен
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/distcompute/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cli.NewRootCmd(version).ExecuteContext(ctx)
	stop()

	if err != nil {
		cli.NewOutput(false).Error(err.Error())
		os.Exit(1)
	}
}
