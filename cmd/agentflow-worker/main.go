// agentflow-worker — выполняет workflow, поставленные в очередь через RunLater.
//
// Worker:
//   - Получает workflow.job из RabbitMQ (очередь workflows.jobs)
//   - Восстанавливает Context и ссылки ref://kind/id
//   - Выполняет workflow через Orchestrator и сохраняет Execution
//   - Запускает cron расписания, зарегистрированные задачами cron
//
// HTTP: /healthz, /metrics и read-only /api/v1 для наблюдения.
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/agentflow/internal/api"
	"github.com/shaiso/agentflow/internal/app"
	"github.com/shaiso/agentflow/internal/config"
	"github.com/shaiso/agentflow/internal/telemetry"
	"github.com/shaiso/agentflow/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("AGENTFLOW_CONFIG"))
	if err != nil {
		telemetry.SetupLogger().Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format, true)
	logger.Info("starting agentflow-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{
		Queue:          true,
		Database:       true,
		Redis:          true,
		Registerer:     prometheus.DefaultRegisterer,
		ConnectionName: "agentflow-worker",
	})
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.MQ == nil {
		logger.Error("RabbitMQ is required for the worker")
		os.Exit(1)
	}

	w := worker.New(worker.Config{
		Conn:        a.MQ,
		Job:         a.Job,
		Concurrency: cfg.Worker.Concurrency,
		Observer:    a.Metrics,
		Logger:      logger,
	})
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	a.Scheduler.Start()

	hcfg := api.Config{
		Runs:      a.Orchestrator,
		Catalog:   a.Catalog,
		Schedules: a.Scheduler,
		Health:    health(a),
		Logger:    logger,
	}
	if reader, ok := a.Store.(api.ExecutionReader); ok {
		hcfg.Executions = reader
	}

	mux := http.NewServeMux()
	api.NewHandler(hcfg).RegisterRoutes(mux, prometheus.DefaultGatherer)

	srv := &http.Server{
		Addr:              ":" + cfg.Worker.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	a.Scheduler.Stop()
	w.Stop()
	logger.Info("agentflow-worker stopped")
}

// health сообщает о подключённых зависимостях.
func health(a *app.App) api.Health {
	return func() map[string]bool {
		deps := map[string]bool{"rabbitmq": a.MQ.IsConnected()}
		if a.DB != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			deps["postgres"] = a.DB.Ping(ctx) == nil
		}
		if a.Redis != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			deps["redis"] = a.Redis.Ping(ctx).Err() == nil
		}
		return deps
	}
}
