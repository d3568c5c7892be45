// Package app собирает runtime agentflow из config.Config:
// реестр задач, каталог workflow, Orchestrator и, по запросу,
// инфраструктуру async слоя (PostgreSQL, Redis, RabbitMQ, планировщик).
//
// Используется обоими бинарями: cmd/agentflow и cmd/agentflow-worker.
// Недоступная инфраструктура не фатальна: соответствующие задачи
// вернут ConfigError при разрешении, а async операции — ошибку.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/agentflow/internal/config"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
	"github.com/shaiso/agentflow/internal/mq"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/pubsub"
	"github.com/shaiso/agentflow/internal/repo"
	"github.com/shaiso/agentflow/internal/scheduler"
	"github.com/shaiso/agentflow/internal/tasks"
	"github.com/shaiso/agentflow/internal/telemetry"
	"github.com/shaiso/agentflow/internal/worker"
)

// Store — варианты хранилища Execution записей.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreNone     = "none"
)

// ErrNoQueue — RabbitMQ не подключён.
var ErrNoQueue = errors.New("job queue is not connected")

// Options — что подключать помимо ядра.
type Options struct {
	// Queue — подключить RabbitMQ (Client, Worker, планировщик).
	Queue bool

	// Database — подключить PostgreSQL (record задачи, ExecutionRepo, ссылки).
	Database bool

	// Redis — подключить Redis (ui_push broadcast, RedisExecutionStore).
	Redis bool

	// Registerer — куда регистрировать метрики. Nil — без метрик.
	Registerer prometheus.Registerer

	// ConnectionName — имя соединения RabbitMQ.
	ConnectionName string
}

// App — собранный runtime.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      *telemetry.Metrics
	Registry     *tasks.Registry
	Catalog      *engine.Catalog
	Orchestrator *orchestrator.Orchestrator

	DB        *pgxpool.Pool
	Redis     *redis.Client
	MQ        *mq.Connection
	Publisher *mq.Publisher

	Store     worker.ExecutionStore
	Locator   *worker.Locator
	Client    *worker.Client
	Job       *worker.Job
	Scheduler *scheduler.CronScheduler
}

// lateEnqueuer связывает планировщик с Client, который создаётся позже реестра.
type lateEnqueuer struct {
	client *worker.Client
}

func (e *lateEnqueuer) RunLater(ctx context.Context, workflowType string, wctx *engine.Context) (*worker.JobHandle, error) {
	if e.client == nil {
		return nil, ErrNoQueue
	}
	return e.client.RunLater(ctx, workflowType, wctx)
}

// New собирает App. Вызывающий обязан вызвать Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if opts.Registerer != nil {
		a.Metrics = telemetry.NewMetrics(opts.Registerer)
	}

	deps := tasks.Deps{
		LLM: llm.New(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		}),
		Mailer: tasks.NewSMTPMailer(cfg.Mail.Addr, cfg.Mail.From, cfg.Mail.Username, cfg.Mail.Password),
		Logger: logger,
		Defaults: tasks.Defaults{
			Timeout:    cfg.Tasks.Timeout,
			Retries:    cfg.Tasks.Retries,
			Model:      cfg.LLM.Model,
			ImageModel: cfg.LLM.ImageModel,
		},
	}

	if opts.Database {
		pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			logger.Warn("database not available, record tasks disabled", "error", err)
		} else {
			a.DB = pool
			deps.DB = pool
			logger.Info("database connected")
		}
	}

	if opts.Redis {
		if err := a.connectRedis(ctx); err != nil {
			logger.Warn("redis not available, ui broadcast disabled", "error", err)
		} else {
			deps.Broadcaster = pubsub.NewRedisBroadcaster(a.Redis, "")
		}
	}

	enqueuer := &lateEnqueuer{}
	if opts.Queue {
		a.Scheduler = scheduler.NewCronScheduler(scheduler.Config{Enqueuer: enqueuer, Logger: logger})
		deps.Scheduler = a.Scheduler
	}

	a.Registry = tasks.DefaultRegistry(deps)
	a.Catalog = engine.NewCatalog(a.Registry)
	for _, path := range cfg.Workflows.Files {
		defs, err := engine.LoadInto(a.Catalog, path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load workflows: %w", err)
		}
		logger.Info("workflows loaded", "file", path, "count", len(defs))
	}

	ocfg := orchestrator.Config{Resolver: a.Registry, Catalog: a.Catalog, Logger: logger}
	if a.Metrics != nil {
		ocfg.Observer = a.Metrics
	}
	a.Orchestrator = orchestrator.New(ocfg)

	a.Locator = worker.NewLocator()
	if a.DB != nil {
		records := repo.NewRecordLocator(a.DB)
		for kind, table := range cfg.Workflows.References {
			a.Locator.Register(kind, records.Resolver(table))
		}
	}

	store, err := a.openStore(ctx, cfg.Worker.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	a.Job = worker.NewJob(worker.JobConfig{
		Executor: a.Orchestrator,
		Locator:  a.Locator,
		Store:    a.Store,
		ContextOptions: []engine.ContextOption{
			engine.WithSensitivePatterns(cfg.Tasks.SensitivePatterns...),
		},
		Logger: logger,
	})

	if opts.Queue {
		name := opts.ConnectionName
		if name == "" {
			name = "agentflow"
		}
		conn, err := mq.NewConnection(cfg.RabbitMQ.URL, name, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, async execution disabled", "error", err)
		} else {
			a.MQ = conn
			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			a.Publisher = mq.NewPublisher(conn, logger)
			a.Client = worker.NewClient(worker.ClientConfig{
				Catalog:   a.Catalog,
				Publisher: a.Publisher,
				Store:     a.Store,
				Logger:    logger,
			})
			enqueuer.client = a.Client
		}
	}

	return a, nil
}

func (a *App) connectRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return err
	}
	a.Redis = client
	a.Logger.Info("redis connected", "addr", a.Config.Redis.Addr)
	return nil
}

// openStore выбирает хранилище Execution. Недоступный backend даёт nil store.
func (a *App) openStore(ctx context.Context, kind string) (worker.ExecutionStore, error) {
	switch kind {
	case "", StorePostgres:
		if a.DB == nil {
			return nil, nil
		}
		executions := repo.NewExecutionRepo(a.DB)
		if err := executions.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return executions, nil
	case StoreRedis:
		if a.Redis == nil {
			return nil, nil
		}
		return repo.NewRedisExecutionStore(a.Redis), nil
	case StoreNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown execution store %q", kind)
	}
}

// RunLater ставит workflow в очередь.
func (a *App) RunLater(ctx context.Context, workflowType string, wctx *engine.Context) (*worker.JobHandle, error) {
	if a.Client == nil {
		return nil, ErrNoQueue
	}
	return a.Client.RunLater(ctx, workflowType, wctx)
}

// NewContext создаёт Context с настройками фильтрации из конфигурации.
func (a *App) NewContext(data map[string]any) *engine.Context {
	return engine.NewContext(data, engine.WithSensitivePatterns(a.Config.Tasks.SensitivePatterns...))
}

// Close освобождает соединения.
func (a *App) Close() {
	if a.MQ != nil {
		if err := a.MQ.Close(); err != nil {
			a.Logger.Warn("close rabbitmq", "error", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
