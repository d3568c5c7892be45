package tasks

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/agentflow/internal/llm"
)

// Идентификаторы встроенных типов задач.
const (
	TypeDirectHandler   = "direct_handler"
	TypeLLM             = "llm"
	TypeLLMAlias        = "llm_task"
	TypeLLMCompletion   = "llm_completion"
	TypeWebSearch       = "web_search"
	TypeFileSearch      = "file_search"
	TypeFileUpload      = "file_upload"
	TypeVectorStore     = "vector_store_management"
	TypeImageGeneration = "image_generation"
	TypeMarkdown        = "markdown"
	TypeRecordFind      = "record_find"
	TypeRecordScope     = "record_scope"
	TypeMailer          = "mailer"
	TypeCron            = "cron"
	TypeUIPush          = "ui_push"
	TypeHTTP            = "http"
	TypeDelay           = "delay"
	TypeTransform       = "transform"
)

// LLM — операции OpenAI-совместимого API, которые используют задачи.
// Реализуется *llm.Client.
type LLM interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	Respond(ctx context.Context, req llm.ResponseRequest) (*llm.ResponseResult, error)
	GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.Image, error)
	ListFiles(ctx context.Context, purpose string) ([]llm.File, error)
	UploadFile(ctx context.Context, upload llm.FileUpload) (*llm.File, error)
	CreateVectorStore(ctx context.Context, name string, fileIDs []string) (*llm.VectorStore, error)
	AddVectorStoreFiles(ctx context.Context, storeID string, fileIDs []string) (*llm.FileBatch, error)
	DeleteVectorStore(ctx context.Context, storeID string) error
	ListVectorStores(ctx context.Context) ([]llm.VectorStore, error)
}

// Querier — доступ к PostgreSQL для record задач.
// Реализуется *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Mailer — отправка писем.
type Mailer interface {
	Send(ctx context.Context, msg Mail) (messageID string, err error)
}

// Scheduler — регистрация периодического запуска workflow.
// Реализуется scheduler.CronScheduler.
type Scheduler interface {
	Schedule(ctx context.Context, spec, workflow string, input map[string]any) (jobID string, err error)
}

// Broadcaster — доставка UI обновлений подписчикам канала.
// Реализуется pubsub.RedisBroadcaster.
type Broadcaster interface {
	Publish(ctx context.Context, channel, payload string) error
}

// Deps — внешние зависимости встроенных задач.
// Любое поле может быть nil: задача, которой оно нужно,
// вернёт ConfigError при создании.
type Deps struct {
	LLM         LLM
	DB          Querier
	Mailer      Mailer
	Scheduler   Scheduler
	Broadcaster Broadcaster
	HTTPClient  *http.Client
	Logger      *slog.Logger
	Defaults    Defaults
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
