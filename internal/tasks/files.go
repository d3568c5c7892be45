package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
	"github.com/shaiso/agentflow/internal/telemetry"
)

const defaultFilePurpose = "assistants"

// FileUploadTask — загрузка локального файла в хранилище файлов API.
//
//	file_path: report_path   # ключ Context или путь, по умолчанию ключ file_path
//	purpose: assistants
//	check_existing: true     # переиспользовать файл с тем же именем и размером
//	as: file_id
//
// Результат: {<as>: id, filename, size, uploaded_at, existing}.
type FileUploadTask struct {
	Base
	client LLM
	logger *slog.Logger
}

// NewFileUploadTask создаёт FileUploadTask.
func NewFileUploadTask(name string, cfg map[string]any, deps Deps) (*FileUploadTask, error) {
	base, err := NewBase(TypeFileUpload, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	if deps.LLM == nil {
		return nil, base.configErr("", "llm client is not configured")
	}
	return &FileUploadTask{Base: base, client: deps.LLM, logger: deps.logger()}, nil
}

// Description возвращает описание.
func (t *FileUploadTask) Description() string { return "file upload" }

// Execute загружает файл.
func (t *FileUploadTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	path := textParam(fromContext(c, raw["file_path"], "file_path"), "file_path", "path")
	if path == "" {
		return nil, t.configErr("file_path", "file path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, t.fail("File not found: "+path, err)
	}

	purpose := GetConfigString(raw, "purpose")
	if purpose == "" {
		purpose = defaultFilePurpose
	}
	key := resultKey(raw, "file_id")
	filename := filepath.Base(path)

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	if GetConfigBool(raw, "check_existing", true) {
		if existing := t.findExisting(ctx, purpose, filename, info.Size()); existing != nil {
			telemetry.FromContext(ctx).Info("using existing file",
				"task", t.name,
				"filename", existing.Filename,
				"file_id", existing.ID,
			)
			return map[string]any{
				key:           existing.ID,
				"filename":    existing.Filename,
				"size":        existing.Bytes,
				"uploaded_at": time.Unix(existing.CreatedAt, 0).UTC().Format(time.RFC3339),
				"existing":    true,
			}, nil
		}
	}

	file, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (*llm.File, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return t.client.UploadFile(ctx, llm.FileUpload{Filename: filename, Purpose: purpose, Content: f})
	})
	if err != nil {
		return nil, t.fail(fmt.Sprintf("File upload failed: %v", err), err)
	}

	return map[string]any{
		key:           file.ID,
		"filename":    filename,
		"size":        info.Size(),
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
		"existing":    false,
	}, nil
}

// findExisting ищет файл с тем же именем и размером.
// Ошибка поиска не фатальна: файл просто загружается заново.
func (t *FileUploadTask) findExisting(ctx context.Context, purpose, filename string, size int64) *llm.File {
	files, err := t.client.ListFiles(ctx, purpose)
	if err != nil {
		telemetry.FromContext(ctx).Warn("failed to check existing files", "task", t.name, "error", err)
		return nil
	}
	for i := range files {
		if files[i].Filename == filename && files[i].Bytes == size {
			return &files[i]
		}
	}
	return nil
}
