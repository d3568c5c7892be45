package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
)

// Операции над vector store.
const (
	VectorStoreCreate  = "create"
	VectorStoreAddFile = "add_file"
	VectorStoreDelete  = "delete"
	VectorStoreList    = "list"
)

// VectorStoreTask — управление vector store.
//
//	operation: create | add_file | delete | list
//	name: contracts                 # для create, иначе ключ Context name
//	file_ids: uploaded_ids          # ключ Context или список, по умолчанию file_ids
//	vector_store_id: store_id       # ключ Context или литерал, по умолчанию vector_store_id
//	as: vector_store_result
type VectorStoreTask struct {
	Base
	client    LLM
	logger    *slog.Logger
	operation string
}

// NewVectorStoreTask создаёт VectorStoreTask.
func NewVectorStoreTask(name string, cfg map[string]any, deps Deps) (*VectorStoreTask, error) {
	base, err := NewBase(TypeVectorStore, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}

	op := GetConfigString(cfg, "operation")
	if op == "" {
		op = VectorStoreCreate
	}
	switch op {
	case VectorStoreCreate, VectorStoreAddFile, VectorStoreDelete, VectorStoreList:
	default:
		return nil, base.configErr("operation", fmt.Sprintf("invalid operation %q, must be one of: create, add_file, delete, list", op))
	}
	if deps.LLM == nil {
		return nil, base.configErr("", "llm client is not configured")
	}

	return &VectorStoreTask{Base: base, client: deps.LLM, logger: deps.logger(), operation: op}, nil
}

// Description возвращает описание.
func (t *VectorStoreTask) Description() string { return "vector store " + t.operation }

// Execute выполняет операцию.
func (t *VectorStoreTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	var result map[string]any
	switch t.operation {
	case VectorStoreCreate:
		result, err = t.create(ctx, c, raw)
	case VectorStoreAddFile:
		result, err = t.addFiles(ctx, c, raw)
	case VectorStoreDelete:
		result, err = t.delete(ctx, c, raw)
	case VectorStoreList:
		result, err = t.list(ctx)
	}
	if err != nil {
		return nil, err
	}

	result["operation"] = t.operation
	return map[string]any{resultKey(raw, "vector_store_result"): result}, nil
}

func (t *VectorStoreTask) create(ctx context.Context, c *engine.Context, raw map[string]any) (map[string]any, error) {
	name := textParam(c.Get("name"))
	if name == "" {
		name = GetConfigString(raw, "name")
	}
	if name == "" {
		return nil, t.configErr("name", "name is required for create operation")
	}
	fileIDs := stringList(fromContext(c, raw["file_ids"], "file_ids"))

	store, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (*llm.VectorStore, error) {
		return t.client.CreateVectorStore(ctx, name, fileIDs)
	})
	if err != nil {
		return nil, t.fail("Vector store API error: "+err.Error(), err)
	}

	return map[string]any{
		"vector_store_id": store.ID,
		"name":            store.Name,
		"file_count":      store.FileCounts.Total,
		"created_at":      store.CreatedAt,
	}, nil
}

func (t *VectorStoreTask) addFiles(ctx context.Context, c *engine.Context, raw map[string]any) (map[string]any, error) {
	storeID := textParam(fromContext(c, raw["vector_store_id"], "vector_store_id"))
	if storeID == "" {
		return nil, t.configErr("vector_store_id", "vector store id is required")
	}
	fileIDs := stringList(fromContext(c, raw["file_ids"], "file_ids"))
	if len(fileIDs) == 0 {
		return nil, t.configErr("file_ids", "file ids are required")
	}

	batch, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (*llm.FileBatch, error) {
		return t.client.AddVectorStoreFiles(ctx, storeID, fileIDs)
	})
	if err != nil {
		return nil, t.fail("Vector store API error: "+err.Error(), err)
	}

	return map[string]any{
		"vector_store_id": storeID,
		"added_files":     len(fileIDs),
		"batch_id":        batch.ID,
	}, nil
}

func (t *VectorStoreTask) delete(ctx context.Context, c *engine.Context, raw map[string]any) (map[string]any, error) {
	storeID := textParam(fromContext(c, raw["vector_store_id"], "vector_store_id"))
	if storeID == "" {
		return nil, t.configErr("vector_store_id", "vector store id is required")
	}

	_, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.client.DeleteVectorStore(ctx, storeID)
	})
	if err != nil {
		return nil, t.fail("Vector store API error: "+err.Error(), err)
	}

	return map[string]any{
		"vector_store_id": storeID,
		"deleted":         true,
	}, nil
}

func (t *VectorStoreTask) list(ctx context.Context) (map[string]any, error) {
	stores, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) ([]llm.VectorStore, error) {
		return t.client.ListVectorStores(ctx)
	})
	if err != nil {
		return nil, t.fail("Vector store API error: "+err.Error(), err)
	}

	items := make([]any, 0, len(stores))
	for _, s := range stores {
		items = append(items, map[string]any{
			"id":         s.ID,
			"name":       s.Name,
			"file_count": s.FileCounts.Total,
			"created_at": s.CreatedAt,
		})
	}

	return map[string]any{
		"vector_stores": items,
		"total":         len(items),
	}, nil
}
