package tasks

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
)

const (
	defaultSearchContextSize = "medium"
	defaultFileSearchResults = 5
	searchResultsMarker      = "[Search results]"
)

var (
	markdownCitationRe = regexp.MustCompile(`\[\d+\]\(([^)]+)\)`)
	sourceCitationRe   = regexp.MustCompile(`\[Source: ([^\]]+)\]`)
	numberedCitationRe = regexp.MustCompile(`\[\d+\]\s+([^\n]+)`)
)

// WebSearchTask — поиск в интернете через инструмент web_search_preview.
//
//	query: question           # ключ Context или литерал, по умолчанию ключ query
//	search_context_size: high
//	user_location: {type: approximate, country: US}
//	as: search_results
//
// Результат: {<as>: {query, results, citations}}.
type WebSearchTask struct {
	Base
	client LLM
	logger *slog.Logger
}

// NewWebSearchTask создаёт WebSearchTask.
func NewWebSearchTask(name string, cfg map[string]any, deps Deps) (*WebSearchTask, error) {
	base, err := NewBase(TypeWebSearch, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	if deps.LLM == nil {
		return nil, base.configErr("", "llm client is not configured")
	}
	return &WebSearchTask{Base: base, client: deps.LLM, logger: deps.logger()}, nil
}

// Description возвращает описание.
func (t *WebSearchTask) Description() string { return "web search" }

// Execute выполняет поиск.
func (t *WebSearchTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	query := textParam(fromContext(c, raw["query"], "query"), "query", "search")
	if query == "" {
		return nil, t.configErr("query", "query is required")
	}

	size := GetConfigString(raw, "search_context_size")
	if size == "" {
		size = defaultSearchContextSize
	}
	model := GetConfigString(raw, "model")
	if model == "" {
		model = t.defaults.Model
	}

	req := llm.ResponseRequest{
		Model: model,
		Input: query,
		Tools: []llm.Tool{{
			Type:              "web_search_preview",
			SearchContextSize: size,
			UserLocation:      GetConfigMap(raw, "user_location"),
		}},
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	resp, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (*llm.ResponseResult, error) {
		return t.client.Respond(ctx, req)
	})
	if err != nil {
		return nil, t.fail("Web search failed: "+err.Error(), err)
	}

	results := resp.Text
	if i := strings.Index(results, searchResultsMarker); i >= 0 {
		results = results[i:]
	}

	citations := append([]string{}, resp.Citations...)
	for _, m := range markdownCitationRe.FindAllStringSubmatch(resp.Text, -1) {
		citations = append(citations, m[1])
	}

	return map[string]any{
		resultKey(raw, "search_results"): map[string]any{
			"query":     query,
			"results":   results,
			"citations": unique(citations),
		},
	}, nil
}

// FileSearchTask — поиск по vector store через инструмент file_search.
//
//	query: question              # ключ Context или литерал
//	vector_store_ids: store_ids  # ключ Context или список
//	max_results: 5
//	as: search_results
//
// Результат: {<as>: {query, results, citations, vector_store_ids}}.
type FileSearchTask struct {
	Base
	client LLM
	logger *slog.Logger
}

// NewFileSearchTask создаёт FileSearchTask.
func NewFileSearchTask(name string, cfg map[string]any, deps Deps) (*FileSearchTask, error) {
	base, err := NewBase(TypeFileSearch, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	if deps.LLM == nil {
		return nil, base.configErr("", "llm client is not configured")
	}
	return &FileSearchTask{Base: base, client: deps.LLM, logger: deps.logger()}, nil
}

// Description возвращает описание.
func (t *FileSearchTask) Description() string { return "file search" }

// Execute выполняет поиск по файлам.
func (t *FileSearchTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	query := textParam(fromContext(c, raw["query"], "query"), "query", "search")
	if query == "" {
		return nil, t.configErr("query", "query is required")
	}
	storeIDs := stringList(fromContext(c, raw["vector_store_ids"], "vector_store_ids"))
	if len(storeIDs) == 0 {
		return nil, t.configErr("vector_store_ids", "vector_store_ids are required")
	}

	maxResults := GetConfigInt(raw, "max_results")
	if maxResults <= 0 {
		maxResults = defaultFileSearchResults
	}
	model := GetConfigString(raw, "model")
	if model == "" {
		model = t.defaults.Model
	}

	req := llm.ResponseRequest{
		Model: model,
		Input: query,
		Tools: []llm.Tool{{
			Type:           "file_search",
			VectorStoreIDs: storeIDs,
			MaxNumResults:  maxResults,
		}},
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	resp, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (*llm.ResponseResult, error) {
		return t.client.Respond(ctx, req)
	})
	if err != nil {
		return nil, t.fail("File search failed: "+err.Error(), err)
	}

	citations := append([]string{}, resp.Citations...)
	for _, m := range sourceCitationRe.FindAllStringSubmatch(resp.Text, -1) {
		citations = append(citations, m[1])
	}
	for _, m := range numberedCitationRe.FindAllStringSubmatch(resp.Text, -1) {
		citations = append(citations, strings.TrimSpace(m[1]))
	}

	return map[string]any{
		resultKey(raw, "search_results"): map[string]any{
			"query":            query,
			"results":          resp.Text,
			"citations":        unique(citations),
			"vector_store_ids": storeIDs,
		},
	}, nil
}

// unique сохраняет порядок первых вхождений.
func unique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
