package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
)

// fakeLLM записывает запросы и отдаёт заготовленные ответы.
type fakeLLM struct {
	mu sync.Mutex

	chatReqs    []llm.ChatRequest
	chatContent string
	chatErrs    []error

	respondReqs []llm.ResponseRequest
	respond     *llm.ResponseResult

	imageReq llm.ImageRequest
	files    []llm.File
	uploaded []string
	stores   []llm.VectorStore
	deleted  []string
}

func (f *fakeLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatReqs = append(f.chatReqs, req)
	if len(f.chatErrs) > 0 {
		err := f.chatErrs[0]
		f.chatErrs = f.chatErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &llm.ChatResponse{Content: f.chatContent, Model: req.Model}, nil
}

func (f *fakeLLM) Respond(_ context.Context, req llm.ResponseRequest) (*llm.ResponseResult, error) {
	f.respondReqs = append(f.respondReqs, req)
	return f.respond, nil
}

func (f *fakeLLM) GenerateImage(_ context.Context, req llm.ImageRequest) (*llm.Image, error) {
	f.imageReq = req
	return &llm.Image{URL: "https://img.example/1.png"}, nil
}

func (f *fakeLLM) ListFiles(context.Context, string) ([]llm.File, error) {
	return f.files, nil
}

func (f *fakeLLM) UploadFile(_ context.Context, up llm.FileUpload) (*llm.File, error) {
	data, _ := io.ReadAll(up.Content)
	f.uploaded = append(f.uploaded, string(data))
	return &llm.File{ID: "file-new", Filename: up.Filename, Bytes: int64(len(data))}, nil
}

func (f *fakeLLM) CreateVectorStore(_ context.Context, name string, ids []string) (*llm.VectorStore, error) {
	vs := llm.VectorStore{ID: "vs_1", Name: name, FileCounts: llm.FileCounts{Total: len(ids)}}
	f.stores = append(f.stores, vs)
	return &vs, nil
}

func (f *fakeLLM) AddVectorStoreFiles(_ context.Context, id string, _ []string) (*llm.FileBatch, error) {
	return &llm.FileBatch{ID: "batch_1", VectorStoreID: id}, nil
}

func (f *fakeLLM) DeleteVectorStore(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeLLM) ListVectorStores(context.Context) ([]llm.VectorStore, error) {
	return f.stores, nil
}

// LLM Tests

func TestLLMTask_Prompt(t *testing.T) {
	client := &fakeLLM{chatContent: "Bonjour"}
	task, err := NewLLMTask("greet", map[string]any{
		"prompt": "Hello {{name}} and {{user.name}}",
		"model":  "gpt-4o",
	}, Deps{LLM: client})
	require.NoError(t, err)

	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"name": "Alice"}))
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", out)

	require.Len(t, client.chatReqs, 1)
	req := client.chatReqs[0]
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, 1000, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 1e-9)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "Hello Alice and [MISSING: user.name]"}}, req.Messages)
}

func TestLLMTask_MessagesAndFormat(t *testing.T) {
	client := &fakeLLM{chatContent: `{"score": 9}`}
	task, err := NewLLMTask("rate", map[string]any{
		"system": "Be strict",
		"messages": []any{
			map[string]any{"role": "user", "content": "Rate {{item}}"},
		},
		"format": "json",
	}, Deps{LLM: client})
	require.NoError(t, err)

	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"item": "pizza"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"score": float64(9)}, out)

	msgs := client.chatReqs[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "Rate pizza", msgs[1].Content)
	assert.Equal(t, DefaultDefaults.Model, client.chatReqs[0].Model)
}

func TestLLMTask_Validation(t *testing.T) {
	_, err := NewLLMTask("x", map[string]any{}, Deps{LLM: &fakeLLM{}})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = NewLLMTask("x", map[string]any{"prompt": "p", "format": "xml"}, Deps{LLM: &fakeLLM{}})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestLLMTask_APIError(t *testing.T) {
	retryInitialDelay = time.Millisecond
	defer func() { retryInitialDelay = time.Second }()

	apiErr := &llm.APIError{StatusCode: http.StatusServiceUnavailable, Body: "overloaded"}
	client := &fakeLLM{chatErrs: []error{apiErr, apiErr}}
	task, err := NewLLMTask("x", map[string]any{"prompt": "p", "retries": 1}, Deps{LLM: client})
	require.NoError(t, err)

	_, err = task.Execute(context.Background(), engine.NewContext(nil))
	var te *engine.TaskError
	require.ErrorAs(t, err, &te)
	assert.True(t, strings.HasPrefix(te.Message, "LLM API error:"))
	assert.Len(t, client.chatReqs, 2)
}

func TestLLMCompletionTask(t *testing.T) {
	client := &fakeLLM{chatContent: "done"}
	task, err := NewLLMCompletionTask("complete", nil, Deps{LLM: client})
	require.NoError(t, err)

	c := engine.NewContext(map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
		"model":    "gpt-4o-mini",
	})
	out, err := task.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": "done"}, out)
	assert.Equal(t, "gpt-4o-mini", client.chatReqs[0].Model)

	_, err = task.Execute(context.Background(), engine.NewContext(nil))
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

// Search Tests

func TestWebSearchTask(t *testing.T) {
	client := &fakeLLM{respond: &llm.ResponseResult{
		Text:      "Intro [Search results] Go 1.24 [1](https://go.dev/doc) and [2](https://go.dev/blog)",
		Citations: []string{"https://go.dev/doc"},
	}}
	task, err := NewWebSearchTask("search", map[string]any{
		"search_context_size": "high",
		"as":                  "news",
	}, Deps{LLM: client})
	require.NoError(t, err)

	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"query": "go release"}))
	require.NoError(t, err)

	news := out.(map[string]any)["news"].(map[string]any)
	assert.Equal(t, "go release", news["query"])
	assert.True(t, strings.HasPrefix(news["results"].(string), "[Search results]"))
	assert.Equal(t, []string{"https://go.dev/doc", "https://go.dev/blog"}, news["citations"])

	tool := client.respondReqs[0].Tools[0]
	assert.Equal(t, "web_search_preview", tool.Type)
	assert.Equal(t, "high", tool.SearchContextSize)
}

func TestWebSearchTask_MissingQuery(t *testing.T) {
	task, err := NewWebSearchTask("search", nil, Deps{LLM: &fakeLLM{}})
	require.NoError(t, err)

	_, err = task.Execute(context.Background(), engine.NewContext(nil))
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestFileSearchTask(t *testing.T) {
	client := &fakeLLM{respond: &llm.ResponseResult{
		Text: "Term is 12 months [Source: contract.pdf]",
	}}
	task, err := NewFileSearchTask("lookup", map[string]any{
		"query":            "What is the term?",
		"vector_store_ids": "stores",
		"max_results":      3,
	}, Deps{LLM: client})
	require.NoError(t, err)

	c := engine.NewContext(map[string]any{"stores": []any{"vs_1", "vs_2"}})
	out, err := task.Execute(context.Background(), c)
	require.NoError(t, err)

	res := out.(map[string]any)["search_results"].(map[string]any)
	assert.Equal(t, "What is the term?", res["query"])
	assert.Equal(t, []string{"contract.pdf"}, res["citations"])
	assert.Equal(t, []string{"vs_1", "vs_2"}, res["vector_store_ids"])

	tool := client.respondReqs[0].Tools[0]
	assert.Equal(t, "file_search", tool.Type)
	assert.Equal(t, 3, tool.MaxNumResults)
}

// File Tests

func TestFileUploadTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	t.Run("uploads new file", func(t *testing.T) {
		client := &fakeLLM{}
		task, err := NewFileUploadTask("upload", map[string]any{"file_path": "doc"}, Deps{LLM: client})
		require.NoError(t, err)

		out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"doc": path}))
		require.NoError(t, err)

		res := out.(map[string]any)
		assert.Equal(t, "file-new", res["file_id"])
		assert.Equal(t, "report.txt", res["filename"])
		assert.Equal(t, false, res["existing"])
		assert.Equal(t, []string{"hello"}, client.uploaded)
	})

	t.Run("reuses existing file", func(t *testing.T) {
		client := &fakeLLM{files: []llm.File{{ID: "file-old", Filename: "report.txt", Bytes: 5}}}
		task, err := NewFileUploadTask("upload", map[string]any{"as": "doc_id"}, Deps{LLM: client})
		require.NoError(t, err)

		out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"file_path": path}))
		require.NoError(t, err)

		res := out.(map[string]any)
		assert.Equal(t, "file-old", res["doc_id"])
		assert.Equal(t, true, res["existing"])
		assert.Empty(t, client.uploaded)
	})

	t.Run("missing file", func(t *testing.T) {
		task, _ := NewFileUploadTask("upload", nil, Deps{LLM: &fakeLLM{}})
		_, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"file_path": "/nope"}))
		var te *engine.TaskError
		require.ErrorAs(t, err, &te)
		assert.Contains(t, te.Message, "File not found")
	})
}

func TestVectorStoreTask(t *testing.T) {
	client := &fakeLLM{}
	deps := Deps{LLM: client}
	c := engine.NewContext(map[string]any{"file_ids": []any{"f1", "f2"}, "vector_store_id": "vs_1"})

	create, err := NewVectorStoreTask("create", map[string]any{"name": "contracts"}, deps)
	require.NoError(t, err)
	out, err := create.Execute(context.Background(), c)
	require.NoError(t, err)
	res := out.(map[string]any)["vector_store_result"].(map[string]any)
	assert.Equal(t, "vs_1", res["vector_store_id"])
	assert.Equal(t, 2, res["file_count"])
	assert.Equal(t, VectorStoreCreate, res["operation"])

	add, _ := NewVectorStoreTask("add", map[string]any{"operation": "add_file"}, deps)
	out, err = add.Execute(context.Background(), c)
	require.NoError(t, err)
	res = out.(map[string]any)["vector_store_result"].(map[string]any)
	assert.Equal(t, "batch_1", res["batch_id"])
	assert.Equal(t, 2, res["added_files"])

	list, _ := NewVectorStoreTask("list", map[string]any{"operation": "list", "as": "stores"}, deps)
	out, err = list.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, out.(map[string]any)["stores"].(map[string]any)["total"])

	del, _ := NewVectorStoreTask("del", map[string]any{"operation": "delete"}, deps)
	_, err = del.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"vs_1"}, client.deleted)

	_, err = NewVectorStoreTask("bad", map[string]any{"operation": "purge"}, deps)
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

// Image Tests

func TestImageGenerationTask(t *testing.T) {
	client := &fakeLLM{}
	task, err := NewImageGenerationTask("draw", map[string]any{"prompt": "A poster for {{event}}"}, Deps{LLM: client})
	require.NoError(t, err)
	assert.Equal(t, "Image generation: 1024x1024", task.Description())

	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"event": "GopherCon"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"url":            "https://img.example/1.png",
		"revised_prompt": "A poster for GopherCon",
	}, out)
	assert.Equal(t, "dall-e-3", client.imageReq.Model)
	assert.Equal(t, "standard", client.imageReq.Quality)

	_, err = NewImageGenerationTask("draw", nil, Deps{LLM: client})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

// Markdown Tests

func TestMarkdownTask_Summarize(t *testing.T) {
	client := &fakeLLM{chatContent: "- short"}
	task, err := NewMarkdownTask("sum", map[string]any{"content": "draft"}, Deps{LLM: client})
	require.NoError(t, err)

	c := engine.NewContext(map[string]any{"draft": "# Title\n\nLong text"})
	out, err := task.Execute(context.Background(), c)
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, "- short", res["processed_content"])
	assert.Equal(t, MarkdownSummarize, res["operation"])
	assert.Equal(t, 18, res["original_length"])
	assert.Equal(t, 500, client.chatReqs[0].MaxTokens)
	assert.Contains(t, client.chatReqs[0].Messages[0].Content, "Summarize the following markdown")
}

func TestMarkdownTask_ChangeTone(t *testing.T) {
	client := &fakeLLM{chatContent: "Hey!"}
	task, err := NewMarkdownTask("tone", map[string]any{
		"operation": "change_tone",
		"tone":      "casual",
	}, Deps{LLM: client})
	require.NoError(t, err)

	_, err = task.Execute(context.Background(), engine.NewContext(map[string]any{"content": "Greetings."}))
	require.NoError(t, err)
	assert.Contains(t, client.chatReqs[0].Messages[0].Content, "to be casual")

	_, err = NewMarkdownTask("tone", map[string]any{"operation": "change_tone", "tone": "angry"}, Deps{LLM: client})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestMarkdownTask_Render(t *testing.T) {
	// render работает без LLM клиента
	task, err := NewMarkdownTask("show", map[string]any{"operation": "render", "as": "pretty"}, Deps{})
	require.NoError(t, err)

	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"content": "# Report\n\n**done**"}))
	require.NoError(t, err)

	pretty := out.(map[string]any)["pretty"].(string)
	assert.Contains(t, pretty, "Report")
	assert.Contains(t, pretty, "done")
}

// Record Tests

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

type fakeDB struct {
	sql  string
	args []any
	row  fakeRow
}

func (d *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.sql = sql
	d.args = args
	return d.row
}

func TestRecordFindTask(t *testing.T) {
	db := &fakeDB{row: fakeRow{data: []byte(`{"id": 42, "name": "Ann"}`)}}
	task, err := NewRecordFindTask("load", map[string]any{"model": "users", "id": "user_id"}, Deps{DB: db})
	require.NoError(t, err)

	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"user_id": 42}))
	require.NoError(t, err)

	user := out.(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "Ann", user["name"])
	assert.Equal(t, `SELECT row_to_json(t) FROM "users" AS t WHERE t."id" = $1 LIMIT 1`, db.sql)
	assert.Equal(t, []any{42}, db.args)
}

func TestRecordFindTask_NotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	task, _ := NewRecordFindTask("load", map[string]any{"model": "users", "id": "user_id"}, Deps{DB: db})

	_, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"user_id": 7}))
	var te *engine.TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Record not found: users#7", te.Message)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
}

func TestRecordScopeTask(t *testing.T) {
	db := &fakeDB{row: fakeRow{data: []byte(`[{"id": 1}, {"id": 2}]`)}}
	task, err := NewRecordScopeTask("orders", map[string]any{
		"model": "orders",
		"scope": map[string]any{"status": "active", "user_id": ":user_id", "region": ":region"},
		"order": "created_at desc",
		"limit": 10,
	}, Deps{DB: db})
	require.NoError(t, err)

	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"user_id": 5}))
	require.NoError(t, err)

	orders := out.(map[string]any)["orders"].([]any)
	assert.Len(t, orders, 2)
	assert.Equal(t,
		`SELECT coalesce(json_agg(row_to_json(r)), '[]'::json) FROM (SELECT * FROM "orders" AS t WHERE t."status" = $1 AND t."user_id" = $2 ORDER BY "created_at" DESC LIMIT 10) AS r`,
		db.sql)
	assert.Equal(t, []any{"active", 5}, db.args)
}

func TestRecordTasks_Validation(t *testing.T) {
	db := &fakeDB{}
	_, err := NewRecordScopeTask("x", map[string]any{"model": "users; drop table"}, Deps{DB: db})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = NewRecordScopeTask("x", map[string]any{"model": "users", "order": "1; drop"}, Deps{DB: db})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = NewRecordFindTask("x", map[string]any{"model": "users"}, Deps{DB: db})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = NewRecordFindTask("x", map[string]any{"model": "users", "id": "id"}, Deps{})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

// Mailer Tests

type fakeMailer struct {
	mu   sync.Mutex
	sent []Mail
	err  error
	done chan struct{}
}

func (m *fakeMailer) Send(_ context.Context, msg Mail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	if m.done != nil {
		close(m.done)
	}
	return "<id@test>", m.err
}

func TestMailerTask(t *testing.T) {
	mailer := &fakeMailer{}
	task, err := NewMailerTask("notify", map[string]any{
		"to":      "email",
		"subject": "Report for {{name}}",
		"body":    "{{summary}}",
	}, Deps{Mailer: mailer})
	require.NoError(t, err)

	c := engine.NewContext(map[string]any{"email": "ann@example.com", "name": "Ann", "summary": "All good"})
	out, err := task.Execute(context.Background(), c)
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, true, res["mail_sent"])
	assert.Equal(t, "<id@test>", res["message_id"])
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"ann@example.com"}, mailer.sent[0].To)
	assert.Equal(t, "Report for Ann", mailer.sent[0].Subject)
	assert.Equal(t, "All good", mailer.sent[0].Body)
}

func TestMailerTask_DeliverLater(t *testing.T) {
	mailer := &fakeMailer{done: make(chan struct{})}
	task, err := NewMailerTask("notify", map[string]any{
		"to":              []any{"a@example.com"},
		"delivery_method": "deliver_later",
	}, Deps{Mailer: mailer})
	require.NoError(t, err)

	out, err := task.Execute(context.Background(), engine.NewContext(nil))
	require.NoError(t, err)
	assert.Equal(t, DeliverLater, out.(map[string]any)["delivery_method"])
	<-mailer.done
}

func TestMailerTask_Failure(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("connection refused")}
	task, _ := NewMailerTask("notify", map[string]any{"to": "a@example.com"}, Deps{Mailer: mailer})

	_, err := task.Execute(context.Background(), engine.NewContext(nil))
	var te *engine.TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Email delivery failed: connection refused", te.Message)
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("bot@example.com", "<1@x>", Mail{
		To: []string{"a@example.com"}, Cc: []string{"b@example.com"},
		Subject: "Hi", Body: "line1\nline2", HTML: true,
	}))
	assert.Contains(t, msg, "Cc: b@example.com\r\n")
	assert.Contains(t, msg, "Message-ID: <1@x>\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8")
	assert.True(t, strings.HasSuffix(msg, "line1\r\nline2"))
}

// Cron Tests

type fakeScheduler struct {
	spec, workflow string
	input          map[string]any
}

func (s *fakeScheduler) Schedule(_ context.Context, spec, workflow string, input map[string]any) (string, error) {
	s.spec, s.workflow, s.input = spec, workflow, input
	return "job-1", nil
}

func TestCronTask(t *testing.T) {
	sched := &fakeScheduler{}
	task, err := NewCronTask("plan", map[string]any{
		"schedule":      "0 9 * * *",
		"workflow":      "daily_report",
		"initial_input": "report_input",
	}, Deps{Scheduler: sched})
	require.NoError(t, err)

	c := engine.NewContext(map[string]any{"report_input": map[string]any{"team": "core"}})
	out, err := task.Execute(context.Background(), c)
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, "job-1", res["job_id"])
	assert.Equal(t, "scheduled", res["status"])
	assert.Equal(t, "daily_report", sched.workflow)
	assert.Equal(t, map[string]any{"team": "core"}, sched.input)

	missing, _ := NewCronTask("plan", map[string]any{"workflow": "x"}, Deps{Scheduler: sched})
	_, err = missing.Execute(context.Background(), engine.NewContext(nil))
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

// UI Push Tests

type fakeBroadcaster struct {
	channel, payload string
}

func (b *fakeBroadcaster) Publish(_ context.Context, channel, payload string) error {
	b.channel, b.payload = channel, payload
	return nil
}

func TestUIPushTask(t *testing.T) {
	b := &fakeBroadcaster{}
	task, err := NewUIPushTask("push", map[string]any{
		"target":  "result_{{id}}",
		"action":  "append",
		"content": "<p>{{summary}} {{unknown}}</p>",
		"channel": "run:{{id}}",
	}, Deps{Broadcaster: b})
	require.NoError(t, err)

	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"id": 3, "summary": "ok"}))
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, "result_3", res["target"])
	assert.Equal(t, "<p>ok {{unknown}}</p>", res["content"])
	assert.Equal(t, "run:3", b.channel)
	assert.Equal(t, `<turbo-stream action="append" target="result_3"><template><p>ok {{unknown}}</p></template></turbo-stream>`, b.payload)
}

func TestUIPushTask_Validation(t *testing.T) {
	_, err := NewUIPushTask("push", map[string]any{"target": "x", "action": "explode", "content": "c"}, Deps{})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = NewUIPushTask("push", map[string]any{"target": "x"}, Deps{})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	remove, err := NewUIPushTask("push", map[string]any{"target": "x", "action": "remove"}, Deps{})
	require.NoError(t, err)
	out, err := remove.Execute(context.Background(), engine.NewContext(nil))
	require.NoError(t, err)
	assert.Equal(t, `<turbo-stream action="remove" target="x"></turbo-stream>`, out.(map[string]any)["html"])
}

func TestOutputsAreSerializable(t *testing.T) {
	client := &fakeLLM{respond: &llm.ResponseResult{Text: "x"}}
	task, _ := NewWebSearchTask("s", nil, Deps{LLM: client})
	out, err := task.Execute(context.Background(), engine.NewContext(map[string]any{"query": "q"}))
	require.NoError(t, err)

	_, err = json.Marshal(out)
	assert.NoError(t, err)
}
