package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL})
}

func TestChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4", req.Model)
		assert.Equal(t, "Hello Ada", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4","choices":[{"message":{"role":"assistant","content":"Hi!"},"finish_reason":"stop"}],"usage":{"total_tokens":5}}`))
	})

	resp, err := c.Chat(context.Background(), ChatRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: "user", Content: "Hello Ada"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi!", resp.Content)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestChat_APIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := c.Chat(context.Background(), ChatRequest{Model: "m"})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestClient_NoAPIKey(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
	assert.False(t, IsRetryable(err))
}

func TestRespond_Citations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		var req ResponseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "web_search_preview", req.Tools[0].Type)

		_, _ = w.Write([]byte(`{"output":[
			{"type":"web_search_call"},
			{"type":"message","content":[{"type":"output_text","text":"Go 1.24 is out.","annotations":[{"type":"url_citation","url":"https://go.dev/blog"}]}]}
		]}`))
	})

	res, err := c.Respond(context.Background(), ResponseRequest{
		Model: "gpt-4",
		Input: "latest go",
		Tools: []Tool{{Type: "web_search_preview"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Go 1.24 is out.", res.Text)
	assert.Equal(t, []string{"https://go.dev/blog"}, res.Citations)
}

func TestUploadFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "assistants", r.FormValue("purpose"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.md", hdr.Filename)
		assert.Equal(t, "text/markdown", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "# hi", string(data))

		_, _ = w.Write([]byte(`{"id":"file-1","filename":"notes.md","bytes":4}`))
	})

	file, err := c.UploadFile(context.Background(), FileUpload{
		Filename: "notes.md",
		Purpose:  "assistants",
		Content:  strings.NewReader("# hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "file-1", file.ID)
}

func TestVectorStores(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/vector_stores":
			_, _ = w.Write([]byte(`{"id":"vs_1","name":"docs","file_counts":{"total":2}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/vector_stores/vs_1/file_batches":
			_, _ = w.Write([]byte(`{"id":"batch_1","vector_store_id":"vs_1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/vector_stores":
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"vs_1"},{"id":"vs_2"}]}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/vector_stores/vs_1":
			_, _ = w.Write([]byte(`{"deleted":true}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	store, err := c.CreateVectorStore(ctx, "docs", []string{"f1", "f2"})
	require.NoError(t, err)
	assert.Equal(t, 2, store.FileCounts.Total)

	batch, err := c.AddVectorStoreFiles(ctx, "vs_1", []string{"f3"})
	require.NoError(t, err)
	assert.Equal(t, "batch_1", batch.ID)

	stores, err := c.ListVectorStores(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 2)

	require.NoError(t, c.DeleteVectorStore(ctx, "vs_1"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentTypeFor("a.PDF"))
	assert.Equal(t, "text/csv", ContentTypeFor("a.csv"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a.bin"))
}
