package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 * 1024
)

// ErrNoAPIKey — ключ API не настроен.
var ErrNoAPIKey = errors.New("llm api key is not configured")

// APIError — ответ API с кодом >= 400.
type APIError struct {
	StatusCode int
	Body       string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error: HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable сообщает, имеет ли смысл повторить запрос.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable определяет, временная ли ошибка.
// Сетевые ошибки и 429/5xx — временные, остальные нет.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return !errors.Is(err, ErrNoAPIKey)
}

// Config — настройки клиента.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	// HTTPClient позволяет подменить транспорт (тесты).
	HTTPClient *http.Client
}

// Client — клиент OpenAI-совместимого API.
//
// Покрывает только то, что используют задачи: chat completions,
// responses с инструментами поиска, изображения, файлы и vector stores.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// New создаёт клиент.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    httpClient,
	}
}

// doJSON выполняет запрос с JSON телом и декодирует JSON ответ в out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Chat выполняет chat completion и возвращает текст первого ответа.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var raw struct {
		Model   string `json:"model"`
		Choices []struct {
			Message      Message `json:"message"`
			FinishReason string  `json:"finish_reason"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/chat/completions", req, &raw); err != nil {
		return nil, err
	}
	if len(raw.Choices) == 0 {
		return nil, errors.New("llm returned no choices")
	}

	return &ChatResponse{
		Content:      raw.Choices[0].Message.Content,
		Model:        raw.Model,
		FinishReason: raw.Choices[0].FinishReason,
		Usage:        raw.Usage,
	}, nil
}

// Respond вызывает Responses API с инструментами (web_search_preview, file_search)
// и возвращает собранный текст ответа.
func (c *Client) Respond(ctx context.Context, req ResponseRequest) (*ResponseResult, error) {
	var raw struct {
		Output []struct {
			Type    string `json:"type"`
			Content []struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				Annotations []struct {
					Type     string `json:"type"`
					URL      string `json:"url"`
					Title    string `json:"title"`
					Filename string `json:"filename"`
					FileID   string `json:"file_id"`
				} `json:"annotations"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/responses", req, &raw); err != nil {
		return nil, err
	}

	res := &ResponseResult{}
	var text strings.Builder
	for _, item := range raw.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type != "output_text" {
				continue
			}
			text.WriteString(part.Text)
			for _, a := range part.Annotations {
				switch {
				case a.URL != "":
					res.Citations = append(res.Citations, a.URL)
				case a.Filename != "":
					res.Citations = append(res.Citations, a.Filename)
				case a.FileID != "":
					res.Citations = append(res.Citations, a.FileID)
				}
			}
		}
	}
	res.Text = text.String()
	return res, nil
}

// GenerateImage генерирует изображение.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*Image, error) {
	var raw struct {
		Data []Image `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/images/generations", req, &raw); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, errors.New("llm returned no images")
	}
	return &raw.Data[0], nil
}

// ListFiles возвращает загруженные файлы с указанным purpose.
func (c *Client) ListFiles(ctx context.Context, purpose string) ([]File, error) {
	path := "/files"
	if purpose != "" {
		path += "?" + url.Values{"purpose": {purpose}}.Encode()
	}

	var raw struct {
		Data []File `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw.Data, nil
}

// UploadFile загружает файл multipart запросом.
func (c *Client) UploadFile(ctx context.Context, upload FileUpload) (*File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("purpose", upload.Purpose); err != nil {
		return nil, err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, upload.Filename))
	header.Set("Content-Type", ContentTypeFor(upload.Filename))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var file File
	if err := c.do(req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// CreateVectorStore создаёт vector store.
func (c *Client) CreateVectorStore(ctx context.Context, name string, fileIDs []string) (*VectorStore, error) {
	in := map[string]any{"name": name}
	if len(fileIDs) > 0 {
		in["file_ids"] = fileIDs
	}

	var store VectorStore
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", in, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

// AddVectorStoreFiles добавляет файлы в vector store пакетом.
func (c *Client) AddVectorStoreFiles(ctx context.Context, storeID string, fileIDs []string) (*FileBatch, error) {
	var batch FileBatch
	path := "/vector_stores/" + storeID + "/file_batches"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"file_ids": fileIDs}, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// DeleteVectorStore удаляет vector store.
func (c *Client) DeleteVectorStore(ctx context.Context, storeID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/vector_stores/"+storeID, nil, nil)
}

// ListVectorStores возвращает список vector stores.
func (c *Client) ListVectorStores(ctx context.Context) ([]VectorStore, error) {
	var raw struct {
		Data []VectorStore `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/vector_stores", nil, &raw); err != nil {
		return nil, err
	}
	return raw.Data, nil
}

// ContentTypeFor определяет MIME тип по расширению файла.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
