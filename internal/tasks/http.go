package tasks

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/shaiso/agentflow/internal/engine"
)

const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// HTTPTask — HTTP запрос к внешнему API.
//
// Конфигурация:
//
//	method: POST
//	url: https://api.example.com/users/{{user_id}}
//	headers:
//	  Authorization: Bearer {{api_token}}
//	body:
//	  name: "{{name}}"
//	follow_redirects: true
//	validate_ssl: true
//
// Результат: {status_code, headers, body}. Ответ со статусом >= 400
// считается ошибкой шага.
type HTTPTask struct {
	Base
	client *http.Client
}

type httpConfig struct {
	Method          string            `mapstructure:"method"`
	URL             string            `mapstructure:"url"`
	Headers         map[string]string `mapstructure:"headers"`
	Body            any               `mapstructure:"body"`
	FollowRedirects bool              `mapstructure:"follow_redirects"`
	ValidateSSL     bool              `mapstructure:"validate_ssl"`
}

// NewHTTPTask создаёт HTTPTask.
func NewHTTPTask(name string, cfg map[string]any, deps Deps) (*HTTPTask, error) {
	base, err := NewBase(TypeHTTP, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	if GetConfigString(cfg, "url") == "" {
		return nil, base.configErr("url", "url is required")
	}
	return &HTTPTask{Base: base, client: deps.HTTPClient}, nil
}

// Description возвращает описание запроса.
func (t *HTTPTask) Description() string {
	method := strings.ToUpper(GetConfigString(t.config, "method"))
	if method == "" {
		method = http.MethodGet
	}
	return fmt.Sprintf("%s %s", method, GetConfigString(t.config, "url"))
}

// Execute выполняет HTTP запрос.
func (t *HTTPTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	cfg := httpConfig{FollowRedirects: true, ValidateSSL: true}
	if err := decodeConfig(t.name, raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	req, err := t.buildRequest(ctx, &cfg)
	if err != nil {
		return nil, t.fail(fmt.Sprintf("build request: %v", err), err)
	}

	resp, err := t.buildClient(&cfg).Do(req)
	if err != nil {
		return nil, engine.WrapTaskError(t.name, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	out, body, err := parseHTTPResponse(resp)
	if err != nil {
		return nil, t.fail(fmt.Sprintf("read response body: %v", err), err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		herr := &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
		return nil, t.fail(herr.Error(), herr)
	}

	return out, nil
}

// clientKey — вариант клиента по настройкам редиректов и TLS.
type clientKey struct {
	noRedirect bool
	insecure   bool
}

// Клиенты с собственным транспортом создаются один раз на процесс,
// чтобы пул соединений переиспользовался между запросами и прогонами.
var (
	clientsMu sync.Mutex
	clients   = make(map[clientKey]*http.Client)
)

func (t *HTTPTask) buildClient(cfg *httpConfig) *http.Client {
	key := clientKey{noRedirect: !cfg.FollowRedirects, insecure: !cfg.ValidateSSL}

	// Заданный клиент используется как есть (тесты, общий транспорт)
	if t.client != nil && !key.insecure {
		if !key.noRedirect {
			return t.client
		}
		c := *t.client
		c.CheckRedirect = noRedirect
		return &c
	}
	return sharedClient(key)
}

func sharedClient(key clientKey) *http.Client {
	clientsMu.Lock()
	defer clientsMu.Unlock()

	if c, ok := clients[key]; ok {
		return c
	}

	c := &http.Client{}
	if key.noRedirect {
		c.CheckRedirect = noRedirect
	}
	if key.insecure {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		c.Transport = tr
	}
	clients[key] = c
	return c
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func (t *HTTPTask) buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, ok := cfg.Headers["Content-Type"]; !ok {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseHTTPResponse возвращает результат шага и тело ответа строкой.
func parseHTTPResponse(resp *http.Response) (map[string]any, string, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, "", err
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, string(bodyBytes), nil
}

// HTTPError — ответ со статусом ошибки.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
