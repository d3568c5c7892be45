package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// Параметры генерации по умолчанию.
const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
	logPreviewLen      = 500
)

// Форматы разбора ответа модели.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatInteger = "integer"
	FormatFloat   = "float"
	FormatBoolean = "boolean"
)

var (
	leadingIntRe   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloatRe = regexp.MustCompile(`^[+-]?\d+(\.\d+)?([eE][+-]?\d+)?`)
	codeFenceRe    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

type llmConfig struct {
	Prompt      string        `mapstructure:"prompt"`
	System      string        `mapstructure:"system"`
	Messages    []llm.Message `mapstructure:"messages"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature *float64      `mapstructure:"temperature"`
	Format      string        `mapstructure:"format"`
}

// LLMTask — запрос к chat модели с шаблоном промпта.
//
//	prompt: "Summarize: {{text}}"        # или messages: [{role, content}]
//	system: "You are concise"
//	model: gpt-4
//	max_tokens: 1000
//	temperature: 0.7
//	format: json | integer | float | boolean
//
// Отсутствующие ключи шаблона заменяются на "[MISSING: key]".
type LLMTask struct {
	Base
	client LLM
	logger *slog.Logger
}

// NewLLMTask создаёт LLMTask.
func NewLLMTask(name string, cfg map[string]any, deps Deps) (*LLMTask, error) {
	base, err := NewBase(TypeLLM, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	if cfg["prompt"] == nil && cfg["messages"] == nil {
		return nil, base.configErr("prompt", "llm task requires 'prompt' or 'messages'")
	}
	switch f := GetConfigString(cfg, "format"); f {
	case "", FormatText, FormatJSON, FormatInteger, FormatFloat, FormatBoolean:
	default:
		return nil, base.configErr("format", fmt.Sprintf("unsupported format %q", f))
	}
	if deps.LLM == nil {
		return nil, base.configErr("", "llm client is not configured")
	}
	return &LLMTask{Base: base, client: deps.LLM, logger: deps.logger()}, nil
}

// Description возвращает модель.
func (t *LLMTask) Description() string {
	model := GetConfigString(t.config, "model")
	if model == "" {
		model = t.defaults.Model
	}
	return "LLM task: " + model
}

// Execute рендерит промпт, вызывает модель и разбирает ответ по format.
func (t *LLMTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	var cfg llmConfig
	if err := decodeConfig(t.name, raw, &cfg); err != nil {
		return nil, err
	}

	req := t.chatRequest(cfg)
	logger := telemetry.FromContext(ctx)
	logger.Info("executing llm task",
		"task", t.name,
		"model", req.Model,
		"prompt", preview(joinContent(req.Messages)),
	)

	content, err := t.chat(ctx, req)
	if err != nil {
		return nil, err
	}

	logger.Info("llm task completed", "task", t.name, "response", preview(content))
	return parseFormat(ctx, cfg.Format, content), nil
}

func (t *LLMTask) chatRequest(cfg llmConfig) llm.ChatRequest {
	var messages []llm.Message
	if cfg.System != "" {
		messages = append(messages, llm.Message{Role: "system", Content: cfg.System})
	}
	if len(cfg.Messages) > 0 {
		messages = append(messages, cfg.Messages...)
	} else {
		messages = append(messages, llm.Message{Role: "user", Content: cfg.Prompt})
	}

	req := llm.ChatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if req.Model == "" {
		req.Model = t.defaults.Model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if req.Temperature == nil {
		temp := defaultTemperature
		req.Temperature = &temp
	}
	return req
}

// chat вызывает модель с таймаутом и повторами.
func (t *LLMTask) chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	resp, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (*llm.ChatResponse, error) {
		return t.client.Chat(ctx, req)
	})
	if err != nil {
		return "", t.fail("LLM API error: "+err.Error(), err)
	}
	return resp.Content, nil
}

// LLMCompletionTask — chat запрос, параметры которого берутся из Context.
//
// Ключи Context: prompt или messages, model, temperature, max_tokens.
// Значения из конфигурации шага имеют приоритет. Результат: {content}.
type LLMCompletionTask struct {
	LLMTask
}

// NewLLMCompletionTask создаёт LLMCompletionTask.
func NewLLMCompletionTask(name string, cfg map[string]any, deps Deps) (*LLMCompletionTask, error) {
	base, err := NewBase(TypeLLMCompletion, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	if deps.LLM == nil {
		return nil, base.configErr("", "llm client is not configured")
	}
	return &LLMCompletionTask{LLMTask{Base: base, client: deps.LLM, logger: deps.logger()}}, nil
}

// Description возвращает описание.
func (t *LLMCompletionTask) Description() string { return "LLM completion" }

// Execute собирает запрос из Context и конфигурации.
func (t *LLMCompletionTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, 5)
	for _, key := range []string{"prompt", "messages", "model", "temperature", "max_tokens"} {
		if v, ok := raw[key]; ok && v != nil {
			merged[key] = v
		} else if v := c.Get(key); v != nil {
			merged[key] = v
		}
	}
	if merged["prompt"] == nil && merged["messages"] == nil {
		return nil, t.configErr("prompt", "context has neither 'prompt' nor 'messages'")
	}

	var cfg llmConfig
	if err := decodeConfig(t.name, merged, &cfg); err != nil {
		return nil, err
	}

	content, err := t.chat(ctx, t.chatRequest(cfg))
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": content}, nil
}

// parseFormat приводит ответ модели к нужному типу.
// Невалидный JSON возвращается строкой с предупреждением в лог.
func parseFormat(ctx context.Context, format, response string) any {
	trimmed := strings.TrimSpace(response)

	switch format {
	case FormatJSON:
		body := trimmed
		if m := codeFenceRe.FindStringSubmatch(body); m != nil {
			body = m[1]
		}
		var out any
		if err := json.Unmarshal([]byte(body), &out); err != nil {
			telemetry.FromContext(ctx).Warn("failed to parse JSON response", "error", err)
			return response
		}
		return out

	case FormatInteger:
		n, _ := strconv.Atoi(leadingIntRe.FindString(trimmed))
		return n

	case FormatFloat:
		f, _ := strconv.ParseFloat(leadingFloatRe.FindString(trimmed), 64)
		return f

	case FormatBoolean:
		return strings.EqualFold(trimmed, "true")

	default:
		return response
	}
}

func joinContent(messages []llm.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

func preview(s string) string {
	if len(s) <= logPreviewLen {
		return s
	}
	return s[:logPreviewLen] + "..."
}
