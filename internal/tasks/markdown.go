package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
)

// Операции markdown задачи.
const (
	MarkdownSummarize        = "summarize"
	MarkdownExpand           = "expand"
	MarkdownChangeTone       = "change_tone"
	MarkdownFormatTable      = "format_table"
	MarkdownExtractKeyPoints = "extract_key_points"
	MarkdownTranslate        = "translate"
	MarkdownRender           = "render"
)

const (
	defaultMarkdownModel    = "gpt-4o-mini"
	defaultMarkdownLength   = 1000
	defaultMarkdownLanguage = "Spanish"
	defaultMarkdownStyle    = "notty"
	defaultMarkdownWrap     = 80
)

var markdownTones = map[string]bool{
	"formal": true, "casual": true, "technical": true, "business": true, "friendly": true,
}

// Инструкции для LLM операций: что сделать и как оформить ответ.
var markdownInstructions = map[string][2]string{
	MarkdownSummarize: {
		"Summarize the following markdown content concisely.",
		"Provide a clear summary in markdown format, highlighting key points.",
	},
	MarkdownExpand: {
		"Expand on the following markdown content.",
		"Provide detailed explanations and additional context while maintaining markdown format.",
	},
	MarkdownChangeTone: {
		"Change the tone of the following markdown content to be %s.",
		"Maintain the markdown structure and key information while adjusting the tone.",
	},
	MarkdownFormatTable: {
		"Convert the following markdown content into a well-formatted table.",
		"Create a clear markdown table that presents the information effectively.",
	},
	MarkdownExtractKeyPoints: {
		"Extract the key points from the following markdown content.",
		"Return the main points as a bulleted markdown list.",
	},
	MarkdownTranslate: {
		"Translate the following markdown content to %s.",
		"Maintain markdown formatting and structure in the translation.",
	},
}

// MarkdownTask — обработка markdown текста.
//
//	content: draft            # ключ Context или литерал, по умолчанию ключ content
//	operation: summarize      # expand, change_tone, format_table,
//	                          # extract_key_points, translate, render
//	tone: formal              # для change_tone
//	language: Spanish         # для translate
//	max_length: 1000
//	style: notty              # стиль glamour для render
//	as: processed_content
//
// Операция render выполняется локально через glamour, остальные через LLM.
// Результат: {<as>, operation, original_length, processed_length}.
type MarkdownTask struct {
	Base
	client    LLM
	logger    *slog.Logger
	operation string
}

type markdownConfig struct {
	Tone      string `mapstructure:"tone"`
	Language  string `mapstructure:"language"`
	MaxLength int    `mapstructure:"max_length"`
	Model     string `mapstructure:"model"`
	Style     string `mapstructure:"style"`
	WordWrap  int    `mapstructure:"word_wrap"`
}

// NewMarkdownTask создаёт MarkdownTask.
func NewMarkdownTask(name string, cfg map[string]any, deps Deps) (*MarkdownTask, error) {
	base, err := NewBase(TypeMarkdown, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}

	op := GetConfigString(cfg, "operation")
	if op == "" {
		op = MarkdownSummarize
	}
	if _, ok := markdownInstructions[op]; !ok && op != MarkdownRender {
		return nil, base.configErr("operation", fmt.Sprintf("invalid operation %q", op))
	}
	if op == MarkdownChangeTone {
		tone := GetConfigString(cfg, "tone")
		if tone != "" && !markdownTones[tone] {
			return nil, base.configErr("tone", fmt.Sprintf("invalid tone %q", tone))
		}
	}
	if op != MarkdownRender && deps.LLM == nil {
		return nil, base.configErr("", "llm client is not configured")
	}

	return &MarkdownTask{Base: base, client: deps.LLM, logger: deps.logger(), operation: op}, nil
}

// Description возвращает операцию.
func (t *MarkdownTask) Description() string { return "markdown " + t.operation }

// Execute обрабатывает текст.
func (t *MarkdownTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	content := textParam(fromContext(c, raw["content"], "content"), "content", "text")
	if content == "" {
		return nil, t.configErr("content", "content is required")
	}

	cfg := markdownConfig{
		Tone:      "formal",
		Language:  defaultMarkdownLanguage,
		MaxLength: defaultMarkdownLength,
		Model:     defaultMarkdownModel,
		Style:     defaultMarkdownStyle,
		WordWrap:  defaultMarkdownWrap,
	}
	if err := decodeConfig(t.name, raw, &cfg); err != nil {
		return nil, err
	}

	var processed string
	if t.operation == MarkdownRender {
		processed, err = t.renderTerminal(content, cfg)
	} else {
		processed, err = t.process(ctx, content, cfg)
	}
	if err != nil {
		return nil, err
	}

	return map[string]any{
		resultKey(raw, "processed_content"): processed,
		"operation":                         t.operation,
		"original_length":                   utf8.RuneCountInString(content),
		"processed_length":                  utf8.RuneCountInString(processed),
	}, nil
}

func (t *MarkdownTask) process(ctx context.Context, content string, cfg markdownConfig) (string, error) {
	instr := markdownInstructions[t.operation]
	instruction := instr[0]
	switch t.operation {
	case MarkdownChangeTone:
		instruction = fmt.Sprintf(instruction, cfg.Tone)
	case MarkdownTranslate:
		instruction = fmt.Sprintf(instruction, cfg.Language)
	}

	maxTokens := cfg.MaxLength
	switch t.operation {
	case MarkdownSummarize:
		maxTokens = min(maxTokens, 500)
	case MarkdownExtractKeyPoints:
		maxTokens = min(maxTokens, 300)
	}

	prompt := fmt.Sprintf("%s\n\nContent:\n```markdown\n%s\n```\n\n%s\n\nRespond with processed markdown content only.",
		instruction, content, instr[1])

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	resp, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (*llm.ChatResponse, error) {
		return t.client.Chat(ctx, llm.ChatRequest{
			Model:     cfg.Model,
			Messages:  []llm.Message{{Role: "user", Content: prompt}},
			MaxTokens: maxTokens,
		})
	})
	if err != nil {
		return "", t.fail("Markdown processing failed: "+err.Error(), err)
	}
	if resp.Content == "" {
		return content, nil
	}
	return resp.Content, nil
}

// renderTerminal форматирует markdown для вывода в терминал.
func (t *MarkdownTask) renderTerminal(content string, cfg markdownConfig) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(cfg.Style),
		glamour.WithWordWrap(cfg.WordWrap),
	)
	if err != nil {
		return "", t.configErr("style", err.Error())
	}
	out, err := r.Render(content)
	if err != nil {
		return "", t.fail("Markdown render failed: "+err.Error(), err)
	}
	return out, nil
}
