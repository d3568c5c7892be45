package tasks

import (
	"context"
	"log/slog"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
	"github.com/shaiso/agentflow/internal/telemetry"
)

const (
	defaultImageSize    = "1024x1024"
	defaultImageQuality = "standard"
	imageFormatB64      = "b64_json"
)

// ImageGenerationTask — генерация изображения по промпту.
//
//	prompt: "A poster for {{event}}"
//	model: dall-e-3
//	size: 1024x1024
//	quality: standard
//	response_format: url | b64_json
//
// Результат: {url, revised_prompt} или {b64_json, revised_prompt}.
type ImageGenerationTask struct {
	Base
	client LLM
	logger *slog.Logger
}

type imageConfig struct {
	Prompt         string `mapstructure:"prompt"`
	Model          string `mapstructure:"model"`
	Size           string `mapstructure:"size"`
	Quality        string `mapstructure:"quality"`
	ResponseFormat string `mapstructure:"response_format"`
}

// NewImageGenerationTask создаёт ImageGenerationTask.
func NewImageGenerationTask(name string, cfg map[string]any, deps Deps) (*ImageGenerationTask, error) {
	base, err := NewBase(TypeImageGeneration, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	if GetConfigString(cfg, "prompt") == "" {
		return nil, base.configErr("prompt", "image generation requires 'prompt'")
	}
	if deps.LLM == nil {
		return nil, base.configErr("", "llm client is not configured")
	}
	return &ImageGenerationTask{Base: base, client: deps.LLM, logger: deps.logger()}, nil
}

// Description возвращает размер изображения.
func (t *ImageGenerationTask) Description() string {
	size := GetConfigString(t.config, "size")
	if size == "" {
		size = defaultImageSize
	}
	return "Image generation: " + size
}

// Execute генерирует изображение.
func (t *ImageGenerationTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	cfg := imageConfig{
		Model:          t.defaults.ImageModel,
		Size:           defaultImageSize,
		Quality:        defaultImageQuality,
		ResponseFormat: "url",
	}
	if err := decodeConfig(t.name, raw, &cfg); err != nil {
		return nil, err
	}

	telemetry.FromContext(ctx).Info("generating image", "task", t.name, "prompt", preview(cfg.Prompt))

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	img, err := withRetry(ctx, t.logger, t.name, t.retries, func(ctx context.Context) (*llm.Image, error) {
		return t.client.GenerateImage(ctx, llm.ImageRequest{
			Model:          cfg.Model,
			Prompt:         cfg.Prompt,
			Size:           cfg.Size,
			Quality:        cfg.Quality,
			ResponseFormat: cfg.ResponseFormat,
		})
	})
	if err != nil {
		return nil, t.fail("Image generation API error: "+err.Error(), err)
	}

	revised := img.RevisedPrompt
	if revised == "" {
		revised = cfg.Prompt
	}

	if cfg.ResponseFormat == imageFormatB64 {
		return map[string]any{"b64_json": img.B64JSON, "revised_prompt": revised}, nil
	}
	return map[string]any{"url": img.URL, "revised_prompt": revised}, nil
}
