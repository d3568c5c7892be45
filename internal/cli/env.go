package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/agentflow/internal/app"
	"github.com/shaiso/agentflow/internal/config"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// Env — общие флаги и ленивое создание runtime для команд.
type Env struct {
	ConfigPath string
	Files      []string
	JSON       bool
	Verbose    bool
	Offline    bool

	// в тестах подменяются
	stdout io.Writer
	stderr io.Writer
}

// Output создаёт Output по флагу --json.
func (e *Env) Output() *Output {
	if e.stdout == nil && e.stderr == nil {
		return NewOutput(e.JSON)
	}
	return newOutput(e.JSON, e.stdout, e.stderr)
}

// Logger создаёт логгер. Без --verbose пишутся только предупреждения.
func (e *Env) Logger(cfg *config.Config) *slog.Logger {
	w := e.stderr
	if w == nil {
		w = os.Stderr
	}
	level := "WARN"
	if e.Verbose {
		level = cfg.Log.Level
	}
	return telemetry.NewLogger(w, level, "text", false)
}

// Config загружает конфигурацию и добавляет файлы из --file.
func (e *Env) Config() (*config.Config, error) {
	cfg, err := config.Load(e.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Workflows.Files = append(cfg.Workflows.Files, e.Files...)
	return cfg, nil
}

// App собирает runtime.
func (e *Env) App(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if !opts.Queue {
		cfg.Worker.Store = app.StoreNone
	}
	if e.Offline {
		opts.Database, opts.Redis = false, false
	}
	return app.New(ctx, cfg, e.Logger(cfg), opts)
}

// ParseInputs разбирает KEY=VALUE пары. Значение читается как YAML скаляр:
// 42 → int, true → bool, "[1, 2]" → список.
func ParseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}

		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		if v == nil && raw != "" && raw != "null" && raw != "~" {
			v = raw
		}
		inputs[strings.TrimSpace(key)] = v
	}
	return inputs, nil
}
