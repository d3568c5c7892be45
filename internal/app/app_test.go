package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/agentflow/internal/config"
)

const workflowsYAML = `
workflows:
  - name: greet
    steps:
      - name: shape
        uses: transform
        with:
          mappings:
            greeting: "Hello {{.name}}"
      - name: loud
        uses: direct_handler
        with:
          method: shape
        if: loud
`

func newTestApp(t *testing.T, reg prometheus.Registerer) *App {
	t.Helper()

	path := filepath.Join(t.TempDir(), "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(workflowsYAML), 0o600))

	cfg := config.Default()
	cfg.Workflows.Files = []string{path}
	cfg.Worker.Store = StoreNone

	a, err := New(context.Background(), cfg, nil, Options{Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNew_LoadsWorkflows(t *testing.T) {
	a := newTestApp(t, nil)

	assert.Equal(t, []string{"greet"}, a.Catalog.Names())
	assert.True(t, a.Registry.Has("llm"))
	assert.Nil(t, a.Store)
	assert.Nil(t, a.Client)
	assert.Nil(t, a.Scheduler)
	assert.Empty(t, a.Locator.Kinds())
}

func TestApp_RunSync(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newTestApp(t, reg)

	result, err := a.Orchestrator.ExecuteType(context.Background(), "greet",
		a.NewContext(map[string]any{"name": "Ann", "loud": true}), nil)
	require.NoError(t, err)
	require.True(t, result.Completed(), result.ErrorMessage())
	assert.Equal(t, map[string]any{"greeting": "Hello Ann"}, result.OutputFor("shape"))
	assert.Len(t, result.Trace, 2)

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "agentflow_workflow_runs_total"))
}

func TestApp_RunLaterWithoutQueue(t *testing.T) {
	a := newTestApp(t, nil)

	_, err := a.RunLater(context.Background(), "greet", nil)
	assert.ErrorIs(t, err, ErrNoQueue)

	_, err = (&lateEnqueuer{}).RunLater(context.Background(), "greet", nil)
	assert.ErrorIs(t, err, ErrNoQueue)
}

func TestNew_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.Store = "memcached"
	_, err := New(context.Background(), cfg, nil, Options{})
	assert.ErrorContains(t, err, "unknown execution store")

	cfg = config.Default()
	cfg.Worker.Store = StoreNone
	cfg.Workflows.Files = []string{filepath.Join(t.TempDir(), "missing.yaml")}
	_, err = New(context.Background(), cfg, nil, Options{})
	assert.ErrorContains(t, err, "load workflows")
}
