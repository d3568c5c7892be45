package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/repo"
	"github.com/shaiso/agentflow/internal/scheduler"
)

type fakeRuns struct {
	runs map[uuid.UUID]orchestrator.RunStats
}

func (f fakeRuns) ActiveRunsCount() int                            { return len(f.runs) }
func (f fakeRuns) ActiveRuns() map[uuid.UUID]orchestrator.RunStats { return f.runs }

type fakeExecutions map[uuid.UUID]*domain.Execution

func (f fakeExecutions) Get(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	e, ok := f[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return e, nil
}

type fakeSchedules struct {
	entries []scheduler.Entry
}

func (f *fakeSchedules) Entries() []scheduler.Entry { return f.entries }

func (f *fakeSchedules) Unschedule(id string) error {
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return scheduler.ErrScheduleNotFound
}

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Catalog == nil {
		cfg.Catalog = engine.NewCatalog(nil)
	}
	if cfg.Runs == nil {
		cfg.Runs = fakeRuns{}
	}

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux, prometheus.NewRegistry())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	runID := uuid.New()
	healthy := true
	srv := newTestServer(t, Config{
		Runs:   fakeRuns{runs: map[uuid.UUID]orchestrator.RunStats{runID: {Workflow: "w"}}},
		Health: func() map[string]bool { return map[string]bool{"rabbitmq": healthy} },
	})

	var body map[string]any
	if code := getJSON(t, srv.URL+"/healthz", &body); code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["active_runs"] != float64(1) {
		t.Errorf("unexpected body %v", body)
	}

	healthy = false
	if code := getJSON(t, srv.URL+"/healthz", nil); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when a dependency is down, got %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestActiveRuns(t *testing.T) {
	runID := uuid.New()
	srv := newTestServer(t, Config{Runs: fakeRuns{runs: map[uuid.UUID]orchestrator.RunStats{
		runID: {Workflow: "report", TotalSteps: 3, ExecutedSteps: 1, CurrentStep: "fetch", Elapsed: 2 * time.Second},
	}}})

	var body struct {
		Data  []activeRunDTO `json:"data"`
		Total int            `json:"total"`
	}
	getJSON(t, srv.URL+"/api/v1/runs/active", &body)

	if body.Total != 1 || body.Data[0].RunID != runID.String() || body.Data[0].ElapsedMs != 2000 {
		t.Errorf("unexpected runs %+v", body)
	}
}

func TestWorkflows(t *testing.T) {
	catalog := engine.NewCatalog(nil)
	catalog.MustRegister(engine.NewDefinition("report",
		engine.Step("fetch", "http", engine.Config{"url": "http://x"}),
		engine.Step("mail", "mailer", engine.Config{}, engine.If("send")),
	))
	srv := newTestServer(t, Config{Catalog: catalog})

	var list ListResponse
	getJSON(t, srv.URL+"/api/v1/workflows", &list)
	if list.Total != 1 {
		t.Errorf("expected 1 workflow, got %d", list.Total)
	}

	var one struct {
		Data struct {
			Name  string    `json:"name"`
			Steps []stepDTO `json:"steps"`
		} `json:"data"`
	}
	getJSON(t, srv.URL+"/api/v1/workflows/report", &one)
	if one.Data.Name != "report" || len(one.Data.Steps) != 2 || !one.Data.Steps[1].If || one.Data.Steps[0].If {
		t.Errorf("unexpected workflow %+v", one.Data)
	}

	if code := getJSON(t, srv.URL+"/api/v1/workflows/missing", nil); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestExecutions(t *testing.T) {
	e := domain.NewExecution("report", nil, "job-1")
	srv := newTestServer(t, Config{Executions: fakeExecutions{e.ID: e}})

	var body struct {
		Data domain.Execution `json:"data"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/executions/"+e.ID.String(), &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body.Data.JobID != "job-1" || body.Data.Status != domain.ExecutionStatusPending {
		t.Errorf("unexpected execution %+v", body.Data)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/executions/not-a-uuid", http.StatusBadRequest},
		{"/api/v1/executions/" + uuid.NewString(), http.StatusNotFound},
	}
	for _, tt := range tests {
		if code := getJSON(t, srv.URL+tt.path, nil); code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.want, code)
		}
	}

	bare := newTestServer(t, Config{})
	if code := getJSON(t, bare.URL+"/api/v1/executions/"+e.ID.String(), nil); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without store, got %d", code)
	}
}

func TestSchedules(t *testing.T) {
	schedules := &fakeSchedules{entries: []scheduler.Entry{{ID: "s1", Spec: "@daily", Workflow: "report"}}}
	srv := newTestServer(t, Config{Schedules: schedules})

	var list ListResponse
	getJSON(t, srv.URL+"/api/v1/schedules", &list)
	if list.Total != 1 {
		t.Errorf("expected 1 schedule, got %d", list.Total)
	}

	del := func(id string) int {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/schedules/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := del("s1"); code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", code)
	}
	if code := del("s1"); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestMiddleware(t *testing.T) {
	logger := newDiscardLogger()
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(ErrCodeInternalError)) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header not set")
	}
}
