package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// Healthz — liveness и состояние зависимостей.
// 503, если какая-либо зависимость недоступна.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	deps := map[string]bool{}
	if h.health != nil {
		deps = h.health()
	}

	status := http.StatusOK
	for _, ok := range deps {
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}

	active := 0
	if h.runs != nil {
		active = h.runs.ActiveRunsCount()
	}

	JSON(w, status, map[string]any{
		"status":       http.StatusText(status),
		"active_runs":  active,
		"dependencies": deps,
	})
}

type activeRunDTO struct {
	RunID         string `json:"run_id"`
	Workflow      string `json:"workflow"`
	CurrentStep   string `json:"current_step"`
	TotalSteps    int    `json:"total_steps"`
	ExecutedSteps int    `json:"executed_steps"`
	SkippedSteps  int    `json:"skipped_steps"`
	PendingSteps  int    `json:"pending_steps"`
	ElapsedMs     int64  `json:"elapsed_ms"`
}

// ListActiveRuns — GET /api/v1/runs/active
func (h *Handler) ListActiveRuns(w http.ResponseWriter, _ *http.Request) {
	runs := h.runs.ActiveRuns()

	out := make([]activeRunDTO, 0, len(runs))
	for id, s := range runs {
		out = append(out, activeRunDTO{
			RunID:         id.String(),
			Workflow:      s.Workflow,
			CurrentStep:   s.CurrentStep,
			TotalSteps:    s.TotalSteps,
			ExecutedSteps: s.ExecutedSteps,
			SkippedSteps:  s.SkippedSteps,
			PendingSteps:  s.PendingSteps,
			ElapsedMs:     s.Elapsed.Milliseconds(),
		})
	}
	slices.SortFunc(out, func(a, b activeRunDTO) int { return strings.Compare(a.RunID, b.RunID) })

	List(w, out, len(out))
}

type stepDTO struct {
	Name string `json:"name"`
	Uses string `json:"uses"`
	If   bool   `json:"conditional"`
}

func workflowDTO(def *engine.Definition) map[string]any {
	steps := make([]stepDTO, len(def.Steps))
	for i, s := range def.Steps {
		_, conditional := s.Config[engine.GuardKey]
		steps[i] = stepDTO{Name: s.Name, Uses: s.Type, If: conditional}
	}
	return map[string]any{"name": def.Name, "steps": steps}
}

// ListWorkflows — GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	names := h.catalog.Names()
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		if def, ok := h.catalog.Get(name); ok {
			out = append(out, workflowDTO(def))
		}
	}
	List(w, out, len(out))
}

// GetWorkflow — GET /api/v1/workflows/{name}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, ok := h.catalog.Get(r.PathValue("name"))
	if !ok {
		Fail(w, http.StatusNotFound, "workflow not found")
		return
	}
	Success(w, workflowDTO(def))
}

// GetExecution — GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		Fail(w, http.StatusServiceUnavailable, "execution store is not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		Fail(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	e, err := h.executions.Get(r.Context(), id)
	if HandleError(w, telemetry.FromContext(r.Context()), err, "execution not found") {
		return
	}
	Success(w, e)
}

// ListSchedules — GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, _ *http.Request) {
	if h.schedules == nil {
		Fail(w, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}
	entries := h.schedules.Entries()
	List(w, entries, len(entries))
}

// DeleteSchedule — DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if h.schedules == nil {
		Fail(w, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}
	if HandleError(w, telemetry.FromContext(r.Context()), h.schedules.Unschedule(r.PathValue("id")), "schedule not found") {
		return
	}
	NoContent(w)
}
