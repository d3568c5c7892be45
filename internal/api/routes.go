package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты.
// Метрики отдаются из gatherer; nil — prometheus.DefaultGatherer.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.Handle("GET /api/v1/runs/active", chain(http.HandlerFunc(h.ListActiveRuns)))
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("GET /api/v1/workflows/{name}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
}
