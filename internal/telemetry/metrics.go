package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — Prometheus метрики выполнения workflow.
//
// Реализует orchestrator.Observer: Orchestrator сообщает о каждом
// шаге и прогоне, worker — о результате обработки job.
type Metrics struct {
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	stepsSkipped *prometheus.CounterVec
	jobsTotal    *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentflow_workflow_runs_total",
			Help: "Total workflow runs by workflow and final status",
		}, []string{"workflow", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentflow_workflow_run_duration_seconds",
			Help:    "Workflow run duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"workflow"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentflow_steps_total",
			Help: "Total executed steps by task type and status",
		}, []string{"task_type", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentflow_step_duration_seconds",
			Help:    "Step execution duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),
		stepsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentflow_steps_skipped_total",
			Help: "Steps skipped by guard conditions",
		}, []string{"workflow"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentflow_jobs_total",
			Help: "Async jobs processed by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.runsTotal, m.runDuration, m.stepsTotal, m.stepDuration, m.stepsSkipped, m.jobsTotal)
	return m
}

// RunFinished учитывает завершённый прогон.
func (m *Metrics) RunFinished(workflow, status string, d time.Duration) {
	m.runsTotal.WithLabelValues(workflow, status).Inc()
	m.runDuration.WithLabelValues(workflow).Observe(d.Seconds())
}

// StepFinished учитывает выполненный шаг.
func (m *Metrics) StepFinished(taskType, status string, d time.Duration) {
	m.stepsTotal.WithLabelValues(taskType, status).Inc()
	m.stepDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

// StepSkipped учитывает пропущенный шаг.
func (m *Metrics) StepSkipped(workflow, _ string) {
	m.stepsSkipped.WithLabelValues(workflow).Inc()
}

// JobProcessed учитывает обработанный job.
// outcome: completed, failed, requeued, dead_lettered.
func (m *Metrics) JobProcessed(outcome string) {
	m.jobsTotal.WithLabelValues(outcome).Inc()
}
