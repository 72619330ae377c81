// Package observability provides Prometheus metrics for monitoring pipeline runs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-state-lab/internal/task"
)

// Metrics holds all Prometheus metrics of one process. Every instance owns its
// registry, so tests and embedded pipelines never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// Stage metrics
	StageRunsTotal *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	RowsWritten    *prometheus.CounterVec
	StepsTotal     *prometheus.GaugeVec
	StepsDone      *prometheus.GaugeVec
	StepErrors     *prometheus.CounterVec

	// Storage metrics
	StoreQueryDuration *prometheus.HistogramVec
	StoreQueryErrors   *prometheus.CounterVec

	// Output metrics
	TransitionsMined prometheus.Counter
	ReportsGenerated prometheus.Counter

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_state_lab"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StageRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "runs_total",
			Help:      "Total number of stage runs by status",
		}, []string{"stage", "status"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Stage execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		}, []string{"stage"}),
		RowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "rows_written_total",
			Help:      "Total number of rows written by stage",
		}, []string{"stage"}),
		StepsTotal: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "steps_total",
			Help:      "Pre-counted number of steps of the current stage run",
		}, []string{"stage"}),
		StepsDone: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "steps_done",
			Help:      "Number of steps completed in the current stage run",
		}, []string{"stage"}),
		StepErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "step_errors_total",
			Help:      "Total number of failed steps by stage",
		}, []string{"stage"}),

		StoreQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Store call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "operation"}),
		StoreQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_errors_total",
			Help:      "Total number of failed store calls",
		}, []string{"table", "operation"}),

		TransitionsMined: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transitions",
			Name:      "records_total",
			Help:      "Total number of transition records written",
		}),
		ReportsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordStageRun records a finished stage run.
func (m *Metrics) RecordStageRun(stage, status string, d time.Duration) {
	m.StageRunsTotal.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRowsWritten adds n rows to the stage counter.
func (m *Metrics) RecordRowsWritten(stage string, n int) {
	m.RowsWritten.WithLabelValues(stage).Add(float64(n))
}

// RecordStoreQuery records a store call.
func (m *Metrics) RecordStoreQuery(table, operation string, d time.Duration, err error) {
	m.StoreQueryDuration.WithLabelValues(table, operation).Observe(d.Seconds())
	if err != nil {
		m.StoreQueryErrors.WithLabelValues(table, operation).Inc()
	}
}

// RecordSuccessfulRun stamps the health gauge.
func (m *Metrics) RecordSuccessfulRun(at time.Time) {
	m.LastSuccessfulRun.Set(float64(at.Unix()))
}

// Counting resets the step gauges of a stage.
func (m *Metrics) Counting(stage string) {
	m.StepsTotal.WithLabelValues(stage).Set(0)
	m.StepsDone.WithLabelValues(stage).Set(0)
}

// StepCount sets the pre-counted total of a stage.
func (m *Metrics) StepCount(stage string, total int) {
	m.StepsTotal.WithLabelValues(stage).Set(float64(total))
}

// StepStart is a no-op; progress is recorded at step end.
func (m *Metrics) StepStart(string, int, string) {}

// StepEnd records a completed or failed step.
func (m *Metrics) StepEnd(stage string, step int, err error) {
	if err != nil {
		m.StepErrors.WithLabelValues(stage).Inc()
		return
	}
	m.StepsDone.WithLabelValues(stage).Set(float64(step + 1))
}

var _ task.Progress = (*Metrics)(nil)
