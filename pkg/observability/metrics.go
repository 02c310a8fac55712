// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the minutes engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "minutes"

// Request and job status label values.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
	StatusTimeout  = "timeout"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Requests
	RequestsTotal  *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
	GateVerdicts   *prometheus.CounterVec
	StageSeconds   *prometheus.HistogramVec
	StageScore     *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec

	// Models
	ModelUpdatesTotal  *prometheus.CounterVec
	ModelUpdateSeconds *prometheus.HistogramVec
	DriftChecksTotal   *prometheus.CounterVec
	Drift              *prometheus.GaugeVec

	// Jobs
	JobsTotal  *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

// DefaultMetrics registers metrics with the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates and registers the metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "requests_total",
				Help:      "Total processing requests by outcome",
			},
			[]string{"status"},
		),
		RequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_seconds",
				Help:      "End-to-end processing latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		GateVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "quality_gate_verdicts_total",
				Help:      "Quality gate verdicts",
			},
			[]string{"passed"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "stage_seconds",
				Help:      "Analysis stage latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"stage", "status"},
		),
		StageScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "stage_score",
				Help:      "Analysis stage performance scores",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
			},
			[]string{"stage"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "cache_lookups_total",
				Help:      "Pattern cache lookups by namespace and result",
			},
			[]string{"namespace", "result"},
		),
		ModelUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "model_updates_total",
				Help:      "Model updates by stage and result",
			},
			[]string{"stage", "result"},
		),
		ModelUpdateSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "model_update_seconds",
				Help:      "Model update duration",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		DriftChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "drift_checks_total",
				Help:      "Drift checks by stage and whether drift was detected",
			},
			[]string{"stage", "detected"},
		),
		Drift: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "model_drift",
				Help:      "Relative shortfall of stage accuracy against its performance target",
			},
			[]string{"stage"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "jobs_total",
				Help:      "Queued processing jobs by outcome",
			},
			[]string{"status"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "queue_depth",
				Help:      "Pending processing jobs",
			},
		),
	}
}

// RecordRequest records a finished request.
func (m *Metrics) RecordRequest(status string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(status).Inc()
	m.RequestSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// RecordStage records one stage run.
func (m *Metrics) RecordStage(stage, status string, d time.Duration, score float64) {
	m.StageSeconds.WithLabelValues(stage, status).Observe(d.Seconds())
	if status == StatusSuccess {
		m.StageScore.WithLabelValues(stage).Observe(score)
	}
}

// RecordGate records a quality gate verdict.
func (m *Metrics) RecordGate(passed bool) {
	m.GateVerdicts.WithLabelValues(boolLabel(passed)).Inc()
}

// RecordCacheLookup records a pattern cache lookup.
func (m *Metrics) RecordCacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordModelUpdate records a model update outcome.
func (m *Metrics) RecordModelUpdate(stage, result string, d time.Duration) {
	m.ModelUpdatesTotal.WithLabelValues(stage, result).Inc()
	m.ModelUpdateSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordDriftCheck records a drift evaluation.
func (m *Metrics) RecordDriftCheck(stage string, drift float64, detected bool) {
	m.DriftChecksTotal.WithLabelValues(stage, boolLabel(detected)).Inc()
	m.Drift.WithLabelValues(stage).Set(drift)
}

// RecordJob records a processed job.
func (m *Metrics) RecordJob(status string) {
	m.JobsTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth sets the number of pending jobs.
func (m *Metrics) SetQueueDepth(depth int64) {
	m.QueueDepth.Set(float64(depth))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
