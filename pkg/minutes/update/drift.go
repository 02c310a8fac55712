package update

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// Drift monitor defaults.
const (
	DefaultDriftThreshold = 0.10
	DefaultDriftQueueSize = 64
	DefaultMinSamples     = 10
)

// DriftCheck is a request to re-evaluate stage accuracy.
type DriftCheck struct {
	RequestID string
	At        time.Time
}

// DriftReport is the evaluation of one stage.
type DriftReport struct {
	Stage      string    `json:"stage"`
	Model      string    `json:"model"`
	Accuracy   float64   `json:"accuracy"`
	Target     float64   `json:"target"`
	Drift      float64   `json:"drift"`
	Samples    int64     `json:"samples"`
	Detected   bool      `json:"detected"`
	AutoUpdate string    `json:"auto_update,omitempty"`
	At         time.Time `json:"at"`
}

// DriftMonitor compares each stage's rolling accuracy estimate with its
// performance target. Checks are queued without blocking and processed by
// Run; a full queue drops the check.
type DriftMonitor struct {
	coord      *Coordinator
	queue      chan DriftCheck
	threshold  float64
	minSamples int64
	candidates map[string]string

	publisher Publisher
	metrics   Metrics
	logger    logging.Logger

	dropped atomic.Int64
}

// DriftOption configures a DriftMonitor.
type DriftOption func(*DriftMonitor)

// WithDriftThreshold sets the relative accuracy shortfall that counts as
// drift.
func WithDriftThreshold(v float64) DriftOption {
	return func(m *DriftMonitor) {
		if v > 0 {
			m.threshold = v
		}
	}
}

// WithQueueSize bounds the number of pending checks.
func WithQueueSize(n int) DriftOption {
	return func(m *DriftMonitor) {
		if n > 0 {
			m.queue = make(chan DriftCheck, n)
		}
	}
}

// WithMinSamples sets how many processed requests a stage needs before its
// accuracy estimate is trusted.
func WithMinSamples(n int64) DriftOption {
	return func(m *DriftMonitor) { m.minSamples = n }
}

// WithCandidates sets the model each stage is switched to when drift is
// detected.
func WithCandidates(c map[string]string) DriftOption {
	return func(m *DriftMonitor) { m.candidates = c }
}

// WithDriftLogger sets the logger.
func WithDriftLogger(logger logging.Logger) DriftOption {
	return func(m *DriftMonitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewDriftMonitor creates a monitor over the coordinator's slots. It shares
// the coordinator's publisher and metrics.
func NewDriftMonitor(coord *Coordinator, opts ...DriftOption) *DriftMonitor {
	m := &DriftMonitor{
		coord:      coord,
		queue:      make(chan DriftCheck, DefaultDriftQueueSize),
		threshold:  DefaultDriftThreshold,
		minSamples: DefaultMinSamples,
		publisher:  coord.publisher,
		metrics:    coord.metrics,
		logger:     coord.logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logging.Component("drift-monitor"))
	return m
}

// Enqueue submits a check. It never blocks and reports false when the
// check was dropped.
func (m *DriftMonitor) Enqueue(check DriftCheck) bool {
	select {
	case m.queue <- check:
		return true
	default:
		m.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of checks dropped on a full queue.
func (m *DriftMonitor) Dropped() int64 {
	return m.dropped.Load()
}

// Run processes queued checks until ctx is done.
func (m *DriftMonitor) Run(ctx context.Context) error {
	m.logger.Info("Drift monitor started", logging.F("threshold", m.threshold))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Drift monitor stopped")
			return ctx.Err()
		case <-m.queue:
			m.Check(ctx)
		}
	}
}

// Check evaluates every stage once and returns the reports.
func (m *DriftMonitor) Check(ctx context.Context) []DriftReport {
	reports := make([]DriftReport, 0, len(types.Stages))
	for _, name := range types.Stages {
		slot, ok := m.coord.slots[name]
		if !ok {
			continue
		}
		h := slot.Active()
		if h == nil {
			continue
		}
		snap := slot.Stats().Snapshot()
		r := DriftReport{
			Stage:    name,
			Model:    h.ModelID(),
			Accuracy: snap.AccuracyEstimate,
			Target:   h.Config.PerformanceTarget,
			Samples:  snap.TotalProcessed,
			At:       time.Now(),
		}
		if r.Target > 0 {
			r.Drift = (r.Target - r.Accuracy) / r.Target
		}
		r.Detected = r.Samples >= m.minSamples && r.Drift > m.threshold

		if m.metrics != nil {
			m.metrics.RecordDriftCheck(name, r.Drift, r.Detected)
		}
		if r.Detected {
			m.onDrift(ctx, &r, h.Config.ModelName)
		}
		reports = append(reports, r)
	}
	return reports
}

func (m *DriftMonitor) onDrift(ctx context.Context, r *DriftReport, active string) {
	candidate := m.candidates[r.Stage]
	if candidate != "" && candidate != active {
		r.AutoUpdate = candidate
	}
	m.logger.Warn("Model drift detected",
		logging.Stage(r.Stage),
		logging.F("model", r.Model),
		logging.F("accuracy", r.Accuracy),
		logging.F("target", r.Target),
		logging.F("drift", r.Drift),
	)
	if m.publisher != nil {
		if err := m.publisher.PublishDrift(ctx, *r); err != nil {
			m.logger.Warn("Failed to publish drift", logging.Stage(r.Stage), logging.Err(err))
		}
	}
	if r.AutoUpdate == "" {
		return
	}

	cfg := m.coord.slots[r.Stage].Active().Config
	cfg.ModelName = r.AutoUpdate
	if _, err := m.coord.UpdateModel(ctx, r.Stage, cfg, Options{Reason: "drift detected"}); err != nil {
		m.logger.Warn("Automatic model update failed", logging.Stage(r.Stage), logging.Err(err))
	}
}
