package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	// Registering twice with the same registry must fail.
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestMetrics_RecordRequestAndStage(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRequest(StatusSuccess, 120*time.Millisecond)
	m.RecordRequest(StatusSuccess, 80*time.Millisecond)
	m.RecordRequest(StatusRejected, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(StatusRejected)))

	m.RecordStage("topic_detection", StatusSuccess, 5*time.Millisecond, 0.97)
	m.RecordStage("topic_detection", StatusFailed, 5*time.Millisecond, 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.StageSeconds))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageScore))
}

func TestMetrics_GateAndCache(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordGate(true)
	m.RecordGate(false)
	m.RecordGate(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateVerdicts.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateVerdicts.WithLabelValues("false")))

	m.RecordCacheLookup("summary_generation", true)
	m.RecordCacheLookup("summary_generation", false)
	m.RecordCacheLookup("summary_generation", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("summary_generation", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("summary_generation", "miss")))
}

func TestMetrics_ModelUpdatesAndDrift(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordModelUpdate("summary_generation", "committed", time.Second)
	m.RecordModelUpdate("summary_generation", "rolled_back", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelUpdatesTotal.WithLabelValues("summary_generation", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelUpdatesTotal.WithLabelValues("summary_generation", "rolled_back")))

	m.RecordDriftCheck("topic_detection", 0.25, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriftChecksTotal.WithLabelValues("topic_detection", "true")))
	assert.InDelta(t, 0.25, testutil.ToFloat64(m.Drift.WithLabelValues("topic_detection")), 1e-9)

	m.RecordDriftCheck("topic_detection", 0.02, false)
	assert.InDelta(t, 0.02, testutil.ToFloat64(m.Drift.WithLabelValues("topic_detection")), 1e-9)
}

func TestMetrics_Jobs(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordJob(StatusSuccess)
	m.RecordJob(StatusFailed)
	m.SetQueueDepth(7)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues(StatusFailed)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth))
}

func TestTracer_Spans(t *testing.T) {
	tr := NewTracerFromProvider(noop.NewTracerProvider())

	ctx, span := tr.StartRequestSpan(context.Background(), "req-1", "meeting-1", 42)
	require.NotNil(t, span)
	_, stageSpan := tr.StartStageSpan(ctx, "summary_generation", "extractive-v1")
	SetResult(stageSpan, 0.9, false)
	stageSpan.End()
	SetError(span, errors.New("boom"), "STAGE_FAILURE", true)
	span.End()

	// The noop provider never produces a valid trace id.
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, TraceID(context.Background()))
}
