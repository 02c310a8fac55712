package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the engine tracer.
const TracerName = "minutes"

// Span attribute keys
const (
	AttrRequestID  = "request_id"
	AttrMeetingID  = "meeting_id"
	AttrStage      = "stage"
	AttrModel      = "model"
	AttrCacheHit   = "cache_hit"
	AttrScore      = "score"
	AttrTextLength = "text_length"
	AttrErrorCode  = "error_code"
	AttrRetryable  = "retryable"
)

// Span names
const (
	SpanProcess    = "minutes.process"
	SpanPreprocess = "minutes.preprocess"
	SpanGate       = "minutes.quality_gate"
	SpanUpdate     = "minutes.model_update"
)

// Tracer starts engine spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// NewTracerFromProvider creates a tracer from tp.
func NewTracerFromProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartRequestSpan starts the root span of a processing request.
func (t *Tracer) StartRequestSpan(ctx context.Context, requestID, meetingID string, textLength int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanProcess,
		trace.WithAttributes(
			attribute.String(AttrRequestID, requestID),
			attribute.String(AttrMeetingID, meetingID),
			attribute.Int(AttrTextLength, textLength),
		),
	)
}

// StartStageSpan starts a span for an analysis stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "minutes.stage."+stage,
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
			attribute.String(AttrModel, model),
		),
	)
}

// StartSpan starts a span with no attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// SetError records err on span.
func SetError(span trace.Span, err error, code string, retryable bool) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.Bool(AttrRetryable, retryable),
	)
	span.RecordError(err)
}

// SetResult records a stage score and cache hit on span and marks it ok.
func SetResult(span trace.Span, score float64, cacheHit bool) {
	span.SetAttributes(
		attribute.Float64(AttrScore, score),
		attribute.Bool(AttrCacheHit, cacheHit),
	)
	span.SetStatus(codes.Ok, "")
}

// TraceID returns the trace id of the span in ctx, if any.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
