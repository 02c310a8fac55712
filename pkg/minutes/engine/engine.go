// Package engine orchestrates a minutes request: preprocessing, the three
// analysis stages run concurrently against a snapshot of the active models,
// the quality gate and the assembly of the final minutes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/ids"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/actions"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/cache"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/chunk"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/preprocess"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/quality"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/summary"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/topics"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/observability"
)

// DefaultStageTimeout bounds each analysis stage of a request.
const DefaultStageTimeout = 60 * time.Second

// StagePreprocess names preprocessing in errors and spans.
const StagePreprocess = "preprocessing"

// Publisher announces finished minutes.
type Publisher interface {
	PublishMinutesProcessed(ctx context.Context, r *types.MinutesResult) error
}

// Store persists finished minutes.
type Store interface {
	SaveMinutes(ctx context.Context, r *types.MinutesResult) error
}

// DriftQueue accepts background drift checks without blocking.
type DriftQueue interface {
	Enqueue(check update.DriftCheck) bool
}

// Metrics records request and stage measurements.
type Metrics interface {
	RecordRequest(status string, d time.Duration)
	RecordStage(stage, status string, d time.Duration, score float64)
	RecordGate(passed bool)
	RecordCacheLookup(namespace string, hit bool)
}

// Engine processes transcripts into minutes. It is safe for concurrent use.
type Engine struct {
	backend      backend.Backend
	slots        stage.Set
	analyzers    map[string]stage.Analyzer
	pre          *preprocess.Pipeline
	cache        *cache.Cache
	gate         *quality.Gate
	stageTimeout time.Duration
	version      string

	publisher Publisher
	store     Store
	drift     DriftQueue
	metrics   Metrics
	tracer    *observability.Tracer
	logger    logging.Logger
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCache enables stage result caching.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithPreprocessor replaces the default preprocessing pipeline.
func WithPreprocessor(p *preprocess.Pipeline) Option {
	return func(e *Engine) {
		if p != nil {
			e.pre = p
		}
	}
}

// WithStageTimeout bounds each stage.
func WithStageTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stageTimeout = d
		}
	}
}

// WithPublisher announces finished minutes.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithStore persists finished minutes.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithDriftQueue enqueues a drift check after every request.
func WithDriftQueue(q DriftQueue) Option {
	return func(e *Engine) { e.drift = q }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithVersion sets the engine version reported in minutes metadata.
func WithVersion(v string) Option {
	return func(e *Engine) { e.version = v }
}

// WithIDGenerator replaces the request id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New creates an engine over the loaded slots. analyzers must cover every
// stage of slots.
func New(b backend.Backend, slots stage.Set, analyzers []stage.Analyzer, opts ...Option) (*Engine, error) {
	e := &Engine{
		backend:      b,
		slots:        slots,
		analyzers:    make(map[string]stage.Analyzer, len(analyzers)),
		stageTimeout: DefaultStageTimeout,
		tracer:       observability.NewTracer(),
		logger:       logging.NewNopLogger(),
		newID:        func() string { return uuid.New().String() },
	}
	for _, a := range analyzers {
		e.analyzers[a.Name()] = a
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, name := range types.Stages {
		if _, ok := e.analyzers[name]; !ok {
			return nil, fmt.Errorf("no analyzer for stage %s", name)
		}
		if _, ok := slots[name]; !ok {
			return nil, fmt.Errorf("no model slot for stage %s", name)
		}
	}
	if e.pre == nil {
		e.pre = preprocess.New(preprocess.DefaultConfig(), preprocess.WithCache(e.cache), preprocess.WithLogger(e.logger))
	}
	e.logger = e.logger.With(logging.Component("engine"))
	e.gate = quality.NewGate(e.logger)
	return e, nil
}

// Analyzers returns the three analysis stages backed by b. A positive
// callTimeout bounds every backend call the stages make.
func Analyzers(b backend.Backend, logger logging.Logger, probe chunk.MemoryProbe, callTimeout time.Duration) []stage.Analyzer {
	return []stage.Analyzer{
		topics.New(b, topics.WithLogger(logger), topics.WithCallTimeout(callTimeout)),
		actions.New(b, actions.WithLogger(logger), actions.WithCallTimeout(callTimeout)),
		summary.New(b, summary.WithLogger(logger), summary.WithMemoryProbe(probe), summary.WithCallTimeout(callTimeout)),
	}
}

// Process turns a transcript into minutes. On any stage failure no partial
// minutes are returned; a failed quality gate is a QualityBelowThreshold
// error.
func (e *Engine) Process(ctx context.Context, t types.Transcript) (*types.MinutesResult, error) {
	start := time.Now()
	requestID := e.newID()
	ctx = logging.ContextWithRequest(ctx, requestID, t.MeetingID)
	ctx, span := e.tracer.StartRequestSpan(ctx, requestID, t.MeetingID, len(t.Text))
	defer span.End()

	res, err := e.process(ctx, requestID, t, start)
	elapsed := time.Since(start)
	log := e.logger.WithContext(ctx)

	if err != nil {
		code := merrors.CodeOf(err)
		observability.SetError(span, err, string(code), merrors.IsErrorRetryable(err))
		e.recordRequest(requestStatus(err), elapsed)
		log.Warn("Minutes request failed",
			logging.F("error_code", string(code)),
			logging.F("duration_ms", elapsed.Milliseconds()),
			logging.Err(err),
		)
		return nil, err
	}

	e.recordRequest(observability.StatusSuccess, elapsed)
	log.Info("Minutes generated",
		logging.F("topics", len(res.Topics.Topics)),
		logging.F("action_items", len(res.ActionItems.Items)),
		logging.F("summary_length", len(res.Summary.Summary)),
		logging.F("cache_hit", res.Metadata.CacheHit),
		logging.F("duration_ms", elapsed.Milliseconds()),
	)
	return res, nil
}

func (e *Engine) process(ctx context.Context, requestID string, t types.Transcript, start time.Time) (*types.MinutesResult, error) {
	if strings.TrimSpace(t.MeetingID) == "" {
		return nil, merrors.InvalidInput("meeting_id is required")
	}
	if strings.TrimSpace(t.Text) == "" {
		return nil, merrors.InvalidInput("transcript text is empty")
	}

	snap, err := e.slots.Acquire()
	if err != nil {
		return nil, merrors.ClassifyError(err, "")
	}
	defer e.slots.Release(snap)

	cfgs := make(map[string]stage.Config, len(types.Stages))
	for _, name := range types.Stages {
		cfg, err := snap[name].Config.Merge(t.Options.For(name))
		if err != nil {
			return nil, err
		}
		cfgs[name] = cfg
	}

	doc, err := e.preprocess(ctx, t.Text)
	if err != nil {
		return nil, err
	}

	var outs [3]stageOutcome
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range types.Stages {
		g.Go(func() error {
			out, err := e.runStage(gctx, name, doc, snap[name], cfgs[name])
			if err != nil {
				return err
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	topicRes, ok1 := outs[0].result.(types.TopicResult)
	actionRes, ok2 := outs[1].result.(types.ActionItemResult)
	summaryRes, ok3 := outs[2].result.(types.SummaryResult)
	if !ok1 || !ok2 || !ok3 {
		return nil, merrors.ClassifyError(errors.New("unexpected stage result type"), "")
	}

	targets := quality.TargetsFrom(cfgs[types.StageTopicDetection], cfgs[types.StageActionItemRecognition], cfgs[types.StageSummaryGeneration])
	_, gateSpan := e.tracer.StartSpan(ctx, observability.SpanGate)
	verdict := e.gate.Validate(topicRes, actionRes, summaryRes, targets)
	gateSpan.End()
	if e.metrics != nil {
		e.metrics.RecordGate(verdict.Passed)
	}
	if !verdict.Passed {
		return nil, merrors.QualityBelowThreshold(verdict.Reasons)
	}

	versions := make(map[string]string, len(snap))
	for name, h := range snap {
		versions[name] = fmt.Sprintf("%s@%d", h.ModelID(), h.Version)
	}

	res := &types.MinutesResult{
		ID:          ids.New(ids.KindMinutes),
		MeetingID:   t.MeetingID,
		Topics:      topicRes,
		ActionItems: actionRes,
		Summary:     summaryRes,
		Metadata: types.MinutesMetadata{
			RequestID:      requestID,
			ProcessingTime: time.Since(start),
			Device:         backend.DeviceOf(e.backend),
			ModelVersions:  versions,
			EngineVersion:  e.version,
			CacheHit:       outs[0].cacheHit && outs[1].cacheHit && outs[2].cacheHit,
			Verdict:        verdict,
		},
		CreatedAt: time.Now().UTC(),
	}
	// Cached stage values are shared; the caller owns an independent copy.
	res = res.Clone()

	e.afterRequest(ctx, res)
	return res, nil
}

func (e *Engine) preprocess(ctx context.Context, text string) (*types.ProcessedDocument, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanPreprocess)
	defer span.End()
	doc, err := e.pre.Process(ctx, text)
	if err != nil {
		if merrors.IsInvalidInput(err) {
			return nil, err
		}
		return nil, merrors.ClassifyError(err, StagePreprocess)
	}
	return doc, nil
}

type stageOutcome struct {
	result   stage.Result
	cacheHit bool
}

// runStage runs one analyzer under the stage timeout. Results are served
// from and written to the pattern cache; only results meeting the stage's
// own performance target are cached.
func (e *Engine) runStage(ctx context.Context, name string, doc *types.ProcessedDocument, h *stage.Handle, cfg stage.Config) (stageOutcome, error) {
	slot := e.slots[name]
	ns := Namespace(name, cfg)
	key := cache.Key(ns, h.Version, doc.Metadata.Fingerprint)
	start := time.Now()

	ctx, span := e.tracer.StartStageSpan(ctx, name, h.ModelID())
	defer span.End()
	log := e.logger.WithContext(ctx).With(logging.Stage(name))

	if e.cache != nil {
		r, hit := cache.Lookup[stage.Result](e.cache, key)
		if e.metrics != nil {
			e.metrics.RecordCacheLookup(name, hit)
		}
		if hit {
			elapsed := time.Since(start)
			slot.Stats().Record(r.Score(), elapsed, true)
			e.recordStage(name, observability.StatusSuccess, elapsed, r.Score())
			observability.SetResult(span, r.Score(), true)
			log.Debug("Stage result served from cache", logging.F("score", r.Score()))
			return stageOutcome{result: r, cacheHit: true}, nil
		}
	}

	sctx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	r, err := e.analyzers[name].Analyze(sctx, doc, h, cfg)
	elapsed := time.Since(start)
	if err != nil {
		slot.Stats().RecordFailure()
		status := observability.StatusFailed
		if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = merrors.StageTimeout(name, elapsed, e.stageTimeout, err)
			status = observability.StatusTimeout
		} else {
			err = merrors.ClassifyError(err, name)
		}
		e.recordStage(name, status, elapsed, 0)
		observability.SetError(span, err, string(merrors.CodeOf(err)), merrors.IsErrorRetryable(err))
		return stageOutcome{}, err
	}

	score := r.Score()
	slot.Stats().Record(score, elapsed, false)
	e.recordStage(name, observability.StatusSuccess, elapsed, score)
	observability.SetResult(span, score, false)

	if e.cache != nil {
		if quality.Meets(r, cfg.PerformanceTarget) {
			e.cache.Put(key, r)
		} else {
			log.Debug("Stage result below target, not cached",
				logging.F("score", score),
				logging.F("target", cfg.PerformanceTarget),
			)
		}
	}
	log.Debug("Stage completed",
		logging.F("model", h.ModelID()),
		logging.F("score", score),
		logging.F("duration_ms", elapsed.Milliseconds()),
	)
	return stageOutcome{result: r}, nil
}

// Namespace is the cache namespace of a stage result computed with cfg.
// Requests with different effective settings never share entries.
func Namespace(stageName string, cfg stage.Config) string {
	return stageName + ":" + cache.Fingerprint(fmt.Sprintf("%+v", cfg))[:12]
}

// afterRequest runs the side effects of a successful request. Their
// failures are logged and never fail the request.
func (e *Engine) afterRequest(ctx context.Context, res *types.MinutesResult) {
	log := e.logger.WithContext(ctx)

	if e.drift != nil && !e.drift.Enqueue(update.DriftCheck{RequestID: res.Metadata.RequestID, At: time.Now()}) {
		log.Debug("Drift check queue full, check dropped")
	}
	if e.publisher != nil {
		if err := e.publisher.PublishMinutesProcessed(ctx, res); err != nil {
			log.Warn("Failed to publish minutes event", logging.Err(err))
		}
	}
	if e.store != nil {
		if err := e.store.SaveMinutes(ctx, res); err != nil {
			log.Warn("Failed to persist minutes", logging.Err(err))
		}
	}
}

func (e *Engine) recordRequest(status string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordRequest(status, d)
	}
}

func (e *Engine) recordStage(name, status string, d time.Duration, score float64) {
	if e.metrics != nil {
		e.metrics.RecordStage(name, status, d, score)
	}
}

func requestStatus(err error) string {
	switch {
	case merrors.IsInvalidInput(err), merrors.IsQualityBelowThreshold(err):
		return observability.StatusRejected
	case merrors.IsTimeout(err):
		return observability.StatusTimeout
	default:
		return observability.StatusFailed
	}
}
