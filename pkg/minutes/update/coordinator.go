// Package update hot-swaps stage models. The Coordinator validates a new
// stage configuration, loads the candidate model, compares it against the
// active one on a probe corpus and either commits the swap or rolls back
// without disturbing requests in flight. The DriftMonitor watches stage
// accuracy and can trigger updates.
package update

import (
	"context"
	"fmt"
	"time"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/preprocess"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// Defaults.
const (
	DefaultLoadTimeout    = 2 * time.Minute
	DefaultMaxDegradation = 0.10
)

// Result is the kind of update outcome.
type Result string

const (
	Committed  Result = "committed"
	RolledBack Result = "rolled_back"
	Unchanged  Result = "unchanged"
)

// Options controls a single update.
type Options struct {
	// Force reloads the model even when the name is unchanged.
	Force bool

	// SkipValidation commits without comparing against the active model.
	SkipValidation bool

	// Reason is recorded with the outcome.
	Reason string
}

// Outcome describes a finished update.
type Outcome struct {
	ID             string        `json:"id"`
	Stage          string        `json:"stage"`
	Result         Result        `json:"result"`
	PreviousModel  string        `json:"previous_model"`
	Model          string        `json:"model"`
	Version        int64         `json:"version"`
	BaselineScore  float64       `json:"baseline_score"`
	CandidateScore float64       `json:"candidate_score"`
	Degradation    float64       `json:"degradation"`
	Reason         string        `json:"reason,omitempty"`
	Duration       time.Duration `json:"duration"`
	At             time.Time     `json:"at"`
}

// Invalidator drops cached results. The pattern cache implements it.
type Invalidator interface {
	InvalidateAll()
}

// Publisher announces update outcomes and drift.
type Publisher interface {
	PublishModelUpdate(ctx context.Context, o Outcome) error
	PublishDrift(ctx context.Context, r DriftReport) error
}

// History persists update outcomes.
type History interface {
	RecordModelUpdate(ctx context.Context, o Outcome) error
}

// Metrics records update and drift metrics.
type Metrics interface {
	RecordModelUpdate(stage string, result string, d time.Duration)
	RecordDriftCheck(stage string, drift float64, detected bool)
}

// Coordinator performs model updates. One update per stage runs at a time;
// updates of different stages are independent.
type Coordinator struct {
	backend   backend.Backend
	slots     stage.Set
	analyzers map[string]stage.Analyzer

	pipeline       *preprocess.Pipeline
	corpus         []string
	loadTimeout    time.Duration
	maxDegradation float64

	cache     Invalidator
	publisher Publisher
	history   History
	metrics   Metrics
	logger    logging.Logger
	newID     func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCache sets the cache invalidated on every commit.
func WithCache(inv Invalidator) Option {
	return func(c *Coordinator) { c.cache = inv }
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithHistory sets where outcomes are persisted.
func WithHistory(h History) Option {
	return func(c *Coordinator) { c.history = h }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithValidationCorpus replaces the probe transcripts candidates are scored
// on.
func WithValidationCorpus(texts []string) Option {
	return func(c *Coordinator) {
		if len(texts) > 0 {
			c.corpus = texts
		}
	}
}

// WithLoadTimeout bounds loading a candidate model.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithMaxDegradation sets the relative score loss above which a candidate is
// rolled back. Zero rejects any loss; negative values are ignored.
func WithMaxDegradation(v float64) Option {
	return func(c *Coordinator) {
		if v >= 0 {
			c.maxDegradation = v
		}
	}
}

// WithIDGenerator sets how outcome ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewCoordinator creates a coordinator over slots. analyzers score
// candidates during validation and must cover every stage in slots.
func NewCoordinator(b backend.Backend, slots stage.Set, analyzers []stage.Analyzer, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:        b,
		slots:          slots,
		analyzers:      make(map[string]stage.Analyzer, len(analyzers)),
		corpus:         DefaultCorpus,
		loadTimeout:    DefaultLoadTimeout,
		maxDegradation: DefaultMaxDegradation,
		logger:         logging.NewNopLogger(),
		newID:          newOutcomeID,
	}
	for _, a := range analyzers {
		c.analyzers[a.Name()] = a
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.Component("update-coordinator"))
	c.pipeline = preprocess.New(preprocess.DefaultConfig(), preprocess.WithLogger(c.logger))
	return c
}

// Slots returns the managed slots.
func (c *Coordinator) Slots() stage.Set { return c.slots }

// UpdateModel replaces the model of stageName with the one described by
// cfg. On any failure the slot is rolled back, the previously active model
// stays active and a ModelUpdateFailure is returned alongside the outcome.
func (c *Coordinator) UpdateModel(ctx context.Context, stageName string, cfg stage.Config, opts Options) (Outcome, error) {
	start := time.Now()
	out := Outcome{ID: c.newID(), Stage: stageName, Model: cfg.ModelName, Reason: opts.Reason, At: start}

	slot, ok := c.slots[stageName]
	if !ok {
		return out, merrors.ModelUpdateFailure(stageName, "unknown stage", merrors.ErrNotFound)
	}
	task, err := stage.TaskFor(stageName)
	if err != nil {
		return out, merrors.ModelUpdateFailure(stageName, "unknown stage", err)
	}

	lease, err := slot.BeginUpdate(ctx)
	if err != nil {
		return out, merrors.ModelUpdateFailure(stageName, "stage is busy", err)
	}

	active := slot.Active()
	if active != nil {
		out.PreviousModel = active.ModelID()
		out.Version = active.Version
	}

	fail := func(reason string, cause error) (Outcome, error) {
		lease.Rollback(reason)
		out.Result = RolledBack
		out.Reason = reason
		out.Duration = time.Since(start)
		c.finish(ctx, out)
		c.logger.Warn("Model update rolled back",
			logging.Stage(stageName),
			logging.F("model", cfg.ModelName),
			logging.F("reason", reason),
			logging.Err(cause),
		)
		return out, merrors.ModelUpdateFailure(stageName, reason, cause)
	}

	if err := cfg.Validate(stageName); err != nil {
		return fail("invalid configuration", err)
	}

	if active != nil && active.Config == cfg && !opts.Force {
		lease.Abort("configuration unchanged")
		out.Result = Unchanged
		out.Duration = time.Since(start)
		c.logger.Info("Model update skipped, configuration unchanged", logging.Stage(stageName), logging.F("model", cfg.ModelName))
		return out, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	ref, err := c.backend.Load(loadCtx, cfg.ModelName, task)
	cancel()
	if err != nil {
		return fail("model load failed", err)
	}

	version := int64(1)
	if active != nil {
		version = active.Version + 1
	}
	candidate := stage.NewHandle(stageName, cfg, ref, version)

	if !opts.SkipValidation && active != nil {
		baseline, candidateScore, err := c.compare(ctx, stageName, active, candidate)
		out.BaselineScore, out.CandidateScore = baseline, candidateScore
		if err != nil {
			c.unload(ref)
			return fail("validation failed", err)
		}
		if baseline > 0 {
			out.Degradation = (baseline - candidateScore) / baseline
		}
		if out.Degradation > c.maxDegradation {
			c.unload(ref)
			return fail(fmt.Sprintf("performance degradation %.3f exceeds %.3f", out.Degradation, c.maxDegradation), nil)
		}
	}

	return c.commit(ctx, lease, candidate, out, start)
}

func (c *Coordinator) commit(ctx context.Context, lease *stage.Lease, next *stage.Handle, out Outcome, start time.Time) (Outcome, error) {
	lease.Commit(next)
	if c.cache != nil {
		c.cache.InvalidateAll()
	}
	out.Result = Committed
	out.Version = next.Version
	out.Duration = time.Since(start)
	c.finish(ctx, out)
	c.logger.Info("Model update committed",
		logging.Stage(out.Stage),
		logging.F("previous_model", out.PreviousModel),
		logging.F("model", out.Model),
		logging.F("version", out.Version),
		logging.F("degradation", out.Degradation),
	)
	return out, nil
}

// finish records an outcome. Failures here are logged only.
func (c *Coordinator) finish(ctx context.Context, out Outcome) {
	if c.metrics != nil {
		c.metrics.RecordModelUpdate(out.Stage, string(out.Result), out.Duration)
	}
	if c.publisher != nil {
		if err := c.publisher.PublishModelUpdate(ctx, out); err != nil {
			c.logger.Warn("Failed to publish model update", logging.Stage(out.Stage), logging.Err(err))
		}
	}
	if c.history != nil {
		if err := c.history.RecordModelUpdate(ctx, out); err != nil {
			c.logger.Warn("Failed to record model update", logging.Stage(out.Stage), logging.Err(err))
		}
	}
}

// compare scores the active and candidate handles on the probe corpus.
func (c *Coordinator) compare(ctx context.Context, stageName string, baseline, candidate *stage.Handle) (float64, float64, error) {
	analyzer, ok := c.analyzers[stageName]
	if !ok {
		return 0, 0, fmt.Errorf("no analyzer for stage %s", stageName)
	}
	base, err := c.score(ctx, analyzer, baseline)
	if err != nil {
		return 0, 0, fmt.Errorf("score active model: %w", err)
	}
	cand, err := c.score(ctx, analyzer, candidate)
	if err != nil {
		return base, 0, fmt.Errorf("score candidate model: %w", err)
	}
	return base, cand, nil
}

func (c *Coordinator) score(ctx context.Context, a stage.Analyzer, h *stage.Handle) (float64, error) {
	if len(c.corpus) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, text := range c.corpus {
		doc, err := c.pipeline.Process(ctx, text)
		if err != nil {
			return 0, err
		}
		res, err := a.Analyze(ctx, doc, h, h.Config)
		if err != nil {
			return 0, err
		}
		sum += res.Score()
	}
	return sum / float64(len(c.corpus)), nil
}

func (c *Coordinator) unload(ref backend.ModelRef) {
	ctx, cancel := context.WithTimeout(context.Background(), c.loadTimeout)
	defer cancel()
	if err := c.backend.Unload(ctx, ref); err != nil {
		c.logger.Warn("Failed to unload rejected candidate", logging.F("model", ref.Model), logging.Err(err))
	}
}

// Status describes one stage for reporting.
type Status struct {
	Stage       string              `json:"stage"`
	State       stage.State         `json:"state"`
	Model       string              `json:"model"`
	Version     int64               `json:"version"`
	Device      string              `json:"device"`
	ActivatedAt time.Time           `json:"activated_at"`
	Stats       stage.StatsSnapshot `json:"stats"`
	History     []stage.Transition  `json:"history,omitempty"`
}

// Status reports every stage in a stable order.
func (c *Coordinator) Status() []Status {
	out := make([]Status, 0, len(c.slots))
	for _, name := range types.Stages {
		slot, ok := c.slots[name]
		if !ok {
			continue
		}
		st := Status{Stage: name, State: slot.State(), Stats: slot.Stats().Snapshot(), History: slot.History()}
		if h := slot.Active(); h != nil {
			st.Model = h.ModelID()
			st.Version = h.Version
			st.Device = h.Ref.Device
			st.ActivatedAt = h.ActivatedAt
		}
		out = append(out, st)
	}
	return out
}
