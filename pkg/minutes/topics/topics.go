// Package topics is the topic detection stage. It runs a topic model over
// chunks of the document, merges the labels, enforces the confidence
// threshold and the subtopic relevance bound at every level, and attaches
// keywords and context relevance.
package topics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/chunk"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/nlp"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// keywordsPerTopic caps the keywords attached to a topic.
const keywordsPerTopic = 5

// Detector is the topic detection stage.
type Detector struct {
	backend     backend.Backend
	callTimeout time.Duration
	weights     Weights
	logger      logging.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithCallTimeout bounds each backend call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Detector) { d.callTimeout = timeout }
}

// WithRelevanceWeights sets the weights of the context relevance attached
// to each topic.
func WithRelevanceWeights(w Weights) Option {
	return func(d *Detector) { d.weights = w }
}

// New creates a detector running models on b.
func New(b backend.Backend, opts ...Option) *Detector {
	d := &Detector{backend: b, weights: DefaultWeights, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logging.Component("topic-detector"), logging.Stage(types.StageTopicDetection))
	return d
}

// Name implements stage.Analyzer.
func (d *Detector) Name() string { return types.StageTopicDetection }

// Task implements stage.Analyzer.
func (d *Detector) Task() backend.Task { return backend.TaskTopics }

// Analyze implements stage.Analyzer.
func (d *Detector) Analyze(ctx context.Context, doc *types.ProcessedDocument, h *stage.Handle, cfg stage.Config) (stage.Result, error) {
	return d.Detect(ctx, doc, h, cfg)
}

type merged struct {
	name      string
	relevance float64
	keywords  []string
	children  map[string]*merged
}

// Detect returns the topics of doc.
func (d *Detector) Detect(ctx context.Context, doc *types.ProcessedDocument, h *stage.Handle, cfg stage.Config) (types.TopicResult, error) {
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		return types.TopicResult{}, merrors.InvalidInput("document text is empty")
	}

	size := cfg.ChunkSize
	if size <= 0 {
		size = len(doc.Text)
	}
	inputs := make([]string, 0, len(doc.Text)/size+1)
	for _, c := range chunk.Chunk(doc.Text, size, nil, true) {
		inputs = append(inputs, c.Text)
	}

	topics := map[string]*merged{}
	for _, batch := range backend.Batches(inputs, cfg.BatchSize) {
		outs, err := d.infer(ctx, h, batch, cfg.MaxTopics)
		if err != nil {
			return types.TopicResult{}, merrors.StageFailure(d.Name(), err)
		}
		for _, out := range outs {
			for _, label := range out.Labels {
				mergeLabel(topics, label)
			}
		}
	}

	result := types.TopicResult{
		Topics: build(topics, cfg, doc),
		Metadata: types.TopicMetadata{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			ModelName:           h.ModelID(),
		},
	}
	result.Metadata.PerformanceScore = MeanRelevance(result.Topics)

	scores := AnalyzeRelevance(result.Topics, doc.Text, d.weights)
	for i := range result.Topics {
		r := scores[result.Topics[i].Name]
		result.Topics[i].Context = &r
	}

	d.logger.WithContext(ctx).Debug("Topics detected",
		logging.F("chunks", len(inputs)),
		logging.F("candidates", len(topics)),
		logging.F("topics", len(result.Topics)),
		logging.F("performance", result.Metadata.PerformanceScore),
	)
	return result, nil
}

func (d *Detector) infer(ctx context.Context, h *stage.Handle, batch []string, topK int) ([]backend.Output, error) {
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}
	outs, err := d.backend.Infer(ctx, h.Ref, batch, backend.Params{TopK: topK})
	if err != nil {
		return nil, err
	}
	if err := backend.ValidateOutputs(outs, len(batch)); err != nil {
		return nil, fmt.Errorf("malformed topic output: %w", err)
	}
	return outs, nil
}

// mergeLabel folds label into topics, keeping the highest score per
// case-insensitive name, and merges its children recursively.
func mergeLabel(topics map[string]*merged, label backend.LabelScore) {
	name := strings.TrimSpace(label.Label)
	if name == "" {
		return
	}
	key := strings.ToLower(name)
	t, ok := topics[key]
	if !ok {
		t = &merged{name: name, relevance: label.Score, children: map[string]*merged{}}
		topics[key] = t
	}
	if label.Score > t.relevance {
		t.relevance = label.Score
	}
	t.keywords = union(t.keywords, label.Keywords)
	for _, c := range label.Children {
		if strings.EqualFold(strings.TrimSpace(c.Label), name) {
			continue
		}
		mergeLabel(t.children, c)
	}
}

func build(topics map[string]*merged, cfg stage.Config, doc *types.ProcessedDocument) []types.Topic {
	out := make([]types.Topic, 0, len(topics))
	for _, t := range topics {
		if t.relevance < cfg.ConfidenceThreshold {
			continue
		}
		relevance := types.Clamp01(t.relevance)
		out = append(out, types.Topic{
			Name:      t.name,
			Relevance: relevance,
			Keywords:  attachKeywords(t, doc),
			Subtopics: subtopics(t.children, cfg.ConfidenceThreshold, relevance),
		})
	}
	sortTopics(out)
	if cfg.MaxTopics > 0 && len(out) > cfg.MaxTopics {
		out = out[:cfg.MaxTopics]
	}
	return out
}

// subtopics builds the topics under a parent whose relevance is ceiling.
// Each level drops children below threshold and clamps the rest to their
// parent.
func subtopics(children map[string]*merged, threshold, ceiling float64) []types.Topic {
	out := make([]types.Topic, 0, len(children))
	for _, c := range children {
		if c.relevance < threshold {
			continue
		}
		relevance := min(types.Clamp01(c.relevance), ceiling)
		out = append(out, types.Topic{
			Name:      c.name,
			Relevance: relevance,
			Keywords:  union(c.keywords, nil),
			Subtopics: subtopics(c.children, threshold, relevance),
		})
	}
	sortTopics(out)
	return out
}

// attachKeywords combines the model's keywords with the most frequent
// content words of the sentences that mention the topic.
func attachKeywords(t *merged, doc *types.ProcessedDocument) []string {
	var mentions []string
	lower := strings.ToLower(t.name)
	for _, s := range doc.Sentences {
		if strings.Contains(strings.ToLower(s.Text), lower) {
			mentions = append(mentions, s.Text)
		}
	}
	words := union(t.keywords, nlp.Keywords(strings.Join(mentions, " "), keywordsPerTopic+1))
	out := make([]string, 0, keywordsPerTopic)
	for _, w := range words {
		if strings.EqualFold(w, t.name) {
			continue
		}
		out = append(out, w)
		if len(out) == keywordsPerTopic {
			break
		}
	}
	return out
}

func sortTopics(ts []types.Topic) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Relevance != ts[j].Relevance {
			return ts[i].Relevance > ts[j].Relevance
		}
		return ts[i].Name < ts[j].Name
	})
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, w := range list {
			k := strings.ToLower(w)
			if _, ok := seen[k]; ok || w == "" {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

// MeanRelevance is the mean relevance of the top-level topics, or 0.
func MeanRelevance(ts []types.Topic) float64 {
	if len(ts) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range ts {
		sum += t.Relevance
	}
	return sum / float64(len(ts))
}
