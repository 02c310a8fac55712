// Package actions is the action item recognition stage.
package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/nlp"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// StatusPending is the status of a newly recognised action item.
const StatusPending = "pending"

// MinWords is the shortest action item text that passes the format check.
const MinWords = 3

// Validation feedback.
const (
	FeedbackLowConfidence   = "Confidence score below threshold"
	FeedbackMissingMetadata = "Missing required metadata: "
	FeedbackPastDeadline    = "Invalid deadline: Date is in the past"
	FeedbackBadDeadline     = "Invalid deadline format"
	FeedbackTooShort        = "Action item text too short"
)

// Recognizer is the action item stage.
type Recognizer struct {
	backend     backend.Backend
	callTimeout time.Duration
	now         func() time.Time
	logger      logging.Logger
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Recognizer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCallTimeout bounds each backend call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(r *Recognizer) { r.callTimeout = timeout }
}

// WithClock sets the clock deadlines are resolved and validated against.
func WithClock(now func() time.Time) Option {
	return func(r *Recognizer) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a recognizer running models on b.
func New(b backend.Backend, opts ...Option) *Recognizer {
	r := &Recognizer{backend: b, now: time.Now, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logging.Component("action-recognizer"), logging.Stage(types.StageActionItemRecognition))
	return r
}

// Name implements stage.Analyzer.
func (r *Recognizer) Name() string { return types.StageActionItemRecognition }

// Task implements stage.Analyzer.
func (r *Recognizer) Task() backend.Task { return backend.TaskClassify }

// Analyze implements stage.Analyzer.
func (r *Recognizer) Analyze(ctx context.Context, doc *types.ProcessedDocument, h *stage.Handle, cfg stage.Config) (stage.Result, error) {
	return r.Recognize(ctx, doc, h, cfg)
}

// Recognize classifies every sentence of doc and returns the action items
// whose confidence meets cfg.ConfidenceThreshold. Items failing validation
// are dropped unless cfg.IncludeUnvalidated is set.
func (r *Recognizer) Recognize(ctx context.Context, doc *types.ProcessedDocument, h *stage.Handle, cfg stage.Config) (types.ActionItemResult, error) {
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		return types.ActionItemResult{}, merrors.InvalidInput("document text is empty")
	}

	sentences := doc.Sentences
	if len(sentences) == 0 {
		sentences = nlp.Sentences(doc.Text)
	}
	inputs := make([]string, len(sentences))
	for i, s := range sentences {
		inputs[i] = s.Text
	}

	now := r.now()
	result := types.ActionItemResult{
		Items: []types.ActionItem{},
		Metadata: types.ActionItemResultMetadata{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			ModelName:           h.ModelID(),
		},
	}

	for _, batch := range backend.Batches(inputs, cfg.BatchSize) {
		outs, err := r.infer(ctx, h, batch)
		if err != nil {
			return types.ActionItemResult{}, merrors.StageFailure(r.Name(), err)
		}
		for i, out := range outs {
			confidence := out.Score(backend.LabelAction)
			if confidence < cfg.ConfidenceThreshold {
				continue
			}
			result.Metadata.Candidates++

			item := types.ActionItem{
				Text:       batch[i],
				Confidence: confidence,
				Metadata:   ExtractMetadata(batch[i], doc, now),
			}
			valid, verdict := ValidateActionItem(item, cfg.ConfidenceThreshold, now)
			item.Validation = verdict
			if !valid && !cfg.IncludeUnvalidated {
				result.Metadata.Rejected++
				r.logger.WithContext(ctx).Debug("Action item rejected",
					logging.F("text", item.Text),
					logging.F("feedback", strings.Join(verdict.Feedback, "; ")),
				)
				continue
			}
			result.Items = append(result.Items, item)
		}
	}

	sort.SliceStable(result.Items, func(i, j int) bool {
		return result.Items[i].Confidence > result.Items[j].Confidence
	})
	if cfg.MaxItems > 0 && len(result.Items) > cfg.MaxItems {
		result.Items = result.Items[:cfg.MaxItems]
	}
	result.Metadata.PerformanceScore = MeanConfidence(result.Items)

	r.logger.WithContext(ctx).Debug("Action items recognised",
		logging.F("sentences", len(inputs)),
		logging.F("candidates", result.Metadata.Candidates),
		logging.F("items", len(result.Items)),
	)
	return result, nil
}

func (r *Recognizer) infer(ctx context.Context, h *stage.Handle, batch []string) ([]backend.Output, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	outs, err := r.backend.Infer(ctx, h.Ref, batch, backend.Params{})
	if err != nil {
		return nil, err
	}
	if err := backend.ValidateOutputs(outs, len(batch)); err != nil {
		return nil, fmt.Errorf("malformed classifier output: %w", err)
	}
	return outs, nil
}

// ExtractMetadata derives the structured metadata of an action item
// sentence. First-person commitments are assigned to the speaker of the
// segment the sentence came from.
func ExtractMetadata(text string, doc *types.ProcessedDocument, now time.Time) types.ActionItemMetadata {
	md := types.ActionItemMetadata{
		Priority:  nlp.Priority(text),
		Status:    StatusPending,
		CreatedAt: now,
		Entities:  nlp.EntityMap(nlp.Entities(text)),
	}
	if who, ok := nlp.Assignee(text); ok {
		md.Assignee = who
	} else if nlp.FirstPerson(text) {
		if who, ok := doc.Speaker(text); ok {
			md.Assignee = who
		}
	}
	if deadline, ok := nlp.Temporal(text, now); ok {
		md.Deadline = deadline.Format(time.RFC3339)
	}
	md.ConfidenceScores = map[string]float64{
		"assignee": present(md.Assignee),
		"deadline": present(md.Deadline),
		"priority": present(md.Priority),
	}
	return md
}

func present(s string) float64 {
	if s == "" {
		return 0
	}
	return 1
}

// ValidateActionItem checks an action item. The confidence, metadata,
// deadline and format checks run independently and each failure adds a
// feedback line. It depends only on its arguments.
func ValidateActionItem(item types.ActionItem, threshold float64, now time.Time) (bool, types.Validation) {
	v := types.Validation{
		ConfidenceCheck: true,
		MetadataCheck:   true,
		FormatCheck:     true,
		Feedback:        []string{},
	}

	if item.Confidence < threshold {
		v.ConfidenceCheck = false
		v.Feedback = append(v.Feedback, FeedbackLowConfidence)
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"assignee", item.Metadata.Assignee},
		{"deadline", item.Metadata.Deadline},
		{"priority", item.Metadata.Priority},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		v.MetadataCheck = false
		v.Feedback = append(v.Feedback, FeedbackMissingMetadata+strings.Join(missing, ", "))
	}

	if item.Metadata.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, item.Metadata.Deadline)
		switch {
		case err != nil:
			v.MetadataCheck = false
			v.Feedback = append(v.Feedback, FeedbackBadDeadline)
		case deadline.Before(now):
			v.MetadataCheck = false
			v.Feedback = append(v.Feedback, FeedbackPastDeadline)
		}
	}

	if len(strings.Fields(item.Text)) < MinWords {
		v.FormatCheck = false
		v.Feedback = append(v.Feedback, FeedbackTooShort)
	}

	v.IsValid = v.ConfidenceCheck && v.MetadataCheck && v.FormatCheck
	return v.IsValid, v
}

// MeanConfidence is the mean confidence of items, or 0.
func MeanConfidence(items []types.ActionItem) float64 {
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, it := range items {
		sum += it.Confidence
	}
	return sum / float64(len(items))
}
