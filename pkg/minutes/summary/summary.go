// Package summary is the summary generation stage.
package summary

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/chunk"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/nlp"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// DuplicateSimilarity is the token Jaccard similarity at or above which two
// summary sentences are considered the same.
const DuplicateSimilarity = 0.8

// coverageKeywords is the number of document keywords quality coverage is
// measured against.
const coverageKeywords = 10

// Quality weights.
const (
	weightCoverage      = 0.5
	weightNonRedundancy = 0.3
	weightLength        = 0.2
)

// Generator is the summary stage.
type Generator struct {
	backend     backend.Backend
	probe       chunk.MemoryProbe
	callTimeout time.Duration
	logger      logging.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMemoryProbe lowers the chunk target on devices with little free
// memory.
func WithMemoryProbe(p chunk.MemoryProbe) Option {
	return func(g *Generator) { g.probe = p }
}

// WithCallTimeout bounds each backend call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(g *Generator) { g.callTimeout = timeout }
}

// New creates a generator running models on b.
func New(b backend.Backend, opts ...Option) *Generator {
	g := &Generator{backend: b, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logging.Component("summary-generator"), logging.Stage(types.StageSummaryGeneration))
	return g
}

// Name implements stage.Analyzer.
func (g *Generator) Name() string { return types.StageSummaryGeneration }

// Task implements stage.Analyzer.
func (g *Generator) Task() backend.Task { return backend.TaskGenerate }

// Analyze implements stage.Analyzer.
func (g *Generator) Analyze(ctx context.Context, doc *types.ProcessedDocument, h *stage.Handle, cfg stage.Config) (stage.Result, error) {
	return g.Generate(ctx, doc, h, cfg)
}

// Generate summarises doc chunk by chunk and merges the chunk summaries.
func (g *Generator) Generate(ctx context.Context, doc *types.ProcessedDocument, h *stage.Handle, cfg stage.Config) (types.SummaryResult, error) {
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		return types.SummaryResult{}, merrors.InvalidInput("document text is empty")
	}

	target := chunk.Budget(cfg.MaxLength, g.probe)
	chunks := chunk.Chunk(doc.Text, target, nil, true)
	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = c.Text
	}

	params := backend.Params{MinLength: cfg.MinLength, MaxLength: cfg.MaxLength, NumBeams: cfg.NumBeams}
	parts := make([]string, 0, len(inputs))
	for _, batch := range backend.Batches(inputs, cfg.BatchSize) {
		outs, err := g.infer(ctx, h, batch, params)
		if err != nil {
			return types.SummaryResult{}, merrors.StageFailure(g.Name(), err)
		}
		for _, out := range outs {
			parts = append(parts, out.Text)
		}
	}

	text := Merge(parts)
	result := types.SummaryResult{
		Summary: text,
		Metadata: types.SummaryMetadata{
			QualityScore:   Quality(doc.Text, text, cfg.MinLength, cfg.MaxLength),
			ChunkCount:     len(chunks),
			OriginalLength: len(doc.Text),
			SummaryLength:  len(text),
			ModelName:      h.ModelID(),
		},
	}

	g.logger.WithContext(ctx).Debug("Summary generated",
		logging.F("chunks", len(chunks)),
		logging.F("summary_length", len(text)),
		logging.F("quality", result.Metadata.QualityScore),
	)
	return result, nil
}

func (g *Generator) infer(ctx context.Context, h *stage.Handle, batch []string, params backend.Params) ([]backend.Output, error) {
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}
	outs, err := g.backend.Infer(ctx, h.Ref, batch, params)
	if err != nil {
		return nil, err
	}
	if err := backend.ValidateOutputs(outs, len(batch)); err != nil {
		return nil, fmt.Errorf("malformed summary output: %w", err)
	}
	return outs, nil
}

// Merge joins chunk summaries in order, drops sentences that repeat an
// earlier one and formats what remains.
func Merge(parts []string) string {
	var kept []string
	for _, part := range parts {
		for _, s := range nlp.Sentences(part) {
			sentence := Format(s.Text)
			if sentence == "" || duplicate(kept, sentence) {
				continue
			}
			kept = append(kept, sentence)
		}
	}
	return strings.Join(kept, " ")
}

func duplicate(kept []string, sentence string) bool {
	for _, k := range kept {
		if nlp.Jaccard(k, sentence) >= DuplicateSimilarity {
			return true
		}
	}
	return false
}

// Format capitalises a sentence and terminates it with a period when it has
// no terminal punctuation.
func Format(sentence string) string {
	sentence = strings.Join(strings.Fields(sentence), " ")
	if sentence == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(sentence)
	sentence = string(unicode.ToUpper(r)) + sentence[size:]
	switch sentence[len(sentence)-1] {
	case '.', '!', '?':
		return sentence
	}
	return sentence + "."
}

// Quality scores a summary against its source:
// 0.5 keyword coverage + 0.3 non-redundancy + 0.2 length compliance.
func Quality(source, summary string, minLength, maxLength int) float64 {
	if strings.TrimSpace(summary) == "" {
		return 0
	}
	score := weightCoverage*Coverage(source, summary) +
		weightNonRedundancy*NonRedundancy(summary) +
		weightLength*LengthCompliance(len(source), len(summary), minLength, maxLength)
	return types.Clamp01(math.Round(score*1000) / 1000)
}

// Coverage is the share of the source's top keywords that appear in the
// summary.
func Coverage(source, summary string) float64 {
	keywords := nlp.Keywords(source, coverageKeywords)
	if len(keywords) == 0 {
		return 1
	}
	present := map[string]struct{}{}
	for _, t := range nlp.Tokens(summary) {
		present[t] = struct{}{}
	}
	hits := 0
	for _, k := range keywords {
		if _, ok := present[k]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// NonRedundancy is one minus the highest token similarity between two
// sentences of the summary.
func NonRedundancy(summary string) float64 {
	sentences := nlp.Sentences(summary)
	worst := 0.0
	for i := range sentences {
		for j := i + 1; j < len(sentences); j++ {
			worst = math.Max(worst, nlp.Jaccard(sentences[i].Text, sentences[j].Text))
		}
	}
	return 1 - worst
}

// LengthCompliance is 1 when the summary length lies in
// [min(minLength, sourceLen), maxLength] and decays proportionally outside.
func LengthCompliance(sourceLen, summaryLen, minLength, maxLength int) float64 {
	lower := minLength
	if sourceLen < lower {
		lower = sourceLen
	}
	switch {
	case summaryLen == 0:
		return 0
	case lower > 0 && summaryLen < lower:
		return float64(summaryLen) / float64(lower)
	case maxLength > 0 && summaryLen > maxLength:
		return float64(maxLength) / float64(summaryLen)
	}
	return 1
}
