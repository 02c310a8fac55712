// Package lexical is a deterministic, in-process inference backend. It
// scores action items from linguistic cues, derives topics from keyword
// salience and produces extractive summaries by sentence frequency ranking.
// It needs no model files and is the default backend for development and
// tests.
package lexical

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/nlp"
)

// Device is the device the lexical backend reports.
const Device = "cpu"

const defaultTopK = 5

// Backend is the lexical backend. The zero value is not usable; call New.
type Backend struct {
	mu     sync.RWMutex
	loaded map[string]backend.ModelRef
	logger logging.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a lexical backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		loaded: make(map[string]backend.ModelRef),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(logging.Component("lexical-backend"))
	return b
}

// Device implements backend.DeviceReporter.
func (b *Backend) Device() string { return Device }

// FreeMemory reports no accelerator, so chunk budgets stay at their
// configured maximum.
func (b *Backend) FreeMemory() (uint64, bool) { return 0, false }

// Load registers model for task. Any non-empty model name is accepted.
func (b *Backend) Load(ctx context.Context, model string, task backend.Task) (backend.ModelRef, error) {
	if err := ctx.Err(); err != nil {
		return backend.ModelRef{}, err
	}
	if strings.TrimSpace(model) == "" {
		return backend.ModelRef{}, fmt.Errorf("model name is required")
	}
	switch task {
	case backend.TaskTopics, backend.TaskClassify, backend.TaskGenerate:
	default:
		return backend.ModelRef{}, fmt.Errorf("unsupported task %q", task)
	}
	ref := backend.ModelRef{
		ID:       uuid.New().String(),
		Model:    model,
		Task:     task,
		Device:   Device,
		LoadedAt: time.Now(),
	}
	b.mu.Lock()
	b.loaded[ref.ID] = ref
	b.mu.Unlock()
	b.logger.Debug("Model loaded", logging.F("model", model), logging.F("task", string(task)), logging.F("ref", ref.ID))
	return ref, nil
}

// Unload forgets ref. Unloading an unknown ref is not an error.
func (b *Backend) Unload(ctx context.Context, ref backend.ModelRef) error {
	b.mu.Lock()
	delete(b.loaded, ref.ID)
	b.mu.Unlock()
	b.logger.Debug("Model unloaded", logging.F("model", ref.Model), logging.F("ref", ref.ID))
	return nil
}

// Loaded returns the number of loaded models.
func (b *Backend) Loaded() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.loaded)
}

// Infer runs ref's task over batch.
func (b *Backend) Infer(ctx context.Context, ref backend.ModelRef, batch []string, params backend.Params) ([]backend.Output, error) {
	b.mu.RLock()
	_, ok := b.loaded[ref.ID]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model %s (%s) is not loaded", ref.Model, ref.ID)
	}

	outs := make([]backend.Output, len(batch))
	for i, input := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch ref.Task {
		case backend.TaskClassify:
			outs[i] = classify(input)
		case backend.TaskTopics:
			outs[i] = topics(input, params.TopK)
		case backend.TaskGenerate:
			outs[i] = backend.Output{Text: summarize(input, params)}
		default:
			return nil, fmt.Errorf("unsupported task %q", ref.Task)
		}
	}
	return outs, nil
}

var (
	commitmentRegex = regexp.MustCompile(`(?i)\b(?:will|shall|must|should|need to|needs to|has to|have to|going to|is to|are to)\b|\w'll\b`)
	nameToRegex     = regexp.MustCompile(`\b[A-Z][a-z]+ to [a-z]+`)
	markerRegex     = regexp.MustCompile(`(?i)\b(?:action items?|todo|to-do|task|assigned)\b`)
	actionVerbRegex = regexp.MustCompile(`(?i)\b(?:prepare|send|review|update|schedule|finish|complete|draft|write|share|fix|deploy|create|organize|organise|set up|book|call|email|check|investigate|ensure|deliver|submit|present|circulate|coordinate|confirm|contact|reach out|publish|test|implement|plan|document|analyze|analyse|research|build|clean up|migrate|ship|handle|approve|finalize|finalise|compile|arrange|gather|follow up|look into|sync|own|drive|escalate)\b`)
)

// Cue weights for the action classifier.
const (
	weightCommitment = 0.30
	weightActionVerb = 0.30
	weightSubject    = 0.15
	weightMarker     = 0.15
	weightDeadline   = 0.10
	maxActionScore   = 0.99
)

func classify(sentence string) backend.Output {
	score := 0.0
	if commitmentRegex.MatchString(sentence) || nameToRegex.MatchString(sentence) {
		score += weightCommitment
	}
	if actionVerbRegex.MatchString(sentence) {
		score += weightActionVerb
	}
	if _, ok := nlp.Assignee(sentence); ok || nlp.FirstPerson(sentence) {
		score += weightSubject
	}
	if markerRegex.MatchString(sentence) {
		score += weightMarker
	}
	if _, ok := nlp.Temporal(sentence, time.Now()); ok {
		score += weightDeadline
	}
	score = math.Min(score, maxActionScore)
	score = math.Round(score*1000) / 1000
	return backend.Output{Labels: []backend.LabelScore{
		{Label: backend.LabelAction, Score: score},
		{Label: "other", Score: math.Round((1-score)*1000) / 1000},
	}}
}

// topics ranks the content words of text by frequency. Relevance is
// 0.9 + 0.1*count/maxCount. Children are the words that co-occur most in the
// same sentences, scored relative to their parent.
func topics(text string, topK int) backend.Output {
	if topK <= 0 {
		topK = defaultTopK
	}
	sentences := nlp.Sentences(text)
	freq := map[string]int{}
	cooc := map[string]map[string]int{}
	for _, s := range sentences {
		toks := unique(nlp.ContentTokens(s.Text))
		for _, t := range nlp.ContentTokens(s.Text) {
			freq[t]++
		}
		for _, a := range toks {
			if cooc[a] == nil {
				cooc[a] = map[string]int{}
			}
			for _, c := range toks {
				if a != c {
					cooc[a][c]++
				}
			}
		}
	}
	ranked := rank(freq)
	if len(ranked) == 0 {
		return backend.Output{Labels: []backend.LabelScore{}}
	}
	maxCount := float64(freq[ranked[0]])
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	labels := make([]backend.LabelScore, 0, len(ranked))
	for _, word := range ranked {
		rel := round3(0.9 + 0.1*float64(freq[word])/maxCount)
		related := rank(cooc[word])
		keywords := related
		if len(keywords) > 3 {
			keywords = keywords[:3]
		}
		var children []backend.LabelScore
		for _, c := range related {
			if len(children) == 2 {
				break
			}
			score := round3(rel * float64(cooc[word][c]) / float64(freq[word]))
			if score > rel {
				score = rel
			}
			children = append(children, backend.LabelScore{Label: c, Score: score})
		}
		labels = append(labels, backend.LabelScore{
			Label:    word,
			Score:    rel,
			Keywords: append([]string(nil), keywords...),
			Children: children,
		})
	}
	return backend.Output{Labels: labels}
}

// summarize selects the highest ranked sentences, in original order, until
// the summary reaches a third of the input, bounded by params.
func summarize(text string, params backend.Params) string {
	sentences := nlp.Sentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}

	freq := map[string]float64{}
	for _, s := range sentences {
		for _, t := range nlp.ContentTokens(s.Text) {
			freq[t]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, s := range sentences {
		toks := nlp.ContentTokens(s.Text)
		sum := 0.0
		for _, t := range toks {
			if maxF > 0 {
				sum += freq[t] / maxF
			}
		}
		if n := len(nlp.Tokens(s.Text)); n > 0 {
			sum /= math.Sqrt(float64(n))
		}
		scores[i] = scored{i, sum}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	target := len(text) / 3
	if params.MinLength > 0 && target < params.MinLength {
		target = params.MinLength
	}
	if params.MaxLength > 0 && target > params.MaxLength {
		target = params.MaxLength
	}

	var selected []int
	length := 0
	for _, s := range scores {
		n := len(sentences[s.idx].Text)
		if length > 0 && params.MaxLength > 0 && length+n+1 > params.MaxLength {
			continue
		}
		selected = append(selected, s.idx)
		length += n + 1
		if length >= target {
			break
		}
	}
	sort.Ints(selected)
	parts := make([]string, len(selected))
	for i, idx := range selected {
		parts[i] = sentences[idx].Text
	}
	return strings.Join(parts, " ")
}

func rank(counts map[string]int) []string {
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	return words
}

func unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
