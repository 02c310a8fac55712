// Package preprocess turns raw transcript text into a ProcessedDocument:
// artifact cleanup, speaker segmentation, normalization, sentence spans and
// memory-bounded chunks. Results are cached by fingerprint.
package preprocess

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/cache"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/chunk"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/nlp"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/normalize"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/segment"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// DefaultMaxChunkSize is the configured chunk maximum when none is set.
const DefaultMaxChunkSize = 2048

// Config mirrors the preprocessing section of the configuration.
type Config struct {
	RemoveFillerWords bool `yaml:"remove_filler_words"`
	NormalizeText     bool `yaml:"normalize_text"`
	CleanArtifacts    bool `yaml:"clean_artifacts"`
	MaxChunkSize      int  `yaml:"max_chunk_size"`

	// Workers bounds parallel normalization of long inputs.
	Workers int `yaml:"workers"`
}

// DefaultConfig enables every pass.
func DefaultConfig() Config {
	return Config{
		RemoveFillerWords: true,
		NormalizeText:     true,
		CleanArtifacts:    true,
		MaxChunkSize:      DefaultMaxChunkSize,
		Workers:           4,
	}
}

// Tag identifies the passes and the chunk target a document was produced
// with. It namespaces document cache keys.
func (c Config) Tag(target int) string {
	return fmt.Sprintf("%s:f%t:n%t:c%t:s%d:t%d", cache.NamespaceDocument, c.RemoveFillerWords, c.NormalizeText, c.CleanArtifacts, c.MaxChunkSize, target)
}

// Pipeline runs preprocessing. It is safe for concurrent use.
type Pipeline struct {
	cfg        Config
	normalizer *normalize.Normalizer
	cache      *cache.Cache
	probe      chunk.MemoryProbe
	logger     logging.Logger
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache enables the document cache.
func WithCache(c *cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMemoryProbe bounds chunk sizes by free device memory.
func WithMemoryProbe(probe chunk.MemoryProbe) Option {
	return func(p *Pipeline) { p.probe = probe }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline.
func New(cfg Config, opts ...Option) *Pipeline {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		cfg: cfg,
		normalizer: normalize.New(normalize.Options{
			CleanArtifacts:    cfg.CleanArtifacts,
			RemoveFillerWords: cfg.RemoveFillerWords,
			NormalizeText:     cfg.NormalizeText,
		}),
		logger: logging.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logging.Component("preprocess"))
	return p
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Process preprocesses raw. The returned document is owned by the caller.
func (p *Pipeline) Process(ctx context.Context, raw string) (*types.ProcessedDocument, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, merrors.InvalidInput("transcript text is empty")
	}
	start := p.now()
	fp := cache.Fingerprint(raw)
	target := chunk.Budget(p.cfg.MaxChunkSize, p.probe)
	key := cache.Key(p.cfg.Tag(target), 0, fp)

	if p.cache != nil {
		if doc, ok := cache.Lookup[*types.ProcessedDocument](p.cache, key); ok {
			out := doc.Clone()
			out.Metadata.CacheHit = true
			out.Metadata.Duration = p.now().Sub(start)
			p.logger.WithContext(ctx).Debug("Preprocessing cache hit", logging.F("fingerprint", fp[:12]))
			return out, nil
		}
	}

	segInput := raw
	if p.cfg.CleanArtifacts {
		segInput = normalize.StripArtifacts(raw)
	}
	segments := segment.Segment(segInput)
	speakers := segment.SpeakerContexts(segments)

	text, err := p.normalize(ctx, segInput)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, merrors.InvalidInput("transcript contains no text after normalization")
	}
	segment.Align(segments, segInput, text, p.normalizer.Apply)

	doc := &types.ProcessedDocument{
		Text:      text,
		Segments:  segments,
		Chunks:    chunk.Chunk(text, target, speakers, true),
		Sentences: nlp.Sentences(text),
		Metadata: types.DocumentMetadata{
			OriginalLength:  len(raw),
			ProcessedLength: len(text),
			Fingerprint:     fp,
		},
	}
	doc.Metadata.Duration = p.now().Sub(start)

	if p.cache != nil {
		p.cache.Put(key, doc.Clone())
	}

	p.logger.WithContext(ctx).Debug("Preprocessed transcript",
		logging.F("original_length", doc.Metadata.OriginalLength),
		logging.F("processed_length", doc.Metadata.ProcessedLength),
		logging.F("segments", len(segments)),
		logging.F("chunks", len(doc.Chunks)),
		logging.F("chunk_target", target),
		logging.F("duration_ms", doc.Metadata.Duration.Milliseconds()),
	)
	return doc, nil
}

// normalize runs the normalizer. The artifact and filler passes always see
// the whole text; the Unicode pass of inputs longer than MaxChunkSize runs on
// pieces in parallel, reassembled in offset order.
func (p *Pipeline) normalize(ctx context.Context, text string) (string, error) {
	text = p.normalizer.Prepare(text)
	if !p.normalizer.Composes() || len(text) <= p.cfg.MaxChunkSize {
		return collapse(p.normalizer.Compose(text)), nil
	}

	pieces := SplitPieces(text, p.cfg.MaxChunkSize)
	out := make([]string, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, piece := range pieces {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.normalizer.Compose(piece)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("normalizing transcript: %w", err)
	}
	return collapse(strings.Join(out, "")), nil
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SplitPieces cuts text into consecutive pieces of at most size bytes,
// preferring to cut after a sentence terminal followed by whitespace, then
// at whitespace. Text without whitespace is cut at the next Unicode
// normalization boundary, which may exceed size. Concatenating the pieces
// yields text.
func SplitPieces(text string, size int) []string {
	if size < 1 {
		size = 1
	}
	var pieces []string
	for len(text) > size {
		cut := lastCut(text[:size+1])
		if cut <= 0 {
			cut = size
			for cut < len(text) && !boundaryBefore(text[cut:]) {
				_, n := utf8.DecodeRuneInString(text[cut:])
				cut += n
			}
		}
		pieces = append(pieces, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// lastCut returns the index just after the last sentence terminal followed
// by whitespace in window, or after the last whitespace, or 0.
func lastCut(window string) int {
	for i := len(window) - 2; i > 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			if isSpace(window[i+1]) {
				return i + 1
			}
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if isSpace(window[i]) {
			return i
		}
	}
	return 0
}

// boundaryBefore reports whether s starts a rune that never combines with
// the text before it under NFKC.
func boundaryBefore(s string) bool {
	return utf8.RuneStart(s[0]) && norm.NFKC.PropertiesString(s).BoundaryBefore()
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
