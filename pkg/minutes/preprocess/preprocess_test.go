package preprocess

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/cache"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/chunk"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/normalize"
)

const transcript = "[00:00:01] John Smith: um, welcome everyone. We will review the budget today. " +
	"[00:00:09] Mary Jones: Thanks. I will prepare the forecast by next Friday. " +
	"[00:00:15] Speaker 3: Sounds good, you know, let's ship it."

func TestProcess_EmptyInput(t *testing.T) {
	p := New(DefaultConfig())
	for _, in := range []string{"", "   \n\t"} {
		_, err := p.Process(context.Background(), in)
		require.Error(t, err)
		assert.True(t, merrors.IsInvalidInput(err))
	}
}

func TestProcess_OnlyArtifacts(t *testing.T) {
	p := New(DefaultConfig())
	_, err := p.Process(context.Background(), "[00:00:01] Speaker 1: [00:00:02]")
	require.Error(t, err)
	assert.True(t, merrors.IsInvalidInput(err))
}

func TestProcess_Document(t *testing.T) {
	p := New(DefaultConfig())
	doc, err := p.Process(context.Background(), transcript)
	require.NoError(t, err)

	assert.NotContains(t, doc.Text, "[00:")
	assert.NotContains(t, doc.Text, "Speaker 3")
	assert.NotContains(t, doc.Text, "um,")
	assert.NotContains(t, doc.Text, "you know")
	assert.Contains(t, doc.Text, "I will prepare the forecast by next Friday.")

	require.Len(t, doc.Segments, 3)
	assert.Equal(t, "John Smith", doc.Segments[0].Speaker)
	assert.Equal(t, "Mary Jones", doc.Segments[1].Speaker)
	assert.Equal(t, "Speaker 3", doc.Segments[2].Speaker)

	require.Len(t, doc.Chunks, 1)
	assert.Equal(t, doc.Text, doc.Chunks[0].Text)
	assert.Contains(t, doc.Chunks[0].Speakers, "John Smith")
	assert.NotEmpty(t, doc.Sentences)

	assert.Equal(t, len(transcript), doc.Metadata.OriginalLength)
	assert.Equal(t, len(doc.Text), doc.Metadata.ProcessedLength)
	assert.Equal(t, cache.Fingerprint(transcript), doc.Metadata.Fingerprint)
	assert.False(t, doc.Metadata.CacheHit)
}

func TestProcess_PassesAreConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RemoveFillerWords = false
	p := New(cfg)

	doc, err := p.Process(context.Background(), transcript)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "um, welcome")
}

func TestProcess_CacheHitReturnsIndependentCopy(t *testing.T) {
	c := cache.New()
	p := New(DefaultConfig(), WithCache(c))
	ctx := context.Background()

	first, err := p.Process(ctx, transcript)
	require.NoError(t, err)
	first.Segments[0].Speaker = "mutated"
	first.Chunks[0].Speakers["extra"] = first.Chunks[0].Speakers["John Smith"]

	second, err := p.Process(ctx, transcript)
	require.NoError(t, err)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, "John Smith", second.Segments[0].Speaker)
	assert.NotContains(t, second.Chunks[0].Speakers, "extra")
	assert.Equal(t, first.Text, second.Text)
}

func TestProcess_CacheKeyDependsOnConfig(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	_, err := New(DefaultConfig(), WithCache(c)).Process(ctx, transcript)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RemoveFillerWords = false
	doc, err := New(cfg, WithCache(c)).Process(ctx, transcript)
	require.NoError(t, err)
	assert.False(t, doc.Metadata.CacheHit)
	assert.Contains(t, doc.Text, "um,")
}

func longTranscript(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "[00:%02d:%02d] Speaker %d: Um, item %d of the plan is basically on track. ", i/60%60, i%60, i%3+1, i)
	}
	return b.String()
}

func TestProcess_ParallelMatchesSequential(t *testing.T) {
	raw := longTranscript(200)

	parallel := DefaultConfig()
	parallel.MaxChunkSize = 512
	parallel.Workers = 4
	doc, err := New(parallel).Process(context.Background(), raw)
	require.NoError(t, err)

	sequential := parallel
	sequential.MaxChunkSize = len(raw) + 1
	want, err := New(sequential).Process(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, want.Text, doc.Text)
	assert.Greater(t, len(doc.Chunks), 1)
	for _, c := range doc.Chunks {
		assert.LessOrEqual(t, c.Start, c.End)
	}
	assert.Equal(t, len(doc.Text), doc.Chunks[len(doc.Chunks)-1].End)
}

func TestProcess_ParallelKeepsMultiWordPatternsAcrossPieces(t *testing.T) {
	raw := strings.Repeat("alpha beta ", 20) +
		"Speaker 3: we ship it you know tomorrow " +
		strings.Repeat("gamma delta ", 20)
	want := normalize.New(normalize.Options{CleanArtifacts: true, RemoveFillerWords: true, NormalizeText: true}).Apply(raw)

	for size := 150; size < 300; size++ {
		cfg := DefaultConfig()
		cfg.MaxChunkSize = size
		cfg.Workers = 4

		doc, err := New(cfg).Process(context.Background(), raw)
		require.NoError(t, err, "size %d", size)
		require.Equal(t, want, doc.Text, "size %d", size)
		assert.NotContains(t, doc.Text, "Speaker")
		assert.NotContains(t, doc.Text, "you know")
	}
}

func TestProcess_SegmentOffsetsIndexCleanedText(t *testing.T) {
	raw := "[00:00:01] Speaker 1: um so we should, like, ship it. [00:00:09] Jane Doe: I will write the notes by Friday."

	doc, err := New(DefaultConfig()).Process(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, doc.Segments, 2)

	for _, s := range doc.Segments {
		assert.LessOrEqual(t, 0, s.Start)
		assert.LessOrEqual(t, s.Start, s.End)
		assert.LessOrEqual(t, s.End, len(doc.Text))
	}
	assert.Equal(t, "we should, ship it.", doc.Text[doc.Segments[0].Start:doc.Segments[0].End])
	assert.Contains(t, doc.Text[doc.Segments[1].Start:doc.Segments[1].End], "I will write the notes by Friday.")
}

func TestProcess_MemoryBudgetShrinksChunks(t *testing.T) {
	raw := longTranscript(50)
	probe := chunk.StaticProbe{Free: 1024 * 1024 * 4 * 300, Available: true}

	doc, err := New(DefaultConfig(), WithMemoryProbe(probe)).Process(context.Background(), raw)
	require.NoError(t, err)
	require.Greater(t, len(doc.Chunks), 1)
	assert.Less(t, doc.Chunks[0].Start, doc.Chunks[1].Start)
}

func TestProcess_CacheKeyDependsOnChunkTarget(t *testing.T) {
	c := cache.New()
	probe := &chunk.StaticProbe{Free: 1 << 50, Available: true}
	p := New(DefaultConfig(), WithCache(c), WithMemoryProbe(probe))
	ctx := context.Background()
	raw := longTranscript(50)

	first, err := p.Process(ctx, raw)
	require.NoError(t, err)

	probe.Free = 1024 * 1024 * 4 * 300
	second, err := p.Process(ctx, raw)
	require.NoError(t, err)
	assert.False(t, second.Metadata.CacheHit)
	assert.Less(t, second.Chunks[0].End, first.Chunks[0].End)
	assert.Greater(t, len(second.Chunks), len(first.Chunks))

	third, err := p.Process(ctx, raw)
	require.NoError(t, err)
	assert.True(t, third.Metadata.CacheHit)

	assert.NotEqual(t, DefaultConfig().Tag(2048), DefaultConfig().Tag(300))
}

func TestSplitPieces(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."
	pieces := SplitPieces(text, 20)

	assert.Equal(t, text, strings.Join(pieces, ""))
	for _, piece := range pieces {
		assert.LessOrEqual(t, len(piece), 20)
	}
	assert.Equal(t, "One two three.", pieces[0])

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, SplitPieces("abcdefghij", 4))
	// A combining mark stays with its base letter.
	assert.Equal(t, []string{"abce\u0301", "f"}, SplitPieces("abce\u0301f", 4))
	assert.Nil(t, SplitPieces("", 4))
}

func TestProcess_Canceled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxChunkSize = 64
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg).Process(ctx, longTranscript(20))
	assert.ErrorIs(t, err, context.Canceled)
}
