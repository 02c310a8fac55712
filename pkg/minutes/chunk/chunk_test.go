package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

func sentenceText(n int) string {
	sentence := "The team reviewed the quarterly roadmap and agreed on owners. "
	return strings.Repeat(sentence, n/len(sentence)+1)[:n]
}

// reassemble stitches chunks back together, dropping the overlapping prefix
// of each chunk after the first.
func reassemble(t *testing.T, chunks []types.TextChunk) string {
	t.Helper()
	var b strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		if i == 0 {
			require.Equal(t, 0, c.Start)
			b.WriteString(c.Text)
			prevEnd = c.End
			continue
		}
		require.LessOrEqual(t, c.Start, prevEnd, "gap between chunk %d and %d", i-1, i)
		b.WriteString(c.Text[prevEnd-c.Start:])
		prevEnd = c.End
	}
	return b.String()
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	chunks := Chunk("Short meeting.", 2048, nil, true)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Short meeting.", chunks[0].Text)
	assert.False(t, chunks[0].OverlapsNext)
}

func TestChunk_Empty(t *testing.T) {
	assert.Empty(t, Chunk("", 10, nil, true))
}

func TestChunk_SentenceBoundariesWithOverlap(t *testing.T) {
	text := sentenceText(5000)
	chunks := Chunk(text, 2048, nil, true)

	require.GreaterOrEqual(t, len(chunks), 3)
	for i, c := range chunks {
		assert.Equal(t, text[c.Start:c.End], c.Text)
		if i == len(chunks)-1 {
			assert.Equal(t, len(text), c.End)
			assert.False(t, c.OverlapsNext)
			continue
		}
		assert.Contains(t, ".!?", string(text[c.End-1]), "chunk %d must end on a sentence boundary", i)
		assert.True(t, c.OverlapsNext)
		assert.Equal(t, OverlapWidth, c.End-chunks[i+1].Start)
	}
	assert.Equal(t, text, reassemble(t, chunks))
}

func TestChunk_CoverageWithoutOverlap(t *testing.T) {
	texts := []string{
		sentenceText(777),
		"no terminals at all in this text just words",
		"héllo wörld ünïcode çhunks",
	}
	for _, text := range texts {
		for _, size := range []int{1, 3, 7, 64, 1000} {
			chunks := Chunk(text, size, nil, false)
			var b strings.Builder
			for i, c := range chunks {
				if i > 0 {
					assert.Equal(t, chunks[i-1].End, c.Start)
				}
				assert.False(t, c.OverlapsNext)
				b.WriteString(c.Text)
			}
			assert.Equal(t, text, b.String(), "size %d", size)
		}
	}
}

func TestChunk_CoverageWithOverlap(t *testing.T) {
	text := sentenceText(3000)
	for _, size := range []int{1, 50, 100, 101, 150, 512} {
		chunks := Chunk(text, size, nil, true)
		assert.Equal(t, text, reassemble(t, chunks), "size %d", size)
		for i := 1; i < len(chunks); i++ {
			assert.LessOrEqual(t, chunks[i-1].End-chunks[i].Start, OverlapWidth)
		}
	}
}

func TestChunk_Terminates(t *testing.T) {
	texts := map[string]string{
		"repeated terminals": strings.Repeat("!", 1200),
		"no terminals":       strings.Repeat("a", 1200),
		"sentences":          sentenceText(1200),
	}
	for name, text := range texts {
		for _, size := range []int{1, 2, 99, 100, 101, 102, 300} {
			for _, overlap := range []bool{true, false} {
				chunks := Chunk(text, size, nil, overlap)
				assert.LessOrEqual(t, len(chunks), MaxSteps(len(text), size), "%s size=%d overlap=%v", name, size, overlap)
				assert.Equal(t, len(text), chunks[len(chunks)-1].End)
			}
		}
	}
}

func TestChunk_SpeakerContextRestricted(t *testing.T) {
	speakers := map[string]types.SpeakerContext{
		"Jane Doe":  {Label: "Jane Doe", SegmentCount: 2},
		"Bob Stone": {Label: "Bob Stone", SegmentCount: 1},
	}
	text := "Jane Doe opened the meeting. " + strings.Repeat("x", 40) + ". Bob Stone closed it."

	chunks := Chunk(text, 30, speakers, false)
	require.Greater(t, len(chunks), 1)

	first := chunks[0]
	assert.Contains(t, first.Speakers, "Jane Doe")
	assert.NotContains(t, first.Speakers, "Bob Stone")

	last := chunks[len(chunks)-1]
	for label := range last.Speakers {
		assert.Contains(t, last.Text, label)
	}
}

func TestBudget(t *testing.T) {
	const mib = 1024 * 1024
	tests := []struct {
		name  string
		max   int
		probe MemoryProbe
		want  int
	}{
		{"no probe", 2048, nil, 2048},
		{"no accelerator", 2048, StaticProbe{Free: 0, Available: false}, 2048},
		{"plenty of memory never raises", 2048, StaticProbe{Free: 64 * 1024 * mib, Available: true}, 2048},
		{"scarce memory shrinks", 2048, StaticProbe{Free: 4000 * mib, Available: true}, 1000},
		{"exhausted memory floors at one", 2048, StaticProbe{Free: mib, Available: true}, 1},
		{"invalid max floors at one", 0, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Budget(tt.max, tt.probe))
		})
	}
}

func TestMaxSteps(t *testing.T) {
	assert.Equal(t, 5000, MaxSteps(5000, 50))
	assert.Equal(t, 3, MaxSteps(5000, 2048))
	assert.Equal(t, 1, MaxSteps(10, 2048))
}
