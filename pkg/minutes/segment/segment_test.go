package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/normalize"
)

func TestSegment_NumberedAndNamedSpeakers(t *testing.T) {
	text := "Speaker 1: Welcome everyone to the weekly sync. Jane Doe: Thanks. Speaker 1: Let's review the roadmap items now."

	segs := Segment(text)
	require.Len(t, segs, 3)

	assert.Equal(t, "Speaker 1", segs[0].Speaker)
	assert.Equal(t, "Welcome everyone to the weekly sync.", segs[0].Text)
	assert.Equal(t, 1.0, segs[0].Confidence)
	assert.Equal(t, 0, segs[0].Start)

	assert.Equal(t, "Jane Doe", segs[1].Speaker)
	assert.Equal(t, "Thanks.", segs[1].Text)
	assert.InDelta(t, 0.2, segs[1].Confidence, 1e-9)

	assert.Equal(t, "Speaker 1", segs[2].Speaker)
	assert.Equal(t, len(text), segs[2].End)
	assert.Equal(t, segs[1].End, segs[2].Start)
}

func TestSegment_NoHeaders(t *testing.T) {
	segs := Segment("just some text without any speakers.")
	assert.NotNil(t, segs)
	assert.Empty(t, segs)
}

func TestSegment_EmptyContent(t *testing.T) {
	segs := Segment("Speaker 1: Speaker 2: hello there")
	require.Len(t, segs, 2)
	assert.Equal(t, "", segs[0].Text)
	assert.Equal(t, 0.0, segs[0].Confidence)
	assert.InDelta(t, 0.4, segs[1].Confidence, 1e-9)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"", 0},
		{"one", 0.2},
		{"one two three four", 0.8},
		{"one two three four five", 1},
		{"one two three four five six seven", 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.text), 1e-9)
		})
	}
}

func TestSpeakerContexts(t *testing.T) {
	segs := Segment("Speaker 1: a b c d e. Jane Doe: ok. Speaker 1: f g c.")
	ctx := SpeakerContexts(segs)

	require.Contains(t, ctx, "Speaker 1")
	s1 := ctx["Speaker 1"]
	assert.Equal(t, 2, s1.SegmentCount)
	assert.Equal(t, 8, s1.WordCount)
	assert.InDelta(t, 0.8, s1.MeanConfidence, 1e-9)

	assert.Equal(t, 1, ctx["Jane Doe"].SegmentCount)
}

func TestAlign(t *testing.T) {
	n := normalize.New(normalize.Options{CleanArtifacts: true, RemoveFillerWords: true, NormalizeText: true})
	source := "Speaker 1: um so we should, like, ship it. Jane Doe: I will write the notes by Friday."
	text := n.Apply(source)

	segs := Segment(source)
	require.Len(t, segs, 2)
	Align(segs, source, text, n.Apply)

	assert.Equal(t, "we should, ship it.", text[segs[0].Start:segs[0].End])
	assert.Equal(t, "Jane Doe I will write the notes by Friday.", text[segs[1].Start:segs[1].End])
	assert.Equal(t, len(text), segs[1].End)
}

func TestAlign_UnlocatedSegmentIsEmpty(t *testing.T) {
	source := "Speaker 1: alpha beta. Speaker 2: gamma delta."
	segs := Segment(source)
	require.Len(t, segs, 2)

	// The second span is dropped from text entirely.
	text := "alpha beta."
	Align(segs, source, text, normalize.Clean)

	assert.Equal(t, 0, segs[0].Start)
	assert.Equal(t, len(text), segs[0].End)
	assert.Equal(t, len(text), segs[1].Start)
	assert.Equal(t, len(text), segs[1].End)
}
