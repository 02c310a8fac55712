package summary

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend/backendtest"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend/lexical"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/chunk"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/nlp"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

const meeting = "The budget for the quarter is tight. Budget cuts affect hiring. " +
	"The budget review happens Friday. Hiring plans depend on the budget forecast."

func document(text string) *types.ProcessedDocument {
	return &types.ProcessedDocument{Text: text, Sentences: nlp.Sentences(text)}
}

func longMeeting() string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Item %d of the migration schedule was reviewed by the platform team. ", i)
	}
	return strings.TrimSpace(b.String())
}

func lexicalSetup(t *testing.T) (*lexical.Backend, *stage.Handle) {
	t.Helper()
	b := lexical.New()
	cfg := stage.DefaultConfig(types.StageSummaryGeneration)
	ref, err := b.Load(context.Background(), cfg.ModelName, backend.TaskGenerate)
	require.NoError(t, err)
	return b, stage.NewHandle(types.StageSummaryGeneration, cfg, ref, 1)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "The plan.", Format("the plan"))
	assert.Equal(t, "Done!", Format("Done!"))
	assert.Equal(t, "Ship it?", Format("  ship   it? "))
	assert.Equal(t, "", Format("   "))
}

func TestMerge_RemovesDuplicates(t *testing.T) {
	parts := []string{
		"The budget is tight. Hiring is paused.",
		"the budget is tight. Next review is on Friday",
	}
	assert.Equal(t, "The budget is tight. Hiring is paused. Next review is on Friday.", Merge(parts))
	assert.Empty(t, Merge(nil))
}

func TestLengthCompliance(t *testing.T) {
	tests := []struct {
		name                                  string
		source, summary, minLength, maxLength int
		want                                  float64
	}{
		{"within bounds", 5000, 500, 256, 1024, 1},
		{"too short", 5000, 128, 256, 1024, 0.5},
		{"too long", 5000, 2048, 256, 1024, 0.5},
		{"short source lowers minimum", 100, 100, 256, 1024, 1},
		{"empty", 5000, 0, 256, 1024, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, LengthCompliance(tt.source, tt.summary, tt.minLength, tt.maxLength), 1e-9)
		})
	}
}

func TestQuality(t *testing.T) {
	assert.Zero(t, Quality(meeting, "", 10, 100))

	full := Quality(meeting, meeting, 10, 1000)
	partial := Quality(meeting, "The weather was nice.", 10, 1000)
	assert.Greater(t, full, partial)
	assert.LessOrEqual(t, full, 1.0)

	assert.InDelta(t, 1.0, NonRedundancy("Alpha beta. Gamma delta."), 1e-9)
	assert.InDelta(t, 0.0, NonRedundancy("Alpha beta. Alpha beta."), 1e-9)
	assert.InDelta(t, 1.0, Coverage(meeting, meeting), 1e-9)
}

func TestGenerate_Lexical(t *testing.T) {
	b, h := lexicalSetup(t)
	cfg := stage.DefaultConfig(types.StageSummaryGeneration)

	g := New(b)
	assert.Equal(t, types.StageSummaryGeneration, g.Name())
	assert.Equal(t, backend.TaskGenerate, g.Task())

	res, err := g.Generate(context.Background(), document(meeting), h, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Summary)
	assert.Equal(t, 1, res.Metadata.ChunkCount)
	assert.Equal(t, len(meeting), res.Metadata.OriginalLength)
	assert.Equal(t, len(res.Summary), res.Metadata.SummaryLength)
	assert.Equal(t, cfg.ModelName, res.Metadata.ModelName)
	assert.GreaterOrEqual(t, res.Metadata.QualityScore, 0.0)
	assert.LessOrEqual(t, res.Metadata.QualityScore, 1.0)
	assert.Equal(t, res.Metadata.QualityScore, res.Score())
}

func TestGenerate_LongInputIsChunkedAndDeduplicated(t *testing.T) {
	b, h := lexicalSetup(t)
	cfg := stage.DefaultConfig(types.StageSummaryGeneration)
	text := longMeeting()

	res, err := New(b).Generate(context.Background(), document(text), h, cfg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Metadata.ChunkCount, 3)

	sentences := nlp.Sentences(res.Summary)
	require.NotEmpty(t, sentences)
	for i := range sentences {
		for j := i + 1; j < len(sentences); j++ {
			assert.Less(t, nlp.Jaccard(sentences[i].Text, sentences[j].Text), DuplicateSimilarity)
		}
	}

	probed, err := New(b, WithMemoryProbe(chunk.StaticProbe{Free: 300 * 4 * 1024 * 1024, Available: true})).
		Generate(context.Background(), document(text), h, cfg)
	require.NoError(t, err)
	assert.Greater(t, probed.Metadata.ChunkCount, res.Metadata.ChunkCount, "low device memory shrinks chunks")
}

func TestGenerate_PassesParams(t *testing.T) {
	cfg := stage.DefaultConfig(types.StageSummaryGeneration)
	m := new(backendtest.MockBackend)
	m.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(p backend.Params) bool {
		return p.MinLength == cfg.MinLength && p.MaxLength == cfg.MaxLength && p.NumBeams == cfg.NumBeams
	})).Return(backendtest.Repeat(backend.Output{Text: "budget review friday"}), nil)

	h := stage.NewHandle(types.StageSummaryGeneration, cfg, backend.ModelRef{ID: "m"}, 1)
	res, err := New(m).Generate(context.Background(), document(meeting), h, cfg)
	require.NoError(t, err)
	assert.Equal(t, "Budget review friday.", res.Summary)
	m.AssertExpectations(t)
}

func TestGenerate_Errors(t *testing.T) {
	cfg := stage.DefaultConfig(types.StageSummaryGeneration)
	h := stage.NewHandle(types.StageSummaryGeneration, cfg, backend.ModelRef{ID: "m"}, 1)

	_, err := New(new(backendtest.MockBackend)).Generate(context.Background(), document(" "), h, cfg)
	assert.True(t, merrors.IsInvalidInput(err))

	m := new(backendtest.MockBackend)
	m.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]backend.Output{}, nil)
	_, err = New(m).Generate(context.Background(), document(meeting), h, cfg)
	assert.True(t, merrors.IsStageFailure(err))
}
