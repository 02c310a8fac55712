package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"sentinel invalid input", ErrInvalidInput, IsInvalidInput, true},
		{"wrapped invalid input", fmt.Errorf("normalize: %w", ErrInvalidInput), IsInvalidInput, true},
		{"typed invalid input", InvalidInput("empty text"), IsInvalidInput, true},
		{"typed stage failure", StageFailure("summary_generation", errors.New("boom")), IsStageFailure, true},
		{"typed quality", QualityBelowThreshold(nil), IsQualityBelowThreshold, true},
		{"typed update failure", ModelUpdateFailure("topic_detection", "missing keys", nil), IsModelUpdateFailure, true},
		{"cache inconsistency", CacheInconsistency("k", "bad type"), IsCacheInconsistency, true},
		{"stage is not quality", StageFailure("x", nil), IsQualityBelowThreshold, false},
		{"nil", nil, IsStageFailure, false},
		{"not found", fmt.Errorf("load: %w", ErrNotFound), IsNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestMinutesError_Error(t *testing.T) {
	err := StageTimeout("topic_detection", 1500*time.Millisecond, time.Second, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out after 1.5s")
	assert.True(t, IsTimeout(err))
	assert.True(t, IsStageFailure(err))

	plain := InvalidInput("text must not be empty")
	assert.Equal(t, "INVALID_INPUT: text must not be empty", plain.Error())
}

func TestMinutesError_Public(t *testing.T) {
	internal := StageFailure("action_item_recognition", errors.New("model roberta-large-v3 exploded"))
	assert.NotContains(t, internal.Public(), "roberta")
	assert.Equal(t, GetDescription(CodeStageFailure), internal.Public())

	quality := QualityBelowThreshold([]string{"topic relevance 0.80 below target 0.95"})
	assert.Contains(t, quality.Public(), "0.95")
}

func TestClassifyError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ClassifyError(nil, "x"))
	})

	t.Run("already classified keeps code and gains stage", func(t *testing.T) {
		got := ClassifyError(fmt.Errorf("wrap: %w", InvalidInput("bad")), "summary_generation")
		require.NotNil(t, got)
		assert.Equal(t, CodeInvalidInput, got.Code)
		assert.Equal(t, "summary_generation", got.Stage)
	})

	t.Run("deadline becomes stage failure", func(t *testing.T) {
		got := ClassifyError(fmt.Errorf("infer: %w", context.DeadlineExceeded), "topic_detection")
		assert.Equal(t, CodeStageFailure, got.Code)
		assert.True(t, IsTimeout(got))
	})

	t.Run("unknown with stage", func(t *testing.T) {
		got := ClassifyError(errors.New("backend returned 500"), "topic_detection")
		assert.Equal(t, CodeStageFailure, got.Code)
		assert.Equal(t, "topic_detection", got.Stage)
	})

	t.Run("unknown without stage", func(t *testing.T) {
		assert.Equal(t, CodeInternal, ClassifyError(errors.New("x"), "").Code)
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidInput, CodeOf(fmt.Errorf("x: %w", ErrInvalidInput)))
	assert.Equal(t, CodeQualityBelowThreshold, CodeOf(QualityBelowThreshold(nil)))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("other")))
	assert.True(t, IsErrorRetryable(StageFailure("s", nil)))
}
