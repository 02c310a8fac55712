package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

func result(id, meeting string) *types.MinutesResult {
	return &types.MinutesResult{
		ID:        id,
		MeetingID: meeting,
		Topics:    types.TopicResult{Topics: []types.Topic{{Name: "budget", Relevance: 0.96}}},
		Summary:   types.SummaryResult{Summary: "Budget approved.", Metadata: types.SummaryMetadata{QualityScore: 0.9}},
		Metadata: types.MinutesMetadata{
			RequestID:      "req-" + id,
			ProcessingTime: 250 * time.Millisecond,
			Device:         "cpu",
			ModelVersions:  map[string]string{types.StageTopicDetection: "lexical-topics@1"},
		},
	}
}

func TestMemoryStore_Minutes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveMinutes(ctx, result("a", "m1")))
	require.NoError(t, s.SaveMinutes(ctx, result("b", "m2")))
	require.NoError(t, s.SaveMinutes(ctx, result("c", "m1")))
	require.NoError(t, s.SaveMinutes(ctx, result("a", "m1")))

	got, err := s.GetMinutes(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.MeetingID)

	// Returned values are copies.
	got.Topics.Topics[0].Name = "changed"
	again, err := s.GetMinutes(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "budget", again.Topics.Topics[0].Name)

	list, err := s.ListMinutes(ctx, "m1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[1].ID)

	_, err = s.GetMinutes(ctx, "missing")
	assert.True(t, merrors.IsNotFound(err))

	err = s.SaveMinutes(ctx, &types.MinutesResult{})
	assert.True(t, merrors.IsInvalidInput(err))
}

func TestMemoryStore_ModelUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordModelUpdate(ctx, update.Outcome{ID: "1", Stage: types.StageTopicDetection, Result: update.Committed, At: base}))
	require.NoError(t, s.RecordModelUpdate(ctx, update.Outcome{ID: "2", Stage: types.StageSummaryGeneration, Result: update.RolledBack, At: base.Add(time.Minute)}))
	require.NoError(t, s.RecordModelUpdate(ctx, update.Outcome{ID: "3", Stage: types.StageTopicDetection, Result: update.RolledBack, At: base.Add(2 * time.Minute)}))

	topics, err := s.ListModelUpdates(ctx, types.StageTopicDetection, 10)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "3", topics[0].ID)
	assert.Equal(t, "1", topics[1].ID)

	all, err := s.ListModelUpdates(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "3", all[0].ID)
	assert.Equal(t, "2", all[1].ID)
}

// execRecorder captures Exec calls.
type execRecorder struct {
	sql  string
	args []any
	err  error
}

func (e *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql, e.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func (e *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, assert.AnError
}

func (e *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(...any) error { return pgx.ErrNoRows }

func TestPostgresStore_SaveMinutes(t *testing.T) {
	db := &execRecorder{}
	s := NewPostgresStore(db)

	require.NoError(t, s.SaveMinutes(context.Background(), result("a", "m1")))
	assert.Contains(t, db.sql, "INSERT INTO minutes_results")
	assert.Contains(t, db.sql, "ON CONFLICT (id) DO NOTHING")
	require.Len(t, db.args, 12)
	assert.Equal(t, "a", db.args[0])
	assert.Equal(t, "m1", db.args[1])
	assert.JSONEq(t, `{"topic_detection":"lexical-topics@1"}`, string(db.args[7].([]byte)))
	assert.Equal(t, int64(250), db.args[9])
	assert.False(t, db.args[11].(time.Time).IsZero())
}

func TestPostgresStore_RecordModelUpdate(t *testing.T) {
	db := &execRecorder{}
	s := NewPostgresStore(db)

	o := update.Outcome{ID: "u1", Stage: types.StageSummaryGeneration, Result: update.RolledBack, Model: "b", Duration: 1500 * time.Millisecond}
	require.NoError(t, s.RecordModelUpdate(context.Background(), o))
	assert.Contains(t, db.sql, "INSERT INTO model_updates")
	assert.Equal(t, "rolled_back", db.args[2])
	assert.Equal(t, int64(1500), db.args[10])

	db.err = assert.AnError
	err := s.RecordModelUpdate(context.Background(), o)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPostgresStore_Errors(t *testing.T) {
	s := NewPostgresStore(&execRecorder{})

	_, err := s.GetMinutes(context.Background(), "missing")
	assert.True(t, merrors.IsNotFound(err))

	_, err = s.ListMinutes(context.Background(), "m1", 5)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.ListModelUpdates(context.Background(), "", 5)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestListLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, listLimit(0))
	assert.Equal(t, DefaultListLimit, listLimit(5000))
	assert.Equal(t, 7, listLimit(7))
}
