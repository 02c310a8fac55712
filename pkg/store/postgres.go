package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

// DBTX is the subset of *pgxpool.Pool the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const minutesColumns = `id, meeting_id, request_id, topics, action_items, summary,
	summary_quality, model_versions, device, processing_ms, engine_version, created_at`

// SaveMinutes inserts r. Saving the same id twice is a no-op.
func (s *PostgresStore) SaveMinutes(ctx context.Context, r *types.MinutesResult) error {
	topics, err := json.Marshal(r.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	items, err := json.Marshal(r.ActionItems)
	if err != nil {
		return fmt.Errorf("marshal action items: %w", err)
	}
	versions, err := json.Marshal(r.Metadata.ModelVersions)
	if err != nil {
		return fmt.Errorf("marshal model versions: %w", err)
	}

	query := `
		INSERT INTO minutes_results (` + minutesColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.db.Exec(ctx, query,
		r.ID,
		r.MeetingID,
		r.Metadata.RequestID,
		topics,
		items,
		r.Summary.Summary,
		r.Summary.Metadata.QualityScore,
		versions,
		r.Metadata.Device,
		r.Metadata.ProcessingTime.Milliseconds(),
		r.Metadata.EngineVersion,
		createdAt(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save minutes %s: %w", r.ID, err)
	}
	return nil
}

// GetMinutes loads a result by id.
func (s *PostgresStore) GetMinutes(ctx context.Context, id string) (*types.MinutesResult, error) {
	query := `SELECT ` + minutesColumns + ` FROM minutes_results WHERE id = $1`
	r, err := scanMinutes(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("minutes %s: %w", id, merrors.ErrNotFound)
	}
	return r, err
}

// ListMinutes returns the most recent results of a meeting.
func (s *PostgresStore) ListMinutes(ctx context.Context, meetingID string, limit int) ([]*types.MinutesResult, error) {
	query := `SELECT ` + minutesColumns + ` FROM minutes_results
		WHERE meeting_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.Query(ctx, query, meetingID, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list minutes: %w", err)
	}
	defer rows.Close()

	var out []*types.MinutesResult
	for rows.Next() {
		r, err := scanMinutes(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanMinutes(row pgx.Row) (*types.MinutesResult, error) {
	var (
		r                       types.MinutesResult
		topics, items, versions []byte
		processingMs            int64
	)
	err := row.Scan(
		&r.ID, &r.MeetingID, &r.Metadata.RequestID, &topics, &items, &r.Summary.Summary,
		&r.Summary.Metadata.QualityScore, &versions, &r.Metadata.Device, &processingMs,
		&r.Metadata.EngineVersion, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(topics, &r.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	if err := json.Unmarshal(items, &r.ActionItems); err != nil {
		return nil, fmt.Errorf("decode action items: %w", err)
	}
	if err := json.Unmarshal(versions, &r.Metadata.ModelVersions); err != nil {
		return nil, fmt.Errorf("decode model versions: %w", err)
	}
	r.Metadata.ProcessingTime = time.Duration(processingMs) * time.Millisecond
	return &r, nil
}

// RecordModelUpdate implements update.History.
func (s *PostgresStore) RecordModelUpdate(ctx context.Context, o update.Outcome) error {
	query := `
		INSERT INTO model_updates (
			id, stage, result, previous_model, model, version, baseline_score,
			candidate_score, degradation, reason, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.Exec(ctx, query,
		o.ID,
		o.Stage,
		string(o.Result),
		o.PreviousModel,
		o.Model,
		o.Version,
		o.BaselineScore,
		o.CandidateScore,
		o.Degradation,
		o.Reason,
		o.Duration.Milliseconds(),
		createdAt(o.At),
	)
	if err != nil {
		return fmt.Errorf("record model update %s: %w", o.ID, err)
	}
	return nil
}

// ListModelUpdates returns the most recent updates of stage, or of every
// stage when stage is empty.
func (s *PostgresStore) ListModelUpdates(ctx context.Context, stage string, limit int) ([]update.Outcome, error) {
	query := `
		SELECT id, stage, result, previous_model, model, version, baseline_score,
			candidate_score, degradation, reason, duration_ms, created_at
		FROM model_updates
		WHERE ($1 = '' OR stage = $1)
		ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.Query(ctx, query, stage, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list model updates: %w", err)
	}
	defer rows.Close()

	var out []update.Outcome
	for rows.Next() {
		var (
			o          update.Outcome
			result     string
			durationMs int64
		)
		if err := rows.Scan(&o.ID, &o.Stage, &result, &o.PreviousModel, &o.Model, &o.Version,
			&o.BaselineScore, &o.CandidateScore, &o.Degradation, &o.Reason, &durationMs, &o.At); err != nil {
			return nil, err
		}
		o.Result = update.Result(result)
		o.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
