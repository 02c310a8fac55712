// Package store persists minutes results and model update history.
package store

import (
	"context"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

// Store persists minutes and model updates.
type Store interface {
	SaveMinutes(ctx context.Context, r *types.MinutesResult) error
	GetMinutes(ctx context.Context, id string) (*types.MinutesResult, error)
	ListMinutes(ctx context.Context, meetingID string, limit int) ([]*types.MinutesResult, error)
	RecordModelUpdate(ctx context.Context, o update.Outcome) error
	ListModelUpdates(ctx context.Context, stage string, limit int) ([]update.Outcome, error)
}

// DefaultListLimit caps list queries without an explicit limit.
const DefaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}
