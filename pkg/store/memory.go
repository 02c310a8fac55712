package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	minutes map[string]*types.MinutesResult
	order   []string
	updates []update.Outcome
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{minutes: make(map[string]*types.MinutesResult)}
}

// SaveMinutes stores a copy of r. Saving the same id twice is a no-op.
func (s *MemoryStore) SaveMinutes(_ context.Context, r *types.MinutesResult) error {
	if r == nil || r.ID == "" {
		return merrors.InvalidInput("minutes result requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.minutes[r.ID]; ok {
		return nil
	}
	s.minutes[r.ID] = r.Clone()
	s.order = append(s.order, r.ID)
	return nil
}

// GetMinutes returns a copy of the result with id.
func (s *MemoryStore) GetMinutes(_ context.Context, id string) (*types.MinutesResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.minutes[id]
	if !ok {
		return nil, fmt.Errorf("minutes %s: %w", id, merrors.ErrNotFound)
	}
	return r.Clone(), nil
}

// ListMinutes returns the most recent results of a meeting first.
func (s *MemoryStore) ListMinutes(_ context.Context, meetingID string, limit int) ([]*types.MinutesResult, error) {
	limit = listLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.MinutesResult
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.minutes[s.order[i]]
		if r.MeetingID == meetingID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// RecordModelUpdate implements update.History.
func (s *MemoryStore) RecordModelUpdate(_ context.Context, o update.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, o)
	return nil
}

// ListModelUpdates returns the most recent updates of stage first.
func (s *MemoryStore) ListModelUpdates(_ context.Context, stage string, limit int) ([]update.Outcome, error) {
	limit = listLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []update.Outcome
	for i := len(s.updates) - 1; i >= 0 && len(out) < limit; i-- {
		if stage == "" || s.updates[i].Stage == stage {
			out = append(out, s.updates[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}
