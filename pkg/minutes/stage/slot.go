// Package stage holds what the three analysis stages share: per-stage
// configuration, model handles, the slot that owns a stage's active handle
// and its update lifecycle, rolling statistics and the Analyzer contract.
package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
)

// State is a slot's update lifecycle state.
type State string

const (
	Stable     State = "stable"
	Updating   State = "updating"
	Committed  State = "committed"
	RolledBack State = "rolled_back"
)

// allowed lists the legal transitions.
var allowed = map[State][]State{
	Stable:     {Updating},
	Updating:   {Committed, RolledBack, Stable},
	Committed:  {Stable},
	RolledBack: {Stable},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is a recorded state change.
type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	At      time.Time `json:"at"`
	ModelID string    `json:"model_id"`
	Version int64     `json:"version"`
	Reason  string    `json:"reason,omitempty"`
}

// DefaultHistorySize bounds the transition history.
const DefaultHistorySize = 64

// DefaultUpdateWait bounds how long BeginUpdate waits for exclusivity.
const DefaultUpdateWait = 5 * time.Second

// Slot owns the active handle of one stage. Readers snapshot the handle with
// Acquire; a single writer at a time drives an update through a Lease.
type Slot struct {
	name   string
	logger logging.Logger
	stats  *Stats

	// exclusive is a one-token semaphore held for the duration of an update.
	exclusive chan struct{}
	wait      time.Duration
	unload    func(*Handle)

	mu      sync.Mutex
	active  *Handle
	state   State
	history []Transition
	maxHist int
}

// SlotOption configures a Slot.
type SlotOption func(*Slot)

// WithSlotLogger sets the logger.
func WithSlotLogger(logger logging.Logger) SlotOption {
	return func(s *Slot) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUpdateWait sets the bounded wait for update exclusivity.
func WithUpdateWait(d time.Duration) SlotOption {
	return func(s *Slot) {
		if d > 0 {
			s.wait = d
		}
	}
}

// WithUnload sets the function that releases a retired handle's model once
// its last reader is done.
func WithUnload(fn func(*Handle)) SlotOption {
	return func(s *Slot) { s.unload = fn }
}

// WithHistorySize bounds the recorded transitions.
func WithHistorySize(n int) SlotOption {
	return func(s *Slot) {
		if n > 0 {
			s.maxHist = n
		}
	}
}

// NewSlot creates a Stable slot owning initial.
func NewSlot(name string, initial *Handle, opts ...SlotOption) *Slot {
	s := &Slot{
		name:      name,
		logger:    logging.NewNopLogger(),
		stats:     NewStats(),
		exclusive: make(chan struct{}, 1),
		wait:      DefaultUpdateWait,
		state:     Stable,
		maxHist:   DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("stage-slot"), logging.Stage(name))
	s.active = initial
	s.attach(initial)
	return s
}

func (s *Slot) attach(h *Handle) {
	if h == nil {
		return
	}
	h.onRelease = func(h *Handle) {
		s.logger.Info("Retired model released",
			logging.F("model_id", h.ModelID()),
			logging.F("version", h.Version),
		)
		if s.unload != nil {
			s.unload(h)
		}
	}
}

// Name returns the stage name.
func (s *Slot) Name() string { return s.name }

// Stats returns the stage statistics.
func (s *Slot) Stats() *Stats { return s.stats }

// Acquire returns the active handle with a reference held. The caller must
// Release it. Returns nil when the slot has no model.
func (s *Slot) Acquire() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	s.active.retain()
	return s.active
}

// Release drops a reference taken by Acquire.
func (s *Slot) Release(h *Handle) {
	if h != nil {
		h.release()
	}
}

// Active returns the active handle without taking a reference. Use it for
// reporting only.
func (s *Slot) Active() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State returns the lifecycle state.
func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Usable reports whether requests can be served.
func (s *Slot) Usable() bool {
	return s.Active() != nil
}

// History returns a copy of the recorded transitions, oldest first.
func (s *Slot) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.history...)
}

// Transition moves the slot to state to, recording reason. Illegal
// transitions are rejected.
func (s *Slot) Transition(to State, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to, reason)
}

func (s *Slot) transitionLocked(to State, reason string) error {
	from := s.state
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal %s transition %s -> %s", s.name, from, to)
	}
	s.state = to
	t := Transition{From: from, To: to, At: time.Now(), Reason: reason}
	if s.active != nil {
		t.ModelID = s.active.ModelID()
		t.Version = s.active.Version
	}
	s.history = append(s.history, t)
	if len(s.history) > s.maxHist {
		s.history = append([]Transition(nil), s.history[len(s.history)-s.maxHist:]...)
	}
	s.logger.Debug("Stage state changed",
		logging.F("from", string(from)),
		logging.F("to", string(to)),
		logging.F("reason", reason),
	)
	return nil
}

// BeginUpdate takes exclusive ownership of the slot and moves it to
// Updating. It waits at most the configured bound, returning
// ErrUpdateInProgress when another update holds the slot.
func (s *Slot) BeginUpdate(ctx context.Context) (*Lease, error) {
	timer := time.NewTimer(s.wait)
	defer timer.Stop()
	select {
	case s.exclusive <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", s.name, merrors.ErrUpdateInProgress)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := s.Transition(Updating, "update started"); err != nil {
		<-s.exclusive
		return nil, err
	}
	return &Lease{slot: s}, nil
}

// Lease is exclusive ownership of a slot during an update. Exactly one of
// Commit, Rollback or Abort ends it; later calls are no-ops.
type Lease struct {
	slot *Slot
	once sync.Once
}

// Commit installs next as the active handle, retires the previous one and
// returns the slot to Stable. The previous handle's model is released once
// its last reader is done. Statistics restart for the new model.
func (l *Lease) Commit(next *Handle) (previous *Handle) {
	l.once.Do(func() {
		s := l.slot
		s.attach(next)
		s.mu.Lock()
		previous = s.active
		s.active = next
		_ = s.transitionLocked(Committed, "model committed")
		_ = s.transitionLocked(Stable, "update finished")
		s.mu.Unlock()
		s.stats.Reset()
		<-s.exclusive
		if previous != nil {
			previous.release()
		}
	})
	return previous
}

// Rollback abandons the update, leaving the active handle untouched, and
// returns the slot to Stable.
func (l *Lease) Rollback(reason string) {
	l.once.Do(func() {
		s := l.slot
		s.mu.Lock()
		_ = s.transitionLocked(RolledBack, reason)
		_ = s.transitionLocked(Stable, "update finished")
		s.mu.Unlock()
		<-s.exclusive
	})
}

// Abort ends an update that changed nothing and returns the slot to Stable.
func (l *Lease) Abort(reason string) {
	l.once.Do(func() {
		s := l.slot
		s.mu.Lock()
		_ = s.transitionLocked(Stable, reason)
		s.mu.Unlock()
		<-s.exclusive
	})
}
