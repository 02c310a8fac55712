// Package resilience provides a circuit breaker and retry with backoff for
// calls to remote collaborators such as an inference server.
package resilience

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
)

// State is a circuit breaker state.
type State uint32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned while the breaker is failing fast.
var ErrOpen = errors.New("circuit breaker open")

// Breaker settings.
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 2
)

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Threshold         int           `yaml:"threshold"`
	ResetTimeout      time.Duration `yaml:"reset_timeout"`
	HalfOpenSuccesses int           `yaml:"half_open_successes"`
}

// DefaultBreakerConfig returns the default settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}

// Breaker is a lock-free circuit breaker.
type Breaker struct {
	name        string
	cfg         BreakerConfig
	state       atomic.Uint32
	failures    atomic.Int32
	successes   atomic.Int32
	lastFailure atomic.Int64
	logger      logging.Logger
	onChange    func(name string, from, to State)
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig, logger logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: logger.With(logging.Component("breaker"), logging.F("breaker", name)),
	}
	b.state.Store(uint32(Closed))
	return b
}

// OnStateChange registers fn to be called on every transition.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) *Breaker {
	b.onChange = fn
	return b
}

// Allow returns nil when a call may proceed.
func (b *Breaker) Allow() error {
	if State(b.state.Load()) != Open {
		return nil
	}
	last := b.lastFailure.Load()
	if last == 0 || time.Since(time.Unix(0, last)) > b.cfg.ResetTimeout {
		b.transition(HalfOpen)
		return nil
	}
	return ErrOpen
}

// Success records a successful call.
func (b *Breaker) Success() {
	switch State(b.state.Load()) {
	case HalfOpen:
		if b.successes.Add(1) >= int32(b.cfg.HalfOpenSuccesses) {
			b.transition(Closed)
		}
	case Closed:
		b.failures.Store(0)
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.lastFailure.Store(time.Now().UnixNano())
	count := b.failures.Add(1)
	switch State(b.state.Load()) {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		if count >= int32(b.cfg.Threshold) {
			b.transition(Open)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.transition(Closed)
}

func (b *Breaker) transition(to State) {
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}
	b.successes.Store(0)
	switch to {
	case Closed:
		b.failures.Store(0)
		b.logger.Info("Circuit breaker closed")
	case Open:
		b.logger.Warn("Circuit breaker opened", logging.F("failures", b.failures.Load()))
	case HalfOpen:
		b.logger.Info("Circuit breaker half-open")
	}
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// Execute runs fn under the breaker. Errors for which countable returns
// false (for example caller mistakes) do not trip the breaker.
func Execute[T any](b *Breaker, countable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	if err != nil {
		if countable == nil || countable(err) {
			b.Failure()
		}
		return zero, err
	}
	b.Success()
	return result, nil
}
