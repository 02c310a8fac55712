package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
)

// Retry defaults.
const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 200 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultJitterFactor = 0.2
)

// RetryConfig holds retry settings.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	JitterFactor float64       `yaml:"-"`

	// IsRetryable decides whether an error is worth another attempt.
	// Defaults to retrying every error except context cancellation.
	IsRetryable func(error) bool `yaml:"-"`
}

// DefaultRetryConfig returns the default settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.JitterFactor <= 0 {
		c.JitterFactor = DefaultJitterFactor
	}
	if c.IsRetryable == nil {
		c.IsRetryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	return c
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. It returns the last error.
func Retry(ctx context.Context, cfg RetryConfig, logger logging.Logger, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries || !cfg.IsRetryable(lastErr) {
			return lastErr
		}

		delay := Backoff(cfg, attempt)
		logger.Debug("Retrying after error",
			logging.F("attempt", attempt+1),
			logging.F("max_retries", cfg.MaxRetries),
			logging.F("delay", delay.String()),
			logging.Err(lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// Backoff returns the jittered exponential delay before retry attempt+1.
func Backoff(cfg RetryConfig, attempt int) time.Duration {
	cfg = cfg.withDefaults()
	delay := cfg.BaseDelay << min(attempt, 6)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := float64(delay) * cfg.JitterFactor * (rand.Float64() - 0.5)
	return time.Duration(float64(delay) + jitter)
}
