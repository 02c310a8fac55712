// Package queue provides the job queue the minutes worker pool consumes.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/ids"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/resilience"
)

// Priority orders jobs; higher priorities are dequeued first.
type Priority int

const (
	PriorityLow    Priority = 0 // Backfill, reprocessing
	PriorityNormal Priority = 1 // Batch submissions
	PriorityHigh   Priority = 2 // Interactive requests
)

// ParsePriority parses "low", "normal" or "high". An empty string is
// PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	}
	return PriorityNormal, fmt.Errorf("%w: unknown priority %q", ErrInvalidJob, s)
}

// Queue errors.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrQueueClosed = errors.New("queue is closed")
	ErrInvalidJob  = errors.New("invalid job")
)

// Job is a queued transcript.
type Job struct {
	ID           string           `json:"id"`
	Transcript   types.Transcript `json:"transcript"`
	Priority     Priority         `json:"priority"`
	Attempts     int              `json:"attempts"`
	EnqueuedAt   time.Time        `json:"enqueued_at"`
	VisibleAfter time.Time        `json:"visible_after,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
}

// NewJob creates a job for t.
func NewJob(t types.Transcript, p Priority) *Job {
	return &Job{
		ID:         ids.New(ids.KindJob),
		Transcript: t,
		Priority:   p,
		EnqueuedAt: time.Now().UTC(),
	}
}

// DeadLetter is a job that exhausted its retries or failed permanently.
type DeadLetter struct {
	Job     *Job      `json:"job"`
	Reason  string    `json:"reason"`
	MovedAt time.Time `json:"moved_at"`
}

// Config configures a queue.
type Config struct {
	Name string `yaml:"name"`

	// MaxRetries is the number of failed attempts after which a job is
	// dead-lettered.
	MaxRetries int `yaml:"max_retries"`

	// VisibilityTimeout is how long a dequeued job stays invisible before
	// it is considered abandoned and recovered.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	// RetentionPeriod bounds how long job data is kept.
	RetentionPeriod time.Duration `yaml:"retention_period"`

	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// DefaultConfig returns the default queue settings for name.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Minute,
		RetentionPeriod:   24 * time.Hour,
		InitialBackoff:    time.Second,
		MaxBackoff:        5 * time.Minute,
	}
}

// backoff returns the delay before a job that failed attempts times is
// visible again.
func (c Config) backoff(attempts int) time.Duration {
	return resilience.Backoff(resilience.RetryConfig{
		BaseDelay: c.InitialBackoff,
		MaxDelay:  c.MaxBackoff,
	}, attempts-1)
}

// Queue is a priority job queue with visibility timeouts, delayed retries
// and a dead letter queue.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a job for t.
	Enqueue(ctx context.Context, t types.Transcript, p Priority) (*Job, error)

	// Dequeue returns up to maxJobs visible jobs, waiting at most wait for
	// the first one.
	Dequeue(ctx context.Context, maxJobs int, wait time.Duration) ([]*Job, error)

	// Ack removes a processed job.
	Ack(ctx context.Context, id string) error

	// Nack records a failed attempt. The job is retried after a backoff,
	// or dead-lettered once it exhausted its retries.
	Nack(ctx context.Context, id string, cause error) error

	// MoveToDeadLetter removes a job from processing permanently.
	MoveToDeadLetter(ctx context.Context, id, reason string) error

	// RecoverStale returns jobs whose visibility timeout expired to the
	// queue and reports how many were recovered.
	RecoverStale(ctx context.Context) (int, error)

	// Depth returns the number of jobs waiting, delayed ones included.
	Depth(ctx context.Context) (int64, error)

	// DeadLetters returns up to limit dead-lettered jobs, newest first.
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)

	// Close releases the queue.
	Close() error
}

func validate(t types.Transcript) error {
	if strings.TrimSpace(t.MeetingID) == "" {
		return fmt.Errorf("%w: meeting_id is required", ErrInvalidJob)
	}
	if strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("%w: transcript text is empty", ErrInvalidJob)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
