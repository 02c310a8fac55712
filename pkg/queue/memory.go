package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// MemoryQueue is an in-process Queue with the same semantics as
// RedisQueue. Jobs do not survive a restart.
type MemoryQueue struct {
	config Config
	now    func() time.Time

	mu         sync.Mutex
	jobs       map[string]*Job
	ready      []string
	delayed    map[string]time.Time
	processing map[string]time.Time
	dead       []DeadLetter
	closed     bool
	notify     chan struct{}
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(config Config) *MemoryQueue {
	return &MemoryQueue{
		config:     config,
		now:        time.Now,
		jobs:       make(map[string]*Job),
		delayed:    make(map[string]time.Time),
		processing: make(map[string]time.Time),
		notify:     make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *MemoryQueue) Name() string {
	return q.config.Name
}

// Enqueue adds a job to the queue.
func (q *MemoryQueue) Enqueue(_ context.Context, t types.Transcript, p Priority) (*Job, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	job := NewJob(t, p)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.jobs[job.ID] = job
	q.pushReadyLocked(job.ID)
	q.mu.Unlock()

	q.signal()
	return copyJob(job), nil
}

// pushReadyLocked inserts id keeping ready ordered by priority, then age.
func (q *MemoryQueue) pushReadyLocked(id string) {
	q.ready = append(q.ready, id)
	sort.SliceStable(q.ready, func(i, j int) bool {
		a, b := q.jobs[q.ready[i]], q.jobs[q.ready[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	})
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue retrieves up to maxJobs jobs, waiting at most wait for the first.
func (q *MemoryQueue) Dequeue(ctx context.Context, maxJobs int, wait time.Duration) ([]*Job, error) {
	if maxJobs <= 0 {
		maxJobs = 1
	}
	deadline := time.Now().Add(wait)

	for {
		jobs, err := q.take(maxJobs)
		if err != nil || len(jobs) > 0 {
			return jobs, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		// Delayed jobs become visible without a signal, so waits are capped.
		timer := time.NewTimer(min(remaining, pollInterval))
		select {
		case <-q.notify:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		timer.Stop()
	}
}

func (q *MemoryQueue) take(maxJobs int) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	now := q.now()
	for id, at := range q.delayed {
		if !at.After(now) {
			delete(q.delayed, id)
			q.pushReadyLocked(id)
		}
	}

	var jobs []*Job
	for len(jobs) < maxJobs && len(q.ready) > 0 {
		id := q.ready[0]
		q.ready = q.ready[1:]
		job := q.jobs[id]
		job.VisibleAfter = now.Add(q.config.VisibilityTimeout)
		q.processing[id] = job.VisibleAfter
		jobs = append(jobs, copyJob(job))
	}
	return jobs, nil
}

// Ack removes a processed job.
func (q *MemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, id)
	delete(q.jobs, id)
	return nil
}

// Nack records a failed attempt.
func (q *MemoryQueue) Nack(_ context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	delete(q.processing, id)
	job.Attempts++
	job.LastError = errString(cause)
	if job.Attempts >= q.config.MaxRetries {
		q.deadLetterLocked(job, "max retries exceeded")
		return nil
	}
	job.VisibleAfter = q.now().Add(q.config.backoff(job.Attempts))
	q.delayed[id] = job.VisibleAfter
	return nil
}

// MoveToDeadLetter moves a job to the dead letter queue.
func (q *MemoryQueue) MoveToDeadLetter(_ context.Context, id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	q.deadLetterLocked(job, reason)
	return nil
}

func (q *MemoryQueue) deadLetterLocked(job *Job, reason string) {
	delete(q.processing, job.ID)
	delete(q.delayed, job.ID)
	delete(q.jobs, job.ID)
	q.dead = append(q.dead, DeadLetter{Job: copyJob(job), Reason: reason, MovedAt: q.now().UTC()})
}

// RecoverStale re-queues jobs whose visibility timeout expired.
func (q *MemoryQueue) RecoverStale(_ context.Context) (int, error) {
	q.mu.Lock()
	now := q.now()
	recovered := 0
	for id, deadline := range q.processing {
		if deadline.After(now) {
			continue
		}
		job := q.jobs[id]
		delete(q.processing, id)
		job.Attempts++
		job.LastError = "visibility timeout exceeded"
		if job.Attempts >= q.config.MaxRetries {
			q.deadLetterLocked(job, job.LastError)
			continue
		}
		q.pushReadyLocked(id)
		recovered++
	}
	q.mu.Unlock()

	if recovered > 0 {
		q.signal()
	}
	return recovered, nil
}

// Depth returns the number of ready and delayed jobs.
func (q *MemoryQueue) Depth(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready) + len(q.delayed)), nil
}

// DeadLetters returns dead-lettered jobs, newest first.
func (q *MemoryQueue) DeadLetters(_ context.Context, limit int) ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]DeadLetter, 0, min(limit, len(q.dead)))
	for i := len(q.dead) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, q.dead[i])
	}
	return out, nil
}

// Close fails pending and future calls with ErrQueueClosed.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	return nil
}

func copyJob(j *Job) *Job {
	c := *j
	return &c
}

var _ Queue = (*MemoryQueue)(nil)
