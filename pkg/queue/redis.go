package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// Redis key prefixes
const (
	keyPrefixQueue      = "queue:"      // Ready jobs (sorted set by priority, then age)
	keyPrefixDelayed    = "delayed:"    // Jobs waiting out a retry backoff (by visible time)
	keyPrefixProcessing = "processing:" // Jobs being processed (by visibility deadline)
	keyPrefixJob        = "job:"        // Job data
	keyPrefixDLQ        = "dlq:"        // Dead letter queue
)

// pollInterval is how often an empty queue is polled while waiting.
const pollInterval = 100 * time.Millisecond

// RedisQueue implements Queue using Redis sorted sets.
type RedisQueue struct {
	client *redis.Client
	config Config
	closed chan struct{}
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(client *redis.Client, config Config) *RedisQueue {
	return &RedisQueue{
		client: client,
		config: config,
		closed: make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.config.Name
}

func (q *RedisQueue) queueKey() string      { return keyPrefixQueue + q.config.Name }
func (q *RedisQueue) delayedKey() string    { return keyPrefixDelayed + q.config.Name }
func (q *RedisQueue) processingKey() string { return keyPrefixProcessing + q.config.Name }
func (q *RedisQueue) dlqKey() string        { return keyPrefixDLQ + q.config.Name }
func (q *RedisQueue) jobKey(id string) string {
	return keyPrefixJob + q.config.Name + ":" + id
}

// readyScore orders ready jobs for ZPOPMIN: higher priority first, then
// oldest first. Millisecond timestamps stay below the priority stride.
func readyScore(p Priority, at time.Time) float64 {
	return -float64(p)*1e13 + float64(at.UnixMilli())
}

func timeScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Enqueue adds a job to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, t types.Transcript, p Priority) (*Job, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	job := NewJob(t, p)

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	// Store job data and add to the ready set in a transaction
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(job.ID), data, q.config.RetentionPeriod)
	pipe.ZAdd(ctx, q.queueKey(), redis.Z{Score: readyScore(p, job.EnqueuedAt), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// Dequeue retrieves up to maxJobs jobs, polling until the first arrives or
// wait elapses.
func (q *RedisQueue) Dequeue(ctx context.Context, maxJobs int, wait time.Duration) ([]*Job, error) {
	if maxJobs <= 0 {
		maxJobs = 1
	}
	deadline := time.Now().Add(wait)
	var jobs []*Job

	for len(jobs) < maxJobs {
		if err := q.promoteDelayed(ctx); err != nil {
			return jobs, err
		}

		result, err := q.client.ZPopMin(ctx, q.queueKey(), 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return jobs, fmt.Errorf("failed to pop from queue: %w", err)
		}
		if len(result) == 0 {
			if len(jobs) > 0 || !time.Now().Before(deadline) {
				return jobs, nil
			}
			// Queue is empty, wait a bit and retry
			select {
			case <-time.After(pollInterval):
				continue
			case <-q.closed:
				return jobs, ErrQueueClosed
			case <-ctx.Done():
				return jobs, ctx.Err()
			}
		}

		id, _ := result[0].Member.(string)
		job, err := q.load(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			// Job data expired, skip
			continue
		}
		if err != nil {
			return jobs, err
		}

		// Move to processing set with visibility timeout
		job.VisibleAfter = time.Now().Add(q.config.VisibilityTimeout)
		if err := q.save(ctx, job, func(pipe redis.Pipeliner) {
			pipe.ZAdd(ctx, q.processingKey(), redis.Z{Score: timeScore(job.VisibleAfter), Member: id})
		}); err != nil {
			return jobs, fmt.Errorf("failed to move to processing: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// promoteDelayed moves jobs whose backoff elapsed back to the ready set.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed jobs: %w", err)
	}
	for _, id := range due {
		job, err := q.load(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			q.client.ZRem(ctx, q.delayedKey(), id)
			continue
		}
		if err != nil {
			return err
		}
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.ZAdd(ctx, q.queueKey(), redis.Z{Score: readyScore(job.Priority, job.EnqueuedAt), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to promote delayed job: %w", err)
		}
	}
	return nil
}

// Ack acknowledges successful processing of a job.
func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(), id)
	pipe.Del(ctx, q.jobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Nack records a failed attempt; the job will be retried after a backoff.
func (q *RedisQueue) Nack(ctx context.Context, id string, cause error) error {
	job, err := q.load(ctx, id)
	if err != nil {
		return err
	}

	job.Attempts++
	job.LastError = errString(cause)
	if job.Attempts >= q.config.MaxRetries {
		return q.deadLetter(ctx, job, "max retries exceeded")
	}

	// Re-enqueue with backoff
	job.VisibleAfter = time.Now().Add(q.config.backoff(job.Attempts))
	if err := q.save(ctx, job, func(pipe redis.Pipeliner) {
		pipe.ZRem(ctx, q.processingKey(), id)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: timeScore(job.VisibleAfter), Member: id})
	}); err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}
	return nil
}

// MoveToDeadLetter moves a job to the dead letter queue.
func (q *RedisQueue) MoveToDeadLetter(ctx context.Context, id, reason string) error {
	job, err := q.load(ctx, id)
	if err != nil {
		return err
	}
	return q.deadLetter(ctx, job, reason)
}

func (q *RedisQueue) deadLetter(ctx context.Context, job *Job, reason string) error {
	now := time.Now().UTC()
	data, err := json.Marshal(DeadLetter{Job: job, Reason: reason, MovedAt: now})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(), job.ID)
	pipe.ZRem(ctx, q.delayedKey(), job.ID)
	pipe.Del(ctx, q.jobKey(job.ID))
	pipe.ZAdd(ctx, q.dlqKey(), redis.Z{Score: timeScore(now), Member: string(data)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}
	return nil
}

// RecoverStale re-queues jobs that exceeded their visibility timeout.
// Should be called periodically by a background worker.
func (q *RedisQueue) RecoverStale(ctx context.Context) (int, error) {
	stale, err := q.client.ZRangeByScore(ctx, q.processingKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find stale jobs: %w", err)
	}

	recovered := 0
	for _, id := range stale {
		job, err := q.load(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			// Job data expired, just remove from processing
			q.client.ZRem(ctx, q.processingKey(), id)
			continue
		}
		if err != nil {
			return recovered, err
		}

		job.Attempts++
		job.LastError = "visibility timeout exceeded"
		if job.Attempts >= q.config.MaxRetries {
			if err := q.deadLetter(ctx, job, job.LastError); err != nil {
				return recovered, err
			}
			continue
		}

		if err := q.save(ctx, job, func(pipe redis.Pipeliner) {
			pipe.ZRem(ctx, q.processingKey(), id)
			pipe.ZAdd(ctx, q.queueKey(), redis.Z{Score: readyScore(job.Priority, job.EnqueuedAt), Member: id})
		}); err != nil {
			return recovered, fmt.Errorf("failed to recover job: %w", err)
		}
		recovered++
	}
	return recovered, nil
}

// Depth returns the number of ready and delayed jobs.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	ready := pipe.ZCard(ctx, q.queueKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return ready.Val() + delayed.Val(), nil
}

// DeadLetters returns dead-lettered jobs, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := q.client.ZRevRange(ctx, q.dlqKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, r := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(r), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// Close stops pending Dequeue calls. The client is owned by the caller.
func (q *RedisQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// save writes job data and applies extra commands in one transaction.
func (q *RedisQueue) save(ctx context.Context, job *Job, extra func(redis.Pipeliner)) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(job.ID), data, q.config.RetentionPeriod)
	if extra != nil {
		extra(pipe)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Verify interface compliance
var _ Queue = (*RedisQueue)(nil)
