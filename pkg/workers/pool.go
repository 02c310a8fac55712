// Package workers provides the worker pool that drains the minutes job
// queue.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/queue"
)

// WorkerStatus represents the worker's current status.
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusHealthy  WorkerStatus = "healthy"
	WorkerStatusDraining WorkerStatus = "draining"
	WorkerStatusStopped  WorkerStatus = "stopped"
)

// Job outcome labels.
const (
	JobSucceeded    = "succeeded"
	JobRetried      = "retried"
	JobDeadLettered = "dead_lettered"
)

// Handler processes one job.
type Handler func(ctx context.Context, job *queue.Job) error

// Processor turns transcripts into minutes. *engine.Engine implements it.
type Processor interface {
	Process(ctx context.Context, t types.Transcript) (*types.MinutesResult, error)
}

// ProcessorHandler runs each job's transcript through p. Results are
// persisted and published by the engine itself.
func ProcessorHandler(p Processor) Handler {
	return func(ctx context.Context, job *queue.Job) error {
		_, err := p.Process(ctx, job.Transcript)
		return err
	}
}

// Metrics records job outcomes and queue depth.
type Metrics interface {
	RecordJob(status string)
	SetQueueDepth(depth int64)
}

// Config configures a pool.
type Config struct {
	Count           int           `yaml:"count"`
	BatchSize       int           `yaml:"batch_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaintenanceInterval is how often stale jobs are recovered and the
	// queue depth is reported.
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// DefaultConfig returns the default pool settings.
func DefaultConfig() Config {
	return Config{
		Count:               2,
		BatchSize:           1,
		PollInterval:        time.Second,
		JobTimeout:          4 * time.Minute,
		ShutdownTimeout:     30 * time.Second,
		MaintenanceInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Count <= 0 {
		c.Count = d.Count
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = d.MaintenanceInterval
	}
	return c
}

// Worker represents a single worker processing jobs.
type Worker struct {
	ID string

	config  Config
	queue   queue.Queue
	handler Handler
	metrics Metrics
	logger  logging.Logger

	status       atomic.Value // WorkerStatus
	lastActivity atomic.Int64 // unix nanos

	// Metrics
	processed atomic.Int64
	failed    atomic.Int64
}

func newWorker(config Config, q queue.Queue, handler Handler, metrics Metrics, logger logging.Logger) *Worker {
	id := uuid.New().String()
	w := &Worker{
		ID:      id,
		config:  config,
		queue:   q,
		handler: handler,
		metrics: metrics,
		logger:  logger.With(logging.F("worker_id", id)),
	}
	w.status.Store(WorkerStatusStarting)
	return w
}

// Status returns the worker's current status.
func (w *Worker) Status() WorkerStatus {
	return w.status.Load().(WorkerStatus)
}

func (w *Worker) run(ctx context.Context) {
	w.status.Store(WorkerStatusHealthy)
	defer w.status.Store(WorkerStatusStopped)

	for ctx.Err() == nil {
		jobs, err := w.queue.Dequeue(ctx, w.config.BatchSize, w.config.PollInterval)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			w.logger.Warn("Dequeue failed", logging.Err(err))
			select {
			case <-time.After(w.config.PollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, job := range jobs {
			// Jobs already dequeued are finished even while draining;
			// their visibility timeout would otherwise delay them.
			w.process(context.WithoutCancel(ctx), job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	w.lastActivity.Store(time.Now().UnixNano())
	log := w.logger.With(
		logging.F("job_id", job.ID),
		logging.F("meeting_id", job.Transcript.MeetingID),
		logging.F("attempt", job.Attempts+1),
	)

	jctx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	err := w.handler(jctx, job)
	cancel()

	if err == nil {
		if ackErr := w.queue.Ack(ctx, job.ID); ackErr != nil {
			log.Warn("Failed to ack job", logging.Err(ackErr))
		}
		w.processed.Add(1)
		w.record(JobSucceeded)
		log.Debug("Job completed")
		return
	}

	w.failed.Add(1)
	if retryable(err) {
		if nackErr := w.queue.Nack(ctx, job.ID, err); nackErr != nil {
			log.Warn("Failed to nack job", logging.Err(nackErr))
		}
		w.record(JobRetried)
		log.Warn("Job failed, will retry", logging.Err(err))
		return
	}

	reason := fmt.Sprintf("%s: %v", merrors.CodeOf(err), err)
	if dlqErr := w.queue.MoveToDeadLetter(ctx, job.ID, reason); dlqErr != nil {
		log.Warn("Failed to dead-letter job", logging.Err(dlqErr))
	}
	w.record(JobDeadLettered)
	log.Warn("Job failed permanently", logging.F("error_code", string(merrors.CodeOf(err))), logging.Err(err))
}

func (w *Worker) record(status string) {
	if w.metrics != nil {
		w.metrics.RecordJob(status)
	}
}

// retryable decides whether a failed job is worth another attempt. Errors
// outside the minutes taxonomy are assumed transient.
func retryable(err error) bool {
	var me *merrors.MinutesError
	if errors.As(err, &me) {
		return merrors.IsErrorRetryable(err)
	}
	return !errors.Is(err, context.Canceled)
}

// Pool manages a pool of workers.
type Pool struct {
	config  Config
	queue   queue.Queue
	handler Handler
	metrics Metrics
	logger  logging.Logger

	mu      sync.RWMutex
	workers []*Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records job outcomes and queue depth.
func WithMetrics(m Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// NewPool creates a new worker pool.
func NewPool(config Config, q queue.Queue, handler Handler, opts ...Option) *Pool {
	p := &Pool{
		config:  config.withDefaults(),
		queue:   q,
		handler: handler,
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logging.Component("worker-pool"), logging.F("queue", q.Name()))
	return p
}

// Start starts all workers and the maintenance loop. Workers stop when ctx
// is done or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.config.Count; i++ {
		w := newWorker(p.config, p.queue, p.handler, p.metrics, p.logger)
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(ctx)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.maintain(ctx)
	}()

	p.logger.Info("Worker pool started", logging.F("workers", p.config.Count))
}

// maintain recovers stale jobs and reports queue depth until ctx is done.
func (p *Pool) maintain(ctx context.Context) {
	ticker := time.NewTicker(p.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		p.maintainOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) maintainOnce(ctx context.Context) {
	if n, err := p.queue.RecoverStale(ctx); err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("Stale job recovery failed", logging.Err(err))
		}
	} else if n > 0 {
		p.logger.Info("Recovered stale jobs", logging.F("count", n))
	}

	if p.metrics == nil {
		return
	}
	if depth, err := p.queue.Depth(ctx); err == nil {
		p.metrics.SetQueueDepth(depth)
	}
}

// Stop signals all workers to stop and waits for in-flight jobs to finish,
// at most ShutdownTimeout.
func (p *Pool) Stop() {
	p.mu.Lock()
	for _, w := range p.workers {
		w.status.Store(WorkerStatusDraining)
	}
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	// Wait for shutdown with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("Worker pool shutdown timed out", logging.F("timeout", p.config.ShutdownTimeout.String()))
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Queue       string `json:"queue"`
	WorkerCount int    `json:"worker_count"`
	ActiveCount int    `json:"active_count"`
	Processed   int64  `json:"processed"`
	Failed      int64  `json:"failed"`
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		Queue:       p.queue.Name(),
		WorkerCount: len(p.workers),
	}
	for _, w := range p.workers {
		if w.Status() == WorkerStatusHealthy {
			stats.ActiveCount++
		}
		stats.Processed += w.processed.Load()
		stats.Failed += w.failed.Load()
	}
	return stats
}
