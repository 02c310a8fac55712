// Package cmd provides CLI commands for the minutes tool.
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/buildinfo"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/credentials"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/db"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/events"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend/lexical"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend/remote"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/cache"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/chunk"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/engine"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/preprocess"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/observability"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/queue"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/resilience"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/store"
)

// MetricsNamespace prefixes the collectors registered by the runtime.
const MetricsNamespace = "minutes"

// recorderLimit bounds the events kept when Redis is not configured.
const recorderLimit = 256

// inferenceBackend is a backend that can also report free device memory.
// Both the lexical and the remote backend qualify.
type inferenceBackend interface {
	backend.Backend
	chunk.MemoryProbe
}

// eventPublisher publishes request and model events.
type eventPublisher interface {
	engine.Publisher
	update.Publisher
}

// Runtime is the engine and its collaborators, assembled from configuration.
type Runtime struct {
	Config   *config.Config
	Logger   logging.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Backend     inferenceBackend
	Slots       stage.Set
	Cache       *cache.Cache
	Store       store.Store
	Events      eventPublisher
	Queue       queue.Queue
	Engine      *engine.Engine
	Coordinator *update.Coordinator
	Drift       *update.DriftMonitor

	closers []func()
}

// NewRuntime builds a Runtime from cfg. Stage models are loaded before it
// returns; the caller must Close the runtime.
func NewRuntime(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	rt.Metrics = observability.NewMetrics(rt.Registry)

	if err := rt.build(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg := rt.Config

	rt.Backend = newBackend(cfg.Backend, rt.Logger)

	slots, err := stage.LoadSet(ctx, rt.Backend, cfg.Stages.Map(), rt.Logger)
	if err != nil {
		return fmt.Errorf("loading stage models: %w", err)
	}
	rt.Slots = slots
	rt.closers = append(rt.closers, slots.Close)

	rt.Cache = cache.New(
		cache.WithCapacity(cfg.Cache.Capacity),
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(rt.Logger),
	)
	if _, err := cache.RegisterStatsCollector(rt.Cache, MetricsNamespace, rt.Registry); err != nil {
		return fmt.Errorf("registering cache metrics: %w", err)
	}

	if err := rt.openStore(ctx); err != nil {
		return err
	}
	rt.openEvents()

	analyzers := engine.Analyzers(rt.Backend, rt.Logger, rt.Backend, cfg.Engine.ChunkTimeout)

	rt.Coordinator = update.NewCoordinator(rt.Backend, slots, analyzers,
		update.WithCache(rt.Cache),
		update.WithPublisher(rt.Events),
		update.WithHistory(rt.Store),
		update.WithMetrics(rt.Metrics),
		update.WithLogger(rt.Logger),
		update.WithLoadTimeout(cfg.Update.LoadTimeout),
		update.WithMaxDegradation(cfg.Update.MaxDegradation),
	)
	rt.Drift = update.NewDriftMonitor(rt.Coordinator,
		update.WithDriftThreshold(cfg.Update.DriftThreshold),
		update.WithQueueSize(cfg.Update.DriftQueueSize),
		update.WithMinSamples(cfg.Update.DriftMinSamples),
		update.WithCandidates(cfg.Update.Candidates),
	)

	pre := preprocess.New(cfg.Preprocessing,
		preprocess.WithCache(rt.Cache),
		preprocess.WithMemoryProbe(rt.Backend),
		preprocess.WithLogger(rt.Logger),
	)

	eng, err := engine.New(rt.Backend, slots, analyzers,
		engine.WithLogger(rt.Logger),
		engine.WithCache(rt.Cache),
		engine.WithPreprocessor(pre),
		engine.WithStageTimeout(cfg.Engine.StageTimeout),
		engine.WithPublisher(rt.Events),
		engine.WithStore(rt.Store),
		engine.WithDriftQueue(rt.Drift),
		engine.WithMetrics(rt.Metrics),
		engine.WithTracer(observability.NewTracer()),
		engine.WithVersion(buildinfo.Short()),
	)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	rt.Engine = eng
	return nil
}

// newBackend returns the configured inference backend.
func newBackend(cfg config.BackendConfig, logger logging.Logger) inferenceBackend {
	if cfg.Kind == config.BackendRemote {
		return remote.New(remote.Config{
			BaseURL: cfg.URL,
			Timeout: cfg.Timeout,
			Breaker: resilience.DefaultBreakerConfig(),
			Retry:   cfg.Retry,
		},
			remote.WithLogger(logger),
			remote.WithCredentials(credentials.DefaultChain()),
		)
	}
	return lexical.New(lexical.WithLogger(logger))
}

func (rt *Runtime) openStore(ctx context.Context) error {
	if rt.Config.Store.Driver != config.StorePostgres {
		rt.Store = store.NewMemoryStore()
		return nil
	}

	pool, err := connectDatabase(ctx, rt.Config, rt.Logger)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, pool.Close)

	if _, err := db.RegisterPoolStatsCollector(pool, MetricsNamespace, rt.Registry); err != nil {
		return fmt.Errorf("registering pool metrics: %w", err)
	}
	rt.Store = store.NewPostgresStore(pool)
	return nil
}

// openEvents wires Redis publishing and the Redis job queue when an address
// is configured, and in-process equivalents otherwise.
func (rt *Runtime) openEvents() {
	cfg := rt.Config.Redis
	qcfg := queue.DefaultConfig(cfg.Queue)

	if !cfg.Enabled() {
		rt.Events = events.NewRecorder(recorderLimit)
		mq := queue.NewMemoryQueue(qcfg)
		rt.Queue = mq
		rt.closers = append(rt.closers, func() { mq.Close() })
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pub := events.NewPublisher(client, rt.Logger)
	rq := queue.NewRedisQueue(client, qcfg)
	rt.Events = pub
	rt.Queue = rq
	// The publisher owns the client, so it closes after the queue.
	rt.closers = append(rt.closers, func() { pub.Close() }, func() { rq.Close() })
}

// connectDatabase opens a pool with retries.
func connectDatabase(ctx context.Context, cfg *config.Config, logger logging.Logger) (*pgxpool.Pool, error) {
	pool, err := db.ConnectWithRetry(ctx, &cfg.Database, resilience.DefaultRetryConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// Close releases everything the runtime opened, in reverse order.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
