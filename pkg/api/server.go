// Package api exposes the minutes engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/buildinfo"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/engine"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/queue"
)

// ServiceName identifies the server in /version and logs.
const ServiceName = "minutes"

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 10 << 20

// Engine is the processing surface the server needs. *engine.Engine
// implements it.
type Engine interface {
	Process(ctx context.Context, t types.Transcript) (*types.MinutesResult, error)
	Health() engine.Health
	PerformanceMetrics() map[string]stage.StatsSnapshot
	ResetPerformanceMetrics()
}

// Updater performs model updates. *update.Coordinator implements it.
type Updater interface {
	UpdateModel(ctx context.Context, stageName string, cfg stage.Config, opts update.Options) (update.Outcome, error)
	Status() []update.Status
	Slots() stage.Set
}

// MinutesReader reads stored minutes.
type MinutesReader interface {
	GetMinutes(ctx context.Context, id string) (*types.MinutesResult, error)
	ListMinutes(ctx context.Context, meetingID string, limit int) ([]*types.MinutesResult, error)
}

// Enqueuer accepts asynchronous jobs.
type Enqueuer interface {
	Name() string
	Enqueue(ctx context.Context, t types.Transcript, p queue.Priority) (*queue.Job, error)
}

// Server serves the minutes HTTP API.
type Server struct {
	engine   Engine
	updater  Updater
	minutes  MinutesReader
	jobs     Enqueuer
	gatherer prometheus.Gatherer
	logger   logging.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUpdater enables the model endpoints.
func WithUpdater(u Updater) Option {
	return func(s *Server) { s.updater = u }
}

// WithMinutes enables the stored minutes endpoints.
func WithMinutes(r MinutesReader) Option {
	return func(s *Server) { s.minutes = r }
}

// WithQueue enables asynchronous job submission.
func WithQueue(q Enqueuer) Option {
	return func(s *Server) { s.jobs = q }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// NewServer creates a server around e.
func NewServer(e Engine, opts ...Option) *Server {
	s := &Server{
		engine:   e,
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("http"))
	return s
}

// Handler returns the routed handler with logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/process", s.handleProcess)
	mux.HandleFunc("POST /api/v1/jobs", s.handleEnqueue)
	mux.HandleFunc("GET /api/v1/minutes", s.handleListMinutes)
	mux.HandleFunc("GET /api/v1/minutes/{id}", s.handleGetMinutes)
	mux.HandleFunc("GET /api/v1/models", s.handleModelStatus)
	mux.HandleFunc("POST /api/v1/models/{stage}", s.handleUpdateModel)
	mux.HandleFunc("GET /api/v1/performance", s.handlePerformance)
	mux.HandleFunc("DELETE /api/v1/performance", s.handleResetPerformance)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /version", buildinfo.Handler(ServiceName))

	return s.recoverMiddleware(s.loggingMiddleware(mux))
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.F("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
