// Package health serves the standard gRPC health checking protocol for the
// minutes engine. The engine reports SERVING while every stage has a usable
// model; each stage is also reported under "minutes.<stage>".
package health

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/engine"
)

// ServiceName is the service reported for the engine as a whole.
const ServiceName = "minutes"

// DefaultInterval is how often the engine health is polled.
const DefaultInterval = 5 * time.Second

// Reporter reports engine health. *engine.Engine implements it.
type Reporter interface {
	Health() engine.Health
}

// StageService returns the health service name of a stage.
func StageService(stage string) string {
	return ServiceName + "." + stage
}

// Server is a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	reporter Reporter
	interval time.Duration
	logger   logging.Logger

	grpc   *grpc.Server
	health *grpchealth.Server
}

// Option configures a Server.
type Option func(*Server)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a health server for r. Statuses start NOT_SERVING until
// the first refresh.
func NewServer(r Reporter, opts ...Option) *Server {
	s := &Server{
		reporter: r,
		interval: DefaultInterval,
		logger:   logging.NewNopLogger(),
		grpc:     grpc.NewServer(),
		health:   grpchealth.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("grpc-health"))
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Refresh polls the reporter once and updates every status.
func (s *Server) Refresh() engine.Health {
	h := s.reporter.Health()
	overall := servingStatus(h.Status == engine.HealthOK)
	s.health.SetServingStatus("", overall)
	s.health.SetServingStatus(ServiceName, overall)
	for name, st := range h.Stages {
		s.health.SetServingStatus(StageService(name), servingStatus(st.Usable))
	}
	return h
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done, then marks every service
// NOT_SERVING and stops gracefully.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	last := s.Refresh().Status

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC health server listening", logging.F("addr", lis.Addr().String()))
		errCh <- s.grpc.Serve(lis)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
			if h := s.Refresh(); h.Status != last {
				s.logger.Info("Engine health changed", logging.F("from", last), logging.F("to", h.Status))
				last = h.Status
			}
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		}
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
