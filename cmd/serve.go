package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/api"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/health"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/workers"
)

// ReloadReason is recorded with model updates triggered by a config change.
const ReloadReason = "config reload"

// ServeCommandDeps holds the dependencies for the serve command.
type ServeCommandDeps struct {
	LoadConfig func() (*config.Config, error)
	ConfigPath func() (string, error)
	NewLogger  func(cfg *config.Config) logging.Logger
	NewRuntime func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Runtime, error)
}

// DefaultServeDeps returns the default dependencies for production use.
func DefaultServeDeps() *ServeCommandDeps {
	return &ServeCommandDeps{
		LoadConfig: func() (*config.Config, error) { return config.Load("") },
		ConfigPath: config.ConfigPath,
		NewLogger:  newLogger,
		NewRuntime: NewRuntime,
	}
}

// NewServeCommand creates the serve command.
func NewServeCommand(deps *ServeCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultServeDeps()
	}

	var (
		httpAddr string
		grpcAddr string
		noWatch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the minutes service",
		Long: `Run the minutes engine as a long-lived service.

The service exposes:
  HTTP API      POST /api/v1/process, POST /api/v1/jobs,
                GET /api/v1/minutes, GET /api/v1/minutes/{id},
                GET|POST /api/v1/models, GET|DELETE /api/v1/performance,
                GET /health, GET /metrics, GET /version
  gRPC health   grpc.health.v1.Health (service "minutes" and "minutes.<stage>")

Background work:
  - A worker pool drains the job queue (Redis when redis.addr is set,
    in-process otherwise).
  - The drift monitor compares stage accuracy with performance targets.
  - The configuration file is watched; changed stages are hot-swapped
    through the model update coordinator.

The service stops gracefully on SIGINT or SIGTERM.

Examples:
  # Serve with the configured addresses
  minutes serve

  # Override the listen addresses
  minutes serve --http-addr :8081 --grpc-addr :9091

  # Disable the gRPC health server and config watching
  minutes serve --grpc-addr "" --no-watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.Server.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			configPath := ""
			if !noWatch {
				configPath = watchedPath(deps.ConfigPath)
			}
			return runServe(ctx, deps, cfg, configPath)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides server.http_addr)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC health listen address, empty to disable (overrides server.grpc_addr)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the configuration file for changes")

	return cmd
}

// watchedPath returns the config file to watch, or "" when there is none.
func watchedPath(path func() (string, error)) string {
	if path == nil {
		return ""
	}
	p, err := path()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// runServe runs every service component until ctx is done or one of them
// fails.
func runServe(ctx context.Context, deps *ServeCommandDeps, cfg *config.Config, configPath string) error {
	logger := deps.NewLogger(cfg)

	rt, err := deps.NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := api.NewServer(rt.Engine,
		api.WithLogger(logger),
		api.WithUpdater(rt.Coordinator),
		api.WithMinutes(rt.Store),
		api.WithQueue(rt.Queue),
		api.WithGatherer(rt.Registry),
	)

	poolCfg := workers.DefaultConfig()
	poolCfg.Count = cfg.Redis.Workers
	poolCfg.JobTimeout = 4 * cfg.Engine.StageTimeout
	pool := workers.NewPool(poolCfg, rt.Queue, workers.ProcessorHandler(rt.Engine),
		workers.WithLogger(logger),
		workers.WithMetrics(rt.Metrics),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.Server.HTTPAddr, cfg.Server.ShutdownTimeout)
	})

	if cfg.Server.GRPCAddr != "" {
		hs := health.NewServer(rt.Engine, health.WithLogger(logger))
		g.Go(func() error {
			return hs.Serve(ctx, cfg.Server.GRPCAddr)
		})
	}

	g.Go(func() error {
		pool.Start(ctx)
		<-ctx.Done()
		pool.Stop()
		return nil
	})

	g.Go(func() error {
		return ignoreCanceled(rt.Drift.Run(ctx))
	})

	if configPath != "" {
		w := config.NewWatcher(configPath, cfg, logger)
		g.Go(func() error {
			return ignoreCanceled(w.Watch(ctx, func(c config.Change) {
				applyStageChanges(ctx, rt.Coordinator, c, logger)
			}))
		})
	}

	logger.Info("Minutes service started",
		logging.F("http_addr", cfg.Server.HTTPAddr),
		logging.F("grpc_addr", cfg.Server.GRPCAddr),
		logging.F("queue", rt.Queue.Name()),
		logging.F("watching", configPath))

	err = g.Wait()
	logger.Info("Minutes service stopped")
	return err
}

// stageUpdater is the part of the coordinator config reloads use.
type stageUpdater interface {
	UpdateModel(ctx context.Context, stageName string, cfg stage.Config, opts update.Options) (update.Outcome, error)
}

// applyStageChanges hot-swaps every stage whose configuration changed. A
// failed update leaves the stage on its current model.
func applyStageChanges(ctx context.Context, u stageUpdater, c config.Change, logger logging.Logger) []update.Outcome {
	outcomes := make([]update.Outcome, 0, len(c.Stages))
	for _, name := range c.Stages {
		cfg, ok := c.Config.Stages.Get(name)
		if !ok {
			continue
		}
		outcome, err := u.UpdateModel(ctx, name, cfg, update.Options{Reason: ReloadReason})
		if err != nil {
			logger.Warn("Stage update from config reload failed",
				logging.Stage(name), logging.F("result", outcome.Result), logging.Err(err))
		} else {
			logger.Info("Stage updated from config reload",
				logging.Stage(name), logging.F("result", outcome.Result), logging.F("model", outcome.Model))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
