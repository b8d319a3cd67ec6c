package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/stateflow/internal/config"
	"github.com/haasonsaas/stateflow/internal/contextstore"
	"github.com/haasonsaas/stateflow/internal/engine"
	"github.com/haasonsaas/stateflow/internal/gateway"
	"github.com/haasonsaas/stateflow/internal/observability"
	"github.com/haasonsaas/stateflow/internal/scenario"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dialog engine server",
		Long: `Start the HTTP server exposing turn execution, scenario upload and
download, session administration, metrics, and the liveness channel.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with defaults and a scenario directory
  SCENARIO_DIR=/var/scenarios stateflow serve

  # Start with a config file
  stateflow serve --config /etc/stateflow/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, registry := observability.NewMetrics()

	tracer, traceShutdown, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:    "stateflow",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(shutdownCtx); err != nil {
			logger.Warn("trace shutdown error", "error", err)
		}
	}()

	repo, err := scenario.NewRepository(cfg.Scenario.Dir, logger)
	if err != nil {
		return fmt.Errorf("scenario repository: %w", err)
	}
	defer repo.Close()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("context store: %w", err)
	}
	defer store.Close()

	eng := engine.New(repo, store, logger, metrics, tracer)
	server := gateway.New(eng, logger, metrics, registry)
	if err := server.Start(cfg.Server.Addr()); err != nil {
		return err
	}
	logger.Info("stateflow running",
		"addr", cfg.Server.Addr(),
		"scenario_dir", cfg.Scenario.Dir,
		"context_ttl", cfg.Context.TTL(),
		"redis", cfg.Context.RedisURL != "")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStore selects the context store backend: Redis when configured,
// in-memory otherwise.
func buildStore(ctx context.Context, cfg *config.Config) (contextstore.Store, error) {
	if cfg.Context.RedisURL != "" {
		return contextstore.NewRedisStore(ctx, cfg.Context.RedisURL, cfg.Context.TTL())
	}
	return contextstore.NewMemoryStore(cfg.Context.TTL()), nil
}
