package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/decider/internal/config"
	"github.com/rafaeljc/decider/internal/database"
	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/logger"
	"github.com/rafaeljc/decider/internal/observability"
	"github.com/rafaeljc/decider/internal/overrides"
	"github.com/rafaeljc/decider/internal/reload"
	"github.com/rafaeljc/decider/internal/store"
)

// metricsInterval is how often pool and override store gauges are refreshed.
const metricsInterval = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep a feature document loaded, synced and observable",
		Long: `serve loads the configured feature document, reloads it when it changes,
syncs overrides from Redis and exposes probes, metrics and the feature
inventory. It never serves decisions over the network.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, logger.FromContext(ctx))
		},
	}
}

// serve is the service composition root. It blocks until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting decider service", slog.String("source", cfg.Source.Kind))

	var holder reload.Holder
	checkers := []observability.Checker{&holder}
	opts := []decider.Option{
		decider.WithLogger(logger.WithComponent(log, "decider")),
		decider.WithMetrics(observability.PrometheusSink{}),
	}

	g, gctx := errgroup.WithContext(ctx)

	// -------------------------------------------------------------------------
	// 1. Overrides (Redis -> memory)
	// -------------------------------------------------------------------------
	var syncer *overrides.Syncer
	if cfg.Overrides.Enabled {
		client, err := overrides.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()

		mem, err := overrides.NewMemoryStore(cfg.Overrides.Capacity, cfg.Overrides.TTL)
		if err != nil {
			return err
		}
		defer mem.Close()

		overridesLog := logger.WithComponent(log, "overrides")
		src := overrides.NewRedisSource(client, cfg.Overrides.KeyPrefix, overridesLog)
		syncer = overrides.NewSyncer(overridesLog, cfg.Overrides.SyncInterval, src, mem, holder.Features)

		// Records outlive a failed sync until their TTL; past that the copy is stale.
		maxAge := cfg.Overrides.TTL
		if maxAge == 0 {
			maxAge = 3 * cfg.Overrides.SyncInterval
		}

		opts = append(opts, decider.WithOverrides(mem))
		checkers = append(checkers, overrides.NewHealthChecker(client, syncer, maxAge))

		g.Go(func() error {
			mem.RunMetricsCollector(gctx, metricsInterval)
			return nil
		})
	}

	// -------------------------------------------------------------------------
	// 2. Document source
	// -------------------------------------------------------------------------
	var source reload.Source
	switch cfg.Source.Kind {
	case config.SourcePostgres:
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()

		checkers = append(checkers, database.NewHealthChecker(pool, cfg.Source.Document))
		source = reload.PostgresSource{
			Repo:    store.NewPostgresStore(pool),
			Name:    cfg.Source.Document,
			Timeout: cfg.Database.QueryTimeout,
		}
		g.Go(func() error {
			database.RunPoolMonitor(gctx, pool, metricsInterval)
			return nil
		})
	default:
		source = reload.FileSource{Path: cfg.Source.Path}
	}

	reloader := reload.NewReloader(logger.WithComponent(log, "reload"), source, &holder, opts...)

	// Fail fast: without a first document there is nothing to serve.
	if _, err := reloader.Reload(ctx); err != nil {
		return fmt.Errorf("initial feature document load failed: %w", err)
	}

	// -------------------------------------------------------------------------
	// 3. Background workers
	// -------------------------------------------------------------------------
	if syncer != nil {
		g.Go(func() error { return syncer.Run(gctx) })
	}

	if cfg.Source.Kind == config.SourceFile && cfg.Source.Watch {
		watcher, err := reload.NewFileWatcher(logger.WithComponent(log, "watcher"), reloader, cfg.Source.Path, cfg.Source.Debounce)
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(gctx) })
	} else {
		g.Go(func() error { return reloader.Poll(gctx, cfg.Source.PollInterval) })
	}

	// -------------------------------------------------------------------------
	// 4. Observability server
	// -------------------------------------------------------------------------
	server := observability.NewServer(logger.WithComponent(log, "observability"), &cfg.Observability, holder.Current, checkers...)
	g.Go(func() error { return server.Run(gctx) })

	<-gctx.Done()
	log.Info("stopping workers", slog.Bool("signalled", ctx.Err() != nil))

	stopped := make(chan error, 1)
	go func() { stopped <- g.Wait() }()

	select {
	case err := <-stopped:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		return fmt.Errorf("workers did not stop within %s", cfg.App.ShutdownTimeout)
	}

	log.Info("decider service exited successfully")
	return nil
}
