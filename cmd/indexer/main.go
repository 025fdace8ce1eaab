package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/config"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/pipeline/scheduler"
	"github.com/DecentralizedGeo/astral-api/internal/reconciliation"
	"github.com/DecentralizedGeo/astral-api/internal/store/postgres"
	"github.com/DecentralizedGeo/astral-api/internal/tracing"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Synchronize location attestations from EAS chains",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (default $"+config.EnvConfigPath+")")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newSyncCmd(&configPath),
	)
	return root
}

// setup loads the config and installs the JSON logger as the default.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync scheduler with the health and admin servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg, logger); err != nil {
				logger.Error("indexer exited with error", "error", err)
				return err
			}
			logger.Info("indexer shut down gracefully")
			return nil
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			db, err := openPostgres(cfg)
			if err != nil {
				logger.Error("failed to connect to database", "error", err)
				return err
			}
			defer db.Close()
			if err := db.RunMigrations(logger); err != nil {
				logger.Error("migration failed", "error", err)
				return err
			}
			return nil
		},
	}
}

func newSyncCmd(configPath *string) *cobra.Command {
	var chainName string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one ingestion pass for a chain and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ok := model.ParseChain(chainName)
			if !ok {
				return fmt.Errorf("unknown chain %q", chainName)
			}
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(cfg, logger)
			if err != nil {
				logger.Error("failed to open runtime", "error", err)
				return err
			}
			defer rt.Close()

			ing := rt.newIngester(nil)
			stored, err := ing.ProcessChain(ctx, c)
			if err != nil {
				logger.Error("sync failed", "chain", c, "error", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: stored %d new proofs\n", c, stored)
			return nil
		},
	}
	cmd.Flags().StringVar(&chainName, "chain", "", "chain to synchronize")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	traceOpts := tracing.Options{
		ServiceName: cfg.Tracing.ServiceName,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	}
	if cfg.Tracing.Enabled {
		traceOpts.Endpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(ctx, traceOpts)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.DB.MigrateOnStart {
		if err := rt.db.RunMigrations(logger); err != nil {
			return err
		}
	}

	alerter := buildAlerter(cfg, logger)
	stats := scheduler.NewStats(cfg.Scheduler.ErrorRingSize)
	ing := rt.newIngester(stats)

	rec := reconciliation.NewService(rt.records, alerter, logger)
	rec.SetErrorSink(stats)
	for c, src := range rt.sources {
		rec.RegisterSource(c, src)
	}

	health := scheduler.NewHealthMonitor(alerter, cfg.Scheduler.UnhealthyThreshold, logger)
	sched := scheduler.New(scheduler.Config{
		IngestionInterval:  cfg.Scheduler.IngestionInterval,
		RevocationInterval: cfg.Scheduler.RevocationInterval,
		SweepLimit:         cfg.Scheduler.SweepLimit,
		SweepDisabled:      cfg.Scheduler.SweepDisabled,
	}, ing, rec, logger, scheduler.WithStats(stats), scheduler.WithHealthMonitor(health))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHTTPServer(gCtx, "health", cfg.Server.HealthPort, newHealthMux(rt.db, logger), logger)
	})
	if cfg.Server.AdminPort > 0 {
		g.Go(func() error {
			handler, stopLimiter := newAdminHandler(sched, rt.checkpoints, cfg.Server.AdminJWTSecret, logger)
			defer stopLimiter()
			return runHTTPServer(gCtx, "admin", cfg.Server.AdminPort, handler, logger)
		})
	}

	startDBPoolStatsPump(gCtx, rt.db.DB, cfg.DB.PoolStatsInterval, logger)

	g.Go(func() error {
		if err := sched.Start(gCtx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-gCtx.Done()
		logger.Info("stopping scheduler", "cause", context.Cause(gCtx))
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
			return err
		}
		sched.Wait()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openPostgres(cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(postgres.Config{
		URL:              cfg.DB.URL,
		MaxOpenConns:     cfg.DB.MaxOpenConns,
		MaxIdleConns:     cfg.DB.MaxIdleConns,
		ConnMaxLifetime:  cfg.DB.ConnMaxLifetime,
		StatementTimeout: time.Duration(cfg.DB.StatementTimeoutMS) * time.Millisecond,
	})
}
