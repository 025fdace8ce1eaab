package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/admin"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthPingTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// newHealthMux serves /healthz (database reachability) and /metrics.
func newHealthMux(db pinger, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		status, body := http.StatusOK, "ok"
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("health check: database unreachable", "error", err)
			status, body = http.StatusServiceUnavailable, "database unreachable"
		}
		w.WriteHeader(status)
		if _, err := w.Write([]byte(body)); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// newAdminHandler stacks rate limiting, bearer auth and auditing in front of
// the admin API. The returned func stops the limiter's cleanup loop.
func newAdminHandler(sync admin.SyncController, checkpoints admin.CheckpointLister, secret string, logger *slog.Logger) (http.Handler, func()) {
	srv := admin.NewServer(sync, checkpoints, logger)
	rl := admin.NewRateLimiter(logger, admin.DefaultRules()...)
	if secret == "" {
		logger.Warn("admin API has no bearer secret, requests are not authenticated")
	}
	return rl.Wrap(admin.BearerAuth(secret, admin.AuditMiddleware(logger, srv.Handler()))), rl.Stop
}

func runHTTPServer(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("server started", "server", name, "port", port)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

type dbStatsProvider interface {
	Stats() sql.DBStats
}

type dbPoolGauges struct {
	open         prometheus.Gauge
	inUse        prometheus.Gauge
	idle         prometheus.Gauge
	waitCount    prometheus.Gauge
	waitDuration prometheus.Gauge
}

func collectDBPoolStats(db dbStatsProvider, gauges dbPoolGauges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return errors.New("db stats provider is nil")
	}

	stats := db.Stats()
	gauges.open.Set(float64(stats.OpenConnections))
	gauges.inUse.Set(float64(stats.InUse))
	gauges.idle.Set(float64(stats.Idle))
	gauges.waitCount.Set(float64(stats.WaitCount))
	gauges.waitDuration.Set(stats.WaitDuration.Seconds())
	return nil
}

func startDBPoolStatsPump(ctx context.Context, db dbStatsProvider, interval time.Duration, logger *slog.Logger) {
	if db == nil || interval <= 0 {
		return
	}

	gauges := dbPoolGauges{
		open:         metrics.DBPoolOpen,
		inUse:        metrics.DBPoolInUse,
		idle:         metrics.DBPoolIdle,
		waitCount:    metrics.DBPoolWaitCount,
		waitDuration: metrics.DBPoolWaitDurationSeconds,
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		if err := collectDBPoolStats(db, gauges); err != nil {
			logger.Warn("failed to collect initial db pool stats", "error", err)
		}
		for {
			select {
			case <-ctx.Done():
				logger.Info("db pool stats sampler stopped", "cause", "context_done")
				return
			case <-ticker.C:
				if err := collectDBPoolStats(db, gauges); err != nil {
					logger.Warn("failed to collect db pool stats", "error", err)
				}
			}
		}
	}()
}
