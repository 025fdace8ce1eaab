// Package scheduler drives ingestion and revocation passes over every
// configured chain on two independent timers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
	"github.com/DecentralizedGeo/astral-api/internal/reconciliation"
	"github.com/DecentralizedGeo/astral-api/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const (
	DefaultIngestionInterval  = 60 * time.Second
	DefaultRevocationInterval = 3600 * time.Second
	DefaultSweepLimit         = 100
)

// Pass kinds, used as metric labels.
const (
	KindIngestion  = "ingestion"
	KindRevocation = "revocation"
)

var (
	// ErrConflict is returned by a manual trigger while a pass of the same
	// kind is in progress.
	ErrConflict       = errors.New("pass already in progress")
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
	ErrUnknownChain   = errors.New("chain not configured")
)

// Ingester is the per-chain ingestion pipeline.
type Ingester interface {
	Chains() []model.Chain
	InitCheckpoints(ctx context.Context) error
	ProcessChain(ctx context.Context, c model.Chain) (int, error)
}

// Reconciler is the revocation reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, c model.Chain) (*reconciliation.RunResult, error)
	SweepActive(ctx context.Context, c model.Chain, limit int) (*reconciliation.RunResult, error)
}

type Config struct {
	IngestionInterval  time.Duration
	RevocationInterval time.Duration
	SweepLimit         int
	// SweepDisabled skips the active-proof sweep in revocation passes.
	SweepDisabled bool
}

func DefaultConfig() Config {
	return Config{
		IngestionInterval:  DefaultIngestionInterval,
		RevocationInterval: DefaultRevocationInterval,
		SweepLimit:         DefaultSweepLimit,
	}
}

// Scheduler owns the two timers and the per-kind overlap flags. Stop only
// disarms the timers; passes already running are allowed to finish.
type Scheduler struct {
	cfg        Config
	ingester   Ingester
	reconciler Reconciler
	stats      *Stats
	health     *HealthMonitor
	logger     *slog.Logger

	ingesting atomic.Bool
	revoking  atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithStats(s *Stats) Option {
	return func(sc *Scheduler) {
		if s != nil {
			sc.stats = s
		}
	}
}

func WithHealthMonitor(h *HealthMonitor) Option {
	return func(sc *Scheduler) {
		sc.health = h
	}
}

func New(cfg Config, ingester Ingester, reconciler Reconciler, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.IngestionInterval <= 0 {
		cfg.IngestionInterval = DefaultIngestionInterval
	}
	if cfg.RevocationInterval <= 0 {
		cfg.RevocationInterval = DefaultRevocationInterval
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = DefaultSweepLimit
	}
	s := &Scheduler{
		cfg:        cfg,
		ingester:   ingester,
		reconciler: reconciler,
		logger:     logger.With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = NewStats(DefaultErrorRingSize)
	}
	return s
}

// Start initializes missing checkpoints, runs one ingestion pass across all
// chains before returning, then arms the ingestion and revocation timers.
// The timers stop when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.stats.markStarted()
	s.logger.Info("scheduler starting",
		"chains", s.ingester.Chains(),
		"ingestion_interval", s.cfg.IngestionInterval.String(),
		"revocation_interval", s.cfg.RevocationInterval.String(),
	)

	if err := s.ingester.InitCheckpoints(ctx); err != nil {
		// the pass falls back to the epoch for chains left uninitialized
		s.logger.Warn("checkpoint initialization incomplete", "error", err)
	}

	if s.ingesting.CompareAndSwap(false, true) {
		s.runIngestionPass(context.WithoutCancel(ctx))
		s.ingesting.Store(false)
	}

	s.wg.Add(2)
	go s.periodic(ctx, stopCh, KindIngestion, s.cfg.IngestionInterval, &s.ingesting, s.runIngestionPass)
	go s.periodic(ctx, stopCh, KindRevocation, s.cfg.RevocationInterval, &s.revoking, func(ctx context.Context) { s.runRevocationPass(ctx) })
	return nil
}

// Stop disarms both timers. In-flight passes keep running; use Wait to drain.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	close(s.stopCh)
	s.running = false
	s.logger.Info("scheduler stopped; in-flight passes will finish")
	return nil
}

// Wait blocks until the timer loops and the passes they started have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) periodic(
	ctx context.Context,
	stopCh <-chan struct{},
	kind string,
	interval time.Duration,
	flag *atomic.Bool,
	pass func(context.Context),
) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			metrics.SchedulerTicksTotal.WithLabelValues(kind).Inc()
			if !flag.CompareAndSwap(false, true) {
				metrics.SchedulerTicksSkipped.WithLabelValues(kind).Inc()
				s.logger.Warn("previous pass still running; tick skipped", "kind", kind)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer flag.Store(false)
				pass(context.WithoutCancel(ctx))
			}()
		}
	}
}

// TriggerChain runs one ingestion pass for c now. It returns ErrConflict
// while any ingestion pass is running. The pass is detached from ctx
// cancellation so a dropped caller cannot cut a batch short.
func (s *Scheduler) TriggerChain(ctx context.Context, c model.Chain) (int, error) {
	if !s.hasChain(c) {
		metrics.SchedulerManualTriggers.WithLabelValues(KindIngestion, "unknown_chain").Inc()
		return 0, fmt.Errorf("%w: %s", ErrUnknownChain, c)
	}
	if !s.ingesting.CompareAndSwap(false, true) {
		metrics.SchedulerManualTriggers.WithLabelValues(KindIngestion, "conflict").Inc()
		return 0, ErrConflict
	}
	defer s.ingesting.Store(false)

	runID := s.stats.beginIngestion()
	stored, err := s.ingestChain(context.WithoutCancel(ctx), runID, c)
	if err != nil {
		metrics.SchedulerManualTriggers.WithLabelValues(KindIngestion, "failed").Inc()
		return stored, err
	}
	metrics.SchedulerManualTriggers.WithLabelValues(KindIngestion, "ok").Inc()
	return stored, nil
}

// TriggerRevocationSweep runs one revocation pass now and returns the number
// of proofs it marked revoked. It returns ErrConflict while any revocation
// pass is running. Like TriggerChain, the pass ignores ctx cancellation.
func (s *Scheduler) TriggerRevocationSweep(ctx context.Context) (int64, error) {
	if !s.revoking.CompareAndSwap(false, true) {
		metrics.SchedulerManualTriggers.WithLabelValues(KindRevocation, "conflict").Inc()
		return 0, ErrConflict
	}
	defer s.revoking.Store(false)

	revoked := s.runRevocationPass(context.WithoutCancel(ctx))
	metrics.SchedulerManualTriggers.WithLabelValues(KindRevocation, "ok").Inc()
	return revoked, nil
}

// Stats returns an immutable snapshot of the run statistics.
func (s *Scheduler) Stats() StatsSnapshot {
	snap := s.stats.Snapshot()
	snap.Running = s.Running()
	snap.IngestionInFlight = s.ingesting.Load()
	snap.RevocationInFlight = s.revoking.Load()
	return snap
}

// Health returns per-chain health, or nil when no monitor is configured.
func (s *Scheduler) Health() []HealthSnapshot {
	if s.health == nil {
		return nil
	}
	return s.health.Snapshot()
}

func (s *Scheduler) hasChain(c model.Chain) bool {
	for _, known := range s.ingester.Chains() {
		if known == c {
			return true
		}
	}
	return false
}

// runIngestionPass processes every chain in turn. A failing chain does not
// stop the others. The caller holds the ingestion flag.
func (s *Scheduler) runIngestionPass(ctx context.Context) {
	runID := s.stats.beginIngestion()
	start := time.Now()

	ctx, span := tracing.Tracer("scheduler").Start(ctx, "scheduler.ingestionPass",
		otelTrace.WithAttributes(attribute.String("run_id", runID)),
	)
	defer span.End()

	var total, failed int
	for _, c := range s.ingester.Chains() {
		stored, err := s.ingestChain(ctx, runID, c)
		total += stored
		if err != nil {
			failed++
		}
	}

	span.SetAttributes(attribute.Int("stored", total), attribute.Int("failed_chains", failed))
	metrics.SchedulerPassLatency.WithLabelValues(KindIngestion).Observe(time.Since(start).Seconds())
	s.logger.Info("ingestion pass finished",
		"run_id", runID,
		"stored", total,
		"failed_chains", failed,
		"duration", time.Since(start).String(),
	)
}

func (s *Scheduler) ingestChain(ctx context.Context, runID string, c model.Chain) (int, error) {
	start := time.Now()
	stored, err := s.ingester.ProcessChain(ctx, c)
	latency := time.Since(start)

	s.stats.recordIngestion(c, stored, err)
	if s.health != nil {
		s.health.Observe(ctx, c, latency, err)
	}
	if err != nil {
		s.logger.Warn("chain ingestion failed",
			"run_id", runID,
			"chain", c,
			"stored", stored,
			"error", err,
		)
		return stored, err
	}
	if stored > 0 {
		s.logger.Info("chain ingested", "run_id", runID, "chain", c, "stored", stored)
	}
	return stored, nil
}

// runRevocationPass runs the push reconcile and then the active sweep for
// every chain. The caller holds the revocation flag.
func (s *Scheduler) runRevocationPass(ctx context.Context) int64 {
	runID := s.stats.beginRevocation()
	start := time.Now()

	ctx, span := tracing.Tracer("scheduler").Start(ctx, "scheduler.revocationPass",
		otelTrace.WithAttributes(attribute.String("run_id", runID)),
	)
	defer span.End()

	var total int64
	for _, c := range s.ingester.Chains() {
		var revoked int64
		if res, err := s.reconciler.Reconcile(ctx, c); err == nil {
			revoked += res.Revoked
		}
		if !s.cfg.SweepDisabled {
			if res, err := s.reconciler.SweepActive(ctx, c, s.cfg.SweepLimit); err == nil {
				revoked += res.Revoked
			}
		}
		s.stats.recordRevocation(c, revoked)
		total += revoked
	}

	span.SetAttributes(attribute.Int64("revoked", total))
	metrics.SchedulerPassLatency.WithLabelValues(KindRevocation).Observe(time.Since(start).Seconds())
	s.logger.Info("revocation pass finished",
		"run_id", runID,
		"revoked", total,
		"duration", time.Since(start).String(),
	)
	return total
}
