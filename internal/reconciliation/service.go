// Package reconciliation marks stored proofs revoked once their source
// attestation has been revoked. It only ever sets the flag, never clears it.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/alert"
	"github.com/DecentralizedGeo/astral-api/internal/chain"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
	"github.com/DecentralizedGeo/astral-api/internal/store"
	"github.com/DecentralizedGeo/astral-api/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Strategy names the way a run discovered revocations.
type Strategy string

const (
	// StrategyPush asks the source for its revoked list and keeps local hits.
	StrategyPush Strategy = "push"
	// StrategySweep checks locally active proofs against the source.
	StrategySweep Strategy = "sweep"
)

const DefaultSweepLimit = 100

var ErrUnknownChain = errors.New("no source registered for chain")

// ErrorSink receives failures that did not abort the run.
type ErrorSink interface {
	RecordError(chain model.Chain, stage string, err error)
}

// RunResult summarizes one reconciliation run for one chain.
type RunResult struct {
	Chain         model.Chain `json:"chain"`
	Strategy      Strategy    `json:"strategy"`
	Candidates    int         `json:"candidates"`
	Revoked       int64       `json:"revoked"`
	Errors        int         `json:"errors"`
	PageSaturated bool        `json:"page_saturated"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
}

// Service reconciles revocation state between sources and the record store.
type Service struct {
	records   store.RecordStore
	alerter   alert.Alerter
	errorSink ErrorSink
	logger    *slog.Logger

	mu      sync.RWMutex
	sources map[model.Chain]chain.SourceClient
}

func NewService(records store.RecordStore, alerter alert.Alerter, logger *slog.Logger) *Service {
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	return &Service{
		records: records,
		alerter: alerter,
		logger:  logger.With("component", "reconciliation"),
		sources: make(map[model.Chain]chain.SourceClient),
	}
}

// SetErrorSink sets where per-item failures are reported.
func (s *Service) SetErrorSink(sink ErrorSink) {
	s.errorSink = sink
}

func (s *Service) RegisterSource(c model.Chain, src chain.SourceClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[c] = src
}

func (s *Service) HasSource(c model.Chain) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[c]
	return ok
}

// Chains returns the registered chains in a stable order.
func (s *Service) Chains() []model.Chain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Chain, 0, len(s.sources))
	for c := range s.sources {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) source(c model.Chain) (chain.SourceClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, c)
	}
	return src, nil
}

// pageSize is the source's revoked page limit, the default when unset.
func pageSize(src chain.SourceClient) int {
	if n := src.RevokedPageSize(); n > 0 {
		return n
	}
	return chain.DefaultRevokedPageSize
}

// Reconcile fetches the source's revoked list for the chain's schema, keeps
// the uids stored locally and marks them revoked. Only the first page is read;
// a full page is logged and alerted, and SweepActive covers the remainder.
func (s *Service) Reconcile(ctx context.Context, c model.Chain) (*RunResult, error) {
	src, err := s.source(c)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Chain: c, Strategy: StrategyPush, StartedAt: time.Now()}
	return s.run(ctx, result, func(ctx context.Context) ([]string, error) {
		ids, err := src.FetchRevokedIDs(ctx, src.SchemaID())
		if err != nil {
			return nil, fmt.Errorf("fetch revoked ids: %w", err)
		}
		if len(ids) >= pageSize(src) {
			result.PageSaturated = true
			s.pageSaturated(ctx, c, len(ids))
		}

		local := make([]string, 0, len(ids))
		for _, id := range ids {
			ok, err := s.records.Exists(ctx, c, id)
			if err != nil {
				result.Errors++
				s.reportError(c, "revocation_exists", err)
				s.logger.Warn("revoked uid lookup failed", "chain", c, "uid", id, "error", err)
				continue
			}
			if ok {
				local = append(local, id)
			}
		}
		return local, nil
	})
}

// SweepActive checks up to limit locally active proofs against the source and
// marks the revoked subset.
func (s *Service) SweepActive(ctx context.Context, c model.Chain, limit int) (*RunResult, error) {
	src, err := s.source(c)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSweepLimit
	}

	result := &RunResult{Chain: c, Strategy: StrategySweep, StartedAt: time.Now()}
	return s.run(ctx, result, func(ctx context.Context) ([]string, error) {
		active, err := s.records.ListActive(ctx, c, limit)
		if err != nil {
			return nil, fmt.Errorf("list active proofs: %w", err)
		}
		if len(active) == 0 {
			return nil, nil
		}
		uids := make([]string, len(active))
		for i, p := range active {
			uids[i] = p.UID
		}
		revoked, err := src.CheckRevocationStatus(ctx, uids)
		if err != nil {
			return nil, fmt.Errorf("check revocation status: %w", err)
		}
		return revoked, nil
	})
}

// run wraps one strategy with tracing, metrics and the final batch update.
// collect returns the uids to mark revoked.
func (s *Service) run(ctx context.Context, result *RunResult, collect func(context.Context) ([]string, error)) (*RunResult, error) {
	c, strategy := result.Chain, string(result.Strategy)

	ctx, span := tracing.StartChainSpan(ctx, "reconciliation", strategy, c.String())
	var err error
	defer func() { tracing.EndWithError(span, err) }()

	metrics.ReconciliationRunsTotal.WithLabelValues(c.String(), strategy).Inc()

	var uids []string
	uids, err = collect(ctx)
	if err == nil && len(uids) > 0 {
		result.Candidates = len(uids)
		result.Revoked, err = s.records.BatchSetRevoked(ctx, c, uids)
		if err != nil {
			err = fmt.Errorf("mark revoked: %w", err)
		}
	}
	result.FinishedAt = time.Now()
	span.SetAttributes(
		attribute.Int("candidates", result.Candidates),
		attribute.Int64("revoked", result.Revoked),
	)

	if result.Errors > 0 {
		metrics.ReconciliationErrors.WithLabelValues(c.String(), strategy).Add(float64(result.Errors))
	}
	if err != nil {
		metrics.ReconciliationErrors.WithLabelValues(c.String(), strategy).Inc()
		s.reportError(c, "revocation_"+strategy, err)
		s.logger.Warn("reconciliation failed", "chain", c, "strategy", strategy, "error", err)
		_ = s.alerter.Send(ctx, alert.Alert{
			Type:    alert.AlertTypeReconcileFailed,
			Chain:   c.String(),
			Title:   "Revocation reconciliation failed",
			Message: err.Error(),
			Fields:  map[string]string{"strategy": strategy},
		})
		return result, fmt.Errorf("reconcile %s (%s): %w", c, strategy, err)
	}
	metrics.ReconciliationRevoked.WithLabelValues(c.String(), strategy).Add(float64(result.Revoked))

	s.logger.Info("reconciliation completed",
		"chain", c,
		"strategy", strategy,
		"candidates", result.Candidates,
		"revoked", result.Revoked,
		"errors", result.Errors,
		"duration", result.FinishedAt.Sub(result.StartedAt).String(),
	)
	return result, nil
}

func (s *Service) pageSaturated(ctx context.Context, c model.Chain, n int) {
	metrics.ReconciliationPageSaturated.WithLabelValues(c.String()).Inc()
	s.logger.Warn("revoked list filled one page; older revocations left to the active sweep",
		"chain", c,
		"page_size", n,
	)
	_ = s.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeRevocationBacklog,
		Chain:   c.String(),
		Title:   "Revoked list page saturated",
		Message: "the source returned a full page of revoked attestations",
		Fields: map[string]string{
			"page_size": strconv.Itoa(n),
		},
	})
}

func (s *Service) reportError(c model.Chain, stage string, err error) {
	if s.errorSink != nil {
		s.errorSink.RecordError(c, stage, err)
	}
}
