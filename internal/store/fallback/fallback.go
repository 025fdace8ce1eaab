// Package fallback decorates a primary store with a secondary one that
// serves operations the primary fails.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
	"github.com/DecentralizedGeo/astral-api/internal/store"
)

// tier runs an operation on the primary and retries it on the secondary when
// the primary fails. Domain outcomes (duplicates) and caller cancellation are
// returned as is.
type tier struct {
	name   string
	logger *slog.Logger
}

func run[T any](ctx context.Context, t tier, op string, primary, secondary func() (T, error)) (T, error) {
	v, err := primary()
	if err == nil || !shouldFallback(ctx, err) {
		return v, err
	}

	metrics.StoreErrors.WithLabelValues("primary", op).Inc()
	metrics.StoreFallbackTotal.WithLabelValues(t.name, op).Inc()
	t.logger.Warn("primary store failed, using secondary", "op", op, "error", err)

	v, secErr := secondary()
	if secErr != nil && shouldFallback(ctx, secErr) {
		metrics.StoreErrors.WithLabelValues("secondary", op).Inc()
		return v, fmt.Errorf("%s: primary: %v; secondary: %w", op, err, secErr)
	}
	return v, secErr
}

func shouldFallback(ctx context.Context, err error) bool {
	if errors.Is(err, store.ErrDuplicateProof) {
		return false
	}
	return ctx.Err() == nil
}

// RecordStore serves proofs from primary, falling back to secondary.
type RecordStore struct {
	primary   store.RecordStore
	secondary store.RecordStore
	tier      tier
}

var _ store.RecordStore = (*RecordStore)(nil)

func NewRecordStore(primary, secondary store.RecordStore, logger *slog.Logger) *RecordStore {
	return &RecordStore{
		primary:   primary,
		secondary: secondary,
		tier:      tier{name: "records", logger: logger.With("component", "fallback_store", "store", "records")},
	}
}

func (s *RecordStore) Exists(ctx context.Context, chain model.Chain, uid string) (bool, error) {
	return run(ctx, s.tier, "exists",
		func() (bool, error) { return s.primary.Exists(ctx, chain, uid) },
		func() (bool, error) { return s.secondary.Exists(ctx, chain, uid) },
	)
}

func (s *RecordStore) Create(ctx context.Context, p *model.NormalizedProof) error {
	_, err := run(ctx, s.tier, "create",
		func() (struct{}, error) { return struct{}{}, s.primary.Create(ctx, p) },
		func() (struct{}, error) { return struct{}{}, s.secondary.Create(ctx, p) },
	)
	return err
}

func (s *RecordStore) BatchSetRevoked(ctx context.Context, chain model.Chain, uids []string) (int64, error) {
	return run(ctx, s.tier, "batch_set_revoked",
		func() (int64, error) { return s.primary.BatchSetRevoked(ctx, chain, uids) },
		func() (int64, error) { return s.secondary.BatchSetRevoked(ctx, chain, uids) },
	)
}

func (s *RecordStore) ListActive(ctx context.Context, chain model.Chain, limit int) ([]model.NormalizedProof, error) {
	return run(ctx, s.tier, "list_active",
		func() ([]model.NormalizedProof, error) { return s.primary.ListActive(ctx, chain, limit) },
		func() ([]model.NormalizedProof, error) { return s.secondary.ListActive(ctx, chain, limit) },
	)
}

// CheckpointStore reads from primary and falls back to secondary. Successful
// primary writes are mirrored to the secondary so a fallback read is current.
type CheckpointStore struct {
	primary   store.CheckpointStore
	secondary store.CheckpointStore
	tier      tier
}

var _ store.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore(primary, secondary store.CheckpointStore, logger *slog.Logger) *CheckpointStore {
	return &CheckpointStore{
		primary:   primary,
		secondary: secondary,
		tier:      tier{name: "checkpoints", logger: logger.With("component", "fallback_store", "store", "checkpoints")},
	}
}

type getResult struct {
	ts int64
	ok bool
}

func (s *CheckpointStore) Get(ctx context.Context, chain model.Chain) (int64, bool, error) {
	r, err := run(ctx, s.tier, "get",
		func() (getResult, error) {
			ts, ok, err := s.primary.Get(ctx, chain)
			return getResult{ts, ok}, err
		},
		func() (getResult, error) {
			ts, ok, err := s.secondary.Get(ctx, chain)
			return getResult{ts, ok}, err
		},
	)
	return r.ts, r.ok, err
}

func (s *CheckpointStore) Set(ctx context.Context, chain model.Chain, ts int64) error {
	mirrored := false
	_, err := run(ctx, s.tier, "set",
		func() (struct{}, error) { return struct{}{}, s.primary.Set(ctx, chain, ts) },
		func() (struct{}, error) { mirrored = true; return struct{}{}, s.secondary.Set(ctx, chain, ts) },
	)
	if err == nil && !mirrored {
		if mirrorErr := s.secondary.Set(ctx, chain, ts); mirrorErr != nil {
			s.tier.logger.Debug("checkpoint mirror write failed", "chain", chain, "error", mirrorErr)
		}
	}
	return err
}

func (s *CheckpointStore) List(ctx context.Context) ([]model.ChainCheckpoint, error) {
	return run(ctx, s.tier, "list",
		func() ([]model.ChainCheckpoint, error) { return s.primary.List(ctx) },
		func() ([]model.ChainCheckpoint, error) { return s.secondary.List(ctx) },
	)
}
