package store

import (
	"context"
	"errors"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
)

// ErrDuplicateProof is returned by Create when (chain, uid) already exists.
// Callers treat it as a no-op.
var ErrDuplicateProof = errors.New("proof already exists")

// CheckpointStore persists one watermark per chain.
type CheckpointStore interface {
	// Get returns the stored watermark; ok is false when the chain has none.
	Get(ctx context.Context, chain model.Chain) (ts int64, ok bool, err error)
	// Set stores ts unless it is lower than the current watermark.
	Set(ctx context.Context, chain model.Chain, ts int64) error
	// List returns all stored checkpoints ordered by chain.
	List(ctx context.Context) ([]model.ChainCheckpoint, error)
}

// RecordStore persists normalized proofs keyed by (chain, uid).
type RecordStore interface {
	Exists(ctx context.Context, chain model.Chain, uid string) (bool, error)
	// Create inserts a proof, returning ErrDuplicateProof if it is already stored.
	Create(ctx context.Context, p *model.NormalizedProof) error
	// BatchSetRevoked flips revoked to true for the given uids and returns how
	// many rows changed. It never sets revoked back to false.
	BatchSetRevoked(ctx context.Context, chain model.Chain, uids []string) (int64, error)
	// ListActive returns up to limit non-revoked proofs, oldest first.
	ListActive(ctx context.Context, chain model.Chain, limit int) ([]model.NormalizedProof, error)
}
