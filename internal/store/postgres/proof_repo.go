package postgres

import (
	"context"
	"fmt"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store"
	"github.com/lib/pq"
)

type ProofRepo struct {
	db *DB
}

var _ store.RecordStore = (*ProofRepo)(nil)

func NewProofRepo(db *DB) *ProofRepo {
	return &ProofRepo{db: db}
}

func (r *ProofRepo) Exists(ctx context.Context, chain model.Chain, uid string) (bool, error) {
	ctx, cancel := queryCtx(ctx)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM location_proofs WHERE chain = $1 AND uid = $2)
	`, chain, uid).Scan(&exists); err != nil {
		return false, fmt.Errorf("check proof exists: %w", err)
	}
	return exists, nil
}

func (r *ProofRepo) Create(ctx context.Context, p *model.NormalizedProof) error {
	ctx, cancel := queryCtx(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO location_proofs (
			chain, uid, prover, subject, observed_at, event_time, srs, location_type,
			raw_location, longitude, latitude, recipe_types, recipe_payloads,
			media_types, media_data, memo, revoked, first_seen_at, last_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (chain, uid) DO NOTHING
	`,
		p.Chain, p.UID, p.Prover, p.Subject, p.ObservedAt, p.EventTime, p.SRS, p.LocationType,
		p.RawLocation, p.Longitude, p.Latitude, pq.Array(nonNil(p.RecipeTypes)), pq.ByteaArray(nonNilBytes(p.RecipePayloads)),
		pq.Array(nonNil(p.MediaTypes)), pq.Array(nonNil(p.MediaData)), p.Memo, p.Revoked, p.FirstSeenAt, p.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert proof %s/%s: %w", p.Chain, p.UID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert proof rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrDuplicateProof
	}
	return nil
}

// BatchSetRevoked only touches rows still active, so the count is the number
// of newly revoked proofs.
func (r *ProofRepo) BatchSetRevoked(ctx context.Context, chain model.Chain, uids []string) (int64, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	ctx, cancel := queryCtx(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE location_proofs
		SET revoked = true, last_updated_at = now()
		WHERE chain = $1 AND uid = ANY($2) AND NOT revoked
	`, chain, pq.Array(uids))
	if err != nil {
		return 0, fmt.Errorf("batch set revoked: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("batch set revoked rows affected: %w", err)
	}
	return n, nil
}

func (r *ProofRepo) ListActive(ctx context.Context, chain model.Chain, limit int) ([]model.NormalizedProof, error) {
	if limit <= 0 {
		return []model.NormalizedProof{}, nil
	}
	ctx, cancel := queryCtx(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT chain, uid, prover, subject, observed_at, event_time, srs, location_type,
			raw_location, longitude, latitude, recipe_types, recipe_payloads,
			media_types, media_data, memo, revoked, first_seen_at, last_updated_at
		FROM location_proofs
		WHERE chain = $1 AND NOT revoked
		ORDER BY observed_at, uid
		LIMIT $2
	`, chain, limit)
	if err != nil {
		return nil, fmt.Errorf("list active proofs: %w", err)
	}
	defer rows.Close()

	out := make([]model.NormalizedProof, 0, limit)
	for rows.Next() {
		var (
			p        model.NormalizedProof
			payloads pq.ByteaArray
		)
		if err := rows.Scan(
			&p.Chain, &p.UID, &p.Prover, &p.Subject, &p.ObservedAt, &p.EventTime, &p.SRS, &p.LocationType,
			&p.RawLocation, &p.Longitude, &p.Latitude, pq.Array(&p.RecipeTypes), &payloads,
			pq.Array(&p.MediaTypes), pq.Array(&p.MediaData), &p.Memo, &p.Revoked, &p.FirstSeenAt, &p.LastUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		p.RecipePayloads = payloads
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proofs: %w", err)
	}
	return out, nil
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nonNilBytes(bs [][]byte) [][]byte {
	if bs == nil {
		return [][]byte{}
	}
	return bs
}
