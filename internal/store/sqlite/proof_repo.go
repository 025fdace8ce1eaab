package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store"
)

// ProofRepo keeps proofs in a single table; array columns are JSON text and
// times are unix seconds.
type ProofRepo struct {
	db  *DB
	now func() time.Time
}

var _ store.RecordStore = (*ProofRepo)(nil)

func NewProofRepo(db *DB) *ProofRepo {
	return &ProofRepo{db: db, now: time.Now}
}

func (r *ProofRepo) Exists(ctx context.Context, chain model.Chain, uid string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM location_proofs WHERE chain = ? AND uid = ?)`, string(chain), uid,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check proof exists: %w", err)
	}
	return exists, nil
}

func (r *ProofRepo) Create(ctx context.Context, p *model.NormalizedProof) error {
	recipeTypes, err := marshalList(p.RecipeTypes)
	if err != nil {
		return err
	}
	payloads, err := marshalList(p.RecipePayloads)
	if err != nil {
		return err
	}
	mediaTypes, err := marshalList(p.MediaTypes)
	if err != nil {
		return err
	}
	mediaData, err := marshalList(p.MediaData)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO location_proofs (
			chain, uid, prover, subject, observed_at, event_time, srs, location_type,
			raw_location, longitude, latitude, recipe_types, recipe_payloads,
			media_types, media_data, memo, revoked, first_seen_at, last_updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain, uid) DO NOTHING
	`,
		string(p.Chain), p.UID, p.Prover, p.Subject, p.ObservedAt.Unix(), p.EventTime.Unix(), p.SRS, p.LocationType,
		p.RawLocation, p.Longitude, p.Latitude, recipeTypes, payloads,
		mediaTypes, mediaData, p.Memo, p.Revoked, p.FirstSeenAt.Unix(), p.LastUpdatedAt.Unix(),
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

func (r *ProofRepo) BatchSetRevoked(ctx context.Context, chain model.Chain, uids []string) (int64, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(uids)+2)
	args = append(args, r.now().Unix(), string(chain))
	for _, uid := range uids {
		args = append(args, uid)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(uids)), ",")

	res, err := r.db.ExecContext(ctx, `
		UPDATE location_proofs
		SET revoked = 1, last_updated_at = ?
		WHERE chain = ? AND revoked = 0 AND uid IN (`+placeholders+`)
	`, args...)
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
	rows, err := r.db.QueryContext(ctx, `
		SELECT chain, uid, prover, subject, observed_at, event_time, srs, location_type,
			raw_location, longitude, latitude, recipe_types, recipe_payloads,
			media_types, media_data, memo, revoked, first_seen_at, last_updated_at
		FROM location_proofs
		WHERE chain = ? AND revoked = 0
		ORDER BY observed_at, uid
		LIMIT ?
	`, string(chain), limit)
	if err != nil {
		return nil, fmt.Errorf("list active proofs: %w", err)
	}
	defer rows.Close()

	out := make([]model.NormalizedProof, 0, limit)
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proofs: %w", err)
	}
	return out, nil
}

func scanProof(rows *sql.Rows) (model.NormalizedProof, error) {
	var (
		p                                            model.NormalizedProof
		chain                                        string
		observed, event, firstSeen, lastUpdated      int64
		lon, lat                                     sql.NullFloat64
		recipeTypes, payloads, mediaTypes, mediaData string
	)
	if err := rows.Scan(
		&chain, &p.UID, &p.Prover, &p.Subject, &observed, &event, &p.SRS, &p.LocationType,
		&p.RawLocation, &lon, &lat, &recipeTypes, &payloads,
		&mediaTypes, &mediaData, &p.Memo, &p.Revoked, &firstSeen, &lastUpdated,
	); err != nil {
		return p, fmt.Errorf("scan proof: %w", err)
	}

	p.Chain = model.Chain(chain)
	p.ObservedAt = time.Unix(observed, 0).UTC()
	p.EventTime = time.Unix(event, 0).UTC()
	p.FirstSeenAt = time.Unix(firstSeen, 0).UTC()
	p.LastUpdatedAt = time.Unix(lastUpdated, 0).UTC()
	if lon.Valid && lat.Valid {
		p.Longitude, p.Latitude = &lon.Float64, &lat.Float64
	}

	for _, col := range []struct {
		raw string
		dst any
	}{
		{recipeTypes, &p.RecipeTypes},
		{payloads, &p.RecipePayloads},
		{mediaTypes, &p.MediaTypes},
		{mediaData, &p.MediaData},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return p, fmt.Errorf("decode proof %s list column: %w", p.UID, err)
		}
	}
	return p, nil
}

func marshalList[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list column: %w", err)
	}
	return string(b), nil
}
