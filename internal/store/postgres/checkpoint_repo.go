package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store"
)

type CheckpointRepo struct {
	db *DB
}

var _ store.CheckpointStore = (*CheckpointRepo)(nil)

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

func (r *CheckpointRepo) Get(ctx context.Context, chain model.Chain) (int64, bool, error) {
	ctx, cancel := queryCtx(ctx)
	defer cancel()

	var ts int64
	err := r.db.QueryRowContext(ctx, `
		SELECT last_processed_unix FROM chain_checkpoints WHERE chain = $1
	`, chain).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint: %w", err)
	}
	return ts, true, nil
}

// Set upserts the watermark; GREATEST keeps it from moving backwards.
func (r *CheckpointRepo) Set(ctx context.Context, chain model.Chain, ts int64) error {
	ctx, cancel := queryCtx(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chain_checkpoints (chain, last_processed_unix, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chain) DO UPDATE SET
			last_processed_unix = GREATEST(chain_checkpoints.last_processed_unix, EXCLUDED.last_processed_unix),
			updated_at = now()
	`, chain, ts)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) List(ctx context.Context) ([]model.ChainCheckpoint, error) {
	ctx, cancel := queryCtx(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT chain, last_processed_unix, updated_at FROM chain_checkpoints ORDER BY chain
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []model.ChainCheckpoint
	for rows.Next() {
		var cp model.ChainCheckpoint
		if err := rows.Scan(&cp.Chain, &cp.LastProcessedUnix, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
