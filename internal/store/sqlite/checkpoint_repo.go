package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store"
)

type CheckpointRepo struct {
	db  *DB
	now func() time.Time
}

var _ store.CheckpointStore = (*CheckpointRepo)(nil)

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db, now: time.Now}
}

func (r *CheckpointRepo) Get(ctx context.Context, chain model.Chain) (int64, bool, error) {
	var ts int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_processed_unix FROM chain_checkpoints WHERE chain = ?`, string(chain),
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint: %w", err)
	}
	return ts, true, nil
}

func (r *CheckpointRepo) Set(ctx context.Context, chain model.Chain, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chain_checkpoints (chain, last_processed_unix, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (chain) DO UPDATE SET
			last_processed_unix = MAX(last_processed_unix, excluded.last_processed_unix),
			updated_at = excluded.updated_at
	`, string(chain), ts, r.now().Unix())
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) List(ctx context.Context) ([]model.ChainCheckpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT chain, last_processed_unix, updated_at FROM chain_checkpoints ORDER BY chain`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []model.ChainCheckpoint
	for rows.Next() {
		var (
			cp      model.ChainCheckpoint
			chain   string
			updated int64
		)
		if err := rows.Scan(&chain, &cp.LastProcessedUnix, &updated); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Chain = model.Chain(chain)
		cp.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, cp)
	}
	return out, rows.Err()
}
