package memory

import (
	"context"
	"testing"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointStore_Monotonic(t *testing.T) {
	s := NewCheckpointStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, model.ChainSepolia)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, model.ChainSepolia, 100))
	require.NoError(t, s.Set(ctx, model.ChainSepolia, 50))
	ts, ok, err := s.Get(ctx, model.ChainSepolia)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), ts)

	require.NoError(t, s.Set(ctx, model.ChainBase, 7))
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.ChainBase, list[0].Chain)
}

func TestRecordStore(t *testing.T) {
	s := NewRecordStore()
	ctx := context.Background()

	for i, uid := range []string{"0xb", "0xa", "0xc"} {
		require.NoError(t, s.Create(ctx, &model.NormalizedProof{
			UID:        uid,
			Chain:      model.ChainSepolia,
			ObservedAt: time.Unix(int64(100+i), 0),
		}))
	}
	assert.ErrorIs(t, s.Create(ctx, &model.NormalizedProof{UID: "0xa", Chain: model.ChainSepolia}), store.ErrDuplicateProof)
	require.NoError(t, s.Create(ctx, &model.NormalizedProof{UID: "0xa", Chain: model.ChainBase}))
	assert.Equal(t, 4, s.Len())

	exists, err := s.Exists(ctx, model.ChainSepolia, "0xc")
	require.NoError(t, err)
	assert.True(t, exists)

	active, err := s.ListActive(ctx, model.ChainSepolia, 2)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "0xb", active[0].UID)
	assert.Equal(t, "0xa", active[1].UID)

	n, err := s.BatchSetRevoked(ctx, model.ChainSepolia, []string{"0xa", "0xa", "0xzzz"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	p, ok := s.Get(model.ChainSepolia, "0xa")
	require.True(t, ok)
	assert.True(t, p.Revoked)
	other, _ := s.Get(model.ChainBase, "0xa")
	assert.False(t, other.Revoked, "revocation is scoped to the chain")

	active, err = s.ListActive(ctx, model.ChainSepolia, 10)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
