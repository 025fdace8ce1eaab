//go:build integration

package postgres_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store"
	"github.com/DecentralizedGeo/astral-api/internal/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProof(chain model.Chain, uid string, observed int64) *model.NormalizedProof {
	lon, lat := -74.006, 40.7128
	at := time.Unix(observed, 0).UTC()
	return &model.NormalizedProof{
		UID:            uid,
		Chain:          chain,
		Prover:         "0xprover",
		Subject:        "0xsubject",
		ObservedAt:     at,
		EventTime:      at,
		SRS:            model.DefaultSRS,
		LocationType:   model.DefaultLocationType,
		RawLocation:    "40.7128,-74.006",
		Longitude:      &lon,
		Latitude:       &lat,
		RecipeTypes:    []string{"gps"},
		RecipePayloads: [][]byte{{0x01, 0x02}},
		MediaTypes:     []string{},
		MediaData:      []string{},
		FirstSeenAt:    at,
		LastUpdatedAt:  at,
	}
}

// ---------- CheckpointRepo ----------

func TestCheckpointRepo_GetSetMonotonic(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewCheckpointRepo(db)
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, model.ChainSepolia)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, model.ChainSepolia, 1700000301))
	require.NoError(t, repo.Set(ctx, model.ChainSepolia, 1600000000))

	ts, ok, err := repo.Get(ctx, model.ChainSepolia)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000301), ts, "checkpoint never decreases")

	require.NoError(t, repo.Set(ctx, model.ChainBase, 1))
	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.ChainBase, list[0].Chain)
	assert.Equal(t, model.ChainSepolia, list[1].Chain)
}

// ---------- ProofRepo ----------

func TestProofRepo_CreateExistsDuplicate(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewProofRepo(db)
	ctx := context.Background()

	p := sampleProof(model.ChainSepolia, "0xabc", 1700000100)
	require.NoError(t, repo.Create(ctx, p))
	assert.ErrorIs(t, repo.Create(ctx, p), store.ErrDuplicateProof)

	exists, err := repo.Exists(ctx, model.ChainSepolia, "0xabc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, model.ChainBase, "0xabc")
	require.NoError(t, err)
	assert.False(t, exists, "uid is scoped to its chain")
}

func TestProofRepo_RoundTripWithoutCoordinates(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewProofRepo(db)
	ctx := context.Background()

	p := sampleProof(model.ChainCelo, "0xnocoords", 1700000100)
	p.Longitude, p.Latitude = nil, nil
	p.RecipePayloads = nil
	require.NoError(t, repo.Create(ctx, p))

	active, err := repo.ListActive(ctx, model.ChainCelo, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Nil(t, active[0].Longitude)
	assert.Nil(t, active[0].Latitude)
	assert.Equal(t, []string{"gps"}, active[0].RecipeTypes)
}

func TestProofRepo_BatchSetRevokedAndListActive(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewProofRepo(db)
	ctx := context.Background()

	for i, uid := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, repo.Create(ctx, sampleProof(model.ChainSepolia, uid, 1700000100+int64(i))))
	}

	n, err := repo.BatchSetRevoked(ctx, model.ChainSepolia, []string{"0x1", "0x2", "0xunknown"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.BatchSetRevoked(ctx, model.ChainSepolia, []string{"0x1"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "already revoked rows are not counted again")

	active, err := repo.ListActive(ctx, model.ChainSepolia, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "0x3", active[0].UID)
	assert.Equal(t, [][]byte{{0x01, 0x02}}, active[0].RecipePayloads)
	require.NotNil(t, active[0].Longitude)
	assert.InDelta(t, -74.006, *active[0].Longitude, 1e-9)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.RunMigrations(slog.Default()))
}
