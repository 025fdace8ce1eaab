//go:build integration

package postgres_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/store/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testDB returns a migrated database with empty tables. TEST_DB_URL selects
// an existing server; without it a throwaway container is started.
func testDB(t *testing.T) *postgres.DB {
	t.Helper()
	url := os.Getenv("TEST_DB_URL")
	if url == "" {
		url = startPostgres(t)
	}

	db, err := postgres.New(postgres.Config{
		URL:              url,
		MaxOpenConns:     5,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Minute,
		StatementTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations(slog.Default()))
	_, err = db.Exec(`TRUNCATE location_proofs, chain_checkpoints`)
	require.NoError(t, err)
	return db
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("astral_test"),
		tcpostgres.WithUsername("astral"),
		tcpostgres.WithPassword("astral"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	url, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}
