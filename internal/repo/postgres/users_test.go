package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/geocoder89/studentportal/internal/db"
	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/observability"
	"github.com/geocoder89/studentportal/internal/repo/repotest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

func TestUsersRepo_Contract(t *testing.T) {
	pool := setupPool(t)
	prom := observability.NewProm(prometheus.NewRegistry())

	repotest.RunStoreContract(t, func(t *testing.T) user.Store {
		_, err := pool.Exec(context.Background(), `TRUNCATE users`)
		require.NoError(t, err)
		return NewUsersRepo(pool, prom)
	})
}
