package storage_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/conversation/storage"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if RELAY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("RELAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RELAY_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func dropTables(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS relay_messages, relay_sessions`); err != nil {
		t.Fatalf("drop tables: %v", err)
	}
}

func TestPostgres(t *testing.T) {
	dsn := testDSN(t)
	runBackendSuite(t, func(t *testing.T) conversation.Backend {
		ctx := context.Background()
		dropTables(t, ctx, dsn)
		b, err := storage.NewPostgres(ctx, dsn)
		if err != nil {
			t.Fatalf("NewPostgres: %v", err)
		}
		t.Cleanup(func() { b.Close() })
		return b
	})
}
