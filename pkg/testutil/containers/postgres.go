//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/database"
	"gatekeeper/migrations"
)

// PostgresContainer is a migrated Postgres opened through the service's own pool.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *database.Pool
	DB        *sql.DB
}

func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("gatekeeper_test"),
		postgres.WithUsername("gatekeeper"),
		postgres.WithPassword("gatekeeper_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("postgres connection string: %v", err)
	}

	pool, err := database.Open(ctx, config.Database{
		URL:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open postgres pool: %v", err)
	}
	if err := pool.Migrate(ctx, migrations.FS); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("migrate: %v", err)
	}

	// Shared through the Manager; Ryuk removes the container when the test
	// process exits.
	return &PostgresContainer{Container: container, DSN: dsn, Pool: pool, DB: pool.DB()}
}

// TruncateTables empties tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// TruncateAll empties every table the migrations create.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	return p.TruncateTables(ctx, "inquiries")
}

func (p *PostgresContainer) CountRows(ctx context.Context, t testing.TB, table string) int {
	t.Helper()
	var n int
	if err := p.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
