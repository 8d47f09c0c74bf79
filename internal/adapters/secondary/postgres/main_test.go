package postgres

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// testPool is shared by every test in the package. Tests isolate their rows
// with uniqueDepartment instead of truncating tables.
var testPool *pgxpool.Pool

// migrationsDir is the repository's migrations folder, relative to this package.
const migrationsDir = "../../../../migrations"

func TestMain(m *testing.M) {
	code, err := runWithDatabase(m)
	if err != nil {
		log.Fatalf("postgres test setup: %v", err)
	}
	os.Exit(code)
}

// runWithDatabase starts a throwaway postgres, migrates it with the same code
// path the service uses at startup and runs the tests against it.
func runWithDatabase(m *testing.M) (int, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("tickets"),
		tcpostgres.WithUsername("workflow"),
		tcpostgres.WithPassword("workflow"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return 0, fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("terminate postgres container: %v", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return 0, fmt.Errorf("connection string: %w", err)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := RunMigrations(dsn, migrationsDir, quiet); err != nil {
		return 0, err
	}

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer testPool.Close()

	return m.Run(), nil
}
