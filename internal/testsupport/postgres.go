// Package testsupport provides helper functions for spinning up ephemeral
// Docker containers (PostgreSQL, Redis) for integration testing.
package testsupport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/decider/internal/config"
	"github.com/rafaeljc/decider/internal/database"
)

// MigrationsTable is the goose version table used by test databases.
const MigrationsTable = "decider_schema_migrations"

// PostgresContainer is a migrated document store backed by a throwaway container.
type PostgresContainer struct {
	Container        testcontainers.Container
	DB               *pgxpool.Pool
	ConnectionString string
}

// Terminate closes the pool and removes the container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	c.DB.Close()
	return c.Container.Terminate(ctx)
}

// StartPostgresContainer runs postgres:15-alpine and applies migrationsDir
// with database.Migrate, the same goose path `decider migrate` takes.
func StartPostgresContainer(ctx context.Context, migrationsDir string) (*PostgresContainer, error) {
	ctr, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("decider_test"),
		postgres.WithUsername("decider"),
		postgres.WithPassword("decider"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, &config.DatabaseConfig{
		URL:             connStr,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	})
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := database.Migrate(ctx, pool, migrationsDir, MigrationsTable, slog.New(slog.DiscardHandler)); err != nil {
		pool.Close()
		_ = ctr.Terminate(ctx)
		return nil, err
	}

	return &PostgresContainer{
		Container:        ctr,
		DB:               pool,
		ConnectionString: connStr,
	}, nil
}
