package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// undefinedTable is the SQLSTATE PostgreSQL returns for a missing relation.
const undefinedTable = "42P01"

// HealthChecker reports postgres as ready once the configured document has
// at least one published version the reloader can serve.
type HealthChecker struct {
	pool     *pgxpool.Pool
	document string
}

// NewHealthChecker checks pool for published versions of document.
func NewHealthChecker(pool *pgxpool.Pool, document string) *HealthChecker {
	return &HealthChecker{pool: pool, document: document}
}

func (h *HealthChecker) Name() string {
	return "postgres"
}

// Check distinguishes an unmigrated schema from a document nobody published yet.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pool == nil {
		return errors.New("database connection is nil")
	}

	var published bool
	err := h.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM decider_configs WHERE name = $1)`, h.document,
	).Scan(&published)

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == undefinedTable:
		return errors.New("schema not migrated: run `decider migrate`")
	case err != nil:
		return err
	case !published:
		return fmt.Errorf("document %q has no published version", h.document)
	}
	return nil
}
