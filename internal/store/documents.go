// Package store provides the Data Access Layer for versioned feature documents.
// It handles all direct interactions with PostgreSQL using the pgx driver.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/decider/internal/observability"
)

// Compile-time check to verify that PostgresStore implements DocumentRepository.
var _ DocumentRepository = (*PostgresStore)(nil)

var (
	// ErrDocumentNotFound is returned when no version of a document exists.
	ErrDocumentNotFound = errors.New("feature document not found")

	// ErrVersionConflict is returned when a concurrent publish claimed the same version.
	ErrVersionConflict = errors.New("feature document version conflict")
)

// Document is one published version of a feature document.
// It mirrors the 'decider_configs' table structure.
type Document struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Version   int64           `db:"version"`
	Body      json.RawMessage `db:"document"`
	CreatedAt time.Time       `db:"created_at"`
}

// DocumentRepository defines the persistence operations for feature documents.
type DocumentRepository interface {
	// Publish stores body as the next version of name and returns the stored row.
	Publish(ctx context.Context, name string, body []byte) (*Document, error)

	// Latest returns the highest version of name.
	Latest(ctx context.Context, name string) (*Document, error)

	// LatestVersion returns the highest version number of name without its body.
	LatestVersion(ctx context.Context, name string) (int64, error)

	// Get returns a specific version of name.
	Get(ctx context.Context, name string, version int64) (*Document, error)

	// ListVersions returns up to limit versions of name, newest first, without bodies.
	ListVersions(ctx context.Context, name string, limit int) ([]*Document, error)
}

// PostgresStore is the implementation of DocumentRepository backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

// observe records the duration of one store operation.
func observe(op string, start time.Time) {
	observability.ConfigStoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Publish inserts body as version MAX(version)+1. Two concurrent publishers of
// the same name race on the unique (name, version) key; the loser gets ErrVersionConflict.
func (s *PostgresStore) Publish(ctx context.Context, name string, body []byte) (*Document, error) {
	defer observe("publish", time.Now())

	if !json.Valid(body) {
		return nil, fmt.Errorf("document %q is not valid JSON", name)
	}

	query := `
		INSERT INTO decider_configs (name, version, document)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2::jsonb
		FROM decider_configs
		WHERE name = $1
		RETURNING id, version, created_at
	`

	doc := &Document{Name: name, Body: json.RawMessage(body)}
	err := s.db.QueryRow(ctx, query, name, string(body)).Scan(&doc.ID, &doc.Version, &doc.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation
				return nil, fmt.Errorf("%w: %s", ErrVersionConflict, name)
			case "23514": // check_violation
				return nil, fmt.Errorf("document %q must be a JSON object", name)
			}
		}
		return nil, fmt.Errorf("failed to publish document: %w", err)
	}

	return doc, nil
}

// Latest returns the newest version of name.
func (s *PostgresStore) Latest(ctx context.Context, name string) (*Document, error) {
	defer observe("latest", time.Now())

	query := `
		SELECT id, name, version, document, created_at
		FROM decider_configs
		WHERE name = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRow(ctx, query, name), name)
}

// LatestVersion is the cheap change-detection query used by pollers.
func (s *PostgresStore) LatestVersion(ctx context.Context, name string) (int64, error) {
	defer observe("latest_version", time.Now())

	var version *int64
	if err := s.db.QueryRow(ctx, `SELECT MAX(version) FROM decider_configs WHERE name = $1`, name).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read latest version: %w", err)
	}
	if version == nil {
		return 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
	}
	return *version, nil
}

// Get returns version of name.
func (s *PostgresStore) Get(ctx context.Context, name string, version int64) (*Document, error) {
	defer observe("get", time.Now())

	query := `
		SELECT id, name, version, document, created_at
		FROM decider_configs
		WHERE name = $1 AND version = $2
	`
	return s.scanOne(s.db.QueryRow(ctx, query, name, version), name)
}

func (s *PostgresStore) scanOne(row pgx.Row, name string) (*Document, error) {
	var doc Document
	if err := row.Scan(&doc.ID, &doc.Name, &doc.Version, &doc.Body, &doc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return &doc, nil
}

// ListVersions returns the version history of name, newest first.
func (s *PostgresStore) ListVersions(ctx context.Context, name string, limit int) ([]*Document, error) {
	defer observe("list_versions", time.Now())

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, name, version, created_at
		FROM decider_configs
		WHERE name = $1
		ORDER BY version DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	docs := make([]*Document, 0, limit)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Name, &d.Version, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		docs = append(docs, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return docs, nil
}
