package reload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rafaeljc/decider/internal/store"
)

// Snapshot is one revision of a feature document.
type Snapshot struct {
	// Version identifies the revision; equal versions mean equal bodies.
	Version string
	Body    []byte
}

// Source yields revisions of a feature document.
type Source interface {
	// Version returns the current revision identifier without necessarily reading the body.
	Version(ctx context.Context) (string, error)
	// Fetch returns the current revision.
	Fetch(ctx context.Context) (Snapshot, error)
	// String describes the source for logs.
	String() string
}

// FileSource reads the document from a local file. Its versions are content hashes.
type FileSource struct {
	Path string
}

// Version implements Source.
func (s FileSource) Version(ctx context.Context) (string, error) {
	snap, err := s.Fetch(ctx)
	if err != nil {
		return "", err
	}
	return snap.Version, nil
}

// Fetch implements Source.
func (s FileSource) Fetch(context.Context) (Snapshot, error) {
	body, err := os.ReadFile(s.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read feature document: %w", err)
	}
	sum := sha256.Sum256(body)
	return Snapshot{Version: hex.EncodeToString(sum[:]), Body: body}, nil
}

func (s FileSource) String() string {
	return "file:" + s.Path
}

// PostgresSource reads the latest published version of a named document.
type PostgresSource struct {
	Repo    store.DocumentRepository
	Name    string
	Timeout time.Duration
}

func (s PostgresSource) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// Version implements Source with a MAX(version) query.
func (s PostgresSource) Version(ctx context.Context) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	v, err := s.Repo.LatestVersion(ctx, s.Name)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}

// Fetch implements Source.
func (s PostgresSource) Fetch(ctx context.Context) (Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc, err := s.Repo.Latest(ctx, s.Name)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Version: strconv.FormatInt(doc.Version, 10), Body: doc.Body}, nil
}

func (s PostgresSource) String() string {
	return "postgres:" + s.Name
}
