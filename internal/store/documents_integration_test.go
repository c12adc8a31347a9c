//go:build integration

// Package store_test contains integration tests for the document store.
package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/decider/internal/store"
	"github.com/rafaeljc/decider/internal/testsupport"
)

func TestPostgresStore_Integration(t *testing.T) {
	// 1. Infrastructure Setup
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err, "failed to start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	repo := store.NewPostgresStore(pgContainer.DB)

	// 2. Scenarios run sequentially against the same container.

	t.Run("Should start versions at 1 and increment per publish", func(t *testing.T) {
		// Act
		first, err := repo.Publish(ctx, "versions", []byte(`{"a": {"id": 1}}`))
		require.NoError(t, err)
		second, err := repo.Publish(ctx, "versions", []byte(`{"a": {"id": 2}}`))
		require.NoError(t, err)

		// Assert
		assert.Equal(t, int64(1), first.Version)
		assert.Equal(t, int64(2), second.Version)
		assert.NotZero(t, second.ID)
		assert.False(t, second.CreatedAt.IsZero())
	})

	t.Run("Should return the newest document", func(t *testing.T) {
		doc, err := repo.Latest(ctx, "versions")

		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Version)
		assert.JSONEq(t, `{"a": {"id": 2}}`, string(doc.Body))

		version, err := repo.LatestVersion(ctx, "versions")
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
	})

	t.Run("Should fetch a specific version", func(t *testing.T) {
		doc, err := repo.Get(ctx, "versions", 1)

		require.NoError(t, err)
		assert.JSONEq(t, `{"a": {"id": 1}}`, string(doc.Body))
	})

	t.Run("Should list versions newest first without bodies", func(t *testing.T) {
		docs, err := repo.ListVersions(ctx, "versions", 10)

		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, int64(2), docs[0].Version)
		assert.Equal(t, int64(1), docs[1].Version)
		assert.Nil(t, docs[0].Body)
	})

	t.Run("Should keep document names independent", func(t *testing.T) {
		doc, err := repo.Publish(ctx, "other", []byte(`{}`))

		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)
	})

	t.Run("Should report missing documents", func(t *testing.T) {
		_, err := repo.Latest(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)

		_, err = repo.LatestVersion(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)

		_, err = repo.Get(ctx, "versions", 99)
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	})

	t.Run("Should reject documents that are not JSON objects", func(t *testing.T) {
		_, err := repo.Publish(ctx, "bad", []byte(`[1, 2]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be a JSON object")

		_, err = repo.Publish(ctx, "bad", []byte(`{not json`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid JSON")
	})

	t.Run("Should time every store operation", func(t *testing.T) {
		_, err := repo.LatestVersion(ctx, "versions")
		require.NoError(t, err)

		for _, op := range []string{"publish", "latest", "latest_version", "get", "list_versions"} {
			testsupport.AssertHistogramRecorded(t, "decider_config_store_duration_seconds", map[string]string{"operation": op})
		}
	})

	t.Run("Should never hand out the same version twice", func(t *testing.T) {
		// Arrange
		const publishers = 8
		var wg sync.WaitGroup
		versions := make(chan int64, publishers)

		// Act
		for range publishers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				doc, err := repo.Publish(ctx, "race", []byte(`{}`))
				if err != nil {
					assert.True(t, errors.Is(err, store.ErrVersionConflict), "unexpected error: %v", err)
					return
				}
				versions <- doc.Version
			}()
		}
		wg.Wait()
		close(versions)

		// Assert
		seen := make(map[int64]bool)
		for v := range versions {
			assert.False(t, seen[v], "version %d assigned twice", v)
			seen[v] = true
		}
		assert.NotEmpty(t, seen)
	})

	t.Run("Should round-trip nested JSON", func(t *testing.T) {
		body := map[string]any{"dc": map[string]any{"value": map[string]any{"nested": []any{1.0, "x"}}}}
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		_, err = repo.Publish(ctx, "nested", raw)
		require.NoError(t, err)
		doc, err := repo.Latest(ctx, "nested")
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(doc.Body, &got))
		assert.Equal(t, body, got)
	})
}
