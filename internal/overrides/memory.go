// Package overrides keeps out-of-band variant and value assignments in memory.
//
// Records are authored in Redis, one hash per feature, and copied into a
// bounded in-process store by a background Syncer. The decision path only
// ever reads the in-memory store, so a Redis outage degrades to stale
// overrides instead of failed decisions.
package overrides

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/observability"
)

// Compile-time check to verify that MemoryStore can be plugged into a Decider.
var _ decider.OverrideStore = (*MemoryStore)(nil)

type key struct {
	feature    string
	identifier string
}

// MemoryStore is the in-memory override layer, backed by otter's S3-FIFO cache.
type MemoryStore struct {
	store otter.Cache[key, decider.Override]
}

// NewMemoryStore initializes the store with a hard item cap.
// A positive ttl expires records that a failing sync could not refresh.
func NewMemoryStore(capacity int, ttl time.Duration) (*MemoryStore, error) {
	builder := otter.MustBuilder[key, decider.Override](capacity).CollectStats()

	var (
		cache otter.Cache[key, decider.Override]
		err   error
	)
	if ttl > 0 {
		cache, err = builder.WithTTL(ttl).Build()
	} else {
		cache, err = builder.Build()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build override store: %w", err)
	}

	return &MemoryStore{store: cache}, nil
}

// Lookup returns the override for identifier on feature.
// It never blocks and is safe for concurrent use.
func (m *MemoryStore) Lookup(feature, identifier string) (decider.Override, bool) {
	o, ok := m.store.Get(key{feature: feature, identifier: identifier})
	if ok {
		observability.OverridesLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		observability.OverridesLookupsTotal.WithLabelValues("miss").Inc()
	}
	return o, ok
}

// Replace makes records, keyed by feature then identifier, the complete
// override set. Everything absent from records is removed in a single pass
// over the store. It returns how many records the store rejected, which
// happens when capacity is exhausted.
func (m *MemoryStore) Replace(records map[string]map[string]decider.Override) int {
	m.store.DeleteByFunc(func(k key, _ decider.Override) bool {
		_, keep := records[k.feature][k.identifier]
		return !keep
	})

	rejected := 0
	for feature, byID := range records {
		for identifier, o := range byID {
			if !m.store.Set(key{feature: feature, identifier: identifier}, o) {
				rejected++
			}
		}
	}
	if rejected > 0 {
		observability.OverridesRejectedTotal.Add(float64(rejected))
	}
	return rejected
}

// Len returns the number of records currently held.
func (m *MemoryStore) Len() int {
	return m.store.Size()
}

// Close stops the store's background goroutines.
func (m *MemoryStore) Close() {
	m.store.Close()
}

// RunMetricsCollector publishes the store size every interval until ctx is done.
func (m *MemoryStore) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.OverridesItemsCount.Set(float64(m.store.Size()))

			// Evictions mean the capacity is too small for the authored overrides.
			if n := m.store.Stats().EvictedCount(); n > lastEvicted {
				observability.OverridesRejectedTotal.Add(float64(n - lastEvicted))
				lastEvicted = n
			}
		}
	}
}
