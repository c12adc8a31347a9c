package overrides

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/observability"
)

// Fetcher reads the authored override records of a set of features.
type Fetcher interface {
	FetchAll(ctx context.Context, features []string) (map[string]map[string]decider.Override, error)
}

// Syncer copies override records from a Fetcher into a MemoryStore on a fixed interval.
type Syncer struct {
	logger   *slog.Logger
	interval time.Duration
	source   Fetcher
	store    *MemoryStore

	// features lists the names to sync, usually the active Decider's Features.
	features func() []string

	// lastSuccess is the completion time of the latest successful cycle, in Unix nanoseconds.
	lastSuccess atomic.Int64
}

// NewSyncer creates a new override Syncer.
func NewSyncer(logger *slog.Logger, interval time.Duration, source Fetcher, store *MemoryStore, features func() []string) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		panic("overrides: fetcher cannot be nil")
	}
	if store == nil {
		panic("overrides: memory store cannot be nil")
	}
	if features == nil {
		panic("overrides: features func cannot be nil")
	}
	if interval < time.Second {
		interval = 30 * time.Second
	}

	return &Syncer{
		logger:   logger,
		interval: interval,
		source:   source,
		store:    store,
		features: features,
	}
}

// Run syncs once immediately and then on every tick. It blocks until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("starting override syncer", slog.String("interval", s.interval.String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("initial override sync failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("override syncer stopping...")
			return nil
		case <-ticker.C:
			// Keep serving the previous records and retry on the next tick.
			if err := s.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("override sync cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// SyncOnce performs a single synchronization cycle.
// On error the store is left untouched.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	start := time.Now()
	features := s.features()

	records, err := s.source.FetchAll(ctx, features)
	if err != nil {
		observability.OverridesSyncTotal.WithLabelValues("fail").Inc()
		return err
	}

	// Only listed features are kept; records of features dropped from the
	// document are cleared by the same replace.
	listed := make(map[string]map[string]decider.Override, len(features))
	total := 0
	for _, f := range features {
		if byID := records[f]; len(byID) > 0 {
			listed[f] = byID
			total += len(byID)
		}
	}
	rejected := s.store.Replace(listed)

	s.lastSuccess.Store(time.Now().UnixNano())
	observability.OverridesSyncTotal.WithLabelValues("success").Inc()

	if total > 0 || rejected > 0 {
		s.logger.Info("override sync completed",
			slog.Int("features", len(features)),
			slog.Int("records", total),
			slog.Int("rejected", rejected),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return nil
}

// LastSuccess returns when the latest successful cycle finished, or the zero
// time before the first one.
func (s *Syncer) LastSuccess() time.Time {
	n := s.lastSuccess.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
