package reload

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/observability"
)

// Reloader rebuilds the Holder's Decider from a Source.
type Reloader struct {
	logger *slog.Logger
	source Source
	holder *Holder
	opts   []decider.Option

	// mu serializes reloads triggered by the watcher and the poller.
	mu       sync.Mutex
	loaded   string
	rejected string
}

// NewReloader creates a Reloader. opts are applied to every Decider it builds.
func NewReloader(logger *slog.Logger, source Source, holder *Holder, opts ...decider.Option) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		panic("reload: source cannot be nil")
	}
	if holder == nil {
		panic("reload: holder cannot be nil")
	}
	return &Reloader{logger: logger, source: source, holder: holder, opts: opts}
}

// Reload checks the source and swaps in a new Decider when the document changed.
// It reports whether a swap happened. A revision that failed to initialize is
// not retried until the source moves on.
func (r *Reloader) Reload(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, err := r.source.Version(ctx)
	if err != nil {
		observability.ConfigReloadsTotal.WithLabelValues("fail").Inc()
		return false, err
	}
	if version == r.loaded || version == r.rejected {
		return false, nil
	}

	start := time.Now()
	snap, err := r.source.Fetch(ctx)
	if err != nil {
		observability.ConfigReloadsTotal.WithLabelValues("fail").Inc()
		return false, err
	}

	d, err := decider.NewFromBytes(snap.Body, r.opts...)
	if err != nil {
		r.rejected = snap.Version
		observability.ConfigReloadsTotal.WithLabelValues("fail").Inc()
		r.logger.Error("feature document rejected, keeping previous",
			slog.String("source", r.source.String()),
			slog.String("version", snap.Version),
			slog.String("error", err.Error()),
		)
		return false, err
	}

	r.holder.Swap(d)
	r.loaded = snap.Version
	r.rejected = ""
	observability.RecordLoad(d)

	status := "success"
	failed := 0
	if pe := d.LoadErrors(); pe != nil {
		status = "partial"
		failed = len(pe.Failures)
	}
	observability.ConfigReloadsTotal.WithLabelValues(status).Inc()

	r.logger.Info("feature document loaded",
		slog.String("source", r.source.String()),
		slog.String("version", snap.Version),
		slog.Int("features", len(d.Features())),
		slog.Int("failed", failed),
		slog.String("duration", time.Since(start).String()),
	)
	return true, nil
}

// Poll calls Reload every interval until ctx is cancelled. Errors are logged
// and retried on the next tick.
func (r *Reloader) Poll(ctx context.Context, interval time.Duration) error {
	r.logger.Info("starting document poller",
		slog.String("source", r.source.String()),
		slog.String("interval", interval.String()),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("document poller stopping...")
			return nil
		case <-ticker.C:
			_, err := r.Reload(ctx)
			var initErr *decider.InitError
			// Rejected documents are already logged by Reload.
			if err != nil && ctx.Err() == nil && !errors.As(err, &initErr) {
				r.logger.Warn("document poll failed", slog.String("error", err.Error()))
			}
		}
	}
}
