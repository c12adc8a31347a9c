package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rafaeljc/decider/internal/decider"
)

// FileWatcher triggers a reload whenever the feature document file changes.
//
// The parent directory is watched rather than the file itself so that atomic
// replacements (write to temp file, rename over target) and Kubernetes
// ConfigMap symlink swaps are seen. Bursts of events are coalesced into one
// reload after the debounce window.
type FileWatcher struct {
	logger   *slog.Logger
	reloader *Reloader
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewFileWatcher starts watching the directory containing path.
func NewFileWatcher(logger *slog.Logger, reloader *Reloader, path string, debounce time.Duration) (*FileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reloader == nil {
		panic("reload: reloader cannot be nil")
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileWatcher{
		logger:   logger,
		reloader: reloader,
		path:     abs,
		debounce: debounce,
		watcher:  w,
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("watching feature document",
		slog.String("path", w.path),
		slog.String("debounce", w.debounce.String()),
	)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			_, err := w.reloader.Reload(ctx)
			var initErr *decider.InitError
			if err != nil && !errors.As(err, &initErr) {
				w.logger.Warn("reload after file change failed", slog.String("error", err.Error()))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// relevant reports whether event may have changed the document's content.
// ConfigMap mounts swap a "..data" symlink, which is the only event seen.
func (w *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.path || filepath.Base(name) == "..data"
}
