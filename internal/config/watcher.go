package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads a Store when its config file changes on disk.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	path     string
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher watches the directory holding path. Editors often replace
// files instead of writing in place, so the file itself is not watched.
func NewWatcher(store *Store, path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	return &Watcher{
		watcher:  w,
		store:    store,
		path:     abs,
		logger:   logger,
		debounce: reloadDebounce,
	}, nil
}

// Run watches for changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	stopTimer := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	snap, warnings, err := w.store.Reload()
	for _, msg := range warnings {
		w.logger.Warn("Config warning", "detail", msg)
	}
	if err != nil {
		w.logger.Error("Config hot-reload failed", "error", err)
		return
	}
	w.logger.Info("Config hot-reloaded", "version", snap.Version)
}
