// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces the burst of events an editor produces when
// saving a file.
const defaultDebounce = 250 * time.Millisecond

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// Watcher reloads the configuration file when it changes on disk and
// hands the result to a callback. Editors save through temp-file renames,
// so the parent directory is watched rather than the file itself.
type Watcher struct {
	path     string
	onReload func(*Config)
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the config file at path. onReload is
// called with each successfully reloaded configuration; invalid
// intermediate states are logged and skipped.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     path,
		onReload: onReload,
		logger:   slog.Default().With(slog.String("module", "config")),
		watcher:  fsw,
		debounce: defaultDebounce,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching. It returns immediately; events are processed in
// the background until Close.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.processEvents()
	go w.processPending()
	return nil
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

// processEvents marks the config file dirty on relevant events.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", slog.Any("error", err))
		}
	}
}

// processPending fires the reload once changes have settled for the
// debounce window.
func (w *Watcher) processPending() {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			dirty := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if dirty {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if dirty {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		// A half-written or invalid file; keep the running config.
		w.logger.Warn("config reload skipped", slog.Any("error", err))
		return
	}
	w.logger.Info("configuration reloaded", slog.String("path", w.path))
	w.onReload(cfg)
}
