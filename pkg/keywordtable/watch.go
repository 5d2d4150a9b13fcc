// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package keywordtable

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds a hot-reloadable Table backed by an on-disk override path.
// Reloads are atomic: a bad edit (unparseable YAML, bad regex) is logged and
// discarded, and the previously-loaded Table keeps serving Extract calls.
//
// Modeled on graph.FileWatcher's debounce-then-act loop, narrowed to a
// single watched file and an atomic swap instead of a batched handler.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	current atomic.Pointer[Table]

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a Watcher seeded with the table at path (falling back
// to the embedded default if path is empty or unreadable at construction
// time) and begins watching path for changes.
func NewWatcher(ctx context.Context, path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	seed, err := loadFromPathOrDefault(path, logger)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		debounce: 200 * time.Millisecond,
		logger:   logger,
		done:     make(chan struct{}),
	}
	w.current.Store(seed)

	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw

	go w.loop(ctx)
	return w, nil
}

// Table returns the currently active, compiled keyword table.
func (w *Watcher) Table() *Table {
	return w.current.Load()
}

// Stop shuts down the underlying filesystem watch. Safe to call multiple
// times and safe to call even if path was empty (no-op watcher).
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			w.reload()
			timer = nil
			timerC = nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("keyword table watch error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Error("keyword table reload: read failed, keeping previous table", "path", w.path, "err", err)
		return
	}
	tbl, err := Load(raw)
	if err != nil {
		w.logger.Error("keyword table reload: parse failed, keeping previous table", "path", w.path, "err", err)
		return
	}
	w.current.Store(tbl)
	w.logger.Info("keyword table reloaded", "path", w.path, "version", tbl.Version)
}

func loadFromPathOrDefault(path string, logger *slog.Logger) (*Table, error) {
	if path == "" {
		return LoadDefault()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("keyword table override unreadable, falling back to embedded default", "path", path, "err", err)
		return LoadDefault()
	}
	tbl, err := Load(raw)
	if err != nil {
		return nil, err
	}
	return tbl, nil
}
