// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore is the optional, durable implementation of
// pkg/scopedstore.Store, backed by BadgerDB. The core engine has no
// dependency on this package; callers that want persistence across
// restarts wire it in at the composition root instead of
// scopedstore.NewInMemoryStore.
package badgerstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config controls how the underlying BadgerDB instance is opened.
type Config struct {
	InMemory          bool
	Path              string
	SyncWrites        bool
	NumVersionsToKeep int
	GCInterval        time.Duration
	GCDiscardRatio    float64
}

// DefaultConfig is the durable, on-disk configuration: synchronous
// writes, one version retained per key, and periodic value-log GC.
func DefaultConfig() Config {
	return Config{
		InMemory:          false,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryConfig is the ephemeral configuration used by tests: no
// fsync, no GC loop, nothing written to disk.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		SyncWrites:        false,
		NumVersionsToKeep: 1,
		GCInterval:        0,
	}
}

// DB wraps a *badger.DB with context-aware transaction helpers.
type DB struct {
	bdb *badger.DB
}

// Open opens a BadgerDB instance per cfg. Persistent mode requires Path.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badgerstore: path is required for persistent mode")
	}
	opts := badger.DefaultOptions(cfg.Path)
	opts = opts.WithInMemory(cfg.InMemory)
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.NumVersionsToKeep > 0 {
		opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	}
	opts = opts.WithLogger(nil)
	return badger.Open(opts)
}

// OpenInMemory opens an ephemeral, in-process database for tests.
func OpenInMemory() (*badger.DB, error) {
	return Open(InMemoryConfig())
}

// OpenWithPath opens a persistent database rooted at path.
func OpenWithPath(path string) (*badger.DB, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	return Open(cfg)
}

// OpenDB opens a database and wraps it in the managed DB helper.
func OpenDB(cfg Config) (*DB, error) {
	bdb, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &DB{bdb: bdb}, nil
}

// Close releases the underlying BadgerDB handle.
func (d *DB) Close() error {
	return d.bdb.Close()
}

// WithTxn runs fn in a read-write BadgerDB transaction, committing on a
// nil return and discarding otherwise. ctx cancellation aborts before
// the transaction is even opened.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("badgerstore: context cancelled: %w", ctx.Err())
	default:
	}
	return d.bdb.Update(fn)
}

// WithReadTxn runs fn in a read-only BadgerDB transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("badgerstore: context cancelled: %w", ctx.Err())
	default:
	}
	return d.bdb.View(fn)
}

// GCRunner periodically invokes BadgerDB's value-log garbage collector.
// A nil logger is replaced by a text logger on stderr (ErrNoRewrite is
// expected and silently ignored either way).
type GCRunner struct {
	db       *DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewGCRunner validates its arguments and returns a stopped runner;
// call Start to begin the periodic GC loop.
func NewGCRunner(db *DB, interval time.Duration, ratio float64, logger *slog.Logger) (*GCRunner, error) {
	if db == nil {
		return nil, fmt.Errorf("badgerstore: db must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("badgerstore: interval must be positive")
	}
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("badgerstore: ratio must be between 0 and 1")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &GCRunner{db: db, interval: interval, ratio: ratio, logger: logger, stop: make(chan struct{})}, nil
}

// Start launches the periodic GC loop in a background goroutine.
func (r *GCRunner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				err := r.db.bdb.RunValueLogGC(r.ratio)
				if err != nil && err != badger.ErrNoRewrite {
					r.logger.Warn("badgerstore: value log gc failed", "error", err)
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the GC loop and waits for it to exit.
func (r *GCRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// TempDir creates a fresh temporary directory for a persistent-mode
// BadgerDB instance in tests.
func TempDir(prefix string) (string, error) {
	return os.MkdirTemp("", prefix)
}

// CleanupDir removes a directory created by TempDir. A blank path is a
// no-op, so callers can defer it unconditionally.
func CleanupDir(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}
