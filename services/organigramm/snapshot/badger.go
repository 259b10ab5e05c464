// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the embedded snapshot database.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often value-log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage fraction that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns durable production settings.
//
// Snapshots are overwritten on every refresh, so the value log fills with
// garbage quickly; GC runs every five minutes by default.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns settings for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps snapshots in an embedded BadgerDB.
//
// Each root id is one key, organigramm/snapshot/<id>, holding the JSON
// encoded Snapshot. Only the latest version of a key is retained.
//
// Thread Safety: Safe for concurrent use. BadgerDB serializes conflicting
// transactions itself.
type BadgerStore struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenBadgerStore opens (or creates) the database described by cfg.
//
// # Description
//
// Creates Path if it does not exist and starts value-log GC when
// GCInterval is positive and the database is on disk.
//
// # Outputs
//
//   - *BadgerStore: call Close when done.
//   - error: wraps the BadgerDB open failure.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger snapshot store: path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create snapshot directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger snapshot store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := &BadgerStore{db: db, logger: logger.With("component", "snapshot_badger")}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		store.gc = newGCRunner(db, cfg.GCInterval, ratio, store.logger)
		store.gc.start()
	}
	return store, nil
}

// Get loads the snapshot for rootGroupID.
func (s *BadgerStore) Get(ctx context.Context, rootGroupID int) (datatypes.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Snapshot{}, err
	}

	var snap datatypes.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey(rootGroupID)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return datatypes.Snapshot{}, ErrNotFound
		}
		return datatypes.Snapshot{}, fmt.Errorf("read snapshot %d: %w", rootGroupID, err)
	}
	return snap, nil
}

// Put replaces the snapshot for rootGroupID.
func (s *BadgerStore) Put(ctx context.Context, rootGroupID, maxDepth int, tree datatypes.Node) (datatypes.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Snapshot{}, err
	}

	snap := newSnapshot(rootGroupID, maxDepth, tree)
	payload, err := json.Marshal(snap)
	if err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("encode snapshot %d: %w", rootGroupID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey(rootGroupID)), payload)
	})
	if err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("write snapshot %d: %w", rootGroupID, err)
	}
	return snap, nil
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		if s.gc != nil {
			s.gc.stop()
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// gcRunner triggers value-log GC on a ticker until stopped.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *gcRunner) collect() {
	err := r.db.RunValueLogGC(r.ratio)
	switch {
	case err == nil:
		r.logger.Debug("snapshot value log rewritten")
	case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
		// nothing to collect, or the DB is closing
	default:
		r.logger.Warn("snapshot value log GC failed", slog.String("error", err.Error()))
	}
}
