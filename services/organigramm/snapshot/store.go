// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists the last successfully assembled organigramm per
// root group.
//
// There is exactly one snapshot per root group id. Put overwrites it
// wholesale and stamps FetchedAt; there is no history and no partial
// update. Concurrent Puts for the same root are last-write-wins.
//
// Backends:
//
//   - MemoryStore: process-local, lost on restart
//   - BadgerStore: embedded BadgerDB on local disk
//   - GCSStore: one object per root in a Cloud Storage bucket, shared by
//     every replica
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
)

var (
	// ErrNotFound is returned by Get when no snapshot exists for the root.
	ErrNotFound = errors.New("snapshot not found")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown snapshot backend")
)

// Store reads and writes snapshots.
//
// Implementations must allow concurrent Get and Put; readers never wait for
// writers.
type Store interface {
	// Get returns the snapshot for rootGroupID or ErrNotFound.
	Get(ctx context.Context, rootGroupID int) (datatypes.Snapshot, error)

	// Put replaces the snapshot for rootGroupID and returns what was stored.
	Put(ctx context.Context, rootGroupID, maxDepth int, tree datatypes.Node) (datatypes.Snapshot, error)

	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendGCS    = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend string

	// Path is the BadgerDB directory.
	Path string

	// GCInterval is the BadgerDB value-log GC period. Zero disables GC.
	GCInterval time.Duration

	GCS GCSConfig
}

// Open creates the configured store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger:
		bcfg := DefaultBadgerConfig()
		bcfg.Path = cfg.Path
		bcfg.GCInterval = cfg.GCInterval
		bcfg.Logger = logger
		return OpenBadgerStore(bcfg)
	case BackendGCS:
		return NewGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// newSnapshot stamps a snapshot with the current time. The tree is cloned
// so later mutation by the caller cannot reach the stored copy.
func newSnapshot(rootGroupID, maxDepth int, tree datatypes.Node) datatypes.Snapshot {
	return datatypes.Snapshot{
		RootGroupID: rootGroupID,
		FetchedAt:   time.Now().UTC(),
		MaxDepth:    maxDepth,
		Data:        tree.Clone(),
	}
}

func snapshotKey(rootGroupID int) string {
	return "organigramm/snapshot/" + strconv.Itoa(rootGroupID)
}
