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
	"sync"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
)

// MemoryStore keeps snapshots in a sync.Map. Stored snapshots are never
// mutated; Put swaps in a new value.
type MemoryStore struct {
	snapshots sync.Map // int -> datatypes.Snapshot
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context, rootGroupID int) (datatypes.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Snapshot{}, err
	}
	v, ok := s.snapshots.Load(rootGroupID)
	if !ok {
		return datatypes.Snapshot{}, ErrNotFound
	}
	return v.(datatypes.Snapshot), nil
}

func (s *MemoryStore) Put(ctx context.Context, rootGroupID, maxDepth int, tree datatypes.Node) (datatypes.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Snapshot{}, err
	}
	snap := newSnapshot(rootGroupID, maxDepth, tree)
	s.snapshots.Store(rootGroupID, snap)
	return snap, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
