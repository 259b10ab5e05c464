// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetcher assembles an organigramm tree from the registry.
//
// # Description
//
// A fetch runs four strictly sequential phases, each a flat batch executed
// through pool.Run at the configured concurrency:
//
//  1. Group discovery, breadth first, level by level up to maxDepth.
//  2. Role discovery for every discovered group; soft-deleted roles dropped.
//  3. Person discovery, one call per distinct person id.
//  4. Assembly, top-down from the root.
//
// Any single failed group, role, or person call degrades to "no children",
// "no roles", or "person omitted". Only a failed root fetch is fatal.
//
// # Thread Safety
//
// A Fetcher is safe for concurrent use; every Fetch owns its own state.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/troopsite/pkg/telemetry"
	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/AleutianAI/troopsite/services/organigramm/pool"
	"github.com/AleutianAI/troopsite/services/organigramm/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("troopsite.fetcher")

var (
	// ErrInvalidDepth is returned for maxDepth < 1.
	ErrInvalidDepth = errors.New("max depth must be at least 1")

	// ErrRootUnavailable wraps the error of a failed root group fetch.
	ErrRootUnavailable = errors.New("root group unavailable")
)

// Registry is the subset of the registry client used by the fetcher.
type Registry interface {
	GetGroup(ctx context.Context, id int) (datatypes.Group, error)
	GetGroups(ctx context.Context, f registry.Filter) ([]datatypes.Group, error)
	GetRoles(ctx context.Context, f registry.Filter) ([]datatypes.Role, error)
	GetPerson(ctx context.Context, id int) (datatypes.Person, error)
}

// RetryConfig bounds retries of rate-limited calls.
type RetryConfig struct {
	// MaxTries counts every attempt, including the first. 1 disables retry.
	MaxTries uint

	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config controls a Fetcher.
type Config struct {
	// Concurrency is the fan-out ceiling of every phase.
	Concurrency int

	// CallTimeout bounds each registry call attempt. A timeout counts as an
	// ordinary per-call failure. Zero disables the per-call timeout.
	CallTimeout time.Duration

	Retry RetryConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		CallTimeout: 10 * time.Second,
		Retry: RetryConfig{
			MaxTries:        3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

// Stats summarizes one fetch.
type Stats struct {
	Groups int `json:"groups"`
	Roles  int `json:"roles"`
	People int `json:"people"`

	GroupCalls  int `json:"groupCalls"`
	RoleCalls   int `json:"roleCalls"`
	PersonCalls int `json:"personCalls"`

	ChildFailures  int `json:"childFailures"`
	RoleFailures   int `json:"roleFailures"`
	PersonFailures int `json:"personFailures"`

	// Revisited counts groups reported under more than one parent (or in a
	// cycle) that were skipped after their first appearance.
	Revisited int `json:"revisited"`

	Duration time.Duration `json:"duration"`
}

// Result is a fully assembled tree with its fetch statistics.
type Result struct {
	Tree  datatypes.Node
	Stats Stats
}

// Fetcher builds organigramm trees.
type Fetcher struct {
	reg    Registry
	cfg    Config
	logger *slog.Logger
}

// New creates a Fetcher. Zero-valued config fields take DefaultConfig values.
func New(reg Registry, cfg Config, logger *slog.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Retry.MaxTries == 0 {
		cfg.Retry.MaxTries = def.Retry.MaxTries
	}
	if cfg.Retry.InitialInterval <= 0 {
		cfg.Retry.InitialInterval = def.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval <= 0 {
		cfg.Retry.MaxInterval = def.Retry.MaxInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{reg: reg, cfg: cfg, logger: logger.With("component", "fetcher")}
}

// fetchState is the working set of one Fetch.
type fetchState struct {
	rootID   int
	groups   map[int]datatypes.Group
	children map[int][]int
	order    []int
	roles    map[int][]datatypes.Role
	personID []int
	people   map[int]datatypes.Person
	stats    Stats
}

// Fetch assembles the tree below rootID, maxDepth levels deep (root = 1).
//
// # Outputs
//
//   - *Result: The complete tree. Never partial.
//   - error: ErrInvalidDepth, ErrRootUnavailable (wrapping the registry
//     error), or the context error if ctx ends mid-fetch.
func (f *Fetcher) Fetch(ctx context.Context, rootID, maxDepth int) (*Result, error) {
	if maxDepth < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, maxDepth)
	}

	ctx, span := tracer.Start(ctx, "fetcher.Fetcher.Fetch",
		trace.WithAttributes(
			attribute.Int("organigramm.root_group_id", rootID),
			attribute.Int("organigramm.max_depth", maxDepth),
		),
	)
	defer span.End()

	start := time.Now()
	logger := f.logger.With("root_group_id", rootID)

	st := &fetchState{
		rootID:   rootID,
		groups:   make(map[int]datatypes.Group),
		children: make(map[int][]int),
		roles:    make(map[int][]datatypes.Role),
		people:   make(map[int]datatypes.Person),
	}

	phases := []struct {
		name string
		run  func(context.Context, *fetchState, *slog.Logger, int) error
	}{
		{"groups", f.discoverGroups},
		{"roles", f.discoverRoles},
		{"people", f.discoverPeople},
	}
	for _, phase := range phases {
		if err := f.runPhase(ctx, phase.name, func(ctx context.Context) error {
			return phase.run(ctx, st, logger, maxDepth)
		}); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	tree := st.assemble(st.rootID)
	st.stats.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("organigramm.groups", st.stats.Groups),
		attribute.Int("organigramm.people", st.stats.People),
	)
	logger.Info("organigramm fetched",
		"groups", st.stats.Groups,
		"roles", st.stats.Roles,
		"people", st.stats.People,
		"child_failures", st.stats.ChildFailures,
		"role_failures", st.stats.RoleFailures,
		"person_failures", st.stats.PersonFailures,
		"duration_ms", st.stats.Duration.Milliseconds(),
	)
	return &Result{Tree: tree, Stats: st.stats}, nil
}

// runPhase wraps a phase in a span and refuses to continue once ctx is done,
// so a cancelled request never yields a silently truncated tree.
func (f *Fetcher) runPhase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "fetcher.phase."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s phase: %w", name, err)
	}
	return nil
}

// =============================================================================
// Phase 1: Groups
// =============================================================================

func (f *Fetcher) discoverGroups(ctx context.Context, st *fetchState, logger *slog.Logger, maxDepth int) error {
	root, err := call(ctx, f.cfg, func(ctx context.Context) (datatypes.Group, error) {
		return f.reg.GetGroup(ctx, st.rootID)
	})
	st.stats.GroupCalls++
	if err != nil {
		return fmt.Errorf("%w: group %d: %w", ErrRootUnavailable, st.rootID, err)
	}
	st.groups[st.rootID] = root
	st.order = append(st.order, st.rootID)

	var failures atomic.Int64
	frontier := []int{st.rootID}
	for depth := 1; depth < maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("groups phase at depth %d: %w", depth, err)
		}

		tasks := make([]pool.Task[[]datatypes.Group], len(frontier))
		for i, parentID := range frontier {
			tasks[i] = pool.OrDefault(
				func(ctx context.Context) ([]datatypes.Group, error) {
					return call(ctx, f.cfg, func(ctx context.Context) ([]datatypes.Group, error) {
						return f.reg.GetGroups(ctx, registry.ByParent(parentID))
					})
				},
				[]datatypes.Group{},
				func(err error) {
					failures.Add(1)
					logger.Warn("child group fetch failed", "group_id", parentID, "error", err)
				},
			)
		}
		results := pool.Run(ctx, f.cfg.Concurrency, tasks)
		st.stats.GroupCalls += len(tasks)

		var next []int
		for i, parentID := range frontier {
			for _, child := range results[i] {
				if _, seen := st.groups[child.ID]; seen {
					st.stats.Revisited++
					logger.Debug("skipping revisited group", "group_id", child.ID, "parent_id", parentID)
					continue
				}
				st.groups[child.ID] = child
				st.children[parentID] = append(st.children[parentID], child.ID)
				st.order = append(st.order, child.ID)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}

	st.stats.ChildFailures = int(failures.Load())
	st.stats.Groups = len(st.order)
	return nil
}

// =============================================================================
// Phase 2: Roles
// =============================================================================

func (f *Fetcher) discoverRoles(ctx context.Context, st *fetchState, logger *slog.Logger, _ int) error {
	var failures atomic.Int64
	results := pool.Map(ctx, f.cfg.Concurrency, st.order, func(ctx context.Context, groupID int) []datatypes.Role {
		return pool.OrDefault(
			func(ctx context.Context) ([]datatypes.Role, error) {
				return call(ctx, f.cfg, func(ctx context.Context) ([]datatypes.Role, error) {
					return f.reg.GetRoles(ctx, registry.ByGroup(groupID))
				})
			},
			[]datatypes.Role{},
			func(err error) {
				failures.Add(1)
				logger.Warn("role fetch failed", "group_id", groupID, "error", err)
			},
		)(ctx)
	})
	st.stats.RoleCalls = len(st.order)
	st.stats.RoleFailures = int(failures.Load())

	seenPerson := make(map[int]bool)
	for i, groupID := range st.order {
		for _, role := range results[i] {
			if role.Deleted() {
				continue
			}
			st.roles[groupID] = append(st.roles[groupID], role)
			st.stats.Roles++
			if !seenPerson[role.PersonID] {
				seenPerson[role.PersonID] = true
				st.personID = append(st.personID, role.PersonID)
			}
		}
	}
	return nil
}

// =============================================================================
// Phase 3: People
// =============================================================================

func (f *Fetcher) discoverPeople(ctx context.Context, st *fetchState, logger *slog.Logger, _ int) error {
	var failures atomic.Int64
	results := pool.Map(ctx, f.cfg.Concurrency, st.personID, func(ctx context.Context, personID int) *datatypes.Person {
		return pool.OrDefault(
			func(ctx context.Context) (*datatypes.Person, error) {
				p, err := call(ctx, f.cfg, func(ctx context.Context) (datatypes.Person, error) {
					return f.reg.GetPerson(ctx, personID)
				})
				if err != nil {
					return nil, err
				}
				return &p, nil
			},
			nil,
			func(err error) {
				failures.Add(1)
				logger.Warn("person fetch failed", "person_id", personID, "error", err)
			},
		)(ctx)
	})
	st.stats.PersonCalls = len(st.personID)
	st.stats.PersonFailures = int(failures.Load())

	for i, personID := range st.personID {
		if results[i] != nil {
			st.people[personID] = *results[i]
		}
	}
	st.stats.People = len(st.people)
	return nil
}

// =============================================================================
// Phase 4: Assembly
// =============================================================================

// assemble builds the node for groupID and its subtree. Roles whose person
// did not resolve are skipped; a person appears at most once per node,
// with their first role.
func (st *fetchState) assemble(groupID int) datatypes.Node {
	node := datatypes.Node{
		Group:    st.groups[groupID].Info(),
		Members:  []datatypes.Member{},
		Children: []datatypes.Node{},
	}

	seen := make(map[int]bool)
	for _, role := range st.roles[groupID] {
		person, ok := st.people[role.PersonID]
		if !ok || seen[role.PersonID] {
			continue
		}
		seen[role.PersonID] = true
		node.Members = append(node.Members, datatypes.NewMember(person, role))
	}

	for _, childID := range st.children[groupID] {
		node.Children = append(node.Children, st.assemble(childID))
	}
	return node
}
