// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package organigramm serves the troop organigramm: a live registry fetch
// with write-through to the snapshot store, falling back to the last good
// snapshot (flagged stale) when the registry cannot be reached.
package organigramm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/troopsite/pkg/telemetry"
	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/AleutianAI/troopsite/services/organigramm/fetcher"
	"github.com/AleutianAI/troopsite/services/organigramm/snapshot"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Fetcher assembles a live tree. Implemented by *fetcher.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, rootID, maxDepth int) (*fetcher.Result, error)
}

// ServiceConfig controls request defaults and resilience.
type ServiceConfig struct {
	// DefaultRootGroupID is used when a request names no group. Zero means
	// every request must name one.
	DefaultRootGroupID int

	// DefaultMaxDepth is used when a request gives no depth. Default: 3
	DefaultMaxDepth int

	// MaxDepthLimit rejects deeper requests. Default: 8
	MaxDepthLimit int

	// ExcludedRoles are applied when a request has no exclude parameter.
	ExcludedRoles []string

	// MaxMembers is applied when a request has no maxMembers parameter.
	MaxMembers int

	// CoalesceRequests shares one live fetch between concurrent requests
	// for the same root and depth.
	CoalesceRequests bool

	Breaker CircuitBreakerConfig
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultMaxDepth:  3,
		MaxDepthLimit:    8,
		CoalesceRequests: true,
		Breaker:          DefaultCircuitBreakerConfig(),
	}
}

// Service answers organigramm requests.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	fetcher Fetcher
	store   snapshot.Store
	breaker *CircuitBreaker
	flight  singleflight.Group
	cfg     ServiceConfig
	logger  *slog.Logger
	closed  atomic.Bool
}

// NewService wires a fetcher and a snapshot store.
//
// # Inputs
//
//   - f: Live tree source.
//   - store: Snapshot store used for write-through and stale fallback.
//   - cfg: Zero numeric fields take DefaultServiceConfig values.
//   - logger: Nil uses slog.Default().
func NewService(f Fetcher, store snapshot.Store, cfg ServiceConfig, logger *slog.Logger) *Service {
	def := DefaultServiceConfig()
	if cfg.DefaultMaxDepth <= 0 {
		cfg.DefaultMaxDepth = def.DefaultMaxDepth
	}
	if cfg.MaxDepthLimit <= 0 {
		cfg.MaxDepthLimit = def.MaxDepthLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "organigramm")

	breakerCfg := cfg.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = countsAgainstRegistry
	}
	userHook := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(from, to CircuitState) {
		logger.Warn("registry circuit breaker transition",
			"from", from.String(),
			"to", to.String())
		recordBreakerChange(from, to)
		if userHook != nil {
			userHook(from, to)
		}
	}

	return &Service{
		fetcher: f,
		store:   store,
		breaker: NewCircuitBreaker(breakerCfg),
		cfg:     cfg,
		logger:  logger,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// BreakerState reports the registry circuit state.
func (s *Service) BreakerState() CircuitState {
	return s.breaker.State()
}

// Close marks the service as draining. Subsequent Serve calls fail with
// ErrClosed and /readyz reports not ready. The store is owned by the caller.
func (s *Service) Close() {
	s.closed.Store(true)
}

// Ready reports whether the service accepts requests.
func (s *Service) Ready() bool {
	return !s.closed.Load()
}

// Resolve applies the configured defaults to a requested root and depth.
//
// # Outputs
//
//   - int, int: The root group id and depth to serve.
//   - error: ErrInvalidGroupID or ErrDepthOutOfRange.
func (s *Service) Resolve(rootGroupID, maxDepth int) (int, int, error) {
	if rootGroupID == 0 {
		rootGroupID = s.cfg.DefaultRootGroupID
	}
	if rootGroupID <= 0 {
		return 0, 0, ErrInvalidGroupID
	}
	if maxDepth == 0 {
		maxDepth = s.cfg.DefaultMaxDepth
	}
	if maxDepth < 1 || maxDepth > s.cfg.MaxDepthLimit {
		return 0, 0, fmt.Errorf("%w: %d (1..%d)", ErrDepthOutOfRange, maxDepth, s.cfg.MaxDepthLimit)
	}
	return rootGroupID, maxDepth, nil
}

// Serve returns the organigramm below rootGroupID.
//
// # Description
//
// Tries a live fetch first. On success the tree is written through to the
// snapshot store (a failed write is logged and otherwise ignored) and
// returned with stale=false. On failure the last snapshot for the root is
// returned with stale=true and its original fetchedAt; without a snapshot
// the fetch error is returned.
//
// While the circuit breaker is open the live fetch is skipped entirely.
//
// With CoalesceRequests, concurrent calls for the same root and depth share
// one fetch. The shared fetch is detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx ends.
//
// # Inputs
//
//   - ctx: Request context.
//   - rootGroupID: Root group. Must be positive.
//   - maxDepth: Levels to include, root = 1. Must be positive.
//
// # Outputs
//
//   - datatypes.Response: The tree, staleness and fetch time.
//   - error: The live fetch error (wrapped) when no snapshot exists,
//     ErrCircuitOpen on a cold cache with an open circuit, or ErrClosed.
func (s *Service) Serve(ctx context.Context, rootGroupID, maxDepth int) (datatypes.Response, error) {
	if s.closed.Load() {
		return datatypes.Response{}, ErrClosed
	}
	if rootGroupID <= 0 {
		return datatypes.Response{}, ErrInvalidGroupID
	}
	if maxDepth < 1 {
		return datatypes.Response{}, fmt.Errorf("%w: %d", fetcher.ErrInvalidDepth, maxDepth)
	}

	ctx, span := telemetry.StartSpan(ctx, instrumentationName, "organigramm.Service.Serve",
		trace.WithAttributes(
			attribute.Int("organigramm.root_group_id", rootGroupID),
			attribute.Int("organigramm.max_depth", maxDepth),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := s.serve(ctx, rootGroupID, maxDepth)

	source := "live"
	switch {
	case err != nil:
		source = "error"
		telemetry.RecordError(span, err)
	case resp.Stale:
		source = "stale"
		telemetry.SetSpanOK(span)
	default:
		telemetry.SetSpanOK(span)
	}
	span.SetAttributes(attribute.String("organigramm.source", source))
	recordServe(ctx, source, time.Since(start))
	return resp, err
}

func (s *Service) serve(ctx context.Context, rootGroupID, maxDepth int) (datatypes.Response, error) {
	if !s.cfg.CoalesceRequests {
		return s.refresh(ctx, rootGroupID, maxDepth)
	}

	key := strconv.Itoa(rootGroupID) + "/" + strconv.Itoa(maxDepth)
	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return s.refresh(shared, rootGroupID, maxDepth)
	})

	select {
	case <-ctx.Done():
		return datatypes.Response{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return datatypes.Response{}, res.Err
		}
		return res.Val.(datatypes.Response), nil
	}
}

// refresh is one live-fetch-or-snapshot round.
func (s *Service) refresh(ctx context.Context, rootGroupID, maxDepth int) (datatypes.Response, error) {
	logger := telemetry.LoggerWithTrace(ctx, s.logger).With(
		"root_group_id", rootGroupID,
		"max_depth", maxDepth,
	)

	var result *fetcher.Result
	fetchErr := s.breaker.Execute(func() error {
		var err error
		result, err = s.fetcher.Fetch(ctx, rootGroupID, maxDepth)
		return err
	})

	if fetchErr == nil {
		fetchedAt := time.Now().UTC()
		snap, err := s.store.Put(context.WithoutCancel(ctx), rootGroupID, maxDepth, result.Tree)
		if err != nil {
			recordSnapshotError(ctx, "put")
			logger.Warn("snapshot write failed", "error", err)
		} else {
			fetchedAt = snap.FetchedAt
		}
		return datatypes.Response{Data: result.Tree, Stale: false, FetchedAt: fetchedAt}, nil
	}

	if errors.Is(fetchErr, fetcher.ErrInvalidDepth) {
		return datatypes.Response{}, fetchErr
	}

	snap, err := s.store.Get(ctx, rootGroupID)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) && ctx.Err() == nil {
			recordSnapshotError(ctx, "get")
			logger.Warn("snapshot read failed", "error", err)
		}
		logger.Error("organigramm unavailable", "error", fetchErr)
		return datatypes.Response{}, fmt.Errorf("organigramm %d: %w", rootGroupID, fetchErr)
	}

	logger.Warn("serving stale organigramm",
		"error", fetchErr,
		"fetched_at", snap.FetchedAt)
	return datatypes.Response{Data: snap.Data, Stale: true, FetchedAt: snap.FetchedAt}, nil
}
