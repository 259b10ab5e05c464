// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetcher

import (
	"context"
	"time"

	"github.com/AleutianAI/troopsite/services/organigramm/registry"
	"github.com/cenkalti/backoff/v5"
)

// hintedBackOff is an exponential backoff that waits at least as long as the
// last Retry-After hint, capped at limit.
type hintedBackOff struct {
	*backoff.ExponentialBackOff
	hint  time.Duration
	limit time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.ExponentialBackOff.NextBackOff()
	if b.hint > next {
		next = min(b.hint, b.limit)
	}
	b.hint = 0
	return next
}

// call runs fn under the per-call timeout, retrying rate-limited attempts.
//
// Every attempt gets its own CallTimeout. Only registry.IsRetryable errors
// are retried; everything else is returned after the first attempt.
func call[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	bo := &hintedBackOff{
		ExponentialBackOff: backoff.NewExponentialBackOff(),
		limit:              cfg.Retry.MaxInterval,
	}
	bo.InitialInterval = cfg.Retry.InitialInterval
	bo.MaxInterval = cfg.Retry.MaxInterval

	op := func() (T, error) {
		attemptCtx := ctx
		if cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
			defer cancel()
		}

		v, err := fn(attemptCtx)
		if err == nil {
			return v, nil
		}
		if !registry.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		bo.hint = registry.RetryAfter(err)
		return v, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(max(cfg.Retry.MaxTries, 1)),
	)
}
