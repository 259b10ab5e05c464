// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pool runs batches of tasks with bounded concurrency.
//
// # Description
//
// Run starts min(limit, len(tasks)) workers. Each worker claims the next
// unclaimed task index from an atomic counter and writes the result at that
// index, so results come back in input order regardless of completion
// order. Tasks cannot fail: callers that need "fetch or default" wrap their
// call with OrDefault, which keeps one failing branch from affecting the
// rest of the batch.
//
// # Thread Safety
//
// Run is safe for concurrent use. Tasks run on separate goroutines and
// must synchronize any state they share.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task is one unit of work. It receives the context passed to Run.
type Task[T any] func(ctx context.Context) T

// Run executes every task with at most limit in flight and returns the
// results in input order.
//
// # Inputs
//
//   - ctx: Passed to every task. Cancellation does not stop Run; tasks
//     are expected to observe ctx themselves and return promptly.
//   - limit: Concurrency ceiling. Values below 1 are treated as 1.
//   - tasks: The batch. May be empty.
//
// # Outputs
//
//   - []T: len(tasks) results, results[i] from tasks[i].
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) []T {
	results := make([]T, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if limit < 1 {
		limit = 1
	}
	workers := min(limit, len(tasks))

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= len(tasks) {
					return
				}
				results[i] = tasks[i](ctx)
			}
		}()
	}
	wg.Wait()
	return results
}

// Map builds one task per item and runs them through Run.
func Map[In, Out any](ctx context.Context, limit int, items []In, fn func(ctx context.Context, item In) Out) []Out {
	tasks := make([]Task[Out], len(items))
	for i, item := range items {
		tasks[i] = func(ctx context.Context) Out { return fn(ctx, item) }
	}
	return Run(ctx, limit, tasks)
}

// OrDefault adapts a fallible call into a Task that returns fallback on
// error. onErr, if non-nil, observes the error (typically to log it).
func OrDefault[T any](fn func(ctx context.Context) (T, error), fallback T, onErr func(error)) Task[T] {
	return func(ctx context.Context) T {
		v, err := fn(ctx)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return fallback
		}
		return v
	}
}
