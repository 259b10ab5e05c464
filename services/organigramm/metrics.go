// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package organigramm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "troopsite.organigramm"

var meter = otel.Meter(instrumentationName)

var (
	responsesTotal metric.Int64Counter
	serveDuration  metric.Float64Histogram
	breakerChanges metric.Int64Counter
	snapshotErrors metric.Int64Counter

	metricsOnce    sync.Once
	metricsInitErr error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		responsesTotal, err = meter.Int64Counter(
			"organigramm_responses_total",
			metric.WithDescription("Organigramm responses by source (live, stale, error)"),
		)
		if err != nil {
			metricsInitErr = err
			return
		}

		serveDuration, err = meter.Float64Histogram(
			"organigramm_serve_duration_seconds",
			metric.WithDescription("Time to answer an organigramm request"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsInitErr = err
			return
		}

		breakerChanges, err = meter.Int64Counter(
			"organigramm_breaker_transitions_total",
			metric.WithDescription("Registry circuit breaker state transitions"),
		)
		if err != nil {
			metricsInitErr = err
			return
		}

		snapshotErrors, err = meter.Int64Counter(
			"organigramm_snapshot_errors_total",
			metric.WithDescription("Failed snapshot reads and writes"),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
	})
	return metricsInitErr
}

func recordServe(ctx context.Context, source string, duration time.Duration) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	responsesTotal.Add(ctx, 1, attrs)
	serveDuration.Record(ctx, duration.Seconds(), attrs)
}

func recordBreakerChange(from, to CircuitState) {
	if initMetrics() != nil {
		return
	}
	breakerChanges.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func recordSnapshotError(ctx context.Context, op string) {
	if initMetrics() != nil {
		return
	}
	snapshotErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
