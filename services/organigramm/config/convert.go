// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"log/slog"

	"github.com/AleutianAI/troopsite/pkg/logging"
	"github.com/AleutianAI/troopsite/pkg/secrets"
	"github.com/AleutianAI/troopsite/pkg/telemetry"
	"github.com/AleutianAI/troopsite/services/organigramm"
	"github.com/AleutianAI/troopsite/services/organigramm/fetcher"
	"github.com/AleutianAI/troopsite/services/organigramm/filter"
	"github.com/AleutianAI/troopsite/services/organigramm/registry"
	"github.com/AleutianAI/troopsite/services/organigramm/snapshot"
	"golang.org/x/time/rate"
)

// ServiceConfig returns the service settings, breaker included.
func (c *Config) ServiceConfig() organigramm.ServiceConfig {
	return organigramm.ServiceConfig{
		DefaultRootGroupID: c.Organigramm.RootGroupID,
		DefaultMaxDepth:    c.Fetch.DefaultMaxDepth,
		MaxDepthLimit:      c.Fetch.MaxDepthLimit,
		ExcludedRoles:      filter.ParsePatterns(c.Organigramm.ExcludedRoles),
		MaxMembers:         c.Organigramm.MaxMembers,
		CoalesceRequests:   c.Organigramm.CoalesceRequests,
		Breaker: organigramm.CircuitBreakerConfig{
			FailureThreshold: c.Breaker.FailureThreshold,
			SuccessThreshold: c.Breaker.SuccessThreshold,
			OpenTimeout:      c.Breaker.OpenTimeout,
		},
	}
}

func (c *Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		Concurrency: c.Fetch.Concurrency,
		CallTimeout: c.Fetch.CallTimeout,
		Retry: fetcher.RetryConfig{
			MaxTries:        c.Fetch.Retry.MaxTries,
			InitialInterval: c.Fetch.Retry.InitialInterval,
			MaxInterval:     c.Fetch.Retry.MaxInterval,
		},
	}
}

// RegistryConfig returns the client settings for token. The limiter is
// created here so that every client built from one call shares it.
func (c *Config) RegistryConfig(token *secrets.Token, logger *slog.Logger) registry.Config {
	return registry.Config{
		BaseURL:  c.Registry.BaseURL,
		Token:    token,
		Timeout:  c.Registry.Timeout,
		Limiter:  c.Registry.Limiter(),
		MaxPages: c.Registry.MaxPages,
		PageSize: c.Registry.PageSize,
		Logger:   logger,
	}
}

// Limiter returns the shared token bucket, or nil when rate limiting is off.
func (r RegistryConfig) Limiter() *rate.Limiter {
	if r.RequestsPerSecond <= 0 {
		return nil
	}
	burst := r.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r.RequestsPerSecond), burst)
}

func (c *Config) SnapshotConfig() snapshot.Config {
	return snapshot.Config{
		Backend:    c.Snapshot.Backend,
		Path:       c.Snapshot.Path,
		GCInterval: c.Snapshot.GCInterval,
		GCS: snapshot.GCSConfig{
			Bucket:          c.Snapshot.GCS.Bucket,
			Prefix:          c.Snapshot.GCS.Prefix,
			CredentialsFile: c.Snapshot.GCS.CredentialsFile,
		},
	}
}

// TelemetryConfig starts from telemetry.DefaultConfig, so OTEL_* variables
// still apply to anything the file leaves empty.
func (c *Config) TelemetryConfig() telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = organigramm.ServiceVersion
	if c.Telemetry.ServiceName != "" {
		tc.ServiceName = c.Telemetry.ServiceName
	}
	if c.Telemetry.TraceExporter != "" {
		tc.TraceExporter = c.Telemetry.TraceExporter
	}
	if c.Telemetry.MetricExporter != "" {
		tc.MetricExporter = c.Telemetry.MetricExporter
	}
	if c.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	return tc
}

// LoggingConfig returns the logger settings for service.
func (c *Config) LoggingConfig(service string) logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.LogDir,
		Service: service,
		JSON:    c.Logging.JSON,
	}
}
