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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/troopsite/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "organigramm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

const minimalYAML = `
registry:
  base_url: https://db.scout.ch
  token: secret-token
`

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
registry:
  base_url: https://db.scout.ch
  token: secret-token
  timeout: 20s
  requests_per_second: 2.5
fetch:
  concurrency: 8
  retry:
    max_tries: 4
    initial_interval: 250ms
    max_interval: 2s
organigramm:
  root_group_id: 1234
  excluded_roles: "Mitglied, Ehemalige"
  max_members: 6
snapshot:
  backend: badger
  path: /var/lib/organigramm
breaker:
  open_timeout: 1m
`)

	cfg, err := load(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Registry.Timeout)
	assert.Equal(t, 2.5, cfg.Registry.RequestsPerSecond)
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, uint(4), cfg.Fetch.Retry.MaxTries)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.Retry.InitialInterval)
	assert.Equal(t, 1234, cfg.Organigramm.RootGroupID)
	assert.Equal(t, "badger", cfg.Snapshot.Backend)
	assert.Equal(t, time.Minute, cfg.Breaker.OpenTimeout)

	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Fetch.DefaultMaxDepth)
	assert.Equal(t, 10*time.Second, cfg.Fetch.CallTimeout)
	assert.True(t, cfg.Organigramm.CoalesceRequests)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{
		"ORGANIGRAMM_REGISTRY_BASE_URL": "https://db.scout.ch",
		"ORGANIGRAMM_REGISTRY_TOKEN":    "secret-token",
	}))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Snapshot.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), noEnv)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, minimalYAML+"\nregistyr:\n  base_url: x\n")
	_, err := load(path, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registyr")
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := load(path, envMap(map[string]string{
		"ORGANIGRAMM_REGISTRY_BASE_URL": "https://db.scout.ch",
		"ORGANIGRAMM_REGISTRY_TOKEN":    "secret-token",
	}))
	require.NoError(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
organigramm:
  excluded_roles: Mitglied
`)
	cfg, err := load(path, envMap(map[string]string{
		"ORGANIGRAMM_PORT":             "7070",
		"ORGANIGRAMM_REGISTRY_TOKEN":   "from-env",
		"ORGANIGRAMM_EXCLUDED_ROLES":   "",
		"ORGANIGRAMM_REGISTRY_TIMEOUT": "3s",
		"ORGANIGRAMM_LOG_JSON":         "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Registry.Token)
	assert.Empty(t, cfg.Organigramm.ExcludedRoles, "set-but-empty clears the value")
	assert.Equal(t, 3*time.Second, cfg.Registry.Timeout)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoad_BadEnvValue(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	_, err := load(path, envMap(map[string]string{"ORGANIGRAMM_PORT": "eighty"}))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "ORGANIGRAMM_PORT")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Registry.BaseURL = "https://db.scout.ch"
		cfg.Registry.Token = "secret-token"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.Registry.BaseURL = "" }},
		{"non-http base url", func(c *Config) { c.Registry.BaseURL = "ftp://db.scout.ch" }},
		{"missing token", func(c *Config) { c.Registry.Token = "" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"zero concurrency", func(c *Config) { c.Fetch.Concurrency = 0 }},
		{"default depth above limit", func(c *Config) { c.Fetch.DefaultMaxDepth = 9 }},
		{"zero retry tries", func(c *Config) { c.Fetch.Retry.MaxTries = 0 }},
		{"max interval below initial", func(c *Config) { c.Fetch.Retry.MaxInterval = time.Millisecond }},
		{"negative max members", func(c *Config) { c.Organigramm.MaxMembers = -1 }},
		{"unknown backend", func(c *Config) { c.Snapshot.Backend = "redis" }},
		{"badger without path", func(c *Config) { c.Snapshot.Backend = "badger" }},
		{"gcs without bucket", func(c *Config) { c.Snapshot.Backend = "gcs" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown trace exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.TraceExporter = "otlp" }},
		{"zero open timeout", func(c *Config) { c.Breaker.OpenTimeout = 0 }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "organigramm.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "open_timeout: 30s")

	// The written file round-trips through the strict decoder.
	cfg := Config{}
	require.NoError(t, decode(data, &cfg))
	assert.Equal(t, DefaultConfig(), cfg)

	assert.Error(t, WriteDefault(path), "existing file is not overwritten")
}

func TestConversions(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
organigramm:
  root_group_id: 1234
  excluded_roles: " Mitglied ,,Ehemalige"
  max_members: 4
  coalesce_requests: false
snapshot:
  backend: gcs
  gcs:
    bucket: troop-snapshots
    prefix: prod
logging:
  level: debug
`)
	cfg, err := load(path, noEnv)
	require.NoError(t, err)

	svc := cfg.ServiceConfig()
	assert.Equal(t, 1234, svc.DefaultRootGroupID)
	assert.Equal(t, []string{"Mitglied", "Ehemalige"}, svc.ExcludedRoles)
	assert.Equal(t, 4, svc.MaxMembers)
	assert.False(t, svc.CoalesceRequests)
	assert.Equal(t, 5, svc.Breaker.FailureThreshold)
	assert.Equal(t, 8, svc.MaxDepthLimit)

	fc := cfg.FetcherConfig()
	assert.Equal(t, 5, fc.Concurrency)
	assert.Equal(t, uint(3), fc.Retry.MaxTries)

	sc := cfg.SnapshotConfig()
	assert.Equal(t, "gcs", sc.Backend)
	assert.Equal(t, "troop-snapshots", sc.GCS.Bucket)
	assert.Equal(t, "prod", sc.GCS.Prefix)

	lc := cfg.LoggingConfig("organigramm")
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "organigramm", lc.Service)

	tc := cfg.TelemetryConfig()
	assert.Equal(t, "organigramm", tc.ServiceName)
	assert.Equal(t, "none", tc.TraceExporter)
	assert.Equal(t, "prometheus", tc.MetricExporter)
}

func TestRegistryConfig_Limiter(t *testing.T) {
	off := RegistryConfig{}
	assert.Nil(t, off.Limiter())

	on := RegistryConfig{RequestsPerSecond: 4, Burst: 0}
	lim := on.Limiter()
	require.NotNil(t, lim)
	assert.Equal(t, rate.Limit(4), lim.Limit())
	assert.Equal(t, 1, lim.Burst())

	cfg := DefaultConfig()
	cfg.Registry.RequestsPerSecond = 1
	rc := cfg.RegistryConfig(nil, nil)
	require.NotNil(t, rc.Limiter)
	assert.Equal(t, 5, rc.Limiter.Burst())
	assert.Equal(t, 20, rc.MaxPages)
}
