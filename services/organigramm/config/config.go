// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the organigramm service configuration.
//
// A YAML file is decoded over DefaultConfig, ORGANIGRAMM_* environment
// variables are applied on top, and the result is validated. The registry
// token is usually supplied through ORGANIGRAMM_REGISTRY_TOKEN so it never
// has to live in the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Load and Validate.
var ErrInvalid = errors.New("invalid organigramm config")

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Registry    RegistryConfig    `yaml:"registry"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Organigramm OrganigrammConfig `yaml:"organigramm"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type ServerConfig struct {
	Port  int  `yaml:"port" validate:"min=1,max=65535"`
	Debug bool `yaml:"debug"`
}

// RegistryConfig describes the upstream member registry.
type RegistryConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,http_url"`

	// Token is the personal or service token. Prefer the environment.
	Token string `yaml:"token" validate:"required"`

	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// RequestsPerSecond enables a shared token bucket. Zero disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=1"`

	MaxPages int `yaml:"max_pages" validate:"gte=1"`
	PageSize int `yaml:"page_size" validate:"gte=0"`
}

type FetchConfig struct {
	Concurrency     int           `yaml:"concurrency" validate:"gte=1"`
	CallTimeout     time.Duration `yaml:"call_timeout" validate:"gte=0"`
	DefaultMaxDepth int           `yaml:"default_max_depth" validate:"gte=1,ltefield=MaxDepthLimit"`
	MaxDepthLimit   int           `yaml:"max_depth_limit" validate:"gte=1"`
	Retry           RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxTries        uint          `yaml:"max_tries" validate:"gte=1"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
}

// OrganigrammConfig holds response shaping defaults.
type OrganigrammConfig struct {
	// RootGroupID answers requests that name no group. Zero disables it.
	RootGroupID int `yaml:"root_group_id" validate:"gte=0"`

	// ExcludedRoles is a comma-separated list of role patterns.
	ExcludedRoles string `yaml:"excluded_roles"`

	MaxMembers       int  `yaml:"max_members" validate:"gte=0"`
	CoalesceRequests bool `yaml:"coalesce_requests"`
}

type SnapshotConfig struct {
	Backend    string        `yaml:"backend" validate:"oneof=memory badger gcs"`
	Path       string        `yaml:"path" validate:"required_if=Backend badger"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
	GCS        GCSConfig     `yaml:"gcs"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=1"`
	SuccessThreshold int           `yaml:"success_threshold" validate:"gte=1"`
	OpenTimeout      time.Duration `yaml:"open_timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON   bool   `yaml:"json"`
	LogDir string `yaml:"log_dir"`
}

type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=otlp jaeger stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// DefaultConfig returns the production defaults. Registry base URL and
// token have no default.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Registry: RegistryConfig{
			Timeout:  15 * time.Second,
			Burst:    5,
			MaxPages: 20,
		},
		Fetch: FetchConfig{
			Concurrency:     5,
			CallTimeout:     10 * time.Second,
			DefaultMaxDepth: 3,
			MaxDepthLimit:   8,
			Retry: RetryConfig{
				MaxTries:        3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		Organigramm: OrganigrammConfig{CoalesceRequests: true},
		Snapshot: SnapshotConfig{
			Backend:    "memory",
			GCInterval: 5 * time.Minute,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			OpenTimeout:      30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			ServiceName:    "organigramm",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
	}
}

// Load reads path (optional), applies environment overrides and validates.
//
// Description:
//
//	An empty path skips the file. A path that does not exist is an error;
//	unknown YAML keys are rejected so typos do not silently fall back to
//	defaults.
//
// Inputs:
//
//	path - YAML file, or "".
//
// Outputs:
//
//	*Config - The merged, validated configuration.
//	error - Read, parse, environment or validation failure.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Snapshot.Backend == "gcs" && c.Snapshot.GCS.Bucket == "" {
		return fmt.Errorf("%w: snapshot.gcs.bucket is required for the gcs backend", ErrInvalid)
	}
	if (c.Telemetry.TraceExporter == "otlp" || c.Telemetry.TraceExporter == "jaeger") && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("%w: telemetry.otlp_endpoint is required for the %s exporter", ErrInvalid, c.Telemetry.TraceExporter)
	}
	return nil
}

// WriteDefault writes DefaultConfig as YAML to path, creating parent
// directories. An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
