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
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ORGANIGRAMM_"

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

// envBindings lists the supported overrides, without the prefix.
var envBindings = []envBinding{
	{"PORT", intVar(func(c *Config) *int { return &c.Server.Port })},
	{"DEBUG", boolVar(func(c *Config) *bool { return &c.Server.Debug })},
	{"REGISTRY_BASE_URL", stringVar(func(c *Config) *string { return &c.Registry.BaseURL })},
	{"REGISTRY_TOKEN", stringVar(func(c *Config) *string { return &c.Registry.Token })},
	{"REGISTRY_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Registry.Timeout })},
	{"REGISTRY_REQUESTS_PER_SECOND", floatVar(func(c *Config) *float64 { return &c.Registry.RequestsPerSecond })},
	{"FETCH_CONCURRENCY", intVar(func(c *Config) *int { return &c.Fetch.Concurrency })},
	{"ROOT_GROUP_ID", intVar(func(c *Config) *int { return &c.Organigramm.RootGroupID })},
	{"EXCLUDED_ROLES", stringVar(func(c *Config) *string { return &c.Organigramm.ExcludedRoles })},
	{"MAX_MEMBERS", intVar(func(c *Config) *int { return &c.Organigramm.MaxMembers })},
	{"SNAPSHOT_BACKEND", stringVar(func(c *Config) *string { return &c.Snapshot.Backend })},
	{"SNAPSHOT_PATH", stringVar(func(c *Config) *string { return &c.Snapshot.Path })},
	{"SNAPSHOT_GCS_BUCKET", stringVar(func(c *Config) *string { return &c.Snapshot.GCS.Bucket })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_DIR", stringVar(func(c *Config) *string { return &c.Logging.LogDir })},
	{"LOG_JSON", boolVar(func(c *Config) *bool { return &c.Logging.JSON })},
}

// applyEnv applies every set ORGANIGRAMM_* variable. Set-but-empty
// variables count as set, so ORGANIGRAMM_EXCLUDED_ROLES= clears the list.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return fmt.Errorf("%w: %s%s: %w", ErrInvalid, EnvPrefix, b.name, err)
		}
	}
	return nil
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
