// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/troopsite/pkg/logging"
	"github.com/AleutianAI/troopsite/pkg/secrets"
	"github.com/AleutianAI/troopsite/services/organigramm/config"
	"github.com/AleutianAI/troopsite/services/organigramm/fetcher"
	"github.com/AleutianAI/troopsite/services/organigramm/registry"
	"github.com/spf13/cobra"
)

const serviceName = "organigramm"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "organigramm",
		Short: "Serve and inspect the troop organigramm",
		Long: `organigramm aggregates groups, roles and people from the member
registry into one tree and serves it over HTTP, falling back to the last
snapshot while the registry is unavailable.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("ORGANIGRAMM_CONFIG"),
		"YAML config file (env: ORGANIGRAMM_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newFetchCmd(opts),
		newSnapshotCmd(opts),
		newConfigCmd(),
	)
	return rootCmd
}

// runtimeEnv is what every command needs after startup.
type runtimeEnv struct {
	cfg    *config.Config
	log    *logging.Logger
	logger *slog.Logger
}

func (e *runtimeEnv) Close() {
	_ = e.log.Close()
}

// setup loads the config and creates the logger.
func (o *globalOptions) setup() (*runtimeEnv, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		if _, err := logging.ParseLevel(o.logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = o.logLevel
	}

	log := logging.New(cfg.LoggingConfig(serviceName))
	return &runtimeEnv{cfg: cfg, log: log, logger: log.Slog()}, nil
}

// newFetcher seals the registry token and builds the registry client and
// fetcher. The plaintext token is cleared from the config. The returned
// func destroys the token.
func (e *runtimeEnv) newFetcher() (*fetcher.Fetcher, func(), error) {
	token, err := secrets.NewToken(e.cfg.Registry.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("registry token: %w", err)
	}
	e.cfg.Registry.Token = ""

	client, err := registry.NewClient(e.cfg.RegistryConfig(token, e.logger))
	if err != nil {
		token.Destroy()
		return nil, nil, err
	}

	e.logger.Info("registry client ready",
		"base_url", e.cfg.Registry.BaseURL,
		"token_present", token.Present(),
		"requests_per_second", e.cfg.Registry.RequestsPerSecond)

	f := fetcher.New(client, e.cfg.FetcherConfig(), e.logger)
	return f, token.Destroy, nil
}
