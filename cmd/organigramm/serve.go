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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AleutianAI/troopsite/pkg/telemetry"
	"github.com/AleutianAI/troopsite/services/organigramm"
	"github.com/AleutianAI/troopsite/services/organigramm/snapshot"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the organigramm HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.setup()
			if err != nil {
				return err
			}
			defer env.Close()
			if cmd.Flags().Changed("port") {
				env.cfg.Server.Port = port
			}
			return runServe(cmd.Context(), env)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides server.port)")
	return cmd
}

// runServe wires the service and blocks until ctx is cancelled or the
// listener fails.
//
// Shutdown order: readiness flips to 503 first (svc.Close), then in-flight
// requests drain, then the snapshot store and telemetry are flushed.
func runServe(ctx context.Context, env *runtimeEnv) error {
	cfg, logger := env.cfg, env.logger

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	f, destroyToken, err := env.newFetcher()
	if err != nil {
		return err
	}
	defer destroyToken()

	store, err := snapshot.Open(ctx, cfg.SnapshotConfig(), logger)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("snapshot store close failed", "error", err)
		}
	}()

	svc := organigramm.NewService(f, store, cfg.ServiceConfig(), logger)
	router := organigramm.NewRouter(cfg.Telemetry.ServiceName, organigramm.NewHandlers(svc, logger))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting organigramm server",
			"address", srv.Addr,
			"snapshot_backend", cfg.Snapshot.Backend,
			"default_root_group_id", cfg.Organigramm.RootGroupID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down organigramm server")
	svc.Close()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
