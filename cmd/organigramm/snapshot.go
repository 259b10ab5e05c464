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
	"errors"
	"fmt"
	"os"

	"github.com/AleutianAI/troopsite/services/organigramm/config"
	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/AleutianAI/troopsite/services/organigramm/snapshot"
	"github.com/spf13/cobra"
)

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect the snapshot store",
	}
	cmd.AddCommand(newSnapshotShowCmd(opts))
	return cmd
}

func newSnapshotShowCmd(opts *globalOptions) *cobra.Command {
	var shape shapeOptions
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the last stored organigramm for a root group",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.setup()
			if err != nil {
				return err
			}
			defer env.Close()

			svcCfg := env.cfg.ServiceConfig()
			rootID, err := shape.rootID(svcCfg.DefaultRootGroupID)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := snapshot.Open(ctx, env.cfg.SnapshotConfig(), env.logger)
			if err != nil {
				return fmt.Errorf("snapshot store: %w", err)
			}
			defer store.Close()

			snap, err := store.Get(ctx, rootID)
			if errors.Is(err, snapshot.ErrNotFound) {
				return fmt.Errorf("no snapshot for group %d in the %s store", rootID, env.cfg.Snapshot.Backend)
			}
			if err != nil {
				return err
			}

			resp := datatypes.Response{
				Data:      shape.shape(cmd, snap.Data, svcCfg.ExcludedRoles, svcCfg.MaxMembers),
				Stale:     true,
				FetchedAt: snap.FetchedAt,
			}
			return shape.print(cmd.OutOrStdout(), os.Stdout, resp)
		},
	}
	shape.register(cmd)
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "organigramm.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s; set registry.base_url and ORGANIGRAMM_REGISTRY_TOKEN\n", path)
			return nil
		},
	})
	return cmd
}
