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
	"io"
	"os"
	"time"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/AleutianAI/troopsite/services/organigramm/filter"
	"github.com/AleutianAI/troopsite/services/organigramm/snapshot"
	"github.com/spf13/cobra"
)

// shapeOptions are the response shaping flags shared by fetch and snapshot show.
type shapeOptions struct {
	groupID    int
	exclude    string
	maxMembers int
	asJSON     bool
}

func (s *shapeOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&s.groupID, "group", "g", 0, "root group id (default: organigramm.root_group_id)")
	cmd.Flags().StringVar(&s.exclude, "exclude", "", "comma-separated role patterns to hide (overrides organigramm.excluded_roles)")
	cmd.Flags().IntVar(&s.maxMembers, "max-members", 0, "members shown per group, 0 for all (overrides organigramm.max_members)")
	cmd.Flags().BoolVar(&s.asJSON, "json", false, "print the response JSON instead of a tree")
}

// rootID returns the --group flag or the configured default.
func (s *shapeOptions) rootID(defaultRoot int) (int, error) {
	id := s.groupID
	if id == 0 {
		id = defaultRoot
	}
	if id <= 0 {
		return 0, errors.New("no root group: pass --group or set organigramm.root_group_id")
	}
	return id, nil
}

// shape applies exclusion and the member cap the same way the HTTP handler
// does: flags override the configuration, even when set to empty.
func (s *shapeOptions) shape(cmd *cobra.Command, tree datatypes.Node, configured []string, configuredMax int) datatypes.Node {
	patterns := configured
	if cmd.Flags().Changed("exclude") {
		patterns = filter.ParsePatterns(s.exclude)
	}
	maxMembers := configuredMax
	if cmd.Flags().Changed("max-members") {
		maxMembers = s.maxMembers
	}
	return filter.CapMembers(filter.Tree(tree, patterns), maxMembers)
}

func (s *shapeOptions) print(w io.Writer, f *os.File, resp datatypes.Response) error {
	if s.asJSON {
		return writeJSON(w, resp)
	}
	theme := themeFor(f)
	if err := renderHeader(w, theme, resp.Stale, resp.FetchedAt); err != nil {
		return err
	}
	return renderTree(w, resp.Data, theme)
}

func newFetchCmd(opts *globalOptions) *cobra.Command {
	var (
		shape shapeOptions
		depth int
		save  bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the organigramm live from the registry and print it",
		Long: `fetch runs one live aggregation against the registry, bypassing the
circuit breaker and the snapshot fallback. With --save the unfiltered tree is
written to the configured snapshot store.`,
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
			if depth == 0 {
				depth = svcCfg.DefaultMaxDepth
			}

			f, destroyToken, err := env.newFetcher()
			if err != nil {
				return err
			}
			defer destroyToken()

			ctx := cmd.Context()
			result, err := f.Fetch(ctx, rootID, depth)
			if err != nil {
				return err
			}
			env.logger.Info("organigramm fetched",
				"root_group_id", rootID,
				"max_depth", depth,
				"groups", result.Stats.Groups,
				"people", result.Stats.People,
				"child_failures", result.Stats.ChildFailures,
				"role_failures", result.Stats.RoleFailures,
				"person_failures", result.Stats.PersonFailures,
				"duration", result.Stats.Duration)

			fetchedAt := time.Now().UTC()
			if save {
				store, err := snapshot.Open(ctx, env.cfg.SnapshotConfig(), env.logger)
				if err != nil {
					return fmt.Errorf("snapshot store: %w", err)
				}
				snap, putErr := store.Put(ctx, rootID, depth, result.Tree)
				closeErr := store.Close()
				if putErr != nil {
					return fmt.Errorf("save snapshot: %w", putErr)
				}
				if closeErr != nil {
					return fmt.Errorf("close snapshot store: %w", closeErr)
				}
				fetchedAt = snap.FetchedAt
			}

			resp := datatypes.Response{
				Data:      shape.shape(cmd, result.Tree, svcCfg.ExcludedRoles, svcCfg.MaxMembers),
				FetchedAt: fetchedAt,
			}
			return shape.print(cmd.OutOrStdout(), os.Stdout, resp)
		},
	}
	shape.register(cmd)
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "tree depth, root = 1 (default: fetch.default_max_depth)")
	cmd.Flags().BoolVar(&save, "save", false, "write the fetched tree to the snapshot store")
	return cmd
}
