// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filter trims an assembled organigramm for display.
//
// Every function here is pure: the input tree is never modified and the
// result shares no slices with it.
package filter

import (
	"strings"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
)

// ParsePatterns splits a comma-separated exclusion list.
//
// Blank entries are dropped and duplicates (ignoring case) keep their first
// occurrence. An empty or all-blank string yields nil.
func ParsePatterns(csv string) []string {
	var patterns []string
	seen := make(map[string]struct{})
	for _, raw := range strings.Split(csv, ",") {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		patterns = append(patterns, p)
	}
	return patterns
}

// Tree removes excluded members and prunes groups left empty.
//
// # Description
//
// A member is excluded when any pattern is a case-insensitive substring of
// its role type, or equals its role name ignoring case. Children are
// filtered first; a child that ends with no members and no children is
// dropped. The root is always kept, even when empty.
//
// Pruning runs for every pattern set, nil included, so a group that came
// back from the registry without members or subgroups never reaches the page.
//
// # Properties
//
//   - Pure: node is not modified.
//   - Idempotent: Tree(Tree(n, p), p) equals Tree(n, p).
//   - No node below the root has both no members and no children.
func Tree(node datatypes.Node, patterns []string) datatypes.Node {
	return newMatcher(patterns).filter(node)
}

type matcher struct {
	patterns []string // lower-cased
}

func newMatcher(patterns []string) matcher {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return matcher{patterns: lowered}
}

func (m matcher) excluded(member datatypes.Member) bool {
	roleType := strings.ToLower(member.Role)
	roleName := strings.ToLower(member.RoleName)
	for _, p := range m.patterns {
		if strings.Contains(roleType, p) || roleName == p {
			return true
		}
	}
	return false
}

func (m matcher) filter(node datatypes.Node) datatypes.Node {
	out := datatypes.Node{
		Group:         node.Group,
		Members:       make([]datatypes.Member, 0, len(node.Members)),
		Children:      make([]datatypes.Node, 0, len(node.Children)),
		HiddenMembers: node.HiddenMembers,
	}
	for _, member := range node.Members {
		if !m.excluded(member) {
			out.Members = append(out.Members, member)
		}
	}
	for _, child := range node.Children {
		kept := m.filter(child)
		if len(kept.Members) == 0 && len(kept.Children) == 0 {
			continue
		}
		out.Children = append(out.Children, kept)
	}
	return out
}

// CapMembers keeps at most limit members per node.
//
// Dropped members are counted in HiddenMembers so the page can show
// "and N more". limit <= 0 returns an uncapped copy.
func CapMembers(node datatypes.Node, limit int) datatypes.Node {
	if limit <= 0 {
		return node.Clone()
	}
	return capNode(node, limit)
}

func capNode(node datatypes.Node, limit int) datatypes.Node {
	keep := min(len(node.Members), limit)
	out := datatypes.Node{
		Group:         node.Group,
		Members:       append(make([]datatypes.Member, 0, keep), node.Members[:keep]...),
		Children:      make([]datatypes.Node, 0, len(node.Children)),
		HiddenMembers: node.HiddenMembers + len(node.Members) - keep,
	}
	for _, child := range node.Children {
		out.Children = append(out.Children, capNode(child, limit))
	}
	return out
}
