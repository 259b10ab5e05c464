// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filter

import (
	"fmt"
	"testing"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id int, roleType, roleName string) datatypes.Member {
	return datatypes.Member{ID: id, FirstName: "P", LastName: "M", Role: roleType, RoleName: roleName}
}

func node(id int, name string, members []datatypes.Member, children ...datatypes.Node) datatypes.Node {
	if members == nil {
		members = []datatypes.Member{}
	}
	if children == nil {
		children = []datatypes.Node{}
	}
	return datatypes.Node{
		Group:    datatypes.GroupInfo{ID: id, Name: name, Type: "Group::Einheit"},
		Members:  members,
		Children: children,
	}
}

// troop is root 1 with a leader and a treasurer, a unit with only
// "Mitglied" members, and a unit with a leader.
func troop() datatypes.Node {
	return node(1, "Abteilung",
		[]datatypes.Member{
			member(10, "Group::Abteilung::Abteilungsleitung", "Abteilungsleitung"),
			member(11, "Group::Abteilung::Kassier", "Kasse"),
		},
		node(2, "Wölfe", []datatypes.Member{
			member(20, "Group::Meute::Mitglied", "Mitglied"),
			member(21, "Group::Meute::Mitglied", "Mitglied"),
		}),
		node(3, "Pfadi", []datatypes.Member{
			member(30, "Group::Pfadi::Einheitsleitung", "Einheitsleitung"),
			member(31, "Group::Pfadi::Mitglied", "Mitglied"),
		},
			node(4, "Fähnli", []datatypes.Member{
				member(40, "Group::Faehnli::Mitglied", "Mitglied"),
			}),
		),
	)
}

func TestParsePatterns(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" , ,", nil},
		{"Mitglied", []string{"Mitglied"}},
		{" Mitglied , Kassier ", []string{"Mitglied", "Kassier"}},
		{"Mitglied,mitglied,MITGLIED", []string{"Mitglied"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePatterns(tt.in))
		})
	}
}

func TestTree_NoPatternsKeepsMembers(t *testing.T) {
	in := troop()
	out := Tree(in, nil)
	assert.Equal(t, in, out)

	out.Children[0].Group.Name = "changed"
	assert.Equal(t, "Wölfe", in.Children[0].Group.Name)
}

func TestTree_NoPatternsPrunesEmptyGroups(t *testing.T) {
	in := node(1, "Abteilung", []datatypes.Member{member(10, "Group::Abteilung::Abteilungsleitung", "Abteilungsleitung")},
		node(2, "Leere Einheit", nil),
		node(3, "Pfadi", nil,
			node(4, "Leeres Fähnli", nil),
		),
	)

	for _, patterns := range [][]string{nil, {}, {" "}} {
		out := Tree(in, patterns)
		require.Len(t, out.Members, 1, "patterns %q", patterns)
		assert.Empty(t, out.Children, "patterns %q", patterns)
		assert.NotNil(t, out.Children)
	}
	assert.Len(t, in.Children, 2, "input untouched")
}

// assertNoEmptySubtree fails for any node below the root that has neither
// members nor children.
func assertNoEmptySubtree(t *testing.T, n datatypes.Node, path string) {
	t.Helper()
	for _, child := range n.Children {
		childPath := fmt.Sprintf("%s/%d", path, child.Group.ID)
		assert.False(t, len(child.Members) == 0 && len(child.Children) == 0,
			"empty group %s survived", childPath)
		assertNoEmptySubtree(t, child, childPath)
	}
}

func TestTree_NeverReturnsEmptySubtree(t *testing.T) {
	withEmptyLeaves := func() datatypes.Node {
		tree := troop()
		tree.Children = append(tree.Children, node(5, "Rover", nil, node(6, "Leer", nil)))
		tree.Children[1].Children = append(tree.Children[1].Children, node(7, "Leer", nil))
		return tree
	}

	tests := []struct {
		name     string
		patterns []string
	}{
		{"nil", nil},
		{"empty", []string{}},
		{"blank", []string{" ", ""}},
		{"mitglied", []string{"Mitglied"}},
		{"role name", []string{"Kasse"}},
		{"leaders", []string{"leitung"}},
		{"everything", []string{"Group::"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Tree(withEmptyLeaves(), tt.patterns)
			assert.Equal(t, 1, out.Group.ID)
			assertNoEmptySubtree(t, out, "1")
		})
	}
}

func TestTree_ExcludesByRoleTypeSubstring(t *testing.T) {
	out := Tree(troop(), []string{"mitglied"})

	require.Len(t, out.Members, 2, "root members have no Mitglied role")

	// Wölfe had only Mitglied members and no children: pruned.
	require.Len(t, out.Children, 1)
	pfadi := out.Children[0]
	assert.Equal(t, 3, pfadi.Group.ID)
	require.Len(t, pfadi.Members, 1)
	assert.Equal(t, 30, pfadi.Members[0].ID)

	// Fähnli emptied and pruned under Pfadi.
	assert.Empty(t, pfadi.Children)
	assert.NotNil(t, pfadi.Children)
}

func TestTree_ExcludesByExactRoleName(t *testing.T) {
	out := Tree(troop(), []string{"KASSE"})
	require.Len(t, out.Members, 1)
	assert.Equal(t, 10, out.Members[0].ID)

	// Substring of the role type Group::Abteilung::Kassier.
	out = Tree(troop(), []string{"Kas"})
	require.Len(t, out.Members, 1)

	// Substring of the role name only: names must match exactly.
	out = Tree(troop(), []string{"asse"})
	assert.Len(t, out.Members, 2)
}

func TestTree_RootNeverPruned(t *testing.T) {
	in := node(1, "Root", []datatypes.Member{member(1, "Group::X::Mitglied", "Mitglied")},
		node(2, "Child", []datatypes.Member{member(2, "Group::Y::Mitglied", "Mitglied")}),
	)
	out := Tree(in, []string{"Mitglied"})

	assert.Equal(t, 1, out.Group.ID)
	assert.Empty(t, out.Members)
	assert.Empty(t, out.Children)
	assert.NotNil(t, out.Members)
	assert.NotNil(t, out.Children)
}

func TestTree_KeepsEmptyParentWithSurvivingChild(t *testing.T) {
	in := node(1, "Root", nil,
		node(2, "Middle", []datatypes.Member{member(2, "Group::Y::Mitglied", "Mitglied")},
			node(3, "Leaf", []datatypes.Member{member(3, "Group::Z::Leitung", "Leitung")}),
		),
	)
	out := Tree(in, []string{"Mitglied"})

	require.Len(t, out.Children, 1)
	middle := out.Children[0]
	assert.Empty(t, middle.Members)
	require.Len(t, middle.Children, 1)
	assert.Equal(t, 3, middle.Children[0].Group.ID)
}

func TestTree_Idempotent(t *testing.T) {
	for _, patterns := range [][]string{
		nil,
		{"Mitglied"},
		{"kasse", "leitung"},
		{"Group::"},
	} {
		once := Tree(troop(), patterns)
		twice := Tree(once, patterns)
		assert.Equal(t, once, twice, "patterns %v", patterns)
	}
}

func TestTree_DoesNotMutateInput(t *testing.T) {
	in := troop()
	before := in.Clone()

	_ = Tree(in, []string{"Mitglied", "Kasse"})
	assert.Equal(t, before, in)
}

func TestTree_BlankPatternsIgnored(t *testing.T) {
	out := Tree(troop(), []string{" ", ""})
	assert.Equal(t, troop(), out)
}

func TestCapMembers(t *testing.T) {
	out := CapMembers(troop(), 1)

	require.Len(t, out.Members, 1)
	assert.Equal(t, 10, out.Members[0].ID)
	assert.Equal(t, 1, out.HiddenMembers)

	wolves := out.Children[0]
	assert.Len(t, wolves.Members, 1)
	assert.Equal(t, 1, wolves.HiddenMembers)

	leaf := out.Children[1].Children[0]
	assert.Len(t, leaf.Members, 1)
	assert.Zero(t, leaf.HiddenMembers)
}

func TestCapMembers_NoLimit(t *testing.T) {
	assert.Equal(t, troop(), CapMembers(troop(), 0))
	assert.Equal(t, troop(), CapMembers(troop(), -3))
}

func TestCapMembers_DoesNotMutateInput(t *testing.T) {
	in := troop()
	before := in.Clone()

	out := CapMembers(in, 1)
	out.Members[0].FirstName = "changed"
	assert.Equal(t, before, in)
}

func TestFilterThenCap(t *testing.T) {
	out := CapMembers(Tree(troop(), []string{"Mitglied"}), 1)
	assert.Equal(t, 1, out.HiddenMembers)
	require.Len(t, out.Children, 1)
	assert.Zero(t, out.Children[0].HiddenMembers)
}
