// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared by the organigramm
// service: registry entities, the assembled tree, and cached snapshots.
package datatypes

import (
	"strings"
	"time"
)

// =============================================================================
// Registry Entities
// =============================================================================

// Group is a node of the registry's group hierarchy.
type Group struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	ShortName *string `json:"shortName,omitempty"`
	Type      string  `json:"type"`
	ParentID  *int    `json:"parentId,omitempty"`
}

// Role binds a person to a group. Type is a "::"-delimited taxonomy such
// as "Group::Abteilung::Abteilungsleitung".
type Role struct {
	ID        int        `json:"id"`
	Type      string     `json:"type"`
	Name      *string    `json:"name,omitempty"`
	PersonID  int        `json:"personId"`
	GroupID   int        `json:"groupId"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Deleted reports whether the role is soft-deleted.
func (r Role) Deleted() bool {
	return r.DeletedAt != nil
}

// Label returns the human label of the role: its name when set, otherwise
// the last "::" segment of its type.
func (r Role) Label() string {
	if r.Name != nil && strings.TrimSpace(*r.Name) != "" {
		return *r.Name
	}
	return RoleTypeLabel(r.Type)
}

// RoleTypeLabel returns the last "::" segment of a role type.
func RoleTypeLabel(roleType string) string {
	if i := strings.LastIndex(roleType, "::"); i >= 0 {
		return roleType[i+2:]
	}
	return roleType
}

// Person is a registry member record.
type Person struct {
	ID        int     `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Nickname  *string `json:"nickname,omitempty"`
	Picture   *string `json:"picture,omitempty"`
}

// =============================================================================
// Organigramm Tree
// =============================================================================

// GroupInfo is the group header carried by every tree node.
type GroupInfo struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	ShortName *string `json:"shortName"`
	Type      string  `json:"type"`
}

// Member is a person joined with one of their roles in a group.
type Member struct {
	ID        int     `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Nickname  *string `json:"nickname"`
	Role      string  `json:"role"`
	RoleName  string  `json:"roleName"`
	Picture   *string `json:"picture"`
}

// Node is one group of the organigramm with its members and subgroups.
//
// Members and Children are never nil in assembled trees so that they
// serialize as [] rather than null.
type Node struct {
	Group         GroupInfo `json:"group"`
	Members       []Member  `json:"members"`
	Children      []Node    `json:"children"`
	HiddenMembers int       `json:"hiddenMembers,omitempty"`
}

// NewMember joins a person with a role.
func NewMember(p Person, r Role) Member {
	return Member{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Nickname:  p.Nickname,
		Role:      r.Type,
		RoleName:  r.Label(),
		Picture:   p.Picture,
	}
}

// Info returns the node header for a group.
func (g Group) Info() GroupInfo {
	return GroupInfo{ID: g.ID, Name: g.Name, ShortName: g.ShortName, Type: g.Type}
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	out.Members = append(make([]Member, 0, len(n.Members)), n.Members...)
	out.Children = make([]Node, len(n.Children))
	for i, child := range n.Children {
		out.Children[i] = child.Clone()
	}
	return out
}

// Walk visits n and its descendants depth first, parents before children.
// depth is 1 for n.
func (n Node) Walk(fn func(node Node, depth int)) {
	n.walk(fn, 1)
}

func (n Node) walk(fn func(Node, int), depth int) {
	fn(n, depth)
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

// CountGroups returns the number of nodes in the tree.
func (n Node) CountGroups() int {
	count := 0
	n.Walk(func(Node, int) { count++ })
	return count
}

// =============================================================================
// Snapshots and Responses
// =============================================================================

// Snapshot is the last successfully assembled tree for a root group.
type Snapshot struct {
	RootGroupID int       `json:"rootGroupId"`
	FetchedAt   time.Time `json:"fetchedAt"`
	MaxDepth    int       `json:"maxDepth,omitempty"`
	Data        Node      `json:"data"`
}

// Response is the body returned by the aggregation endpoint.
type Response struct {
	Data      Node      `json:"data"`
	Stale     bool      `json:"stale"`
	FetchedAt time.Time `json:"fetchedAt"`
}
