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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Organigramm palette
var (
	colorGroup   = lipgloss.Color("#2CD7C7")
	colorRole    = lipgloss.Color("#20B9B4")
	colorMuted   = lipgloss.Color("#2C4A54")
	colorWarning = lipgloss.Color("#F4D03F")
)

type paint func(string) string

func plain(s string) string { return s }

// styled adapts a lipgloss style's variadic Render to a paint.
func styled(st lipgloss.Style) paint {
	return func(s string) string { return st.Render(s) }
}

// treeTheme colors the parts of a rendered tree.
type treeTheme struct {
	group   paint
	role    paint
	muted   paint
	warning paint
}

var plainTheme = treeTheme{group: plain, role: plain, muted: plain, warning: plain}

func colorTheme() treeTheme {
	return treeTheme{
		group:   styled(lipgloss.NewStyle().Bold(true).Foreground(colorGroup)),
		role:    styled(lipgloss.NewStyle().Foreground(colorRole)),
		muted:   styled(lipgloss.NewStyle().Foreground(colorMuted)),
		warning: styled(lipgloss.NewStyle().Foreground(colorWarning)),
	}
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// themeFor picks colors for a terminal and plain text otherwise.
func themeFor(f *os.File) treeTheme {
	if isTerminal(f) {
		return colorTheme()
	}
	return plainTheme
}

// renderHeader writes the one-line status above a tree.
func renderHeader(w io.Writer, theme treeTheme, stale bool, fetchedAt time.Time) error {
	status := "live"
	if stale {
		status = theme.warning("stale")
	}
	_, err := fmt.Fprintf(w, "%s %s\n", status, theme.muted("fetched "+fetchedAt.UTC().Format(time.RFC3339)))
	return err
}

// renderTree draws node and its subgroups with box-drawing guides.
func renderTree(w io.Writer, node datatypes.Node, theme treeTheme) error {
	var b strings.Builder
	b.WriteString(groupLine(node, theme))
	b.WriteByte('\n')
	writeChildren(&b, node, "", theme)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeChildren(b *strings.Builder, node datatypes.Node, prefix string, theme treeTheme) {
	lines := len(node.Members) + len(node.Children)
	if node.HiddenMembers > 0 {
		lines++
	}

	i := 0
	branch := func() (string, string) {
		i++
		if i == lines {
			return prefix + "└── ", prefix + "    "
		}
		return prefix + "├── ", prefix + "│   "
	}

	for _, m := range node.Members {
		head, _ := branch()
		b.WriteString(theme.muted(head))
		b.WriteString(memberLine(m, theme))
		b.WriteByte('\n')
	}
	if node.HiddenMembers > 0 {
		head, _ := branch()
		b.WriteString(theme.muted(head))
		b.WriteString(theme.muted(fmt.Sprintf("+%d more", node.HiddenMembers)))
		b.WriteByte('\n')
	}
	for _, child := range node.Children {
		head, next := branch()
		b.WriteString(theme.muted(head))
		b.WriteString(groupLine(child, theme))
		b.WriteByte('\n')
		writeChildren(b, child, next, theme)
	}
}

func groupLine(node datatypes.Node, theme treeTheme) string {
	name := node.Group.Name
	if node.Group.ShortName != nil && *node.Group.ShortName != "" {
		name += " [" + *node.Group.ShortName + "]"
	}
	return fmt.Sprintf("%s %s",
		theme.group(name),
		theme.muted(fmt.Sprintf("(%s #%d)", datatypes.RoleTypeLabel(node.Group.Type), node.Group.ID)))
}

func memberLine(m datatypes.Member, theme treeTheme) string {
	name := strings.TrimSpace(m.FirstName + " " + m.LastName)
	if m.Nickname != nil && *m.Nickname != "" {
		name += " v/o " + *m.Nickname
	}
	return name + " " + theme.role(m.RoleName)
}

// writeJSON writes v indented, for piping into other tools.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
