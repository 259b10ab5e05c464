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
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func renderFixture() datatypes.Node {
	return datatypes.Node{
		Group: datatypes.GroupInfo{ID: 1234, Name: "Pfadi Glockenhof", Type: "Group::Abteilung"},
		Members: []datatypes.Member{
			{ID: 10, FirstName: "Anna", LastName: "Muster", RoleName: "Abteilungsleitung"},
		},
		HiddenMembers: 1,
		Children: []datatypes.Node{
			{
				Group: datatypes.GroupInfo{ID: 2001, Name: "Wölfe", ShortName: strPtr("W"), Type: "Group::Meute"},
				Members: []datatypes.Member{
					{ID: 12, FirstName: "Clara", LastName: "Client", Nickname: strPtr("Cle"), RoleName: "Einheitsleitung"},
				},
				Children: []datatypes.Node{},
			},
			{
				Group:    datatypes.GroupInfo{ID: 2002, Name: "Pfadi", Type: "Group::Einheit"},
				Members:  []datatypes.Member{},
				Children: []datatypes.Node{},
			},
		},
	}
}

func TestRenderTree_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderTree(&buf, renderFixture(), plainTheme))

	want := strings.Join([]string{
		"Pfadi Glockenhof (Abteilung #1234)",
		"├── Anna Muster Abteilungsleitung",
		"├── +1 more",
		"├── Wölfe [W] (Meute #2001)",
		"│   └── Clara Client v/o Cle Einheitsleitung",
		"└── Pfadi (Einheit #2002)",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestRenderTree_LeafRoot(t *testing.T) {
	var buf bytes.Buffer
	node := datatypes.Node{Group: datatypes.GroupInfo{ID: 1, Name: "Solo", Type: "Group::Abteilung"}}
	require.NoError(t, renderTree(&buf, node, plainTheme))
	assert.Equal(t, "Solo (Abteilung #1)\n", buf.String())
}

func TestRenderTree_ColorKeepsText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderTree(&buf, renderFixture(), colorTheme()))
	out := buf.String()
	assert.Contains(t, out, "Pfadi Glockenhof")
	assert.Contains(t, out, "Einheitsleitung")
}

func TestRenderHeader(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, renderHeader(&buf, plainTheme, false, at))
	assert.Equal(t, "live fetched 2025-06-01T12:00:00Z\n", buf.String())

	buf.Reset()
	require.NoError(t, renderHeader(&buf, plainTheme, true, at))
	assert.Equal(t, "stale fetched 2025-06-01T12:00:00Z\n", buf.String())
}
