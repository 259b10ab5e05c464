// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package organigramm

// OrganigrammQuery is the query string of GET /api/organigramm.
//
// Pointers distinguish "absent" from zero: an absent exclude uses the
// configured exclusion list, an explicit empty one disables it.
type OrganigrammQuery struct {
	// GroupID is the root group. Optional when a default root is configured.
	GroupID int `form:"groupId" binding:"omitempty,gt=0"`

	// MaxDepth bounds the tree depth (root = 1). Zero uses the default.
	MaxDepth int `form:"maxDepth" binding:"omitempty,gt=0"`

	// Exclude is a comma-separated list of role patterns to hide.
	Exclude *string `form:"exclude"`

	// MaxMembers caps members shown per group. Zero disables the cap.
	MaxMembers *int `form:"maxMembers" binding:"omitempty,gte=0"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the body of GET /readyz.
type ReadyResponse struct {
	Ready bool `json:"ready"`

	// Breaker is the registry circuit state. An open circuit still serves
	// snapshots, so it does not make the service unready.
	Breaker string `json:"breaker"`
}

// ServiceVersion is reported by /healthz.
const ServiceVersion = "1.0.0"
