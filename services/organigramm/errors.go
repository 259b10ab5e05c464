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

import (
	"context"
	"errors"
	"net/http"

	"github.com/AleutianAI/troopsite/services/organigramm/fetcher"
	"github.com/AleutianAI/troopsite/services/organigramm/registry"
)

var (
	// ErrInvalidGroupID is returned when no usable root group id is given
	// and no default is configured.
	ErrInvalidGroupID = errors.New("groupId must be a positive integer")

	// ErrDepthOutOfRange is returned when maxDepth exceeds the configured limit.
	ErrDepthOutOfRange = errors.New("maxDepth out of range")

	// ErrClosed is returned by Serve after Close.
	ErrClosed = errors.New("organigramm service is shutting down")
)

// errorClass maps a Serve error to its HTTP status and error code.
//
// The order matters: a root fetch failure wraps the registry cause, and a
// timed-out call may also carry a registry status.
func errorClass(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidGroupID),
		errors.Is(err, ErrDepthOutOfRange),
		errors.Is(err, fetcher.ErrInvalidDepth):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN"
	case errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable, "REGISTRY_UNAVAILABLE"
	case errors.Is(err, registry.ErrRateLimited):
		return http.StatusServiceUnavailable, "REGISTRY_RATE_LIMITED"
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, "GROUP_NOT_FOUND"
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusBadGateway, "REGISTRY_UNAUTHORIZED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "REGISTRY_TIMEOUT"
	default:
		return http.StatusBadGateway, "UPSTREAM_FAILURE"
	}
}

// countsAgainstRegistry reports whether a fetch error should trip the
// circuit breaker. Unknown roots and callers going away say nothing about
// the registry's health.
func countsAgainstRegistry(err error) bool {
	switch {
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, fetcher.ErrInvalidDepth),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
