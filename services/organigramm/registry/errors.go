// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors. Match with errors.Is; use errors.As with *StatusError
// or *ValidationError for details.
var (
	// ErrUnauthorized indicates a missing or rejected token (401/403).
	ErrUnauthorized = errors.New("registry: unauthorized")

	// ErrNotFound indicates the resource does not exist (404).
	ErrNotFound = errors.New("registry: not found")

	// ErrRateLimited indicates the registry throttled the request (429).
	ErrRateLimited = errors.New("registry: rate limited")

	// ErrHTTP indicates any other non-2xx response.
	ErrHTTP = errors.New("registry: unexpected http status")

	// ErrNoContent is returned by single-resource calls answered with 204.
	ErrNoContent = errors.New("registry: no content")

	// ErrValidation indicates a response that does not match the expected
	// JSON:API shape.
	ErrValidation = errors.New("registry: response validation failed")

	// ErrInvalidConfig indicates a client constructed with bad settings.
	ErrInvalidConfig = errors.New("registry: invalid client config")
)

// StatusError describes a non-2xx registry response.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string

	// RetryAfter is the parsed Retry-After header of a 429, or zero.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry: %s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap maps the status code to its sentinel.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrHTTP
	}
}

// ValidationError carries the diagnostic for a malformed response.
type ValidationError struct {
	// Resource is the JSON:API type being decoded ("groups", "people", ...).
	Resource string

	// Detail is the decoder or validator diagnostic.
	Detail string

	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry: invalid %s response: %s", e.Resource, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(resource string, err error) *ValidationError {
	return &ValidationError{Resource: resource, Detail: err.Error(), Err: err}
}

// IsRetryable reports whether err is worth retrying after a pause.
// Only rate limiting qualifies; other failures are returned as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// RetryAfter extracts the Retry-After hint from err, or zero.
func RetryAfter(err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}
