// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry is a typed client for the membership registry's
// JSON:API.
//
// Every response is parsed into JSON:API envelopes and validated before a
// value is returned; callers receive either a well-shaped datatypes value
// or one of the typed errors in errors.go. The client never retries.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/troopsite/pkg/secrets"
	"github.com/AleutianAI/troopsite/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	// jsonAPIMediaType is sent as Accept on every request.
	jsonAPIMediaType = "application/vnd.api+json"

	// tokenHeader carries the static registry token.
	tokenHeader = "X-Token"

	// maxBodyBytes bounds a single response body.
	maxBodyBytes = 16 << 20

	// DefaultMaxPages bounds link-following on collection calls.
	DefaultMaxPages = 20

	// DefaultTimeout is the HTTP client timeout when none is configured.
	DefaultTimeout = 15 * time.Second
)

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the registry root, e.g. "https://db.scout.ch".
	BaseURL string

	// Token authenticates every request. Required.
	Token *secrets.Token

	// HTTPClient overrides the transport. Default: *http.Client with Timeout.
	HTTPClient HTTPClient

	// Timeout applies to the default HTTP client only.
	Timeout time.Duration

	// Limiter, if set, is waited on before every request. One limiter is
	// meant to be shared by every caller of the registry.
	Limiter *rate.Limiter

	// MaxPages bounds links.next following. Default: DefaultMaxPages.
	MaxPages int

	// PageSize is sent as page[size] when a Filter does not set one.
	PageSize int

	// Logger for pagination warnings. Default: slog.Default().
	Logger *slog.Logger
}

// Client talks to the registry.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	baseURL  *url.URL
	token    *secrets.Token
	http     HTTPClient
	limiter  *rate.Limiter
	maxPages int
	pageSize int
	logger   *slog.Logger
}

// NewClient validates cfg and returns a Client.
//
// Description:
//
//	BaseURL must be an absolute http(s) URL. A trailing slash is ignored.
//
// Outputs:
//
//	*Client - Ready for use.
//	error - ErrInvalidConfig (wrapped) if BaseURL or Token is unusable.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be absolute http(s)", ErrInvalidConfig, cfg.BaseURL)
	}
	if !cfg.Token.Present() {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidConfig)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  base,
		token:    cfg.Token,
		http:     httpClient,
		limiter:  cfg.Limiter,
		maxPages: maxPages,
		pageSize: cfg.PageSize,
		logger:   logger.With("component", "registry"),
	}, nil
}

// =============================================================================
// Transport
// =============================================================================

// endpoint builds an absolute URL for a registry path.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

// resolveLink resolves a links.next value against the base URL and refuses
// links pointing at another host, since the token travels with them.
func (c *Client) resolveLink(link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("links.next: %w", err)
	}
	abs := c.baseURL.ResolveReference(ref)
	if abs.Host != c.baseURL.Host {
		return "", fmt.Errorf("links.next points to foreign host %q", abs.Host)
	}
	return abs.String(), nil
}

// get performs one GET and returns the body of a 2xx response.
// A 204 yields a nil body and status 204.
func (c *Client) get(ctx context.Context, resource, rawURL string) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("registry: rate limiter: %w", err)
		}
	}

	ctx, span := startRequestSpan(ctx, resource, rawURL)
	defer span.End()

	start := time.Now()
	body, status, err := c.send(ctx, rawURL)
	recordRequest(ctx, resource, time.Since(start), err)

	span.SetAttributes(attribute.Int("http.status_code", status))
	telemetry.RecordError(span, err)
	return body, status, err
}

func (c *Client) send(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Accept", jsonAPIMediaType)
	telemetry.InjectHeaders(ctx, req.Header)
	if err := c.token.Use(func(plain string) error {
		req.Header.Set(tokenHeader, plain)
		return nil
	}); err != nil {
		return nil, 0, fmt.Errorf("registry: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("registry: GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, resp.StatusCode, &StatusError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			URL:        rawURL,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("registry: read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// getOne fetches a single resource document.
func (c *Client) getOne(ctx context.Context, resource, path string) (resourceObject, error) {
	body, status, err := c.get(ctx, resource, c.endpoint(path, nil))
	if err != nil {
		return resourceObject{}, err
	}
	if status == http.StatusNoContent {
		return resourceObject{}, fmt.Errorf("GET %s: %w", path, ErrNoContent)
	}
	return decodeSingle(resource, body)
}

// getAll fetches every page of a collection, following links.next up to
// maxPages. A 204 on any page ends the collection.
func (c *Client) getAll(ctx context.Context, resource, path string, f Filter) ([]resourceObject, error) {
	if f.PageSize == 0 && c.pageSize > 0 {
		f.PageSize = c.pageSize
	}

	out := []resourceObject{}
	next := c.endpoint(path, f.Values())
	for page := 1; next != ""; page++ {
		if page > c.maxPages {
			c.logger.Warn("registry pagination truncated",
				"resource", resource,
				"max_pages", c.maxPages,
				"items", len(out),
			)
			break
		}

		body, status, err := c.get(ctx, resource, next)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNoContent {
			break
		}
		doc, err := decodeCollection(resource, body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc.Data...)

		next = ""
		if doc.Links != nil && doc.Links.Next != nil && *doc.Links.Next != "" {
			if next, err = c.resolveLink(*doc.Links.Next); err != nil {
				return nil, newValidationError(resource, err)
			}
		}
	}
	return out, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
