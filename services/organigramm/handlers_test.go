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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/troopsite/pkg/telemetry"
	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"github.com/AleutianAI/troopsite/services/organigramm/fetcher"
	"github.com/AleutianAI/troopsite/services/organigramm/registry"
	"github.com/AleutianAI/troopsite/services/organigramm/snapshot"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type handlerFixture struct {
	router *gin.Engine
	svc    *Service
	stub   *stubFetcher
	store  *snapshot.MemoryStore
}

func newHandlerFixture(t *testing.T, cfg ServiceConfig) *handlerFixture {
	t.Helper()
	stub := &stubFetcher{tree: sampleTree()}
	store := snapshot.NewMemoryStore()
	svc := NewService(stub, store, cfg, discardLogger())
	router := NewRouter("organigramm-test", NewHandlers(svc, discardLogger()))
	return &handlerFixture{router: router, svc: svc, stub: stub, store: store}
}

func (f *handlerFixture) get(t *testing.T, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) datatypes.Response {
	t.Helper()
	var resp datatypes.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// =============================================================================
// GET /api/organigramm
// =============================================================================

func TestHandleOrganigramm_Live(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{})

	rec := f.get(t, "/api/organigramm?groupId=1234&maxDepth=3")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "false", rec.Header().Get(StaleHeader))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Stale)
	assert.Equal(t, 1234, resp.Data.Group.ID)
	assert.Len(t, resp.Data.Members, 3)
	assert.False(t, resp.FetchedAt.IsZero())

	// Body carries the documented camelCase keys.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "data")
	assert.Contains(t, raw, "stale")
	assert.Contains(t, raw, "fetchedAt")
}

func TestHandleOrganigramm_PropagatesRequestID(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{})

	rec := f.get(t, "/api/organigramm?groupId=1234", "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestHandleOrganigramm_Stale(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{})
	seeded, err := f.store.Put(context.Background(), 1234, 3, sampleTree())
	require.NoError(t, err)
	f.stub.setErr(rootFailure(registry.ErrUnauthorized))

	rec := f.get(t, "/api/organigramm?groupId=1234&maxDepth=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(StaleHeader))

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Stale)
	assert.True(t, seeded.FetchedAt.Equal(resp.FetchedAt))
}

func TestHandleOrganigramm_DefaultRoot(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{DefaultRootGroupID: 1234})

	rec := f.get(t, "/api/organigramm")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1234, decodeResponse(t, rec).Data.Group.ID)
}

func TestHandleOrganigramm_Exclude(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{})

	rec := f.get(t, "/api/organigramm?groupId=1234&exclude=mitglied,Kassier")
	require.Equal(t, http.StatusOK, rec.Code)
	members := decodeResponse(t, rec).Data.Members
	require.Len(t, members, 1)
	assert.Equal(t, 10, members[0].ID)

	// The snapshot keeps every member.
	snap, err := f.store.Get(context.Background(), 1234)
	require.NoError(t, err)
	assert.Len(t, snap.Data.Members, 3)
}

func TestHandleOrganigramm_ConfiguredExclusions(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{ExcludedRoles: []string{"Mitglied"}})

	rec := f.get(t, "/api/organigramm?groupId=1234")
	assert.Len(t, decodeResponse(t, rec).Data.Members, 2)

	// An explicit empty exclude disables the configured list.
	rec = f.get(t, "/api/organigramm?groupId=1234&exclude=")
	assert.Len(t, decodeResponse(t, rec).Data.Members, 3)
}

func TestHandleOrganigramm_MaxMembers(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{MaxMembers: 2})

	resp := decodeResponse(t, f.get(t, "/api/organigramm?groupId=1234"))
	assert.Len(t, resp.Data.Members, 2)
	assert.Equal(t, 1, resp.Data.HiddenMembers)

	resp = decodeResponse(t, f.get(t, "/api/organigramm?groupId=1234&maxMembers=1"))
	assert.Len(t, resp.Data.Members, 1)
	assert.Equal(t, 2, resp.Data.HiddenMembers)

	resp = decodeResponse(t, f.get(t, "/api/organigramm?groupId=1234&maxMembers=0"))
	assert.Len(t, resp.Data.Members, 3)
	assert.Zero(t, resp.Data.HiddenMembers)
}

func TestHandleOrganigramm_BadRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"non-numeric group", "groupId=abc"},
		{"negative group", "groupId=-1"},
		{"missing group without default", ""},
		{"depth over limit", "groupId=1234&maxDepth=99"},
		{"non-numeric depth", "groupId=1234&maxDepth=deep"},
		{"negative cap", "groupId=1234&maxMembers=-2"},
	}

	f := newHandlerFixture(t, ServiceConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, "/api/organigramm?"+tt.query)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		})
	}
	assert.Zero(t, f.stub.callCount(), "invalid requests never reach the registry")
}

func TestHandleOrganigramm_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown root", rootFailure(registry.ErrNotFound), http.StatusNotFound, "GROUP_NOT_FOUND"},
		{"unauthorized", rootFailure(&registry.StatusError{StatusCode: 401}), http.StatusBadGateway, "REGISTRY_UNAUTHORIZED"},
		{"server error", rootFailure(&registry.StatusError{StatusCode: 500}), http.StatusBadGateway, "UPSTREAM_FAILURE"},
		{"rate limited", rootFailure(registry.ErrRateLimited), http.StatusServiceUnavailable, "REGISTRY_RATE_LIMITED"},
		{"timeout", rootFailure(context.DeadlineExceeded), http.StatusGatewayTimeout, "REGISTRY_TIMEOUT"},
		{"invalid payload", rootFailure(registry.ErrValidation), http.StatusBadGateway, "UPSTREAM_FAILURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t, ServiceConfig{})
			f.stub.setErr(tt.err)

			rec := f.get(t, "/api/organigramm?groupId=1234")
			require.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.Empty(t, rec.Header().Get(StaleHeader))
		})
	}
}

func TestHandleOrganigramm_ServerErrorsHideDetails(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{})
	f.stub.setErr(rootFailure(fmt.Errorf("GET https://db.example/api/groups/1234: %w", registry.ErrHTTP)))

	rec := f.get(t, "/api/organigramm?groupId=1234")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), body.Error)
	assert.NotContains(t, rec.Body.String(), "db.example")
}

func TestHandleOrganigramm_CircuitOpen(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{
		Breaker: CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour},
	})
	f.stub.setErr(rootFailure(errors.New("connection refused")))

	rec := f.get(t, "/api/organigramm?groupId=1234")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.get(t, "/api/organigramm?groupId=1234")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "REGISTRY_UNAVAILABLE", decodeError(t, rec).Code)

	rec = f.get(t, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"breaker":"OPEN"`)
}

// =============================================================================
// Health, readiness, metrics
// =============================================================================

func TestHandleHealth(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{})

	rec := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, ServiceVersion, body.Version)
}

func TestHandleReady(t *testing.T) {
	f := newHandlerFixture(t, ServiceConfig{})

	rec := f.get(t, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	var body ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.Equal(t, "CLOSED", body.Breaker)

	f.svc.Close()
	rec = f.get(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.get(t, "/api/organigramm?groupId=1234")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SHUTTING_DOWN", decodeError(t, rec).Code)
}

func TestHandleMetrics(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"
	shutdown, err := telemetry.Init(context.Background(), cfg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	f := newHandlerFixture(t, ServiceConfig{})
	require.Equal(t, http.StatusOK, f.get(t, "/api/organigramm?groupId=1234").Code)

	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "organigramm_responses_total"), "service metrics exported")
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrInvalidGroupID, http.StatusBadRequest},
		{fmt.Errorf("x: %w", ErrDepthOutOfRange), http.StatusBadRequest},
		{fmt.Errorf("x: %w", fetcher.ErrInvalidDepth), http.StatusBadRequest},
		{ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("organigramm 1: %w", ErrCircuitOpen), http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		status, _ := errorClass(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
