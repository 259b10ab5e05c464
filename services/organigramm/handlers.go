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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/troopsite/pkg/telemetry"
	"github.com/AleutianAI/troopsite/services/organigramm/filter"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StaleHeader mirrors the stale flag of the body for caches and proxies.
const StaleHeader = "X-Organigramm-Stale"

// Handlers contains the HTTP handlers for the organigramm service.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates handlers for svc. Nil logger uses slog.Default().
func NewHandlers(svc *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger.With("component", "http")}
}

// HandleOrganigramm handles GET /api/organigramm.
//
// Description:
//
//	Serves the organigramm below groupId, live if the registry answers and
//	from the last snapshot otherwise. Role exclusion and the member cap are
//	applied to the response only; the snapshot always holds the full tree.
//
// Query Parameters:
//
//	groupId    - Root group id. Optional when a default root is configured.
//	maxDepth   - Tree depth, root = 1.
//	exclude    - Comma-separated role patterns. Overrides the configured list.
//	maxMembers - Members shown per group. Overrides the configured cap.
//
// Response:
//
//	200 OK: datatypes.Response, X-Organigramm-Stale header
//	400 Bad Request: invalid parameters
//	404 Not Found: root group unknown to the registry
//	502 Bad Gateway: registry rejected the token or failed
//	503 Service Unavailable: rate limited, circuit open, or shutting down
//	504 Gateway Timeout: registry timed out
func (h *Handlers) HandleOrganigramm(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(), h.logger).With(
		"request_id", requestID,
		"handler", "HandleOrganigramm",
	)
	c.Header("Cache-Control", "no-store")

	var q OrganigrammQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		logger.Warn("invalid query", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid query parameters",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	rootID, depth, err := h.svc.Resolve(q.GroupID, q.MaxDepth)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   err.Error(),
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.svc.Serve(c.Request.Context(), rootID, depth)
	if err != nil {
		status, code := errorClass(err)
		logger.Error("organigramm request failed",
			"root_group_id", rootID,
			"status", status,
			"code", code,
			"error", err)
		body := ErrorResponse{Error: http.StatusText(status), Code: code}
		if status < http.StatusInternalServerError {
			body.Error = err.Error()
		}
		c.JSON(status, body)
		return
	}

	cfg := h.svc.Config()
	patterns := cfg.ExcludedRoles
	if q.Exclude != nil {
		patterns = filter.ParsePatterns(*q.Exclude)
	}
	maxMembers := cfg.MaxMembers
	if q.MaxMembers != nil {
		maxMembers = *q.MaxMembers
	}
	resp.Data = filter.CapMembers(filter.Tree(resp.Data, patterns), maxMembers)

	if resp.Stale {
		logger.Info("served stale organigramm",
			"root_group_id", rootID,
			"fetched_at", resp.FetchedAt)
	}

	c.Header(StaleHeader, strconv.FormatBool(resp.Stale))
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /healthz. Always 200 while the process runs.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /readyz.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false) while draining
func (h *Handlers) HandleReady(c *gin.Context) {
	resp := ReadyResponse{
		Ready:   h.svc.Ready(),
		Breaker: h.svc.BreakerState().String(),
	}
	if !resp.Ready {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleMetrics handles GET /metrics.
func (h *Handlers) HandleMetrics(c *gin.Context) {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "metrics exporter is not prometheus",
			Code:  "METRICS_DISABLED",
		})
		return
	}
	handler.ServeHTTP(c.Writer, c.Request)
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
