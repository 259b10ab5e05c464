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
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the organigramm endpoints.
//
// Endpoints:
//
//	GET /api/organigramm - Organigramm tree (live or stale)
//	GET /healthz         - Liveness
//	GET /readyz          - Readiness
//	GET /metrics         - Prometheus metrics
func RegisterRoutes(r gin.IRouter, handlers *Handlers) {
	api := r.Group("/api")
	{
		api.GET("/organigramm", handlers.HandleOrganigramm)
	}

	r.GET("/healthz", handlers.HandleHealth)
	r.GET("/readyz", handlers.HandleReady)
	r.GET("/metrics", handlers.HandleMetrics)
}

// NewRouter builds the gin engine with recovery and tracing middleware.
func NewRouter(serviceName string, handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	RegisterRoutes(router, handlers)
	return router
}
