// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/pvagent/services/orchestrator/handlers"
	"github.com/AleutianAI/pvagent/services/orchestrator/middleware"
	"github.com/AleutianAI/pvagent/services/orchestrator/sessions"
)

// Dependencies are the components the routes are wired to.
//
// # Fields
//
//   - Processor: Required. Runs chat turns.
//   - Registry: Required. Live sessions.
//   - Archive: Required. Archived sessions and statistics.
//   - Ingester: Optional. POST /v1/documents is only registered when set.
//   - Connections: Optional. Told about websocket clients.
//   - Gatherer: Optional. Source for /metrics; the default registry when nil.
//   - APIKeys: Optional. When non-empty, every /v1 route requires one.
type Dependencies struct {
	Processor   handlers.TurnProcessor
	Registry    *sessions.Registry
	Archive     handlers.SessionArchive
	Ingester    handlers.DocumentIngester
	Connections handlers.ConnectionObserver
	Gatherer    prometheus.Gatherer
	APIKeys     middleware.APIKeys
}

// SetupRoutes registers every endpoint on router. It panics when a
// required dependency is missing.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if deps.Processor == nil || deps.Registry == nil || deps.Archive == nil {
		panic("routes: Processor, Registry and Archive are required")
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1", middleware.RequireAPIKey(deps.APIKeys))
	{
		v1.POST("/chat", handlers.HandleChat(deps.Processor, deps.Registry))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(deps.Processor, deps.Registry, deps.Connections))
		v1.GET("/stats", handlers.GetStats(deps.Archive, deps.Registry))
		if deps.Ingester != nil {
			v1.POST("/documents", handlers.CreateDocument(deps.Ingester))
		}

		sessionRoutes := v1.Group("/sessions")
		{
			sessionRoutes.POST("", handlers.CreateSession(deps.Registry))
			sessionRoutes.GET("", handlers.ListSessions(deps.Archive))
			sessionRoutes.GET("/:sessionId", handlers.GetSession(deps.Archive))
			sessionRoutes.GET("/:sessionId/export", handlers.ExportSession(deps.Archive))
			sessionRoutes.GET("/:sessionId/parameters", handlers.GetParameters(deps.Registry))
			sessionRoutes.POST("/:sessionId/clear", handlers.ClearSession(deps.Registry))
			sessionRoutes.DELETE("/:sessionId", handlers.DeleteSession(deps.Registry))
		}
	}
}
