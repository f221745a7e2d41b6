// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the HTTP endpoints of the code-assistance gateway.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nereid-ai/codeassist/services/orchestrator/handlers"
)

// SetupRoutes registers all endpoints on the router.
func SetupRoutes(router *gin.Engine, h *handlers.Handlers) {
	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/complete", h.HandleComplete)
		v1.POST("/chat", h.HandleChat)
		v1.POST("/review", h.HandleReview)
		v1.POST("/optimize", h.HandleOptimize)
		v1.POST("/refactor", h.HandleRefactor)
	}
}
