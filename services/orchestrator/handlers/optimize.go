// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nereid-ai/codeassist/services/llm"
	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
	"github.com/nereid-ai/codeassist/services/orchestrator/observability"
	"github.com/nereid-ai/codeassist/services/orchestrator/services"
)

// HandleOptimize streams an optimized rewrite of the submitted code,
// informed by the closest chunk from each named context file. Rewrites
// are not cached: the output depends on index contents that change as
// the project evolves.
//
// POST /v1/optimize
func (h *Handlers) HandleOptimize(c *gin.Context) {
	const endpoint = "optimize"

	ctx, span := tracer.Start(c.Request.Context(), "HandleOptimize")
	defer span.End()

	var req datatypes.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.recordRequest(endpoint, observability.StatusInvalid)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		h.recordRequest(endpoint, observability.StatusInvalid)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	relatedCode := h.retriever.RelatedCode(ctx, req.Code, req.Context)
	prompt := services.BuildOptimizationPrompt(req.Code, relatedCode)

	h.streamOnly(c, endpoint, prompt, llm.GenerationParams{})
}

// HandleRefactor streams a version-targeted refactoring of the submitted
// code. Same shape as optimize with target-version framing.
//
// POST /v1/refactor
func (h *Handlers) HandleRefactor(c *gin.Context) {
	const endpoint = "refactor"

	ctx, span := tracer.Start(c.Request.Context(), "HandleRefactor")
	defer span.End()

	var req datatypes.RefactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.recordRequest(endpoint, observability.StatusInvalid)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		h.recordRequest(endpoint, observability.StatusInvalid)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	relatedCode := h.retriever.RelatedCode(ctx, req.Code, req.Context)
	prompt := services.BuildRefactorPrompt(req.Code, req.TargetVersion, relatedCode)

	h.streamOnly(c, endpoint, prompt, llm.GenerationParams{})
}
