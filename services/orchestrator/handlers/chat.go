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

// HandleChat streams an answer to a free-form question. Chat is never
// cached: conversational follow-ups make identical requests rare and
// stale answers confusing.
//
// POST /v1/chat
func (h *Handlers) HandleChat(c *gin.Context) {
	const endpoint = "chat"

	ctx, span := tracer.Start(c.Request.Context(), "HandleChat")
	defer span.End()

	var req datatypes.ChatRequest
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

	// Context is keyed on the question plus whatever code the user is
	// looking at, so "what does this do" retrieves the right neighbors.
	query := req.Message
	if req.CurrentCode != "" {
		query = req.Message + "\n" + req.CurrentCode
	}
	retrieved := h.retriever.Retrieve(ctx, query, services.DefaultContextK, "")
	prompt := services.BuildChatPrompt(req.Message, req.CurrentCode, retrieved)

	h.streamOnly(c, endpoint, prompt, llm.GenerationParams{})
}
