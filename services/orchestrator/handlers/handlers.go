// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/nereid-ai/codeassist/pkg/sysmem"
	"github.com/nereid-ai/codeassist/services/llm"
	"github.com/nereid-ai/codeassist/services/orchestrator/cache"
	"github.com/nereid-ai/codeassist/services/orchestrator/observability"
	"github.com/nereid-ai/codeassist/services/orchestrator/services"
)

// Generator is the admission-controlled generation surface the handlers
// depend on. Satisfied by *llm.Gate; faked in tests.
type Generator interface {
	Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error)
	GenerateStream(ctx context.Context, prompt string, params llm.GenerationParams, callback llm.StreamCallback) error
	Status() llm.GateStatus
}

// Handlers carries the dependencies shared by every endpoint.
type Handlers struct {
	gate      Generator
	gateway   *cache.Gateway
	retriever *services.ContextRetriever
	metrics   *observability.GatewayMetrics
	memory    sysmem.Reader

	// reviewGroup deduplicates concurrent identical review generations;
	// reviews are expensive blocking calls and bursts of identical code
	// are common when an editor retries.
	reviewGroup singleflight.Group
}

// New creates the handler set.
func New(gate Generator, gateway *cache.Gateway, retriever *services.ContextRetriever,
	metrics *observability.GatewayMetrics, memory sysmem.Reader) *Handlers {
	if memory == nil {
		memory = sysmem.Read
	}
	return &Handlers{
		gate:      gate,
		gateway:   gateway,
		retriever: retriever,
		metrics:   metrics,
		memory:    memory,
	}
}

// recordRequest bumps the request counter when metrics are wired.
func (h *Handlers) recordRequest(endpoint, status string) {
	if h.metrics != nil {
		h.metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	}
}

// recordCacheEvent bumps the cache counter when metrics are wired.
func (h *Handlers) recordCacheEvent(cacheName, outcome string) {
	if h.metrics != nil {
		h.metrics.CacheEventsTotal.WithLabelValues(cacheName, outcome).Inc()
	}
}

// abortForError maps pipeline errors onto HTTP statuses: overload is 503
// (retryable), everything else 500 with a sanitized message.
func (h *Handlers) abortForError(c *gin.Context, endpoint string, err error) {
	if errors.Is(err, llm.ErrModelOverloaded) {
		h.recordRequest(endpoint, observability.StatusOverloaded)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service overloaded"})
		return
	}
	h.recordRequest(endpoint, observability.StatusError)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
