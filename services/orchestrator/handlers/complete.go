// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/nereid-ai/codeassist/services/llm"
	"github.com/nereid-ai/codeassist/services/orchestrator/cache"
	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
	"github.com/nereid-ai/codeassist/services/orchestrator/observability"
	"github.com/nereid-ai/codeassist/services/orchestrator/services"
)

var tracer = otel.Tracer("codeassist.orchestrator.handlers")

// completionTemperature keeps completions conservative; creative drift in
// the middle of a line is worse than blandness.
const completionTemperature = 0.1

// HandleComplete streams a context-aware code completion.
//
// # Description
//
//	Cache key is derived from (prompt, file_path): an identical request
//	replays the cached text as a single token. On a miss, context is
//	retrieved from files near the request's file, the completion prompt
//	is assembled, and generation is streamed through a tee that caches
//	the full text once the stream finishes cleanly.
//
// POST /v1/complete
func (h *Handlers) HandleComplete(c *gin.Context) {
	const endpoint = "complete"

	ctx, span := tracer.Start(c.Request.Context(), "HandleComplete")
	defer span.End()

	var req datatypes.CompletionRequest
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
	req.EnsureDefaults()

	key := cache.DeriveKey(req.Prompt, req.FilePath)

	// Fast path: replay a cached completion as one token.
	if cached, ok := h.gateway.Get(ctx, key); ok {
		h.recordCacheEvent(observability.CacheContent, observability.OutcomeHit)
		slog.Info("Cache hit for completion", "key", key)

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			h.abortForError(c, endpoint, err)
			return
		}
		_ = writer.WriteToken(cached)
		_ = writer.WriteDone()
		h.recordRequest(endpoint, observability.StatusSuccess)
		return
	}
	h.recordCacheEvent(observability.CacheContent, observability.OutcomeMiss)

	context := h.retriever.Retrieve(ctx, req.Prompt, services.DefaultContextK, path.Dir(req.FilePath))
	prompt := services.BuildCompletionPrompt(req.Prompt, context)

	temp := float32(completionTemperature)
	params := llm.GenerationParams{
		MaxTokens:   &req.MaxTokens,
		Temperature: &temp,
	}

	h.streamWithCache(c, endpoint, key, prompt, params)
}

// streamWithCache runs an admission-controlled generation stream to the
// client through a StreamRecorder, populating the cache on clean
// completion. Shared by the complete handler; chat/optimize/refactor use
// streamOnly.
func (h *Handlers) streamWithCache(c *gin.Context, endpoint, key, prompt string, params llm.GenerationParams) {
	ctx, span := tracer.Start(c.Request.Context(), "Handlers.streamWithCache")
	defer span.End()

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		h.abortForError(c, endpoint, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ActiveStreams.WithLabelValues(endpoint).Inc()
		defer h.metrics.ActiveStreams.WithLabelValues(endpoint).Dec()
	}
	start := time.Now()

	recorder := services.NewStreamRecorder(h.gateway, key, func(event llm.StreamEvent) error {
		if event.Type == llm.StreamEventError {
			return writer.WriteError("generation failed")
		}
		return writer.WriteToken(event.Content)
	})

	err = h.gate.GenerateStream(ctx, prompt, params, recorder.Callback())
	status := observability.StatusSuccess
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Streaming generation failed", "endpoint", endpoint, "error", err)
		recorder.Fail()
		_ = writer.WriteError("Service overloaded")
		status = observability.StatusError
	} else {
		recorder.Complete(ctx)
		_ = writer.WriteDone()
	}

	if h.metrics != nil {
		h.metrics.StreamDurationSeconds.WithLabelValues(endpoint, status).
			Observe(time.Since(start).Seconds())
	}
	h.recordRequest(endpoint, status)
}

// streamOnly is streamWithCache without the tee: the generated text goes
// to the client and nowhere else.
func (h *Handlers) streamOnly(c *gin.Context, endpoint, prompt string, params llm.GenerationParams) {
	ctx, span := tracer.Start(c.Request.Context(), "Handlers.streamOnly")
	defer span.End()

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		h.abortForError(c, endpoint, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ActiveStreams.WithLabelValues(endpoint).Inc()
		defer h.metrics.ActiveStreams.WithLabelValues(endpoint).Dec()
	}
	start := time.Now()

	err = h.gate.GenerateStream(ctx, prompt, params, func(event llm.StreamEvent) error {
		if event.Type == llm.StreamEventError {
			return writer.WriteError("generation failed")
		}
		return writer.WriteToken(event.Content)
	})
	status := observability.StatusSuccess
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Streaming generation failed", "endpoint", endpoint, "error", err)
		_ = writer.WriteError("Service overloaded")
		status = observability.StatusError
	} else {
		_ = writer.WriteDone()
	}

	if h.metrics != nil {
		h.metrics.StreamDurationSeconds.WithLabelValues(endpoint, status).
			Observe(time.Since(start).Seconds())
	}
	h.recordRequest(endpoint, status)
}
