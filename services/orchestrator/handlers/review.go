// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nereid-ai/codeassist/services/llm"
	"github.com/nereid-ai/codeassist/services/orchestrator/cache"
	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
	"github.com/nereid-ai/codeassist/services/orchestrator/observability"
	"github.com/nereid-ai/codeassist/services/orchestrator/services"
)

// ReviewSimilarityThreshold is the vector distance below which prior code
// is considered similar enough that its cached review applies.
const ReviewSimilarityThreshold = 0.3

// reviewSemanticK is how many similar snippets the semantic cache probes.
const reviewSemanticK = 3

// reviewMaxTokens bounds the review generation; issue lists are compact.
const reviewMaxTokens = 512

// HandleReview returns a structured issue list for a code snippet.
//
// # Description
//
//	Before generating, a semantic cache is consulted: the vector store is
//	searched for previously indexed code highly similar to the input, and
//	each sufficiently close match is probed for a cached review keyed by
//	that match's review-prompt hash. Any hits are returned as their union
//	with source "existing_code" and generation is skipped entirely.
//	Otherwise the review is generated (deduplicated across concurrent
//	identical requests), parsed, cached, and tagged "generated".
//
// POST /v1/review
func (h *Handlers) HandleReview(c *gin.Context) {
	const endpoint = "review"

	ctx, span := tracer.Start(c.Request.Context(), "HandleReview")
	defer span.End()

	var req datatypes.ReviewRequest
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

	if issues, ok := h.lookupSimilarReviews(ctx, req.Code, req.Lang); ok {
		h.recordCacheEvent(observability.CacheReviewSemantic, observability.OutcomeHit)
		h.recordRequest(endpoint, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.ReviewResponse{
			Issues: issues,
			Source: datatypes.ReviewSourceExisting,
		})
		return
	}
	h.recordCacheEvent(observability.CacheReviewSemantic, observability.OutcomeMiss)

	prompt := services.BuildReviewPrompt(req.Code, req.Lang)
	key := cache.DeriveKey(prompt)
	span.SetAttributes(attribute.String("review.cache_key", key))

	// Exact-prompt cache: identical code reviewed before.
	if cached, ok := h.gateway.Get(ctx, key); ok {
		var issues []datatypes.CodeIssue
		if err := json.Unmarshal([]byte(cached), &issues); err == nil {
			h.recordCacheEvent(observability.CacheContent, observability.OutcomeHit)
			h.recordRequest(endpoint, observability.StatusSuccess)
			c.JSON(http.StatusOK, datatypes.ReviewResponse{
				Issues: issues,
				Source: datatypes.ReviewSourceExisting,
			})
			return
		}
		slog.Warn("Discarding undecodable cached review", "key", key)
	}
	h.recordCacheEvent(observability.CacheContent, observability.OutcomeMiss)

	maxTokens := reviewMaxTokens
	// The deduplicated call is shared by every concurrent identical
	// request; detach it from this request's lifetime so the winning
	// caller's disconnect cannot fail the sharers.
	genCtx := context.WithoutCancel(ctx)
	result, err, _ := h.reviewGroup.Do(key, func() (interface{}, error) {
		return h.gate.Generate(genCtx, prompt, llm.GenerationParams{MaxTokens: &maxTokens})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.abortForError(c, endpoint, err)
		return
	}

	issues := services.ParseReviewResult(result.(string))
	h.gateway.SetJSON(ctx, key, issues)

	h.recordRequest(endpoint, observability.StatusSuccess)
	c.JSON(http.StatusOK, datatypes.ReviewResponse{
		Issues: issues,
		Source: datatypes.ReviewSourceGenerated,
	})
}

// lookupSimilarReviews implements the semantic cache probe: find indexed
// code close to the input and collect cached reviews keyed by each match's
// own review prompt. Best-effort; any failure reads as a miss.
func (h *Handlers) lookupSimilarReviews(ctx context.Context, code, lang string) ([]datatypes.CodeIssue, bool) {
	ctx, span := tracer.Start(ctx, "Handlers.lookupSimilarReviews")
	defer span.End()

	docs, err := h.retriever.SimilarCode(ctx, code, reviewSemanticK)
	if err != nil {
		span.RecordError(err)
		slog.Warn("Semantic review lookup failed", "error", err)
		return nil, false
	}

	var union []datatypes.CodeIssue
	found := false
	for _, doc := range docs {
		if doc.Distance >= ReviewSimilarityThreshold {
			continue
		}
		matchKey := cache.DeriveKey(services.BuildReviewPrompt(doc.Content, lang))
		cached, ok := h.gateway.Get(ctx, matchKey)
		if !ok {
			continue
		}
		var issues []datatypes.CodeIssue
		if err := json.Unmarshal([]byte(cached), &issues); err != nil {
			slog.Warn("Discarding undecodable cached review", "key", matchKey)
			continue
		}
		union = append(union, issues...)
		found = true
	}

	span.SetAttributes(attribute.Bool("review.semantic_hit", found))
	return union, found
}
