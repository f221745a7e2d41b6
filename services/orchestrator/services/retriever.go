// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nereid-ai/codeassist/services/vectorstore"
)

var retrieverTracer = otel.Tracer("codeassist.orchestrator.retriever")

// MaxContextChars bounds the context string embedded in prompts. Truncation
// is by characters rather than tokens; close enough for a context budget.
const MaxContextChars = 8000

// DefaultContextK is how many chunks a context query pulls.
const DefaultContextK = 3

// ContextRetriever turns a free-text query into a bounded context string.
//
// Retrieval is best-effort: any searcher failure degrades to an empty
// context and is logged, never propagated. A completion with no context
// beats a completion that failed.
type ContextRetriever struct {
	searcher vectorstore.Searcher
}

// NewContextRetriever creates a retriever over the given searcher.
func NewContextRetriever(searcher vectorstore.Searcher) *ContextRetriever {
	return &ContextRetriever{searcher: searcher}
}

// Retrieve fetches the top-k chunks for the query, optionally restricted
// to sources under pathPrefix, and joins their contents with newlines.
func (r *ContextRetriever) Retrieve(ctx context.Context, query string, k int, pathPrefix string) string {
	ctx, span := retrieverTracer.Start(ctx, "ContextRetriever.Retrieve")
	defer span.End()

	if k <= 0 {
		k = DefaultContextK
	}
	span.SetAttributes(
		attribute.Int("retrieve.k", k),
		attribute.String("retrieve.path_prefix", pathPrefix),
	)

	docs, err := r.searcher.Search(ctx, query, vectorstore.SearchOptions{
		Limit:        k,
		SourcePrefix: pathPrefix,
	})
	if err != nil {
		span.RecordError(err)
		slog.Error("Context retrieval failed", "error", err)
		return ""
	}

	contents := make([]string, 0, len(docs))
	for _, doc := range docs {
		contents = append(contents, doc.Content)
	}
	return truncate(strings.Join(contents, "\n"), MaxContextChars)
}

// RelatedCode fetches the single closest chunk from each named context
// file and joins the results with blank lines. Files that yield nothing
// (including on error) are skipped.
func (r *ContextRetriever) RelatedCode(ctx context.Context, code string, contextFiles []string) string {
	ctx, span := retrieverTracer.Start(ctx, "ContextRetriever.RelatedCode")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieve.context_files", len(contextFiles)))

	var parts []string
	for _, file := range contextFiles {
		docs, err := r.searcher.Search(ctx, code, vectorstore.SearchOptions{
			Limit:  1,
			Source: file,
		})
		if err != nil {
			span.RecordError(err)
			slog.Warn("Related-code lookup failed", "file", file, "error", err)
			continue
		}
		for _, doc := range docs {
			parts = append(parts, doc.Content)
		}
	}
	return truncate(strings.Join(parts, "\n\n"), MaxContextChars)
}

// SimilarCode returns the raw top-k matches for a snippet, with distances.
// Used by the review path's semantic cache.
func (r *ContextRetriever) SimilarCode(ctx context.Context, code string, k int) ([]vectorstore.Document, error) {
	ctx, span := retrieverTracer.Start(ctx, "ContextRetriever.SimilarCode")
	defer span.End()

	return r.searcher.Search(ctx, code, vectorstore.SearchOptions{Limit: k})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
