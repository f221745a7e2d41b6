// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vectorstore provides semantic search over indexed code chunks.
package vectorstore

import (
	"context"
	"errors"
)

// Document is a single indexed code chunk returned by a search.
type Document struct {
	// Content is the chunk text.
	Content string

	// Source is the file path the chunk was ingested from.
	Source string

	// Language is the programming language tag assigned at ingest time.
	Language string

	// Distance is the vector distance from the query. Smaller is closer;
	// 0 means identical and values near 1 mean unrelated.
	Distance float64
}

// SearchOptions narrows a semantic search.
type SearchOptions struct {
	// Limit caps the number of results. Zero means the searcher default.
	Limit int

	// SourcePrefix, when non-empty, restricts results to documents whose
	// source path starts with this prefix.
	SourcePrefix string

	// Source, when non-empty, restricts results to a single exact source
	// path. Takes precedence over SourcePrefix.
	Source string
}

// Searcher finds code chunks semantically similar to a query string.
//
// # Description
//
//	Implementations perform nearest-neighbor retrieval over an indexed
//	corpus of code. Results are ordered by ascending distance.
//
// # Inputs
//
//	ctx - Context for cancellation and tracing
//	query - Natural-language or code query text
//	opts - Result limits and source filters
//
// # Outputs
//
//	[]Document - Matching chunks, closest first
//	error - Non-nil if the underlying store is unreachable or rejects
//	        the query
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error)
}

// ErrUnavailable is returned by the no-op searcher used when no vector
// store is configured.
var ErrUnavailable = errors.New("vector store not configured")

type unavailableSearcher struct{}

func (unavailableSearcher) Search(context.Context, string, SearchOptions) ([]Document, error) {
	return nil, ErrUnavailable
}

// Unavailable returns a Searcher whose every search fails with
// ErrUnavailable. Callers treating retrieval as best-effort degrade to
// empty context.
func Unavailable() Searcher {
	return unavailableSearcher{}
}
