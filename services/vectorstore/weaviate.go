// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("codeassist.vectorstore.weaviate")

// CodeChunkClassName is the Weaviate class holding indexed code.
const CodeChunkClassName = "CodeChunk"

// DefaultSearchLimit is used when SearchOptions.Limit is zero.
const DefaultSearchLimit = 3

// WeaviateSearcher implements Searcher against a Weaviate instance whose
// CodeChunk class is vectorized server-side (text2vec module).
type WeaviateSearcher struct {
	client *weaviate.Client
}

// NewWeaviateSearcher creates a searcher over the given client.
func NewWeaviateSearcher(client *weaviate.Client) (*WeaviateSearcher, error) {
	if client == nil {
		return nil, errors.New("weaviate client must not be nil")
	}
	return &WeaviateSearcher{client: client}, nil
}

// Search performs a NearText query against the CodeChunk class.
func (s *WeaviateSearcher) Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error) {
	ctx, span := tracer.Start(ctx, "WeaviateSearcher.Search")
	defer span.End()

	if query == "" {
		return nil, errors.New("query cannot be empty")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	span.SetAttributes(
		attribute.Int("search.limit", limit),
		attribute.String("search.source_prefix", opts.SourcePrefix),
	)

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "language"},
		{Name: "_additional { distance }"},
	}

	builder := s.client.GraphQL().Get().
		WithClassName(CodeChunkClassName).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit)

	if where := sourceFilter(opts); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("search error: %s", result.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	docs := parseSearchResponse(result)
	slog.Debug("Vector search complete", "query_len", len(query), "count", len(docs))
	return docs, nil
}

// sourceFilter builds a where clause from the search options, or nil when
// no source restriction applies.
func sourceFilter(opts SearchOptions) *filters.WhereBuilder {
	switch {
	case opts.Source != "":
		return filters.Where().
			WithPath([]string{"source"}).
			WithOperator(filters.Equal).
			WithValueString(opts.Source)
	case opts.SourcePrefix != "":
		return filters.Where().
			WithPath([]string{"source"}).
			WithOperator(filters.Like).
			WithValueString(opts.SourcePrefix + "*")
	default:
		return nil
	}
}

// parseSearchResponse converts a GraphQL response into documents. Malformed
// entries are skipped rather than failing the whole result set.
func parseSearchResponse(result *models.GraphQLResponse) []Document {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := data[CodeChunkClassName].([]interface{})
	if !ok {
		return nil
	}

	docs := make([]Document, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		doc := Document{Distance: 1}
		doc.Content, _ = m["content"].(string)
		doc.Source, _ = m["source"].(string)
		doc.Language, _ = m["language"].(string)

		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				doc.Distance = d
			}
		}

		if doc.Content == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// CodeChunkSchema returns the class definition for indexed code chunks.
func CodeChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       CodeChunkClassName,
		Description: "A chunk of source code and the file it came from.",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The code text of the chunk.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "The file path the chunk was ingested from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "language",
				DataType:        []string{"text"},
				Description:     "Programming language of the chunk (e.g., 'python', 'go').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// EnsureSchema creates the CodeChunk class if it does not already exist.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	class := CodeChunkSchema()
	slog.Info("Checking schema", "class", class.Class)

	// The class getter errors when the class is absent.
	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", class.Class)
		return nil
	}

	slog.Info("Schema not found, creating it...", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
	}
	slog.Info("Successfully created schema", "class", class.Class)
	return nil
}
