// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides clients for text-generation backends and the
// admission gate that protects the single local model instance.
package llm

import (
	"context"
	"errors"
)

// ErrModelOverloaded signals that generation was refused or failed because
// the backend is unavailable or the host is under resource pressure. The
// orchestrator maps it to a retryable service-unavailable response; it is
// never fatal to the process.
var ErrModelOverloaded = errors.New("generation unavailable: model overloaded")

// GenerationParams are per-request overrides. Nil fields fall back to the
// backend's process-wide defaults; set fields win.
type GenerationParams struct {
	Temperature   *float32 `json:"temperature"`
	TopK          *int     `json:"top_k"`
	TopP          *float32 `json:"top_p"`
	RepeatPenalty *float32 `json:"repeat_penalty"`
	MaxTokens     *int     `json:"max_tokens"`
	Stop          []string `json:"stop"`
}

// StreamEventType identifies a streaming event.
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one fragment of a streamed generation.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StreamCallback receives fragments in generation order. Returning an error
// aborts the stream; backends must stop producing and surface the error.
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any generation backend.
//
// Implementations are not required to be safe for concurrent use; the Gate
// serializes access to the shared backend.
type LLMClient interface {
	// Generate produces the complete text for prompt, blocking until done.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// GenerateStream produces the text as a finite, non-restartable sequence
	// of fragments delivered through callback. It returns after the final
	// fragment, or with the first error (backend failure or callback abort).
	GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error
}
