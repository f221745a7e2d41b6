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
	"sync"

	"github.com/nereid-ai/codeassist/services/llm"
	"github.com/nereid-ai/codeassist/services/orchestrator/cache"
)

// StreamRecorder tees a token stream: every fragment is forwarded to the
// caller and accumulated, and the full text is written to the cache once
// the stream completes cleanly.
//
// A recorder serves exactly one stream. If the forward callback fails
// (client disconnect) or the stream errors, the recorder is marked failed
// and Complete becomes a no-op; a partial response must never be served
// from cache.
type StreamRecorder struct {
	gateway *cache.Gateway
	key     string
	forward llm.StreamCallback

	mu     sync.Mutex
	buf    strings.Builder
	failed bool
}

// NewStreamRecorder creates a recorder that forwards to the given callback
// and caches under key on clean completion.
func NewStreamRecorder(gateway *cache.Gateway, key string, forward llm.StreamCallback) *StreamRecorder {
	return &StreamRecorder{
		gateway: gateway,
		key:     key,
		forward: forward,
	}
}

// Callback returns the tee callback to hand to the generation stream.
// Token events are forwarded first, then accumulated; if forwarding fails
// the error propagates to abort the stream and the recorder is marked
// failed. Error events mark the recorder failed and are forwarded as-is.
func (r *StreamRecorder) Callback() llm.StreamCallback {
	return func(event llm.StreamEvent) error {
		if event.Type == llm.StreamEventError {
			r.Fail()
			return r.forward(event)
		}

		if err := r.forward(event); err != nil {
			r.Fail()
			return err
		}

		r.mu.Lock()
		r.buf.WriteString(event.Content)
		r.mu.Unlock()
		return nil
	}
}

// Fail marks the stream as failed, suppressing the cache write.
func (r *StreamRecorder) Fail() {
	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()
}

// Complete writes the accumulated response to the cache. Called after the
// stream has finished; does nothing for failed streams or empty output.
func (r *StreamRecorder) Complete(ctx context.Context) {
	r.mu.Lock()
	failed := r.failed
	full := r.buf.String()
	r.mu.Unlock()

	if failed || full == "" {
		return
	}
	r.gateway.Set(ctx, r.key, full)
	slog.Debug("Cached streamed response", "key", r.key, "bytes", len(full))
}
