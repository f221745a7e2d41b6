// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP endpoints of the code-assistance
// gateway.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
)

// SSEWriter writes Server-Sent Events to an HTTP response.
//
// # Description
//
//	Abstracts SSE event serialization and writing. Each event gets a UUID
//	and a millisecond timestamp, is serialized as JSON, and is flushed
//	immediately in the wire format "event: type\ndata: json\n\n".
//
// # Thread Safety
//
//	Implementations must be safe for concurrent use; stream handlers may
//	emit tokens and keepalives from different goroutines.
type SSEWriter interface {
	// WriteToken writes a token event carrying generated text.
	WriteToken(content string) error

	// WriteStatus writes a status event with a progress message.
	WriteStatus(message string) error

	// WriteError writes an error event. The stream should be closed after.
	WriteError(errMsg string) error

	// WriteDone writes the terminal done event.
	WriteDone() error

	// WriteKeepAlive sends an SSE comment to keep the connection open
	// through proxies with idle timeouts.
	WriteKeepAlive() error
}

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter creates an SSEWriter over the ResponseWriter. The caller
// must set SSE headers first via SetSSEHeaders.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) writeEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteToken(content string) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventToken,
		Content: content,
	})
}

func (w *sseWriter) WriteStatus(message string) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventStatus,
		Message: message,
	})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:  datatypes.StreamEventError,
		Error: errMsg,
	})
}

func (w *sseWriter) WriteDone() error {
	return w.writeEvent(datatypes.StreamEvent{
		Type: datatypes.StreamEventDone,
	})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders sets the response headers required for SSE streaming.
// Must be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
