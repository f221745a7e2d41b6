// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Stream event types emitted over SSE.
const (
	StreamEventToken  = "token"
	StreamEventStatus = "status"
	StreamEventError  = "error"
	StreamEventDone   = "done"
)

// StreamEvent is one Server-Sent Event on a streaming response.
//
// # Description
//
//	Token events carry generated text in Content. Status events carry a
//	human-readable progress line in Message. Error events carry a
//	sanitized failure description. A single done event terminates every
//	stream.
type StreamEvent struct {
	Id        string `json:"id,omitempty"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}
