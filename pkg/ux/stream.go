// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders gateway responses for the command line.
package ux

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
)

// StreamResult contains the complete result of processing a stream.
type StreamResult struct {
	Answer string
}

// StreamProcessor defines the interface for processing streaming responses.
type StreamProcessor interface {
	// Process reads a Server-Sent Event stream from the reader, printing
	// tokens as they arrive. Returns the assembled answer.
	Process(reader io.Reader) (*StreamResult, error)
}

// sseStreamProcessor implements StreamProcessor for Server-Sent Events.
type sseStreamProcessor struct {
	writer io.Writer
	answer strings.Builder
}

// NewStreamProcessor creates a stream processor writing to stdout.
func NewStreamProcessor() StreamProcessor {
	return &sseStreamProcessor{writer: os.Stdout}
}

// NewStreamProcessorWithWriter creates a stream processor with a custom
// writer (for testing).
func NewStreamProcessorWithWriter(w io.Writer) StreamProcessor {
	return &sseStreamProcessor{writer: w}
}

// Process reads and processes a streaming response.
func (p *sseStreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		// Event-name lines carry no payload.
		if strings.HasPrefix(line, "event: ") {
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			line = strings.TrimPrefix(line, "data: ")
		}

		var event datatypes.StreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			// Not JSON; treat it as a bare token.
			p.handleToken(line)
			continue
		}

		switch event.Type {
		case datatypes.StreamEventStatus:
			fmt.Fprintf(p.writer, "... %s\n", event.Message)
		case datatypes.StreamEventToken:
			p.handleToken(event.Content)
		case datatypes.StreamEventDone:
			p.finalize()
			return &StreamResult{Answer: p.answer.String()}, nil
		case datatypes.StreamEventError:
			p.finalize()
			return nil, fmt.Errorf("%s", event.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		p.finalize()
		return nil, err
	}

	// Stream ended without an explicit done event.
	p.finalize()
	return &StreamResult{Answer: p.answer.String()}, nil
}

func (p *sseStreamProcessor) handleToken(token string) {
	p.answer.WriteString(token)
	fmt.Fprint(p.writer, token)
}

func (p *sseStreamProcessor) finalize() {
	if p.answer.Len() > 0 && !strings.HasSuffix(p.answer.String(), "\n") {
		fmt.Fprintln(p.writer)
	}
}
