// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the code-assistance
// gateway: request timing and request-rate limiting.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// ProcessTimeHeader carries the server-side handling time in seconds.
const ProcessTimeHeader = "X-Process-Time"

// timingWriter injects the timing header just before the first byte of the
// response goes out. Headers cannot be added after the response starts, so
// for streaming endpoints the value covers time up to the first token.
type timingWriter struct {
	gin.ResponseWriter
	start time.Time
}

func (w *timingWriter) setHeader() {
	if !w.Written() {
		elapsed := time.Since(w.start).Seconds()
		w.Header().Set(ProcessTimeHeader, fmt.Sprintf("%.6f", elapsed))
	}
}

func (w *timingWriter) WriteHeader(code int) {
	w.setHeader()
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	w.setHeader()
	return w.ResponseWriter.Write(b)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	w.setHeader()
	return w.ResponseWriter.WriteString(s)
}

// Timing sets the X-Process-Time header on every response.
func Timing() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &timingWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Next()
	}
}
