// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nereid-ai/codeassist/pkg/sysmem"
)

var gateTracer = otel.Tracer("codeassist.llm.gate")

// Gate admission defaults; see GateOptions and the orchestrator's
// environment configuration for overrides.
const (
	// DefaultMemMaxPercent refuses generation when host memory utilization
	// exceeds this threshold.
	DefaultMemMaxPercent = 90.0

	// DefaultMinSpacing is the minimum gap between consecutive uses of the
	// backend. Enforced while holding the gate lock, so it also throttles
	// the line of waiters.
	DefaultMinSpacing = 100 * time.Millisecond
)

// GateOptions configures a Gate.
type GateOptions struct {
	// MemMaxPercent is the utilization ceiling for admission.
	// Zero means DefaultMemMaxPercent.
	MemMaxPercent float64

	// MinSpacing is the minimum gap since the backend was last used.
	// Zero means DefaultMinSpacing.
	MinSpacing time.Duration

	// Memory overrides the memory probe. Nil means sysmem.Read.
	Memory sysmem.Reader

	// OnAdmissionWait, if set, receives the time each admitted call spent
	// queued for the gate (lock wait plus enforced spacing) before the
	// backend was driven.
	OnAdmissionWait func(wait time.Duration)

	// OnOverloadRefusal, if set, is called every time the resource check
	// refuses a generation.
	OnOverloadRefusal func()
}

// GateStatus is a point-in-time view of the gate for health reporting.
type GateStatus struct {
	Busy     bool      `json:"busy"`
	LastUsed time.Time `json:"last_used"`
}

// Gate serializes access to a single shared generation backend.
//
// The backend is not safe for concurrent use, and oversubscribing a local
// model degrades latency unpredictably, so the gate holds its mutex for the
// full duration of every call, streaming included. Callers queue on the
// mutex in arrival order and are served one at a time; nothing is rejected
// for being concurrent, only for resource pressure.
//
// The gate is the sole caller of the wrapped backend and the sole mutator
// of its own admission state.
type Gate struct {
	backend LLMClient

	// mu serializes backend use. statusMu guards lastUsed only, so Status
	// can report it while a generation holds mu.
	mu       sync.Mutex
	statusMu sync.Mutex
	lastUsed time.Time

	memMaxPercent float64
	minSpacing    time.Duration
	memory        sysmem.Reader

	onAdmissionWait   func(wait time.Duration)
	onOverloadRefusal func()
}

// NewGate wraps backend with admission control.
func NewGate(backend LLMClient, opts GateOptions) *Gate {
	if opts.MemMaxPercent <= 0 {
		opts.MemMaxPercent = DefaultMemMaxPercent
	}
	if opts.MinSpacing <= 0 {
		opts.MinSpacing = DefaultMinSpacing
	}
	if opts.Memory == nil {
		opts.Memory = sysmem.Read
	}
	return &Gate{
		backend:           backend,
		memMaxPercent:     opts.MemMaxPercent,
		minSpacing:        opts.MinSpacing,
		memory:            opts.Memory,
		onAdmissionWait:   opts.OnAdmissionWait,
		onOverloadRefusal: opts.OnOverloadRefusal,
	}
}

// touch records that the backend just produced something.
func (g *Gate) touch() {
	g.statusMu.Lock()
	g.lastUsed = time.Now()
	g.statusMu.Unlock()
}

func (g *Gate) lastUsedAt() time.Time {
	g.statusMu.Lock()
	defer g.statusMu.Unlock()
	return g.lastUsed
}

// admitted reports a successful admission to the wait hook.
func (g *Gate) admitted(entry time.Time) {
	if g.onAdmissionWait != nil {
		g.onAdmissionWait(time.Since(entry))
	}
}

// checkResources validates host state before driving the backend.
// Must be called with the gate lock held.
func (g *Gate) checkResources(ctx context.Context) error {
	snap, err := g.memory(ctx)
	if err != nil {
		// A broken probe must not take the service down with it.
		slog.Warn("memory probe failed, admitting generation anyway", "error", err)
		return nil
	}
	if snap.UsedPercent > g.memMaxPercent {
		slog.Warn("refusing generation, memory utilization too high",
			"used_percent", snap.UsedPercent, "threshold", g.memMaxPercent)
		if g.onOverloadRefusal != nil {
			g.onOverloadRefusal()
		}
		return fmt.Errorf("%w: memory at %.1f%%", ErrModelOverloaded, snap.UsedPercent)
	}

	// Crude rate limit: keep a minimum gap since the backend last produced
	// anything. Sleeping here, under the lock, intentionally delays every
	// queued waiter as well.
	if since := time.Since(g.lastUsedAt()); since < g.minSpacing {
		select {
		case <-time.After(g.minSpacing - since):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Generate runs a blocking generation through the gate.
//
// Any backend failure is reported as ErrModelOverloaded: from the caller's
// perspective the model is unavailable and the request is retryable.
func (g *Gate) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := gateTracer.Start(ctx, "Gate.Generate")
	defer span.End()

	entry := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkResources(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	g.admitted(entry)

	text, err := g.backend.Generate(ctx, prompt, params)
	g.touch()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrModelOverloaded, err)
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(text)))
	return text, nil
}

// GenerateStream runs a streaming generation through the gate. The lock is
// held across the entire streaming session, so concurrent streams are
// served strictly one at a time.
//
// A callback error (client gone) propagates as-is; backend failures are
// reported as ErrModelOverloaded.
func (g *Gate) GenerateStream(ctx context.Context, prompt string,
	params GenerationParams, callback StreamCallback) error {

	ctx, span := gateTracer.Start(ctx, "Gate.GenerateStream")
	defer span.End()

	entry := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkResources(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	g.admitted(entry)

	err := g.backend.GenerateStream(ctx, prompt, params, func(event StreamEvent) error {
		g.touch()
		return callback(event)
	})
	g.touch()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			// Caller went away; not the backend's fault.
			return err
		}
		return fmt.Errorf("%w: %v", ErrModelOverloaded, err)
	}
	return nil
}

// Warmup drives a single-token generation through the gate so the backend
// loads the model before the first real request.
func (g *Gate) Warmup(ctx context.Context) error {
	one := 1
	_, err := g.Generate(ctx, "Warmup", GenerationParams{MaxTokens: &one})
	return err
}

// Status reports the gate's admission state for health checks. LastUsed
// stays readable while a generation holds the gate lock.
func (g *Gate) Status() GateStatus {
	busy := !g.mu.TryLock()
	if !busy {
		g.mu.Unlock()
	}
	return GateStatus{Busy: busy, LastUsed: g.lastUsedAt()}
}
