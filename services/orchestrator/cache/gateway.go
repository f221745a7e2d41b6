// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nereid-ai/codeassist/pkg/sysmem"
)

// Gateway defaults. Overridable via Options; see the orchestrator's
// environment configuration.
const (
	// DefaultGetTimeout bounds a cache read. A store that cannot answer in
	// this window is treated as a miss, never as an error.
	DefaultGetTimeout = 10 * time.Millisecond

	// DefaultMemMargin is the minimum available host memory required before
	// a cache write is admitted. The cache must never starve the generation
	// backend of memory, so under this margin writes are silently skipped.
	DefaultMemMargin = 10 << 30 // 10 GiB

	// DefaultTTL is the lifetime of a cached generation result.
	DefaultTTL = time.Hour
)

// Options configures a Gateway.
type Options struct {
	// GetTimeout bounds each Get. Zero means DefaultGetTimeout.
	GetTimeout time.Duration

	// MemMargin is the free-memory floor for Set admission.
	// Zero means DefaultMemMargin.
	MemMargin uint64

	// TTL applies to every Set. Zero means DefaultTTL.
	TTL time.Duration

	// Memory overrides the memory probe. Nil means sysmem.Read.
	Memory sysmem.Reader
}

// Gateway is a bounded-latency, self-protecting front on the cache store.
//
// Both directions degrade rather than fail: a slow or unreachable store
// behaves as "always miss, never cache", and writes are skipped entirely
// when the host lacks memory headroom. Callers never see a cache error.
type Gateway struct {
	store      Store
	getTimeout time.Duration
	memMargin  uint64
	ttl        time.Duration
	memory     sysmem.Reader
}

// NewGateway creates a Gateway over store.
func NewGateway(store Store, opts Options) *Gateway {
	if opts.GetTimeout <= 0 {
		opts.GetTimeout = DefaultGetTimeout
	}
	if opts.MemMargin == 0 {
		opts.MemMargin = DefaultMemMargin
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Memory == nil {
		opts.Memory = sysmem.Read
	}
	return &Gateway{
		store:      store,
		getTimeout: opts.GetTimeout,
		memMargin:  opts.MemMargin,
		ttl:        opts.TTL,
		memory:     opts.Memory,
	}
}

// Get looks up key, returning the cached value and whether it was present.
//
// The lookup is bounded by the configured timeout; a timeout or any store
// error is reported as a miss.
func (g *Gateway) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, g.getTimeout)
	defer cancel()

	value, err := g.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Debug("cache get degraded to miss", "key", key, "error", err)
		}
		return "", false
	}
	return string(value), true
}

// Set stores value under key with the gateway's TTL, provided the host has
// at least the configured free-memory margin. Failures are logged and
// swallowed; callers proceed identically whether the write happened or not.
func (g *Gateway) Set(ctx context.Context, key, value string) {
	snap, err := g.memory(ctx)
	if err != nil {
		slog.Warn("memory probe failed, skipping cache write", "key", key, "error", err)
		return
	}
	if snap.AvailableBytes < g.memMargin {
		slog.Info("memory margin not met, skipping cache write",
			"key", key,
			"available_bytes", snap.AvailableBytes,
			"margin_bytes", g.memMargin,
		)
		return
	}

	if err := g.store.SetWithTTL(ctx, key, []byte(value), g.ttl); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

// SetJSON serializes v and stores it under key with Set's admission policy.
// Structured results (review issue lists) are cached through this path.
func (g *Gateway) SetJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache value not serializable", "key", key, "error", err)
		return
	}
	g.Set(ctx, key, string(data))
}
