// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sysmem reports host memory pressure.
//
// The generation gate and the cache gateway both gate their work on the
// host's memory headroom: a local model that gets swapped out is worse than
// a refused request. Callers inject a Reader so tests can simulate pressure
// without touching the host.
package sysmem

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a point-in-time view of host virtual memory.
type Snapshot struct {
	// AvailableBytes is memory available for new allocations without swapping.
	AvailableBytes uint64

	// UsedPercent is overall utilization in [0, 100].
	UsedPercent float64
}

// Reader returns a memory snapshot. Implementations must be safe for
// concurrent use.
type Reader func(ctx context.Context) (Snapshot, error)

// Read is the production Reader backed by gopsutil.
func Read(ctx context.Context) (Snapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read virtual memory: %w", err)
	}
	return Snapshot{
		AvailableBytes: vm.Available,
		UsedPercent:    vm.UsedPercent,
	}, nil
}

// Fixed returns a Reader that always reports the given snapshot. For tests.
func Fixed(s Snapshot) Reader {
	return func(context.Context) (Snapshot, error) {
		return s, nil
	}
}
