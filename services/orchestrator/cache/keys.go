// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the content-addressed result cache for the
// assistance pipeline: deterministic key derivation plus a bounded-latency
// gateway over a TTL key-value store.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyLength is the number of hex characters in a derived cache key.
const KeyLength = 32

// DeriveKey produces a deterministic fingerprint for an ordered sequence of
// request parts.
//
// Parts are concatenated directly, with no separator: callers pass inputs
// that are already delimited by their own structure (a prompt and a file
// path never need disambiguation in practice, and the original keying scheme
// worked the same way). The concatenation is hashed with SHA-256 and the hex
// digest truncated to KeyLength characters.
//
// The same parts in the same order always produce the same key; reordering
// distinct parts produces a different key.
func DeriveKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])[:KeyLength]
}
