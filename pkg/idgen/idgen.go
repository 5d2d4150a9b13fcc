// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package idgen provides an injectable 128-bit random identifier source.
//
// Per spec, UUIDs are the sole source of randomness the engine is allowed
// to touch, and only in new-row identity fields — never in a decision path.
// Keeping the source behind an interface lets tests pin identifiers.
package idgen

import "github.com/google/uuid"

// Source mints new identity values for store rows.
type Source interface {
	// NewID returns a fresh random identifier string.
	NewID() string
}

// UUID is the production Source backed by google/uuid's v4 generator.
type UUID struct{}

// NewID returns a random UUID v4 string.
func (UUID) NewID() string {
	return uuid.NewString()
}

// Sequential is a deterministic Source for tests: it returns ids of the
// form "id-000001", "id-000002", ... in call order.
type Sequential struct {
	prefix string
	next   int
}

// NewSequential creates a Sequential id source with the given prefix.
func NewSequential(prefix string) *Sequential {
	if prefix == "" {
		prefix = "id"
	}
	return &Sequential{prefix: prefix}
}

// NewID returns the next deterministic id.
func (s *Sequential) NewID() string {
	s.next++
	return formatSeq(s.prefix, s.next)
}

func formatSeq(prefix string, n int) string {
	const digits = "0123456789"
	buf := make([]byte, 6)
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = digits[n%10]
		n /= 10
	}
	return prefix + "-" + string(buf)
}
