// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent defines the external Attribution Agent collaborator
// (spec.md §6): the boundary contract the orchestrator calls to turn a
// Finding plus carrier document contents into an EvidenceBundle. The
// interface is deliberately backend-agnostic — openaiagent is one
// reference implementation, not the only one the core is meant to run
// against.
package agent

import (
	"context"

	"github.com/attributeai/attribution-engine/pkg/evidence"
)

// Request is everything the Attribution Agent needs to produce an
// EvidenceBundle for one Finding.
type Request struct {
	Finding            evidence.Finding
	ContextPackContent string
	SpecContent        string
}

// AttributionAgent is the external callable the orchestrator invokes at
// §4.G step 2. Implementations may fail; on failure the orchestrator
// aborts the whole attribution with no side effects (spec.md §5
// "Cancellation & timeouts"). ctx must carry a deadline — the caller is
// responsible for bounding the call, not the implementation.
type AttributionAgent interface {
	Attribute(ctx context.Context, req Request) (evidence.EvidenceBundle, error)
}

// Func adapts a plain function to AttributionAgent, for tests and small
// in-process stand-ins.
type Func func(ctx context.Context, req Request) (evidence.EvidenceBundle, error)

func (f Func) Attribute(ctx context.Context, req Request) (evidence.EvidenceBundle, error) {
	return f(ctx, req)
}
