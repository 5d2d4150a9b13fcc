// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/attributeai/attribution-engine/pkg/ekind"
	"github.com/attributeai/attribution-engine/pkg/evidence"
)

// RateLimited wraps an AttributionAgent with a token-bucket limiter, so a
// burst of findings from a PR ingestion batch can't overrun whatever
// rate the underlying backend enforces.
type RateLimited struct {
	inner   AttributionAgent
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a limiter allowing ratePerSecond
// sustained calls and burst concurrent calls.
func NewRateLimited(inner AttributionAgent, ratePerSecond float64, burst int) *RateLimited {
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Attribute waits for limiter admission, respecting ctx's deadline, then
// delegates to the wrapped agent.
func (r *RateLimited) Attribute(ctx context.Context, req Request) (evidence.EvidenceBundle, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return evidence.EvidenceBundle{}, ekind.Wrap(ekind.ExternalAgentFailure, "rate limiter wait failed", fmt.Errorf("%w", err))
	}
	return r.inner.Attribute(ctx, req)
}
