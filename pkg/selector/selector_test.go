// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selector

import (
	"context"
	"testing"
	"time"

	"github.com/attributeai/attribution-engine/pkg/evidence"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/principlestore"
)

var selectorNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TestSelectOrdering mirrors spec.md §8 scenario 6: 1 baseline (touches
// database, permanent), 1 derived (touches api), 3 active project
// patterns (2 security HIGH, 1 correctness MEDIUM) all matching a
// TaskProfile{touches:[database,api], confidence:0.8}. Expect, in order:
// baseline, derived, 2 security patterns (highest priority first), 1
// correctness pattern. Capped at 6.
func TestSelectOrdering(t *testing.T) {
	profile := TaskProfile{Touches: []string{"database", "api"}, Confidence: 0.8}

	baseline := principlestore.Principle{
		ID: "baseline-1", Origin: principlestore.OriginBaseline, InjectInto: principlestore.InjectBoth,
		Permanent: true, Touches: []string{"database"},
	}
	derived := principlestore.Principle{
		ID: "derived-1", Origin: principlestore.OriginDerived, InjectInto: principlestore.InjectBoth,
		Touches: []string{"api"}, Confidence: 0.7, UpdatedAt: selectorNow,
	}

	sec1 := PatternCandidate{
		Pattern: patternstore.Pattern{
			ID: "sec-1", PatternKey: "key-sec-1", CarrierStage: evidence.CarrierSpec,
			FindingCategory: evidence.ScoutSecurity, SeverityMax: evidence.SeverityHigh,
			PrimaryCarrierQuoteType: evidence.QuoteVerbatim, Touches: []string{"database"},
		},
		ActiveOccurrences: 3, LastActiveAt: selectorNow,
	}
	sec2 := PatternCandidate{
		Pattern: patternstore.Pattern{
			ID: "sec-2", PatternKey: "key-sec-2", CarrierStage: evidence.CarrierSpec,
			FindingCategory: evidence.ScoutSecurity, SeverityMax: evidence.SeverityHigh,
			PrimaryCarrierQuoteType: evidence.QuoteVerbatim, Touches: []string{"api"},
		},
		ActiveOccurrences: 1, LastActiveAt: selectorNow,
	}
	correctness := PatternCandidate{
		Pattern: patternstore.Pattern{
			ID: "corr-1", PatternKey: "key-corr-1", CarrierStage: evidence.CarrierSpec,
			FindingCategory: evidence.ScoutBugs, SeverityMax: evidence.SeverityMedium,
			PrimaryCarrierQuoteType: evidence.QuoteVerbatim, Touches: []string{"database"},
		},
		ActiveOccurrences: 1, LastActiveAt: selectorNow,
	}

	warnings := Select(Input{
		ProjectActive:      true,
		Target:             evidence.CarrierSpec,
		Profile:            profile,
		BaselinePrinciples: []principlestore.Principle{baseline},
		DerivedPrinciples:  []principlestore.Principle{derived},
		ProjectPatterns:    []PatternCandidate{sec1, sec2, correctness},
		Now:                selectorNow,
	})

	if len(warnings) != 5 {
		t.Fatalf("expected 5 warnings (1 baseline + 1 derived + 2 security + 1 correctness), got %d: %+v", len(warnings), warnings)
	}
	if warnings[0].SourceID != "baseline-1" {
		t.Errorf("warnings[0] = %v, want baseline-1", warnings[0].SourceID)
	}
	if warnings[1].SourceID != "derived-1" {
		t.Errorf("warnings[1] = %v, want derived-1", warnings[1].SourceID)
	}
	// sec1 has 3 active occurrences (higher confidence) so should rank
	// ahead of sec2.
	if warnings[2].SourceID != "sec-1" || warnings[3].SourceID != "sec-2" {
		t.Errorf("expected sec-1 then sec-2, got %v then %v", warnings[2].SourceID, warnings[3].SourceID)
	}
	if warnings[4].SourceID != "corr-1" {
		t.Errorf("warnings[4] = %v, want corr-1", warnings[4].SourceID)
	}
}

func TestSelectInactiveProjectReturnsEmpty(t *testing.T) {
	warnings := Select(Input{ProjectActive: false, Now: selectorNow})
	if warnings != nil {
		t.Errorf("expected nil warnings for inactive project, got %+v", warnings)
	}
}

func TestSelectInferredGateBlocksLowEvidencePattern(t *testing.T) {
	profile := TaskProfile{Touches: []string{"database"}, Confidence: 1.0}
	blocked := PatternCandidate{
		Pattern: patternstore.Pattern{
			ID: "inferred-1", PatternKey: "key-inferred-1", CarrierStage: evidence.CarrierSpec,
			FindingCategory: evidence.ScoutBugs, SeverityMax: evidence.SeverityMedium,
			PrimaryCarrierQuoteType: evidence.QuoteInferred, Touches: []string{"database"},
			FailureMode: "incomplete",
		},
		ActiveOccurrences: 1, // below the >=2 gate
	}
	warnings := Select(Input{
		ProjectActive:   true,
		Target:          evidence.CarrierSpec,
		Profile:         profile,
		ProjectPatterns: []PatternCandidate{blocked},
		Now:             selectorNow,
	})
	for _, w := range warnings {
		if w.SourceID == "inferred-1" {
			t.Fatal("expected inferred pattern below the gate to be excluded")
		}
	}
}

func TestSelectLowConfidenceProfileStillSelectsOverlappingPattern(t *testing.T) {
	profile := TaskProfile{Touches: []string{"database"}, Confidence: 0.2}
	fallback := PatternCandidate{
		Pattern: patternstore.Pattern{
			ID: "fallback-1", PatternKey: "key-fallback-1", CarrierStage: evidence.CarrierSpec,
			FindingCategory: evidence.ScoutBugs, SeverityMax: evidence.SeverityHigh,
			PrimaryCarrierQuoteType: evidence.QuoteVerbatim, Touches: []string{"nomatch"},
		},
		ActiveOccurrences: 1, LastActiveAt: selectorNow,
	}
	// Without touch overlap the pattern is excluded at stage 3, and so from
	// the low-confidence stage 7 as well, which draws from the same
	// stage-3 pool. With overlap, stage 6 selects it even though the
	// profile's confidence is low.
	fallback.Pattern.Touches = []string{"database"}

	warnings := Select(Input{
		ProjectActive:   true,
		Target:          evidence.CarrierSpec,
		Profile:         profile,
		ProjectPatterns: []PatternCandidate{fallback},
		Now:             selectorNow,
	})
	found := false
	for _, w := range warnings {
		if w.SourceID == "fallback-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected high-severity pattern to appear via stage 3/6 selection")
	}
}

func TestResolveConflictsPrecedence(t *testing.T) {
	warnings := []Warning{
		{SourceID: "a", Category: "correctness", Priority: 0.9, ConflictKey: "group-1"},
		{SourceID: "b", Category: "security", Priority: 0.1, ConflictKey: "group-1"},
		{SourceID: "c", Category: "other", Priority: 0.5, ConflictKey: "group-2"},
	}
	resolved := ResolveConflicts(warnings, func(w Warning) string { return w.ConflictKey })
	if len(resolved) != 2 {
		t.Fatalf("expected 2 groups resolved to 2 warnings, got %d", len(resolved))
	}
	if resolved[0].SourceID != "b" {
		t.Errorf("expected security to win group-1 despite lower priority, got %v", resolved[0].SourceID)
	}
	if resolved[1].SourceID != "c" {
		t.Errorf("expected group-2's only member to pass through, got %v", resolved[1].SourceID)
	}
}

func TestSelectWarningsMatchesSelect(t *testing.T) {
	in := Input{
		ProjectActive: true,
		Target:        evidence.CarrierContextPack,
		Profile:       TaskProfile{Touches: []string{"database"}, Confidence: 0.8},
		Now:           selectorNow,
		ProjectPatterns: []PatternCandidate{
			{
				Pattern: patternstore.Pattern{
					ID:                      "p1",
					CarrierStage:            evidence.CarrierContextPack,
					Touches:                 []string{"database"},
					SeverityMax:             evidence.SeverityHigh,
					FindingCategory:         evidence.ScoutSecurity,
					PrimaryCarrierQuoteType: evidence.QuoteVerbatim,
				},
				ActiveOccurrences: 2,
				LastActiveAt:      selectorNow,
			},
		},
	}

	direct := Select(in)
	traced := SelectWarnings(context.Background(), in)

	if len(direct) != len(traced) {
		t.Fatalf("expected SelectWarnings to match Select's length, got %d vs %d", len(traced), len(direct))
	}
	for i := range direct {
		if direct[i] != traced[i] {
			t.Errorf("warning %d differs: Select=%+v SelectWarnings=%+v", i, direct[i], traced[i])
		}
	}
}
