// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package noncompliance implements the noncompliance checker (spec.md §4.F):
// it decides when a finding is execution-side (the agent ignored correct,
// testable guidance) rather than guidance-side.
package noncompliance

import "github.com/attributeai/attribution-engine/pkg/evidence"

// Cause is one of the closed set of possible execution-side causes.
// "ambiguity" is deliberately excluded: an ambiguous carrier is a guidance
// defect and is classified by the failuremode resolver as ModeAmbiguous,
// never as noncompliance.
type Cause string

const (
	CauseSalience   Cause = "salience"
	CauseFormatting Cause = "formatting"
	CauseOverride   Cause = "override"
)

// Draft is the execution noncompliance record to be persisted if Check
// reports isNoncompliance. Population of GuidanceLocation/Excerpt is the
// caller's responsibility (the orchestrator knows the carrier document and
// finding that produced this bundle; this package only decides).
type Draft struct {
	PossibleCauses []Cause
}

// Check decides whether a finding represents execution-side noncompliance:
// the carrier quote was verbatim, testable, and unambiguous, yet the
// implementation still violated it.
//
// Returns (true, *Draft) when noncompliance is detected, (false, nil)
// otherwise — in the latter case the failuremode resolver's classification
// stands and the orchestrator proceeds down the pattern-creation path.
func Check(b evidence.EvidenceBundle, findingCategoryMatchesCarrier bool) (bool, *Draft) {
	if !findingCategoryMatchesCarrier {
		return false, nil
	}
	if b.CarrierQuoteType != evidence.QuoteVerbatim {
		return false, nil
	}
	if !b.HasTestableAcceptanceCriteria {
		return false, nil
	}
	if len(b.VaguenessSignals) > 0 {
		return false, nil
	}
	if len(b.ConflictSignals) > 0 {
		return false, nil
	}
	if b.CarrierInstructionKind == evidence.InstructionExplicitlyHarmful {
		// The carrier itself told the agent to do the wrong thing; that's
		// a guidance defect (incorrect), not noncompliance.
		return false, nil
	}

	return true, &Draft{PossibleCauses: inferCauses(b)}
}

// inferCauses picks plausible causes from the closed set. Multiple causes
// may apply; order is fixed for determinism.
func inferCauses(b evidence.EvidenceBundle) []Cause {
	var causes []Cause
	// A quote the agent may have scrolled past or deprioritized against
	// competing guidance is a salience cause; this is always plausible for
	// a verified-noncompliant verbatim instruction.
	causes = append(causes, CauseSalience)
	if looksLikeFormattingIssue(b.CarrierQuote) {
		causes = append(causes, CauseFormatting)
	}
	causes = append(causes, CauseOverride)
	return causes
}

// looksLikeFormattingIssue is a narrow heuristic: carrier quotes buried in
// deeply nested markdown (code fences, blockquotes) are plausibly missed
// due to formatting rather than pure salience.
func looksLikeFormattingIssue(quote string) bool {
	for _, marker := range []string{"```", ">", "<!--"} {
		if len(quote) >= len(marker) {
			for i := 0; i+len(marker) <= len(quote); i++ {
				if quote[i:i+len(marker)] == marker {
					return true
				}
			}
		}
	}
	return false
}
