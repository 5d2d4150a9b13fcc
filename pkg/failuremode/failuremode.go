// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package failuremode implements the failure-mode resolver (spec.md §4.E):
// a pure, ordered decision tree over an EvidenceBundle. First matching rule
// wins, mirroring the priority-ordered classifier walk in
// services/policy_engine (ClassifyData: first match among
// priority-sorted classifiers returns immediately).
package failuremode

import "github.com/attributeai/attribution-engine/pkg/evidence"

// Mode is the classification of why guidance failed.
type Mode string

const (
	ModeMissingReference   Mode = "missing_reference"
	ModeSynthesisDrift     Mode = "synthesis_drift"
	ModeConflictUnresolved Mode = "conflict_unresolved"
	ModeAmbiguous          Mode = "ambiguous"
	ModeIncorrect          Mode = "incorrect"
	ModeIncomplete         Mode = "incomplete"
)

// Result is the resolver's output: the chosen Mode plus the verbatim
// rationale for audit (spec.md §4.E: "Rationale must be recorded verbatim
// for audit").
type Result struct {
	Mode      Mode
	Reasoning string
}

// Resolve runs the fixed, top-to-bottom decision tree over b. It is a pure
// function: identical input always yields identical output (spec.md §8
// "Decision-tree determinism").
func Resolve(b evidence.EvidenceBundle) Result {
	if b.MandatoryDocMissing && !b.HasCitation {
		return Result{
			Mode:      ModeMissingReference,
			Reasoning: "mandatory_doc_missing is true and has_citation is false: the carrier relies on a document it never cites",
		}
	}

	if b.HasCitation && b.SourceRetrievable && b.SourceAgreesWithCarrier != nil && !*b.SourceAgreesWithCarrier {
		return Result{
			Mode:      ModeSynthesisDrift,
			Reasoning: "has_citation and source_retrievable are true but source_agrees_with_carrier is false: the carrier drifted from its own cited source",
		}
	}

	if len(b.ConflictSignals) > 0 {
		return Result{
			Mode:      ModeConflictUnresolved,
			Reasoning: formatSignals("unresolved conflict signals present", b.ConflictSignals),
		}
	}

	if len(b.VaguenessSignals) > 0 && !b.HasTestableAcceptanceCriteria {
		return Result{
			Mode:      ModeAmbiguous,
			Reasoning: formatSignals("vagueness signals present and no testable acceptance criteria", b.VaguenessSignals),
		}
	}

	if b.CarrierInstructionKind == evidence.InstructionExplicitlyHarmful {
		return Result{
			Mode:      ModeIncorrect,
			Reasoning: "carrier_instruction_kind is explicitly_harmful",
		}
	}

	if b.CarrierInstructionKind == evidence.InstructionBenignMissingGuardrails {
		return Result{
			Mode:      ModeIncomplete,
			Reasoning: "carrier_instruction_kind is benign_but_missing_guardrails",
		}
	}

	return Result{
		Mode:      ModeIncomplete,
		Reasoning: "no higher-priority rule matched; default classification",
	}
}

func formatSignals[T evidence.ConflictSignal | evidence.VaguenessSignal](prefix string, signals []T) string {
	out := prefix
	for _, s := range signals {
		out += "; " + evidence.ConflictSignal(s).Description
	}
	return out
}
