// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evidence holds the normalised boundary types the engine reads
// from its external collaborators: the Finding schema (§6), the
// EvidenceBundle the Attribution Agent produces (§3), and DocFingerprint.
//
// Every type here carries `validate` struct tags and a Validate method;
// this is the engine's single boundary validator (design note: "Pervasive
// runtime schema validation ... should be replaced with compile-time types
// plus a single boundary validator").
package evidence

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var engineValidate = validator.New()

// Severity is a finding or pattern severity level.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// severityRank orders Severity for comparisons per §8's
// "severityRank(o.severity) <= severityRank(p.severityMax)" invariant.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal rank of a severity (higher is more severe).
// Unknown severities rank below SeverityLow.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// MaxSeverity returns the higher-ranked of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ScoutType identifies which kind of review agent produced a Finding.
type ScoutType string

const (
	ScoutAdversarial ScoutType = "adversarial"
	ScoutSecurity    ScoutType = "security"
	ScoutBugs        ScoutType = "bugs"
	ScoutTests       ScoutType = "tests"
	ScoutDocs        ScoutType = "docs"
	ScoutSpec        ScoutType = "spec"
	ScoutDecisions   ScoutType = "decisions"
)

var validScoutTypes = map[ScoutType]bool{
	ScoutAdversarial: true,
	ScoutSecurity:    true,
	ScoutBugs:        true,
	ScoutTests:       true,
	ScoutDocs:        true,
	ScoutSpec:        true,
	ScoutDecisions:   true,
}

// Location pinpoints a finding within a file.
type Location struct {
	File string `json:"file" validate:"required"`
	Line *int   `json:"line,omitempty" validate:"omitempty,gte=0"`
}

// Finding is the external collaborator input schema from spec.md §6.
type Finding struct {
	ID          string    `json:"id" validate:"required"`
	IssueID     string    `json:"issue_id" validate:"required"`
	PRNumber    int       `json:"pr_number" validate:"required,gte=1"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	ScoutType   ScoutType `json:"scout_type" validate:"required"`
	Severity    Severity  `json:"severity" validate:"required"`
	Evidence    string    `json:"evidence"`
	Location    Location  `json:"location" validate:"required"`
}

// Validate enforces the Finding schema, including the closed enum sets
// that `validate` struct tags can't express as Go types (ScoutType,
// Severity are string types, not Go enums with compiler-checked values).
func (f *Finding) Validate() error {
	if err := engineValidate.Struct(f); err != nil {
		return err
	}
	if !validScoutTypes[f.ScoutType] {
		return fmt.Errorf("finding %s: invalid scout_type %q", f.ID, f.ScoutType)
	}
	if !f.Severity.Valid() {
		return fmt.Errorf("finding %s: invalid severity %q", f.ID, f.Severity)
	}
	return nil
}

// CarrierStage identifies which carrier document a quote came from.
type CarrierStage string

const (
	CarrierContextPack CarrierStage = "context-pack"
	CarrierSpec        CarrierStage = "spec"
)

// CarrierQuoteType ranks the fidelity of the quoted carrier text.
type CarrierQuoteType string

const (
	QuoteVerbatim   CarrierQuoteType = "verbatim"
	QuoteParaphrase CarrierQuoteType = "paraphrase"
	QuoteInferred   CarrierQuoteType = "inferred"
)

var quoteQualityRank = map[CarrierQuoteType]int{
	QuoteInferred:   0,
	QuoteParaphrase: 1,
	QuoteVerbatim:   2,
}

// Rank orders quote types by quality (verbatim > paraphrase > inferred).
func (q CarrierQuoteType) Rank() int {
	if r, ok := quoteQualityRank[q]; ok {
		return r
	}
	return -1
}

// Valid reports whether q is a known quote type.
func (q CarrierQuoteType) Valid() bool {
	_, ok := quoteQualityRank[q]
	return ok
}

// BetterThan reports whether q is strictly higher quality than other.
func (q CarrierQuoteType) BetterThan(other CarrierQuoteType) bool {
	return q.Rank() > other.Rank()
}

// CarrierInstructionKind classifies the nature of the carrier instruction.
type CarrierInstructionKind string

const (
	InstructionExplicitlyHarmful         CarrierInstructionKind = "explicitly_harmful"
	InstructionBenignMissingGuardrails   CarrierInstructionKind = "benign_but_missing_guardrails"
	InstructionDescriptive               CarrierInstructionKind = "descriptive"
	InstructionUnknown                   CarrierInstructionKind = "unknown"
)

// FingerprintKind identifies the kind of external document a DocFingerprint
// points at. The core never resolves fingerprints; it only stores them.
type FingerprintKind string

const (
	FingerprintGit      FingerprintKind = "git"
	FingerprintLinear   FingerprintKind = "linear"
	FingerprintWeb      FingerprintKind = "web"
	FingerprintExternal FingerprintKind = "external"
)

// DocFingerprint opaquely identifies a carrier or origin document.
type DocFingerprint struct {
	Kind FingerprintKind `json:"kind" validate:"required"`
	// Identity carries the kind-specific identity fields as an opaque map
	// (commit SHA + path for git, issue key for linear, URL + fetch time
	// for web, an opaque external id otherwise). The core never interprets
	// these; it only stores and rehashes them.
	Identity map[string]string `json:"identity"`
}

// ConflictSignal records one detected conflict between sources.
type ConflictSignal struct {
	Description string `json:"description"`
}

// VaguenessSignal records one detected ambiguity in the carrier text.
type VaguenessSignal struct {
	Description string `json:"description"`
}

// EvidenceBundle is the Attribution Agent's structured output (spec.md §3/§6).
type EvidenceBundle struct {
	CarrierStage             CarrierStage           `json:"carrier_stage" validate:"required"`
	CarrierQuote             string                 `json:"carrier_quote" validate:"required"`
	CarrierQuoteType         CarrierQuoteType       `json:"carrier_quote_type" validate:"required"`
	CarrierInstructionKind   CarrierInstructionKind `json:"carrier_instruction_kind" validate:"required"`
	HasCitation              bool                   `json:"has_citation"`
	SourceRetrievable        bool                   `json:"source_retrievable"`
	SourceAgreesWithCarrier  *bool                  `json:"source_agrees_with_carrier,omitempty"`
	MandatoryDocMissing      bool                   `json:"mandatory_doc_missing"`
	HasTestableAcceptanceCriteria bool              `json:"has_testable_acceptance_criteria"`
	ConflictSignals          []ConflictSignal       `json:"conflict_signals,omitempty"`
	VaguenessSignals         []VaguenessSignal      `json:"vagueness_signals,omitempty"`

	// CitedSources lists any retrievable sources cited by the carrier, used
	// to build the occurrence's provenance chain (carrier first, then any
	// retrievable cited sources).
	CitedSources []DocFingerprint `json:"cited_sources,omitempty"`
}

// Validate enforces the EvidenceBundle schema and the closed enum sets.
func (b *EvidenceBundle) Validate() error {
	if err := engineValidate.Struct(b); err != nil {
		return err
	}
	if b.CarrierStage != CarrierContextPack && b.CarrierStage != CarrierSpec {
		return fmt.Errorf("invalid carrier_stage %q", b.CarrierStage)
	}
	if !b.CarrierQuoteType.Valid() {
		return fmt.Errorf("invalid carrier_quote_type %q", b.CarrierQuoteType)
	}
	switch b.CarrierInstructionKind {
	case InstructionExplicitlyHarmful, InstructionBenignMissingGuardrails, InstructionDescriptive, InstructionUnknown:
	default:
		return fmt.Errorf("invalid carrier_instruction_kind %q", b.CarrierInstructionKind)
	}
	return nil
}
