// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patternstore holds the Pattern and PatternOccurrence domain
// types (component B) and their content-addressing and monotonicity
// rules. The package is storage-agnostic: it has no persistence of its
// own and is driven entirely by pkg/scopedstore, which enforces the
// cross-entity invariants (uniqueness, foreign keys, append-only writes)
// against in-memory or Badger-backed state.
package patternstore

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/attributeai/attribution-engine/pkg/evidence"
)

// Status is a Pattern's lifecycle state (spec.md §4 state machine:
// active -> archived | superseded, terminal).
type Status string

const (
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusSuperseded Status = "superseded"
)

// OccurrenceStatus is a PatternOccurrence's lifecycle state. Unlike
// Status, an occurrence never terminates; "inactive" occurrences remain
// in the append-only log and keep contributing to provenance, they just
// stop counting in a pattern's active-occurrence statistics. SeverityMax
// is not lowered when one goes inactive (see design note (a)).
type OccurrenceStatus string

const (
	OccurrenceActive   OccurrenceStatus = "active"
	OccurrenceInactive OccurrenceStatus = "inactive"
)

// InactiveReason records why an occurrence was marked inactive.
type InactiveReason string

const (
	InactiveReasonNone             InactiveReason = ""
	InactiveReasonSourceFixed      InactiveReason = "source_fixed"
	InactiveReasonDuplicateFinding InactiveReason = "duplicate_finding"
	InactiveReasonFalsePositive    InactiveReason = "false_positive"
)

// Adherence is the tri-valued wasAdheredTo field (Open Question (c)):
// true/false/unknown, not a nullable bool.
type Adherence string

const (
	AdherenceUnknown Adherence = "unknown"
	AdherenceTrue    Adherence = "true"
	AdherenceFalse   Adherence = "false"
)

// ComputePatternKey implements spec.md §3's content address:
// patternKey = SHA-256(carrierStage || normalisedContent || findingCategory).
// normalisedContent is lower-cased and has runs of whitespace collapsed so
// that cosmetic reformatting of the same guidance does not mint a new key.
func ComputePatternKey(carrierStage evidence.CarrierStage, content string, findingCategory evidence.ScoutType) string {
	h := sha256.New()
	h.Write([]byte(carrierStage))
	h.Write([]byte{0})
	h.Write([]byte(normalise(content)))
	h.Write([]byte{0})
	h.Write([]byte(findingCategory))
	return hex.EncodeToString(h.Sum(nil))
}

func normalise(content string) string {
	fields := strings.Fields(strings.ToLower(content))
	return strings.Join(fields, " ")
}

// Pattern is the canonical, deduplicated record of a carrier fragment
// judged harmful (spec.md §3).
type Pattern struct {
	ID         string `json:"id"`
	Workspace  string `json:"workspace"`
	Project    string `json:"project"`
	PatternKey string `json:"pattern_key"`

	// patternContent is immutable after creation; it is the carrier
	// fragment as quoted, and patternKey hashes its normalised form.
	PatternContent string               `json:"pattern_content"`
	CarrierStage   evidence.CarrierStage `json:"carrier_stage"`
	FindingCategory evidence.ScoutType  `json:"finding_category"`

	// SeverityMax is the running maximum severity across every occurrence
	// that has ever been active (Open Question (a)): it is never
	// recomputed downward when an occurrence is later inactivated.
	SeverityMax evidence.Severity `json:"severity_max"`

	// PrimaryCarrierQuoteType only ever upgrades toward higher quality
	// (verbatim > paraphrase > inferred); see ApplyOccurrence.
	PrimaryCarrierQuoteType evidence.CarrierQuoteType `json:"primary_carrier_quote_type"`

	FailureMode string `json:"failure_mode"`

	Status     Status `json:"status"`
	Permanent  bool   `json:"permanent"`

	Touches      []string `json:"touches"`
	Technologies []string `json:"technologies"`
	TaskTypes    []string `json:"task_types"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyOccurrence folds a new occurrence's severity and quote type into
// the pattern's monotonic aggregates. It never lowers SeverityMax and
// never downgrades PrimaryCarrierQuoteType; callers invoke this exactly
// once per newly-created active occurrence, before persisting.
func (p *Pattern) ApplyOccurrence(severity evidence.Severity, quoteType evidence.CarrierQuoteType) {
	p.SeverityMax = evidence.MaxSeverity(p.SeverityMax, severity)
	if quoteType.BetterThan(p.PrimaryCarrierQuoteType) {
		p.PrimaryCarrierQuoteType = quoteType
	}
}

// PatternOccurrence is one append-only attribution instance linking a
// Finding to a Pattern (spec.md §3).
type PatternOccurrence struct {
	ID        string `json:"id"`
	PatternID string `json:"pattern_id"`
	Workspace string `json:"workspace"`
	Project   string `json:"project"`

	FindingID string                 `json:"finding_id"`
	Evidence  evidence.EvidenceBundle `json:"evidence"`

	// GuidanceLocation mirrors Request.GuidanceLocation at the time this
	// occurrence was appended. The evidence bundle carries the quote but
	// not where it lives in the carrier document; the batch salience
	// detector (K) groups occurrences by (Evidence.CarrierStage,
	// GuidanceLocation) to find guidance that keeps being ignored, the
	// same locationHash inputs the synchronous noncompliance path uses.
	GuidanceLocation string `json:"guidance_location"`

	CarrierFingerprint evidence.DocFingerprint   `json:"carrier_fingerprint"`
	OriginFingerprint  *evidence.DocFingerprint  `json:"origin_fingerprint,omitempty"`
	// Provenance is the fingerprint chain in order: carrier first, then
	// any retrievable cited sources (spec.md §4.G step 9).
	Provenance []evidence.DocFingerprint `json:"provenance"`

	CarrierExcerptHash string `json:"carrier_excerpt_hash"`
	OriginExcerptHash  string `json:"origin_excerpt_hash,omitempty"`

	Severity evidence.Severity `json:"severity"`

	// Mutable fields (the only ones an append-only occurrence may ever
	// change after creation, per spec.md §3):
	Status         OccurrenceStatus `json:"status"`
	InactiveReason InactiveReason   `json:"inactive_reason,omitempty"`
	WasInjected    bool             `json:"was_injected"`
	WasAdheredTo   Adherence        `json:"was_adhered_to"`

	CreatedAt time.Time `json:"created_at"`
}

// ExcerptHash hashes a carrier or origin excerpt so later re-reads of the
// source document can detect drift without storing the full text twice.
func ExcerptHash(excerpt string) string {
	sum := sha256.Sum256([]byte(excerpt))
	return hex.EncodeToString(sum[:])
}

// BuildProvenance assembles the fingerprint chain: the carrier fingerprint
// first, followed by every cited source in the evidence bundle, in the
// order the Attribution Agent returned them.
func BuildProvenance(carrier evidence.DocFingerprint, cited []evidence.DocFingerprint) []evidence.DocFingerprint {
	chain := make([]evidence.DocFingerprint, 0, len(cited)+1)
	chain = append(chain, carrier)
	chain = append(chain, cited...)
	return chain
}
