// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package confidence implements the confidence & priority model
// (component H): stateless formulas over a Pattern and its derived
// PatternStats. Scores are never persisted; every caller recomputes them
// on demand from the occurrence log.
package confidence

import (
	"time"

	"github.com/attributeai/attribution-engine/pkg/evidence"
)

// Stats is the set of aggregates the formulas below read, derived by the
// caller from the occurrence log (total/active occurrence counts, last
// active time, injection count, adherence rate).
type Stats struct {
	ActiveOccurrences int
	TotalOccurrences  int
	LastActiveAt      time.Time
	InjectionCount    int
	AdherenceRate     float64
}

var evidenceQualityBase = map[evidence.CarrierQuoteType]float64{
	evidence.QuoteVerbatim:   0.75,
	evidence.QuoteParaphrase: 0.55,
	evidence.QuoteInferred:   0.40,
}

var severityWeight = map[evidence.Severity]float64{
	evidence.SeverityCritical: 1.0,
	evidence.SeverityHigh:     0.9,
	evidence.SeverityMedium:   0.7,
	evidence.SeverityLow:      0.5,
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AttributionConfidenceInput bundles the pattern attributes and modifiers
// the formula needs, decoupled from pkg/patternstore to avoid an import
// cycle (patternstore has no dependency on confidence).
type AttributionConfidenceInput struct {
	QuoteType               evidence.CarrierQuoteType
	Permanent                bool
	SuspectedSynthesisDrift bool
	Stats                   Stats
	Now                     time.Time
}

// AttributionConfidence implements spec.md §4.H:
//
//	evidenceQualityBase: verbatim=0.75 | paraphrase=0.55 | inferred=0.40
//	occurrenceBoost = min(activeOccurrences-1, 5) * 0.05
//	decayPenalty = min(daysSinceLastActive/90, 1.0) * 0.15, only if !permanent
//	modifier -0.15 if suspectedSynthesisDrift
//	attributionConfidence = clamp(base + boost - decay + modifiers, 0, 1)
func AttributionConfidence(in AttributionConfidenceInput) float64 {
	base := evidenceQualityBase[in.QuoteType]

	boost := float64(in.Stats.ActiveOccurrences - 1)
	if boost > 5 {
		boost = 5
	}
	if boost < 0 {
		boost = 0
	}
	boost *= 0.05

	var decay float64
	if !in.Permanent {
		days := daysSince(in.Stats.LastActiveAt, in.Now)
		ratio := days / 90.0
		if ratio > 1.0 {
			ratio = 1.0
		}
		if ratio < 0 {
			ratio = 0
		}
		decay = ratio * 0.15
	}

	modifier := 0.0
	if in.SuspectedSynthesisDrift {
		modifier = -0.15
	}

	return clamp01(base + boost - decay + modifier)
}

func daysSince(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return now.Sub(t).Hours() / 24.0
}

// InjectionPriorityInput bundles the inputs to the priority formula.
type InjectionPriorityInput struct {
	AttributionConfidence float64
	SeverityMax           evidence.Severity
	TouchOverlaps         int
	TechOverlaps          int
	LastActiveAt          time.Time
	Now                   time.Time
	CrossProject          bool
}

// InjectionPriority implements spec.md §4.H:
//
//	injectionPriority = confidence * severityWeight * relevanceWeight *
//	                     recencyWeight * crossProjectMultiplier
//	severityWeight: CRITICAL=1.0 HIGH=0.9 MEDIUM=0.7 LOW=0.5
//	relevanceWeight = min(1.0 + 0.15*touchOverlaps + 0.05*techOverlaps, 1.5)
//	recencyWeight: <=7d -> 1.0; <=30d -> 0.95; <=90d -> 0.9; else 0.8;
//	               no last-active time -> 0.8
//	crossProjectMultiplier = 0.95 if pulled from another project, else 1.0
func InjectionPriority(in InjectionPriorityInput) float64 {
	sw := severityWeight[in.SeverityMax]

	relevance := 1.0 + 0.15*float64(in.TouchOverlaps) + 0.05*float64(in.TechOverlaps)
	if relevance > 1.5 {
		relevance = 1.5
	}

	recency := recencyWeight(in.LastActiveAt, in.Now)

	crossProject := 1.0
	if in.CrossProject {
		crossProject = 0.95
	}

	return in.AttributionConfidence * sw * relevance * recency * crossProject
}

func recencyWeight(lastActive, now time.Time) float64 {
	if lastActive.IsZero() {
		return 0.8
	}
	days := daysSince(lastActive, now)
	switch {
	case days <= 7:
		return 1.0
	case days <= 30:
		return 0.95
	case days <= 90:
		return 0.9
	default:
		return 0.8
	}
}
