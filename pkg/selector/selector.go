// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selector implements the tiered injection selector (component
// I): a strictly-ordered, capped pipeline that assembles the warning
// bundle shown in a new carrier document. Every stage only appends; no
// stage reorders a previous stage's picks.
package selector

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attributeai/attribution-engine/pkg/confidence"
	"github.com/attributeai/attribution-engine/pkg/evidence"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/principlestore"
	"github.com/attributeai/attribution-engine/pkg/telemetry"
)

var selectorTracer = telemetry.Tracer("attribution.selector")

// TaskProfile describes the change being guided: what it touches, which
// technologies and task types it involves, and the caller's confidence
// in that classification.
type TaskProfile struct {
	Touches      []string
	Technologies []string
	TaskTypes    []string
	Confidence   float64
}

func overlapCount(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	n := 0
	for _, v := range a {
		if set[v] {
			n++
		}
	}
	return n
}

func anyOverlap(a, b []string) bool {
	return overlapCount(a, b) > 0
}

// WarningKind identifies which stage produced a Warning.
type WarningKind string

const (
	KindBaselinePrinciple    WarningKind = "baseline_principle"
	KindDerivedPrinciple     WarningKind = "derived_principle"
	KindProjectPattern       WarningKind = "project_pattern"
	KindCrossProjectPattern  WarningKind = "cross_project_pattern"
	KindLowConfidencePattern WarningKind = "low_confidence_fallback_pattern"
	KindProvisionalAlert     WarningKind = "provisional_alert"
)

// Warning is one entry in the ordered bundle the selector returns.
type Warning struct {
	Kind       WarningKind
	SourceID   string
	Priority   float64
	Category   string
	ConflictKey string
}

// PatternCandidate is a Pattern plus everything the selector and
// confidence model need but cannot derive from the Pattern alone: its
// project (for cross-project detection), whether it is linked to an
// aligned baseline principle (inferred-gate clause), and the occurrence
// stats driving the confidence/priority formulas.
type PatternCandidate struct {
	Pattern patternstore.Pattern

	Project string

	ActiveOccurrences int
	LastActiveAt      time.Time

	AlignedBaselineLinked   bool
	SuspectedSynthesisDrift bool
}

func (c PatternCandidate) touchOverlap(p TaskProfile) int  { return overlapCount(c.Pattern.Touches, p.Touches) }
func (c PatternCandidate) techOverlap(p TaskProfile) int   { return overlapCount(c.Pattern.Technologies, p.Technologies) }
func (c PatternCandidate) anyOverlap(p TaskProfile) bool {
	return anyOverlap(c.Pattern.Touches, p.Touches) ||
		anyOverlap(c.Pattern.Technologies, p.Technologies) ||
		anyOverlap(c.Pattern.TaskTypes, p.TaskTypes)
}

// passesInferredGate implements spec.md §4.I stage 3's gate on
// primaryCarrierQuoteType==inferred patterns: admitted only if any of
// activeOccurrences>=2, (severityMax in {HIGH,CRITICAL} and aligned
// baseline linked), or failureMode==missing_reference.
func (c PatternCandidate) passesInferredGate() bool {
	if c.Pattern.PrimaryCarrierQuoteType != evidence.QuoteInferred {
		return true
	}
	if c.ActiveOccurrences >= 2 {
		return true
	}
	if (c.Pattern.SeverityMax == evidence.SeverityHigh || c.Pattern.SeverityMax == evidence.SeverityCritical) && c.AlignedBaselineLinked {
		return true
	}
	if c.Pattern.FailureMode == "missing_reference" {
		return true
	}
	return false
}

// Input bundles everything Select needs for one (workspace, project)
// selector run.
type Input struct {
	ProjectActive bool

	Target  evidence.CarrierStage
	Profile TaskProfile

	MaxWarnings       int
	IncludeCrossProject bool

	BaselinePrinciples []principlestore.Principle
	DerivedPrinciples  []principlestore.Principle

	ProjectPatterns      []PatternCandidate
	CrossProjectPatterns []PatternCandidate // pre-scoped to other projects in the same workspace

	ProvisionalAlerts []outcomestore.ProvisionalAlert

	Now time.Time
}

const defaultMaxWarnings = 6

func (in Input) maxWarnings() int {
	if in.MaxWarnings > 0 {
		return in.MaxWarnings
	}
	return defaultMaxWarnings
}

type patternPick struct {
	candidate PatternCandidate
	kind      WarningKind
	priority  float64
	crossProject bool
}

// SelectWarnings is the traced entry point for callers that have a
// context (an HTTP handler, a PR comment renderer): it wraps Select in a
// span carrying the target stage, profile touches, and the size of the
// returned bundle, mirroring the orchestrator's own Attribute span.
// Select itself stays pure and context-free so the pipeline's unit tests
// don't need a tracer.
func SelectWarnings(ctx context.Context, in Input) []Warning {
	_, span := selectorTracer.Start(ctx, "selector.SelectWarnings", trace.WithAttributes(
		attribute.String("target", string(in.Target)),
		attribute.StringSlice("touches", in.Profile.Touches),
	))
	defer span.End()

	warnings := Select(in)
	span.SetAttributes(attribute.Int("warning_count", len(warnings)))
	for _, w := range warnings {
		telemetry.InjectionWarningsTotal.WithLabelValues(string(w.Kind)).Inc()
	}
	return warnings
}

// Select runs the full 8-stage pipeline and returns the ordered warning
// bundle.
func Select(in Input) []Warning {
	if !in.ProjectActive {
		return nil
	}

	var warnings []Warning
	maxCap := in.maxWarnings()

	// Stage 1: baseline principles.
	baseline := filterPrinciples(in.BaselinePrinciples, in.Target, in.Profile)
	sort.Slice(baseline, func(i, j int) bool {
		oi, oj := baseline[i].TouchOverlapCount(in.Profile.Touches), baseline[j].TouchOverlapCount(in.Profile.Touches)
		if oi != oj {
			return oi > oj
		}
		return baseline[i].ID < baseline[j].ID
	})
	baselineTake := 1
	if in.Profile.Confidence < 0.5 {
		baselineTake = 2
	}
	for i := 0; i < baselineTake && i < len(baseline) && len(warnings) < maxCap; i++ {
		warnings = append(warnings, Warning{Kind: KindBaselinePrinciple, SourceID: baseline[i].ID, Priority: 1.0})
	}

	// Stage 2: derived principles.
	derived := filterPrinciples(in.DerivedPrinciples, in.Target, in.Profile)
	sort.Slice(derived, func(i, j int) bool {
		oi, oj := derived[i].TouchOverlapCount(in.Profile.Touches), derived[j].TouchOverlapCount(in.Profile.Touches)
		if oi != oj {
			return oi > oj
		}
		if derived[i].Confidence != derived[j].Confidence {
			return derived[i].Confidence > derived[j].Confidence
		}
		if !derived[i].UpdatedAt.Equal(derived[j].UpdatedAt) {
			return derived[i].UpdatedAt.After(derived[j].UpdatedAt)
		}
		return derived[i].ID < derived[j].ID
	})
	for i := 0; i < 1 && i < len(derived) && len(warnings) < maxCap; i++ {
		warnings = append(warnings, Warning{Kind: KindDerivedPrinciple, SourceID: derived[i].ID, Priority: 0.95})
	}

	// Stage 3: project patterns.
	var projectCandidates []PatternCandidate
	matchedKeys := make(map[string]bool)
	for _, c := range in.ProjectPatterns {
		if c.Pattern.CarrierStage != in.Target {
			continue
		}
		if !c.anyOverlap(in.Profile) {
			continue
		}
		if !c.passesInferredGate() {
			continue
		}
		projectCandidates = append(projectCandidates, c)
		matchedKeys[c.Pattern.PatternKey] = true
	}

	// Stage 4: cross-project patterns (opt-in).
	var crossCandidates []PatternCandidate
	if in.IncludeCrossProject {
		for _, c := range in.CrossProjectPatterns {
			if matchedKeys[c.Pattern.PatternKey] {
				continue
			}
			if c.Pattern.SeverityMax.Rank() < evidence.SeverityHigh.Rank() {
				continue
			}
			if c.Pattern.FindingCategory != evidence.ScoutSecurity {
				continue
			}
			touchOverlap := c.touchOverlap(in.Profile)
			techOverlap := c.techOverlap(in.Profile)
			if !(touchOverlap >= 2 || (touchOverlap >= 1 && techOverlap >= 1)) {
				continue
			}
			crossCandidates = append(crossCandidates, c)
		}
	}

	scorePattern := func(c PatternCandidate, crossProject bool) float64 {
		conf := confidence.AttributionConfidence(confidence.AttributionConfidenceInput{
			QuoteType:               c.Pattern.PrimaryCarrierQuoteType,
			Permanent:               c.Pattern.Permanent,
			SuspectedSynthesisDrift: c.SuspectedSynthesisDrift,
			Stats:                   confidence.Stats{ActiveOccurrences: c.ActiveOccurrences, LastActiveAt: c.LastActiveAt},
			Now:                     in.Now,
		})
		return confidence.InjectionPriority(confidence.InjectionPriorityInput{
			AttributionConfidence: conf,
			SeverityMax:           c.Pattern.SeverityMax,
			TouchOverlaps:         c.touchOverlap(in.Profile),
			TechOverlaps:          c.techOverlap(in.Profile),
			LastActiveAt:          c.LastActiveAt,
			Now:                   in.Now,
			CrossProject:          crossProject,
		})
	}

	daysSinceLastActive := func(c PatternCandidate) float64 {
		if c.LastActiveAt.IsZero() {
			return 1 << 30
		}
		return in.Now.Sub(c.LastActiveAt).Hours() / 24.0
	}

	var allPicks []patternPick
	for _, c := range projectCandidates {
		allPicks = append(allPicks, patternPick{candidate: c, kind: KindProjectPattern, priority: scorePattern(c, false)})
	}
	for _, c := range crossCandidates {
		allPicks = append(allPicks, patternPick{candidate: c, kind: KindCrossProjectPattern, priority: scorePattern(c, true), crossProject: true})
	}

	var security, nonSecurity []patternPick
	for _, p := range allPicks {
		if p.candidate.Pattern.FindingCategory == evidence.ScoutSecurity {
			security = append(security, p)
		} else {
			nonSecurity = append(nonSecurity, p)
		}
	}

	sortPicks := func(picks []patternPick) {
		sort.Slice(picks, func(i, j int) bool {
			if picks[i].priority != picks[j].priority {
				return picks[i].priority > picks[j].priority
			}
			ri, rj := picks[i].candidate.Pattern.SeverityMax.Rank(), picks[j].candidate.Pattern.SeverityMax.Rank()
			if ri != rj {
				return ri > rj
			}
			di, dj := daysSinceLastActive(picks[i].candidate), daysSinceLastActive(picks[j].candidate)
			if di != dj {
				return di < dj
			}
			return picks[i].candidate.Pattern.ID < picks[j].candidate.Pattern.ID
		})
	}
	sortPicks(security)
	sortPicks(nonSecurity)

	selected := make(map[string]bool)

	// Stage 5: security first, up to 3.
	secTaken := 0
	for _, p := range security {
		if secTaken >= 3 || len(warnings) >= maxCap {
			break
		}
		warnings = append(warnings, toWarning(p))
		selected[p.candidate.Pattern.ID] = true
		secTaken++
	}

	// Stage 6: fill remaining non-security, respecting the overall cap.
	for _, p := range nonSecurity {
		if len(warnings) >= maxCap {
			break
		}
		warnings = append(warnings, toWarning(p))
		selected[p.candidate.Pattern.ID] = true
	}

	// Stage 7: low-confidence fallback.
	if in.Profile.Confidence < 0.5 && len(warnings) < maxCap {
		var fallbackPool []patternPick
		for _, p := range allPicks {
			if selected[p.candidate.Pattern.ID] {
				continue
			}
			sev := p.candidate.Pattern.SeverityMax
			if sev != evidence.SeverityHigh && sev != evidence.SeverityCritical {
				continue
			}
			fallbackPool = append(fallbackPool, p)
		}
		sortPicks(fallbackPool)
		taken := 0
		for _, p := range fallbackPool {
			if taken >= 2 || len(warnings) >= maxCap {
				break
			}
			scaled := p
			scaled.priority *= 0.8
			scaled.kind = KindLowConfidencePattern
			warnings = append(warnings, toWarning(scaled))
			selected[p.candidate.Pattern.ID] = true
			taken++
		}
	}

	// Stage 8: provisional alerts — additive, not counted against the cap.
	var alerts []outcomestore.ProvisionalAlert
	for _, a := range in.ProvisionalAlerts {
		if a.Status != outcomestore.AlertActive {
			continue
		}
		if !in.Now.Before(a.ExpiresAt) {
			continue
		}
		if a.InjectInto != string(InjectBoth) && a.InjectInto != string(in.Target) {
			continue
		}
		if !anyOverlap(a.Touches, in.Profile.Touches) {
			continue
		}
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	for _, a := range alerts {
		warnings = append(warnings, Warning{Kind: KindProvisionalAlert, SourceID: a.ID, Priority: 0.9})
	}

	return warnings
}

// InjectBoth re-exports principlestore.InjectBoth so its string value can
// be compared with ProvisionalAlert.InjectInto, which is a plain string
// field in outcomestore, not a principlestore.InjectInto.
const InjectBoth principlestore.InjectInto = principlestore.InjectBoth

func toWarning(p patternPick) Warning {
	return Warning{
		Kind:        p.kind,
		SourceID:    p.candidate.Pattern.ID,
		Priority:    p.priority,
		Category:    string(p.candidate.Pattern.FindingCategory),
		ConflictKey: p.candidate.Pattern.PatternKey,
	}
}

func filterPrinciples(principles []principlestore.Principle, target evidence.CarrierStage, profile TaskProfile) []principlestore.Principle {
	var out []principlestore.Principle
	for _, p := range principles {
		if p.InjectInto != principlestore.InjectBoth && string(p.InjectInto) != string(target) {
			continue
		}
		if !anyOverlap(p.Touches, profile.Touches) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ResolveConflicts is the optional post-processor (spec.md §4.I
// "Conflict resolution"): groups warnings sharing conflictKey(w) and
// keeps one per group by fixed category precedence
// security(5) > privacy(4) > backcompat(3) > correctness(2) > other(1),
// tie-broken by the higher original Priority.
func ResolveConflicts(warnings []Warning, conflictKey func(Warning) string) []Warning {
	groups := make(map[string][]Warning)
	var order []string
	for _, w := range warnings {
		key := conflictKey(w)
		if key == "" {
			// No conflict key: passes through ungrouped, using the warning's
			// own identity as a unique group.
			key = "__none__:" + w.SourceID
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], w)
	}

	var out []Warning
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		best := group[0]
		for _, w := range group[1:] {
			if categoryPrecedence(w.Category) > categoryPrecedence(best.Category) {
				best = w
				continue
			}
			if categoryPrecedence(w.Category) == categoryPrecedence(best.Category) && w.Priority > best.Priority {
				best = w
			}
		}
		out = append(out, best)
	}
	return out
}

func categoryPrecedence(category string) int {
	switch category {
	case "security":
		return 5
	case "privacy":
		return 4
	case "backcompat":
		return 3
	case "correctness":
		return 2
	default:
		return 1
	}
}
