// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evolution implements the evolution processors (component K):
// three independent batch jobs that run against every registered project
// on a schedule external to any single Attribute call (spec.md §4.K):
//
//   - confidence decay: archives non-permanent active Patterns whose
//     recomputed attributionConfidence has fallen below the decay
//     threshold. Archival is the sole path a Pattern leaves "active" by
//     age rather than by a human superseding it; Patterns are never
//     deleted.
//   - salience detection: finds guidance locations that keep getting
//     injected and ignored, and opens a SalienceIssue for any that don't
//     already have one pending.
//   - alert expiry: closes ProvisionalAlerts past their expiry, promoting
//     to a Pattern any that meet the §4.K promotion gate, marking the
//     rest expired.
//
// Each job re-reads its target rows inside its own scopedstore.WithProjectTx
// call rather than working off a snapshot taken before the fan-out started,
// so a batch run tolerates interleaving with live attribution traffic and
// can be cancelled and retried without leaving partial state (spec.md §5).
// Per-project work fans out concurrently via errgroup, grounded on
// services/trace/analysis/enhanced_analyzer.go's runPriorityGroup: a
// pre-indexed result slot per item, non-fatal per-item error capture, so
// one project's failure never aborts the rest of the run.
package evolution

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/attributeai/attribution-engine/pkg/clock"
	"github.com/attributeai/attribution-engine/pkg/confidence"
	"github.com/attributeai/attribution-engine/pkg/events"
	"github.com/attributeai/attribution-engine/pkg/evidence"
	"github.com/attributeai/attribution-engine/pkg/idgen"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/scopedstore"
	"github.com/attributeai/attribution-engine/pkg/telemetry"
)

// decayConfidenceThreshold is the attributionConfidence floor below which
// a non-permanent active Pattern is archived (spec.md §4.K).
const decayConfidenceThreshold = 0.20

// salienceLookback and salienceMinIgnored implement spec.md §4.K's
// salience-detection rule: a guidance location with at least this many
// injected-but-ignored occurrences within this window, and no pending
// SalienceIssue yet, gets one opened.
const (
	salienceLookback   = 30 * 24 * time.Hour
	salienceMinIgnored = 3
)

// Processor runs the three evolution batch jobs. Every collaborator is an
// explicit constructor argument, the same discipline pkg/orchestrator
// uses, so tests can swap in scopedstore.NewInMemoryStore and
// clock.Fixed/idgen.Sequential for determinism.
type Processor struct {
	store  scopedstore.Store
	clock  clock.Clock
	ids    idgen.Source
	bus    *events.Bus
	tracer trace.Tracer
	logger *slog.Logger
}

// New builds a Processor. bus, tracer, and logger may all be nil: a nil
// bus means events are simply not published (the emit surface is
// optional, spec.md §6), a nil tracer falls back to
// telemetry.Tracer("attribution.evolution"), and a nil logger falls back
// to slog.Default().
func New(store scopedstore.Store, clk clock.Clock, ids idgen.Source, bus *events.Bus, tracer trace.Tracer, logger *slog.Logger) *Processor {
	if tracer == nil {
		tracer = telemetry.Tracer("attribution.evolution")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, clock: clk, ids: ids, bus: bus, tracer: tracer, logger: logger}
}

// ProjectReport is one project's contribution to a RunAll Report. Err is
// non-nil if any of the three jobs failed for this project; the other
// counts reflect whatever completed before the failure.
type ProjectReport struct {
	Workspace             string
	Project               string
	PatternsArchived      int
	SalienceIssuesOpened  int
	AlertsExpired         int
	AlertsPromoted        int
	Err                   error
}

// Report is the outcome of one RunAll call.
type Report struct {
	Projects []ProjectReport
}

// TotalPatternsArchived sums PatternsArchived across every project.
func (r Report) TotalPatternsArchived() int {
	total := 0
	for _, pr := range r.Projects {
		total += pr.PatternsArchived
	}
	return total
}

// RunAll fans the three batch jobs out across every registered project
// concurrently. A per-project failure is captured in that project's
// ProjectReport.Err and does not abort the other projects' work; RunAll
// itself only returns a non-nil error if listing projects fails outright.
func (p *Processor) RunAll(ctx context.Context) (Report, error) {
	ctx, span := p.tracer.Start(ctx, "evolution.RunAll")
	defer span.End()

	projects, err := p.store.ListProjects(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list projects failed")
		return Report{}, err
	}

	reports := make([]ProjectReport, len(projects))
	g, gCtx := errgroup.WithContext(ctx)
	for i, proj := range projects {
		i, proj := i, proj
		g.Go(func() error {
			reports[i] = p.runProject(gCtx, proj.Workspace, proj.Project)
			return nil
		})
	}
	// g.Wait's error is always nil here: per-project failures are recorded
	// on that project's ProjectReport rather than failing the whole batch.
	_ = g.Wait()

	span.SetAttributes(attribute.Int("projects", len(projects)))
	return Report{Projects: reports}, nil
}

// runProject runs all three jobs for one project, each inside its own
// transaction, so a failure partway through (e.g. salience detection)
// still leaves the confidence-decay job's archival committed.
func (p *Processor) runProject(ctx context.Context, workspace, project string) ProjectReport {
	report := ProjectReport{Workspace: workspace, Project: project}

	if err := p.store.WithProjectTx(ctx, workspace, project, func(tx scopedstore.ProjectTx) error {
		n, err := p.decayPatterns(tx, p.clock.Now())
		report.PatternsArchived = n
		return err
	}); err != nil {
		report.Err = err
		p.logger.Error("confidence decay failed", "workspace", workspace, "project", project, "error", err)
		return report
	}

	if err := p.store.WithProjectTx(ctx, workspace, project, func(tx scopedstore.ProjectTx) error {
		n, err := p.detectSalience(ctx, tx, p.clock.Now())
		report.SalienceIssuesOpened = n
		return err
	}); err != nil {
		report.Err = err
		p.logger.Error("salience detection failed", "workspace", workspace, "project", project, "error", err)
		return report
	}

	if err := p.store.WithProjectTx(ctx, workspace, project, func(tx scopedstore.ProjectTx) error {
		expired, promoted, err := p.expireAlerts(ctx, tx, p.clock.Now())
		report.AlertsExpired = expired
		report.AlertsPromoted = promoted
		return err
	}); err != nil {
		report.Err = err
		p.logger.Error("alert expiry failed", "workspace", workspace, "project", project, "error", err)
		return report
	}

	return report
}

// decayPatterns archives every non-permanent active Pattern whose
// recomputed attributionConfidence has fallen below
// decayConfidenceThreshold. Stats are derived fresh from the occurrence
// log on every run; nothing is cached across batch runs.
func (p *Processor) decayPatterns(tx scopedstore.ProjectTx, now time.Time) (int, error) {
	patterns, err := tx.ListPatterns()
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, pat := range patterns {
		if pat.Status != patternstore.StatusActive || pat.Permanent {
			continue
		}

		occs, err := tx.ListOccurrencesByPattern(pat.ID)
		if err != nil {
			return archived, err
		}

		stats := deriveStats(occs)
		conf := confidence.AttributionConfidence(confidence.AttributionConfidenceInput{
			QuoteType: pat.PrimaryCarrierQuoteType,
			Permanent: pat.Permanent,
			// The batch job has no live carrier document to re-diff against
			// (selector.PatternCandidate.SuspectedSynthesisDrift is supplied
			// by a caller that does have one); the closest proxy available
			// from the occurrence log alone is a pattern that keeps getting
			// injected and never adhered to, which is folded in here rather
			// than left permanently at the formula's quote-quality/decay
			// floor.
			SuspectedSynthesisDrift: suspectedDrift(stats),
			Stats:                   stats,
			Now:                     now,
		})
		if conf >= decayConfidenceThreshold {
			continue
		}

		pat.Status = patternstore.StatusArchived
		pat.UpdatedAt = now
		if err := tx.PutPattern(pat); err != nil {
			return archived, err
		}
		archived++
		telemetry.PatternsArchivedTotal.WithLabelValues(string(pat.FindingCategory)).Inc()
	}
	return archived, nil
}

// deriveStats builds a confidence.Stats from a pattern's occurrence log.
func deriveStats(occs []patternstore.PatternOccurrence) confidence.Stats {
	var s confidence.Stats
	var adhered int
	for _, o := range occs {
		s.TotalOccurrences++
		if o.Status == patternstore.OccurrenceActive {
			s.ActiveOccurrences++
			if o.CreatedAt.After(s.LastActiveAt) {
				s.LastActiveAt = o.CreatedAt
			}
		}
		if o.WasInjected {
			s.InjectionCount++
			if o.WasAdheredTo == patternstore.AdherenceTrue {
				adhered++
			}
		}
	}
	if s.InjectionCount > 0 {
		s.AdherenceRate = float64(adhered) / float64(s.InjectionCount)
	}
	return s
}

// suspectedDrift is the decay processor's batch-time proxy for
// selector.PatternCandidate.SuspectedSynthesisDrift: a pattern injected
// at least salienceMinIgnored times with zero adherence looks the same
// to operators whether the carrier text drifted out from under it or the
// guidance was simply always wrong, so it is penalised the same way.
func suspectedDrift(s confidence.Stats) bool {
	return s.InjectionCount >= salienceMinIgnored && s.AdherenceRate == 0
}

// salienceKey groups occurrences into the "guidance location" spec.md
// §4.K's salience rule counts ignores against: the carrier stage plus the
// caller-supplied GuidanceLocation recorded on the occurrence at
// attribution time (orchestrator.Request.GuidanceLocation).
type salienceKey struct {
	stage    string
	location string
}

type salienceAgg struct {
	count   int
	excerpt string
}

// detectSalience finds every guidance location with at least
// salienceMinIgnored injected-and-ignored occurrences in the last
// salienceLookback window, and opens a SalienceIssue for any that don't
// already have an open one. It never re-upserts a location that already
// has a pending issue: that increment path belongs to the orchestrator's
// synchronous noncompliance-triggered UpsertSalienceIssue call
// (spec.md §4.G step 4), which fires per-occurrence as ignores happen,
// not once per batch run.
func (p *Processor) detectSalience(ctx context.Context, tx scopedstore.ProjectTx, now time.Time) (int, error) {
	occs, err := tx.ListOccurrencesSince(now.Add(-salienceLookback))
	if err != nil {
		return 0, err
	}

	counts := make(map[salienceKey]salienceAgg)
	for _, o := range occs {
		if !o.WasInjected || o.WasAdheredTo != patternstore.AdherenceFalse {
			continue
		}
		if o.GuidanceLocation == "" {
			continue
		}
		key := salienceKey{stage: string(o.Evidence.CarrierStage), location: o.GuidanceLocation}
		agg := counts[key]
		agg.count++
		if agg.excerpt == "" {
			agg.excerpt = o.Evidence.CarrierQuote
		}
		counts[key] = agg
	}

	existing, err := tx.ListSalienceIssuesSince(time.Time{})
	if err != nil {
		return 0, err
	}
	openHashes := make(map[string]bool, len(existing))
	for _, si := range existing {
		if si.Status == outcomestore.SalienceOpen {
			openHashes[si.LocationHash] = true
		}
	}

	opened := 0
	for key, agg := range counts {
		if agg.count < salienceMinIgnored {
			continue
		}
		hash := outcomestore.ComputeLocationHash(key.stage, key.location, agg.excerpt)
		if openHashes[hash] {
			continue
		}
		issue, err := tx.UpsertSalienceIssue(key.stage, key.location, agg.excerpt, now)
		if err != nil {
			return opened, err
		}
		opened++
		telemetry.SalienceIssuesOpenedTotal.WithLabelValues(key.stage).Inc()
		p.publish(ctx, events.Event{
			Kind:            events.KindSalienceDetected,
			SalienceIssueID: issue.ID,
			At:              now,
		})
	}
	return opened, nil
}

// expireAlerts closes every active ProvisionalAlert past its ExpiresAt:
// promoted to a Pattern if it meets the §4.K promotion gate, expired
// otherwise. In normal operation the promoted branch is a defensive
// parity check rather than the common case: handleProvisionalAlert
// already promotes synchronously the instant a linked finding pushes an
// alert past the gate (spec.md §4.K "early promotion"), so an alert only
// reaches this still-active-at-expiry check with the gate met if that
// synchronous path was somehow bypassed.
func (p *Processor) expireAlerts(ctx context.Context, tx scopedstore.ProjectTx, now time.Time) (expired, promoted int, err error) {
	alerts, err := tx.ListProvisionalAlerts()
	if err != nil {
		return 0, 0, err
	}

	for _, a := range alerts {
		if a.Status != outcomestore.AlertActive || now.Before(a.ExpiresAt) {
			continue
		}

		if a.MeetsPromotionGate() {
			pattern, err := p.promoteAlert(tx, a, now)
			if err != nil {
				return expired, promoted, err
			}
			a.Status = outcomestore.AlertPromoted
			a.PromotedToPatternID = pattern.ID
			promoted++
			telemetry.AlertsExpiredTotal.WithLabelValues("promoted").Inc()
			p.publish(ctx, events.Event{Kind: events.KindAlertPromoted, Workspace: a.Workspace, Project: a.Project, AlertID: a.ID, PatternID: pattern.ID, At: now})
		} else {
			a.Status = outcomestore.AlertExpired
			expired++
			telemetry.AlertsExpiredTotal.WithLabelValues("expired").Inc()
		}

		if err := tx.PutProvisionalAlert(a); err != nil {
			return expired, promoted, err
		}
	}
	return expired, promoted, nil
}

// promoteAlert mints (or folds into an existing) Pattern from an alert's
// representative carrier stage/quote/finding category — the minimal
// evidence an alert carries, captured once at alert-creation time since
// there is no live Finding/EvidenceBundle available at expiry. Severity
// defaults to HIGH, the floor alertEligible already requires of every
// finding that ever contributed to this alert.
func (p *Processor) promoteAlert(tx scopedstore.ProjectTx, a outcomestore.ProvisionalAlert, now time.Time) (patternstore.Pattern, error) {
	stage := evidence.CarrierStage(a.RepresentativeCarrierStage)
	category := evidence.ScoutType(a.RepresentativeFindingCategory)
	key := patternstore.ComputePatternKey(stage, a.RepresentativeQuote, category)

	pattern, found, err := tx.GetPatternByKey(key)
	if err != nil {
		return patternstore.Pattern{}, err
	}
	if !found {
		pattern = patternstore.Pattern{
			ID:              p.ids.NewID(),
			Workspace:       a.Workspace,
			Project:         a.Project,
			PatternKey:      key,
			PatternContent:  a.RepresentativeQuote,
			CarrierStage:    stage,
			FindingCategory: category,
			Status:          patternstore.StatusActive,
			Touches:         a.Touches,
			Technologies:    a.Technologies,
			TaskTypes:       a.TaskTypes,
			CreatedAt:       now,
		}
	}
	pattern.ApplyOccurrence(evidence.SeverityHigh, evidence.QuoteInferred)
	pattern.UpdatedAt = now
	if err := tx.PutPattern(pattern); err != nil {
		return patternstore.Pattern{}, err
	}

	occ := patternstore.PatternOccurrence{
		ID:        p.ids.NewID(),
		PatternID: pattern.ID,
		Workspace: a.Workspace,
		Project:   a.Project,
		FindingID: firstOrEmpty(a.LinkedFindingIDs),
		Evidence: evidence.EvidenceBundle{
			CarrierStage:           stage,
			CarrierQuote:           a.RepresentativeQuote,
			CarrierQuoteType:       evidence.QuoteInferred,
			CarrierInstructionKind: evidence.InstructionUnknown,
		},
		CarrierExcerptHash: patternstore.ExcerptHash(a.RepresentativeQuote),
		Severity:           evidence.SeverityHigh,
		Status:             patternstore.OccurrenceActive,
		WasInjected:        false,
		WasAdheredTo:       patternstore.AdherenceUnknown,
		CreatedAt:          now,
	}
	if err := tx.AppendOccurrence(occ); err != nil {
		return patternstore.Pattern{}, err
	}
	telemetry.OccurrencesRecordedTotal.WithLabelValues(string(category), string(evidence.QuoteInferred)).Inc()
	telemetry.PatternsCreatedTotal.WithLabelValues(string(category)).Inc()
	return pattern, nil
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// publish is a nil-safe wrapper so every call site above doesn't need to
// guard p.bus itself; the emit surface is optional (spec.md §6).
func (p *Processor) publish(ctx context.Context, e events.Event) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, e)
}
