// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator implements the Attribution Orchestrator (component
// G): the top-level Attribute flow that turns one Finding plus its carrier
// documents into whichever of ExecutionNoncompliance, DocUpdateRequest,
// ProvisionalAlert, or Pattern/PatternOccurrence the evidence warrants,
// always ending in an AttributionOutcome and a kill-switch health check.
//
// The only suspension point outside the scoped store's transaction is the
// Attribution Agent call (§6); every other step runs inside one
// scopedstore.WithProjectTx so the fixed sequence in §4.G commits or aborts
// as a unit.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/attributeai/attribution-engine/pkg/agent"
	"github.com/attributeai/attribution-engine/pkg/clock"
	"github.com/attributeai/attribution-engine/pkg/ekind"
	"github.com/attributeai/attribution-engine/pkg/evidence"
	"github.com/attributeai/attribution-engine/pkg/failuremode"
	"github.com/attributeai/attribution-engine/pkg/idgen"
	"github.com/attributeai/attribution-engine/pkg/keywordtable"
	"github.com/attributeai/attribution-engine/pkg/killswitch"
	"github.com/attributeai/attribution-engine/pkg/noncompliance"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/scopedstore"
	"github.com/attributeai/attribution-engine/pkg/telemetry"
)

// provisionalAlertExpiry is the fixed lifetime of a newly-created
// ProvisionalAlert (spec.md §4.G step 7).
const provisionalAlertExpiry = 14 * 24 * time.Hour

// decisionRecurrenceThreshold is the minimum same-DecisionClass count
// (including the current finding) that promotes a decisions-scout finding
// to a Pattern even at non-high severity (spec.md §4.G step 6).
const decisionRecurrenceThreshold = 3

// Orchestrator wires the scoped store, the external Attribution Agent, and
// the keyword/decision-class classifiers into the fixed §4.G flow. Every
// collaborator is an explicit constructor argument; there are no package
// globals, so tests can swap in scopedstore.NewInMemoryStore, a stub
// agent.Func, and idgen.Sequential/clock.Fixed for determinism.
type Orchestrator struct {
	store     scopedstore.Store
	agent     agent.AttributionAgent
	keywords  *keywordtable.Table
	decisions *outcomestore.DecisionClassifier
	clock     clock.Clock
	ids       idgen.Source
	tracer    trace.Tracer
	logger    *slog.Logger
}

// New builds an Orchestrator from its required collaborators. logger and
// tracer may be nil; a nil logger falls back to slog.Default() and a nil
// tracer falls back to telemetry.Tracer("attribution.orchestrator").
func New(
	store scopedstore.Store,
	attributionAgent agent.AttributionAgent,
	keywords *keywordtable.Table,
	decisions *outcomestore.DecisionClassifier,
	clk clock.Clock,
	ids idgen.Source,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Orchestrator {
	if tracer == nil {
		tracer = telemetry.Tracer("attribution.orchestrator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		agent:     attributionAgent,
		keywords:  keywords,
		decisions: decisions,
		clock:     clk,
		ids:       ids,
		tracer:    tracer,
		logger:    logger,
	}
}

// Request is one Finding plus the carrier documents the Attribution Agent
// needs to attribute it (spec.md §4.G input, §6).
type Request struct {
	Workspace string
	Project   string

	Finding            evidence.Finding
	ContextPackContent string
	SpecContent        string

	CarrierFingerprint evidence.DocFingerprint
	OriginFingerprint  *evidence.DocFingerprint

	// GuidanceLocation pinpoints where in the carrier document the quoted
	// guidance lives (e.g. a heading path or line anchor). The Attribution
	// Agent's EvidenceBundle carries the quote itself but not its location;
	// the caller, which already has the carrier document open, supplies it
	// for the noncompliance/salience locationHash (spec.md §3).
	GuidanceLocation string
}

// Result is everything one Attribute call produced, for callers that need
// more than the AttributionOutcome (e.g. an HTTP handler rendering the
// decision back to a PR comment).
type Result struct {
	FailureMode   failuremode.Result
	Noncompliance *outcomestore.ExecutionNoncompliance
	DocUpdate     *outcomestore.DocUpdateRequest
	Alert         *outcomestore.ProvisionalAlert
	Pattern       *patternstore.Pattern
	PatternIsNew  bool
	Occurrence    *patternstore.PatternOccurrence
	Outcome       outcomestore.AttributionOutcome
}

// Attribute runs the fixed ten-step sequence from spec.md §4.G.
func (o *Orchestrator) Attribute(ctx context.Context, req Request) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Attribute", trace.WithAttributes(
		attribute.String("workspace", req.Workspace),
		attribute.String("project", req.Project),
		attribute.String("finding_id", req.Finding.ID),
		attribute.String("scout_type", string(req.Finding.ScoutType)),
	))
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, o.logger)

	if err := req.Finding.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finding failed validation")
		return Result{}, ekind.Wrap(ekind.InvalidInput, "finding failed validation", err)
	}

	// Step 1: read current kill-switch state before doing anything else.
	// Noncompliance (step 4) runs regardless of this state; the gate
	// itself is only enforced once more, freshly, inside the write
	// transaction at step 5, since this scope's lock is released for the
	// duration of the Attribution Agent call below.
	if err := o.store.WithProjectTx(ctx, req.Workspace, req.Project, func(tx scopedstore.ProjectTx) error {
		_, err := tx.GetKillSwitchStatus()
		return err
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kill-switch status read failed")
		return Result{}, err
	}

	// Step 2: invoke the external Attribution Agent. This is the sole
	// suspension point outside a transaction (spec.md §5); a failure here
	// aborts with zero side effects — no AttributionOutcome is recorded.
	bundle, err := o.agent.Attribute(ctx, agent.Request{
		Finding:            req.Finding,
		ContextPackContent: req.ContextPackContent,
		SpecContent:        req.SpecContent,
	})
	if err != nil {
		logger.Error("attribution agent call failed", "finding_id", req.Finding.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "attribution agent call failed")
		return Result{}, err
	}
	if err := bundle.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attribution agent returned an invalid evidence bundle")
		return Result{}, ekind.Wrap(ekind.InvalidInput, "attribution agent returned an invalid evidence bundle", err)
	}

	// Step 3: resolve the failure mode. Pure, so it can run outside the
	// transaction without affecting determinism.
	mode := failuremode.Resolve(bundle)

	var result Result
	result.FailureMode = mode

	txErr := o.store.WithProjectTx(ctx, req.Workspace, req.Project, func(tx scopedstore.ProjectTx) error {
		now := o.clock.Now()

		// Step 4: noncompliance check. findingCategoryMatchesCarrier is
		// unconditionally true here: the EvidenceBundle was produced by
		// the Attribution Agent specifically for req.Finding's category,
		// so by construction the carrier quote was evaluated against that
		// category (see DESIGN.md).
		if isNoncompliant, draft := noncompliance.Check(bundle, true); isNoncompliant {
			return o.recordNoncompliance(tx, req, bundle, mode, draft, now, &result)
		}

		// Step 5: kill-switch gate, re-read fresh inside this transaction.
		status, err := tx.GetKillSwitchStatus()
		if err != nil {
			return err
		}
		if prefix := gatePrefix(status.State, bundle.CarrierQuoteType); prefix != "" {
			return o.recordSkipped(tx, req, mode, prefix, now, &result)
		}

		if req.Finding.ScoutType == evidence.ScoutDecisions {
			return o.handleDecision(tx, req, bundle, mode, now, &result)
		}

		if alertEligible(req.Finding, bundle) {
			return o.handleProvisionalAlert(tx, req, bundle, mode, now, &result)
		}

		pattern, isNew, occ, err := o.upsertPatternAndOccurrence(tx, req, bundle, mode, now)
		if err != nil {
			return err
		}
		result.Pattern = &pattern
		result.PatternIsNew = isNew
		result.Occurrence = &occ
		return o.recordOutcome(tx, req, now, outcomestore.AttributionOutcome{
			PatternCreated: true,
			PatternID:      pattern.ID,
			Reasoning:      mode.Reasoning,
		}, &result)
	})
	if txErr != nil {
		span.RecordError(txErr)
		span.SetStatus(codes.Error, "attribution transaction failed")
		return Result{}, txErr
	}
	logger.Info("attribution recorded",
		"finding_id", req.Finding.ID,
		"failure_mode", string(mode.Mode),
		"noncompliant", result.Noncompliance != nil,
		"pattern_id", result.Outcome.PatternID,
	)
	return result, nil
}

// gatePrefix reports the §4.G step-5 decorated skip reason, or "" if the
// attribution should proceed.
func gatePrefix(state killswitch.State, quoteType evidence.CarrierQuoteType) string {
	switch state {
	case killswitch.StateFullyPaused:
		return killswitch.GateReasonPrefix(state)
	case killswitch.StateInferredPaused:
		if quoteType == evidence.QuoteInferred {
			return killswitch.GateReasonPrefix(state)
		}
	}
	return ""
}

// alertEligible implements the §4.G step 7 ProvisionalAlert eligibility
// test.
func alertEligible(f evidence.Finding, b evidence.EvidenceBundle) bool {
	if f.Severity != evidence.SeverityHigh && f.Severity != evidence.SeverityCritical {
		return false
	}
	if f.ScoutType != evidence.ScoutSecurity && f.ScoutType != evidence.ScoutAdversarial {
		return false
	}
	return b.CarrierQuoteType == evidence.QuoteInferred
}

func (o *Orchestrator) recordNoncompliance(
	tx scopedstore.ProjectTx,
	req Request,
	bundle evidence.EvidenceBundle,
	mode failuremode.Result,
	draft *noncompliance.Draft,
	now time.Time,
	result *Result,
) error {
	n := outcomestore.ExecutionNoncompliance{
		ID:               o.ids.NewID(),
		Workspace:        req.Workspace,
		Project:          req.Project,
		FindingID:        req.Finding.ID,
		GuidanceStage:    string(bundle.CarrierStage),
		GuidanceLocation: req.GuidanceLocation,
		Excerpt:          bundle.CarrierQuote,
		PossibleCauses:   draft.PossibleCauses,
		CreatedAt:        now,
	}
	if err := tx.AppendNoncompliance(n); err != nil {
		return err
	}
	result.Noncompliance = &n

	if _, err := tx.UpsertSalienceIssue(string(bundle.CarrierStage), req.GuidanceLocation, bundle.CarrierQuote, now); err != nil {
		return err
	}

	return o.recordOutcome(tx, req, now, outcomestore.AttributionOutcome{
		Noncompliant: true,
		Reasoning:    mode.Reasoning,
	}, result)
}

func (o *Orchestrator) recordSkipped(
	tx scopedstore.ProjectTx,
	req Request,
	mode failuremode.Result,
	prefix string,
	now time.Time,
	result *Result,
) error {
	return o.recordOutcome(tx, req, now, outcomestore.AttributionOutcome{
		Skipped:    true,
		SkipReason: prefix,
		Reasoning:  fmt.Sprintf("%s: %s", prefix, mode.Reasoning),
	}, result)
}

// handleDecision implements §4.G step 6: always record a DocUpdateRequest
// for a decisions-scout finding, then promote to Pattern only when
// severity is high/critical or this is the decisionRecurrenceThreshold-th
// finding (or later) in the same inferred DecisionClass.
func (o *Orchestrator) handleDecision(
	tx scopedstore.ProjectTx,
	req Request,
	bundle evidence.EvidenceBundle,
	mode failuremode.Result,
	now time.Time,
	result *Result,
) error {
	class, _ := o.decisions.Classify(decisionClassificationText(req.Finding))

	priorRequests, err := tx.ListDocUpdateRequests()
	if err != nil {
		return err
	}
	var sameClassCount int
	for _, d := range priorRequests {
		if d.DecisionClass == class {
			sameClassCount++
		}
	}

	d := outcomestore.DocUpdateRequest{
		ID:            o.ids.NewID(),
		Workspace:     req.Workspace,
		Project:       req.Project,
		FindingID:     req.Finding.ID,
		DecisionClass: class,
		CreatedAt:     now,
	}
	if err := tx.AppendDocUpdateRequest(d); err != nil {
		return err
	}
	result.DocUpdate = &d

	recurrence := sameClassCount + 1
	promote := req.Finding.Severity == evidence.SeverityHigh ||
		req.Finding.Severity == evidence.SeverityCritical ||
		recurrence >= decisionRecurrenceThreshold

	if !promote {
		return o.recordOutcome(tx, req, now, outcomestore.AttributionOutcome{
			DocUpdateCreated: true,
			Reasoning:        mode.Reasoning,
		}, result)
	}

	pattern, isNew, occ, err := o.upsertPatternAndOccurrence(tx, req, bundle, mode, now)
	if err != nil {
		return err
	}
	result.Pattern = &pattern
	result.PatternIsNew = isNew
	result.Occurrence = &occ
	return o.recordOutcome(tx, req, now, outcomestore.AttributionOutcome{
		DocUpdateCreated: true,
		PatternCreated:   true,
		PatternID:        pattern.ID,
		Reasoning:        mode.Reasoning,
	}, result)
}

// handleProvisionalAlert implements §4.G step 7: find an existing active,
// unexpired alert this finding's tags overlap with, or create a new one.
// If adding this finding's occurrence pushes the alert past the §4.K
// promotion gate, it is promoted to a Pattern synchronously, the same
// "early promotion" rule the batch expiry processor also applies.
func (o *Orchestrator) handleProvisionalAlert(
	tx scopedstore.ProjectTx,
	req Request,
	bundle evidence.EvidenceBundle,
	mode failuremode.Result,
	now time.Time,
	result *Result,
) error {
	text := extractionText(req, bundle)
	extraction := o.keywords.Extract(text)

	existing, err := tx.ListProvisionalAlerts()
	if err != nil {
		return err
	}

	var alert outcomestore.ProvisionalAlert
	var found bool
	for _, a := range existing {
		if a.Status != outcomestore.AlertActive || now.After(a.ExpiresAt) {
			continue
		}
		if overlaps(a.Touches, extraction.Touches) || overlaps(a.Technologies, extraction.Technologies) || overlaps(a.TaskTypes, extraction.TaskTypes) {
			alert = a
			found = true
			break
		}
	}
	if !found {
		alert = outcomestore.ProvisionalAlert{
			ID:                            o.ids.NewID(),
			Workspace:                     req.Workspace,
			Project:                       req.Project,
			Touches:                       extraction.Touches,
			Technologies:                  extraction.Technologies,
			TaskTypes:                     extraction.TaskTypes,
			InjectInto:                    string(bundle.CarrierStage),
			RepresentativeCarrierStage:    string(bundle.CarrierStage),
			RepresentativeFindingCategory: string(req.Finding.ScoutType),
			RepresentativeQuote:           bundle.CarrierQuote,
			Status:                        outcomestore.AlertActive,
			ExpiresAt:                     now.Add(provisionalAlertExpiry),
			CreatedAt:                     now,
		}
	}

	// linkID tracks this finding's contribution to the gate count. No
	// PatternOccurrence backs a ProvisionalAlert below the pattern gate
	// (there is no Pattern yet to hang one off of), so a fresh id is
	// minted purely for gate accounting, per DESIGN.md.
	alert.AddOccurrence(o.ids.NewID(), req.Finding.ID)

	outcome := outcomestore.AttributionOutcome{Reasoning: mode.Reasoning}

	if alert.MeetsPromotionGate() {
		pattern, isNew, occ, err := o.upsertPatternAndOccurrence(tx, req, bundle, mode, now)
		if err != nil {
			return err
		}
		alert.Status = outcomestore.AlertPromoted
		alert.PromotedToPatternID = pattern.ID
		result.Pattern = &pattern
		result.PatternIsNew = isNew
		result.Occurrence = &occ
		outcome.AlertCreated = true
		outcome.AlertID = alert.ID
		outcome.PatternCreated = true
		outcome.PatternID = pattern.ID
	} else {
		outcome.AlertCreated = true
		outcome.AlertID = alert.ID
	}

	if err := tx.PutProvisionalAlert(alert); err != nil {
		return err
	}
	result.Alert = &alert

	return o.recordOutcome(tx, req, now, outcome, result)
}

// upsertPatternAndOccurrence implements §4.G steps 8 and 9 together: they
// are never separated in any flow that reaches them, since an occurrence
// always needs a pattern id to hang off of.
func (o *Orchestrator) upsertPatternAndOccurrence(
	tx scopedstore.ProjectTx,
	req Request,
	bundle evidence.EvidenceBundle,
	mode failuremode.Result,
	now time.Time,
) (patternstore.Pattern, bool, patternstore.PatternOccurrence, error) {
	pattern, isNew, err := o.upsertPattern(tx, req, bundle, mode, now)
	if err != nil {
		return patternstore.Pattern{}, false, patternstore.PatternOccurrence{}, err
	}

	occ := patternstore.PatternOccurrence{
		ID:                 o.ids.NewID(),
		PatternID:          pattern.ID,
		Workspace:          req.Workspace,
		Project:            req.Project,
		FindingID:          req.Finding.ID,
		Evidence:           bundle,
		GuidanceLocation:   req.GuidanceLocation,
		CarrierFingerprint: req.CarrierFingerprint,
		OriginFingerprint:  req.OriginFingerprint,
		Provenance:         patternstore.BuildProvenance(req.CarrierFingerprint, bundle.CitedSources),
		CarrierExcerptHash: patternstore.ExcerptHash(bundle.CarrierQuote),
		Severity:           req.Finding.Severity,
		Status:             patternstore.OccurrenceActive,
		WasInjected:        false,
		WasAdheredTo:       patternstore.AdherenceUnknown,
		CreatedAt:          now,
	}
	if err := tx.AppendOccurrence(occ); err != nil {
		return patternstore.Pattern{}, false, patternstore.PatternOccurrence{}, err
	}
	telemetry.OccurrencesRecordedTotal.WithLabelValues(string(req.Finding.ScoutType), string(bundle.CarrierQuoteType)).Inc()
	return pattern, isNew, occ, nil
}

func (o *Orchestrator) upsertPattern(
	tx scopedstore.ProjectTx,
	req Request,
	bundle evidence.EvidenceBundle,
	mode failuremode.Result,
	now time.Time,
) (patternstore.Pattern, bool, error) {
	key := patternstore.ComputePatternKey(bundle.CarrierStage, bundle.CarrierQuote, req.Finding.ScoutType)

	existing, found, err := tx.GetPatternByKey(key)
	if err != nil {
		return patternstore.Pattern{}, false, err
	}
	if found {
		existing.ApplyOccurrence(req.Finding.Severity, bundle.CarrierQuoteType)
		existing.UpdatedAt = now
		if err := tx.PutPattern(existing); err != nil {
			return patternstore.Pattern{}, false, err
		}
		return existing, false, nil
	}

	text := extractionText(req, bundle)
	extraction := o.keywords.Extract(text)
	if len(extraction.Touches) == 0 && len(extraction.Technologies) == 0 && len(extraction.TaskTypes) == 0 {
		if err := tx.AppendTaggingMiss(outcomestore.TaggingMiss{
			ID:        o.ids.NewID(),
			Workspace: req.Workspace,
			Project:   req.Project,
			FindingID: req.Finding.ID,
			RawText:   text,
			CreatedAt: now,
		}); err != nil {
			return patternstore.Pattern{}, false, err
		}
	}

	p := patternstore.Pattern{
		ID:              o.ids.NewID(),
		Workspace:       req.Workspace,
		Project:         req.Project,
		PatternKey:      key,
		PatternContent:  bundle.CarrierQuote,
		CarrierStage:    bundle.CarrierStage,
		FindingCategory: req.Finding.ScoutType,
		FailureMode:     string(mode.Mode),
		Status:          patternstore.StatusActive,
		Touches:         extraction.Touches,
		Technologies:    extraction.Technologies,
		TaskTypes:       extraction.TaskTypes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	p.ApplyOccurrence(req.Finding.Severity, bundle.CarrierQuoteType)
	if err := tx.PutPattern(p); err != nil {
		return patternstore.Pattern{}, false, err
	}
	telemetry.PatternsCreatedTotal.WithLabelValues(string(req.Finding.ScoutType)).Inc()
	return p, true, nil
}

// recordOutcome fills in the shared AttributionOutcome fields, appends it,
// stores it on result, and asks the kill-switch controller to evaluate
// health — the common tail of every §4.G branch (step 10).
func (o *Orchestrator) recordOutcome(
	tx scopedstore.ProjectTx,
	req Request,
	now time.Time,
	partial outcomestore.AttributionOutcome,
	result *Result,
) error {
	partial.ID = o.ids.NewID()
	partial.Workspace = req.Workspace
	partial.Project = req.Project
	partial.FindingID = req.Finding.ID
	partial.CreatedAt = now

	if err := tx.AppendOutcome(partial); err != nil {
		return err
	}
	result.Outcome = partial

	return evaluateHealth(tx, now)
}

// evaluateHealth recomputes the rolling-window metrics and asks the
// kill-switch state machine (J) whether to transition, persisting the
// updated status only on an actual transition.
func evaluateHealth(tx scopedstore.ProjectTx, now time.Time) error {
	counts, err := computeWindowCounts(tx, now.Add(-killswitch.RollingWindow))
	if err != nil {
		return err
	}
	current, err := tx.GetKillSwitchStatus()
	if err != nil {
		return err
	}
	updated, transition := killswitch.EvaluateHealth(current, counts, now)
	if transition == nil {
		return nil
	}
	telemetry.KillSwitchTransitionsTotal.WithLabelValues(string(transition.To)).Inc()
	return tx.PutKillSwitchStatus(updated)
}

// computeWindowCounts derives killswitch.WindowCounts from the rolling
// window's AttributionOutcome and PatternOccurrence rows: total counts
// every recorded outcome (including skipped ones, which still represent a
// completed attribution call); verbatim/inferred counts occurrences by
// their evidence's quote fidelity; the injection counts split occurrences
// that were injected by whether the next execution adhered to them.
func computeWindowCounts(tx scopedstore.ProjectTx, since time.Time) (killswitch.WindowCounts, error) {
	outcomes, err := tx.ListOutcomesSince(since)
	if err != nil {
		return killswitch.WindowCounts{}, err
	}
	occurrences, err := tx.ListOccurrencesSince(since)
	if err != nil {
		return killswitch.WindowCounts{}, err
	}

	counts := killswitch.WindowCounts{Total: len(outcomes)}
	for _, occ := range occurrences {
		switch occ.Evidence.CarrierQuoteType {
		case evidence.QuoteVerbatim:
			counts.Verbatim++
		case evidence.QuoteInferred:
			counts.Inferred++
		}
		if !occ.WasInjected {
			continue
		}
		switch occ.WasAdheredTo {
		case patternstore.AdherenceTrue:
			counts.InjectionsWithoutRecurrence++
		case patternstore.AdherenceFalse:
			counts.InjectionsWithRecurrence++
		}
	}
	return counts, nil
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func extractionText(req Request, bundle evidence.EvidenceBundle) string {
	return fmt.Sprintf("%s %s %s %s", req.Finding.Title, req.Finding.Description, req.Finding.Evidence, bundle.CarrierQuote)
}

func decisionClassificationText(f evidence.Finding) string {
	return fmt.Sprintf("%s %s %s", f.Title, f.Description, f.Evidence)
}
