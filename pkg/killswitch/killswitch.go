// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package killswitch implements the feedback kill-switch controller
// (component J): a per-(workspace, project) health state machine driven
// by a rolling 30-day window of AttributionOutcome rows.
package killswitch

import "time"

// State is a KillSwitchStatus's current operating mode.
type State string

const (
	StateActive         State = "active"
	StateInferredPaused State = "inferred_paused"
	StateFullyPaused    State = "fully_paused"
)

// RollingWindow is the lookback used to compute health metrics.
const RollingWindow = 30 * 24 * time.Hour

const (
	inferredPausedCooldown = 7 * 24 * time.Hour
	fullyPausedCooldown    = 14 * 24 * time.Hour
)

// Thresholds (spec.md §4.J, "all critical values").
const (
	precisionForcePauseThreshold   = 0.4
	improvementForcePauseThreshold = 0.2
	inferredRatioPauseThreshold    = 0.4

	precisionHealthyThreshold    = 0.6
	inferredRatioHealthyMax      = 0.25
	improvementHealthyThreshold  = 0.4
)

// WindowCounts are the raw tallies over the rolling window, from which
// Metrics are derived. Total is every AttributionOutcome in the window
// that represents a completed attribution call (skipped outcomes still
// count toward total per spec.md, since they are recorded outcomes).
type WindowCounts struct {
	Total    int
	Verbatim int
	Inferred int

	InjectionsWithoutRecurrence int
	InjectionsWithRecurrence    int
}

// Metrics are the three derived health signals spec.md §4.J defines.
type Metrics struct {
	AttributionPrecisionScore float64
	InferredRatio             float64
	ObservedImprovementRate   float64
}

// ComputeMetrics derives Metrics from raw window counts, applying the
// spec's zero-denominator conventions: precision defaults to 1.0,
// inferredRatio defaults to 0, improvement defaults to 1.0.
func ComputeMetrics(c WindowCounts) Metrics {
	m := Metrics{
		AttributionPrecisionScore: 1.0,
		InferredRatio:             0.0,
		ObservedImprovementRate:   1.0,
	}
	if c.Total > 0 {
		m.AttributionPrecisionScore = float64(c.Verbatim) / float64(c.Total)
		m.InferredRatio = float64(c.Inferred) / float64(c.Total)
	}
	denom := c.InjectionsWithoutRecurrence + c.InjectionsWithRecurrence
	if denom > 0 {
		m.ObservedImprovementRate = float64(c.InjectionsWithoutRecurrence) / float64(denom)
	}
	return m
}

func (m Metrics) healthy() bool {
	return m.AttributionPrecisionScore >= precisionHealthyThreshold &&
		m.InferredRatio <= inferredRatioHealthyMax &&
		m.ObservedImprovementRate >= improvementHealthyThreshold
}

// Status is the persistent per-(workspace, project) row the controller
// reads and updates.
type Status struct {
	Workspace string
	Project   string

	State        State
	Reason       string
	EnteredAt    time.Time
	AutoResumeAt time.Time
}

// Transition describes one state change emitted by EvaluateHealth. At
// most one Transition is ever produced per call (spec.md §4.J: "emit at
// most one transition").
type Transition struct {
	From State
	To   State

	Reason       string
	EnteredAt    time.Time
	AutoResumeAt time.Time
}

// EvaluateHealth computes metrics from counts and compares them against
// current against the thresholds and cooldown, returning the updated
// Status and, if a transition fired, a non-nil Transition. current is
// never mutated; the caller persists the returned Status.
func EvaluateHealth(current Status, counts WindowCounts, now time.Time) (Status, *Transition) {
	metrics := ComputeMetrics(counts)

	switch {
	case metrics.AttributionPrecisionScore < precisionForcePauseThreshold:
		return transitionTo(current, StateFullyPaused, "attribution_precision_score below 0.4", now, fullyPausedCooldown)
	case metrics.ObservedImprovementRate < improvementForcePauseThreshold:
		return transitionTo(current, StateFullyPaused, "observed_improvement_rate below 0.2", now, fullyPausedCooldown)
	case metrics.InferredRatio > inferredRatioPauseThreshold && current.State == StateActive:
		return transitionTo(current, StateInferredPaused, "inferred_ratio above 0.4", now, inferredPausedCooldown)
	}

	if current.State != StateActive && metrics.healthy() && !now.Before(current.AutoResumeAt) {
		return transitionTo(current, StateActive, "health metrics recovered past auto-resume cooldown", now, 0)
	}

	return current, nil
}

// GateReasonPrefix returns the decorated reasoning prefix the orchestrator
// prepends when the kill-switch gate (spec.md §4.G step 5) skips an
// attribution, e.g. "[KILL_SWITCH:FULLY_PAUSED]". Empty for StateActive,
// which never gates.
func GateReasonPrefix(s State) string {
	switch s {
	case StateFullyPaused:
		return "[KILL_SWITCH:FULLY_PAUSED]"
	case StateInferredPaused:
		return "[KILL_SWITCH:INFERRED_PAUSED]"
	default:
		return ""
	}
}

func transitionTo(current Status, to State, reason string, now time.Time, cooldown time.Duration) (Status, *Transition) {
	if current.State == to {
		// Already in this state; re-entering the same state is not a
		// transition (at most one transition per evaluateHealth call, and
		// only on an actual state change).
		return current, nil
	}

	autoResumeAt := now
	if cooldown > 0 {
		autoResumeAt = now.Add(cooldown)
	}

	updated := Status{
		Workspace:    current.Workspace,
		Project:      current.Project,
		State:        to,
		Reason:       reason,
		EnteredAt:    now,
		AutoResumeAt: autoResumeAt,
	}
	return updated, &Transition{
		From:         current.State,
		To:           to,
		Reason:       reason,
		EnteredAt:    now,
		AutoResumeAt: autoResumeAt,
	}
}
