// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package killswitch

import (
	"testing"
	"time"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestComputeMetricsZeroDenominatorConventions(t *testing.T) {
	m := ComputeMetrics(WindowCounts{})
	if m.AttributionPrecisionScore != 1.0 {
		t.Errorf("precision = %v, want 1.0 by convention", m.AttributionPrecisionScore)
	}
	if m.InferredRatio != 0.0 {
		t.Errorf("inferredRatio = %v, want 0.0 by convention", m.InferredRatio)
	}
	if m.ObservedImprovementRate != 1.0 {
		t.Errorf("improvement = %v, want 1.0 by convention", m.ObservedImprovementRate)
	}
}

func TestEvaluateHealthForcesFullyPausedOnLowPrecision(t *testing.T) {
	current := Status{State: StateActive}
	counts := WindowCounts{Total: 10, Verbatim: 3, Inferred: 2, InjectionsWithoutRecurrence: 8, InjectionsWithRecurrence: 1}
	updated, transition := EvaluateHealth(current, counts, now)

	if updated.State != StateFullyPaused {
		t.Fatalf("state = %v, want fully_paused", updated.State)
	}
	if transition == nil || transition.To != StateFullyPaused {
		t.Fatal("expected a transition to fully_paused")
	}
	if updated.AutoResumeAt.Sub(now) != fullyPausedCooldown {
		t.Errorf("autoResumeAt cooldown = %v, want %v", updated.AutoResumeAt.Sub(now), fullyPausedCooldown)
	}
}

func TestEvaluateHealthForcesFullyPausedOnLowImprovement(t *testing.T) {
	current := Status{State: StateActive}
	// Precision healthy (10/10 verbatim) but improvement rate is 0.1 < 0.2.
	counts := WindowCounts{Total: 10, Verbatim: 10, Inferred: 0, InjectionsWithoutRecurrence: 1, InjectionsWithRecurrence: 9}
	updated, transition := EvaluateHealth(current, counts, now)

	if updated.State != StateFullyPaused {
		t.Fatalf("state = %v, want fully_paused", updated.State)
	}
	if transition.Reason == "" {
		t.Error("expected a non-empty reason")
	}
}

func TestEvaluateHealthInferredPauseOnlyFromActive(t *testing.T) {
	current := Status{State: StateActive}
	// precision and improvement healthy, inferredRatio 0.5 > 0.4
	counts := WindowCounts{Total: 10, Verbatim: 10, Inferred: 5, InjectionsWithoutRecurrence: 9, InjectionsWithRecurrence: 1}
	updated, transition := EvaluateHealth(current, counts, now)
	if updated.State != StateInferredPaused {
		t.Fatalf("state = %v, want inferred_paused", updated.State)
	}
	if transition.To != StateInferredPaused {
		t.Error("expected transition to inferred_paused")
	}

	// Re-evaluating while already inferred_paused must not re-trigger the
	// inferred-ratio rule (spec: "AND currently active").
	again, transition2 := EvaluateHealth(updated, counts, now.Add(time.Hour))
	if transition2 != nil {
		t.Errorf("expected no transition while steady-state inferred_paused, got %+v", transition2)
	}
	if again.State != StateInferredPaused {
		t.Errorf("state regressed to %v", again.State)
	}
}

func TestEvaluateHealthRecoversToActiveAfterCooldown(t *testing.T) {
	current := Status{
		State:        StateInferredPaused,
		EnteredAt:    now.Add(-8 * 24 * time.Hour),
		AutoResumeAt: now.Add(-1 * time.Hour), // cooldown already elapsed
	}
	healthyCounts := WindowCounts{Total: 10, Verbatim: 7, Inferred: 1, InjectionsWithoutRecurrence: 8, InjectionsWithRecurrence: 1}
	updated, transition := EvaluateHealth(current, healthyCounts, now)

	if updated.State != StateActive {
		t.Fatalf("state = %v, want active", updated.State)
	}
	if transition == nil || transition.To != StateActive {
		t.Fatal("expected a transition back to active")
	}
}

func TestEvaluateHealthStaysPausedBeforeCooldownElapses(t *testing.T) {
	current := Status{
		State:        StateInferredPaused,
		EnteredAt:    now,
		AutoResumeAt: now.Add(1 * time.Hour), // cooldown not yet elapsed
	}
	healthyCounts := WindowCounts{Total: 10, Verbatim: 7, Inferred: 1, InjectionsWithoutRecurrence: 8, InjectionsWithRecurrence: 1}
	updated, transition := EvaluateHealth(current, healthyCounts, now)

	if updated.State != StateInferredPaused {
		t.Errorf("state = %v, want still inferred_paused (cooldown not elapsed)", updated.State)
	}
	if transition != nil {
		t.Errorf("expected no transition, got %+v", transition)
	}
}

func TestEvaluateHealthRecoveryRequiresAllThreeHealthy(t *testing.T) {
	current := Status{
		State:        StateFullyPaused,
		AutoResumeAt: now.Add(-1 * time.Hour),
	}
	// Precision and improvement healthy but inferredRatio 0.3 > 0.25 healthy max.
	counts := WindowCounts{Total: 10, Verbatim: 7, Inferred: 3, InjectionsWithoutRecurrence: 8, InjectionsWithRecurrence: 1}
	updated, transition := EvaluateHealth(current, counts, now)
	if updated.State != StateFullyPaused {
		t.Errorf("state = %v, want still fully_paused (inferredRatio not within healthy band)", updated.State)
	}
	if transition != nil {
		t.Errorf("expected no transition, got %+v", transition)
	}
}

func TestGateReasonPrefix(t *testing.T) {
	if got := GateReasonPrefix(StateFullyPaused); got != "[KILL_SWITCH:FULLY_PAUSED]" {
		t.Errorf("got %q", got)
	}
	if got := GateReasonPrefix(StateInferredPaused); got != "[KILL_SWITCH:INFERRED_PAUSED]" {
		t.Errorf("got %q", got)
	}
	if got := GateReasonPrefix(StateActive); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
