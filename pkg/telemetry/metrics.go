// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level counters for pattern/occurrence/injection/kill-switch-transition
// volume, grounded on crs/persistence.go's promauto.NewCounterVec/NewGaugeVec
// package-level var block. Kept deliberately low-cardinality (no finding or
// pattern IDs as label values), matching the teacher's own
// "removed project_hash from histograms to prevent cardinality explosion"
// convention.
var (
	PatternsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_patterns_created_total",
		Help: "Total Patterns created by the attribution orchestrator, by finding category.",
	}, []string{"finding_category"})

	OccurrencesRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_occurrences_recorded_total",
		Help: "Total PatternOccurrences appended, by finding category and carrier quote type.",
	}, []string{"finding_category", "quote_type"})

	InjectionWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_injection_warnings_total",
		Help: "Total warnings returned by the tiered injection selector, by kind.",
	}, []string{"kind"})

	KillSwitchTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_killswitch_transitions_total",
		Help: "Total kill-switch state transitions, by resulting state.",
	}, []string{"to_state"})

	PatternsArchivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_patterns_archived_total",
		Help: "Total Patterns archived by the confidence-decay batch processor.",
	}, []string{"finding_category"})

	SalienceIssuesOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_salience_issues_opened_total",
		Help: "Total SalienceIssues opened by the batch salience detector.",
	}, []string{"stage"})

	AlertsExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_alerts_expired_total",
		Help: "Total ProvisionalAlerts expired by the batch alert-expiry processor, by outcome.",
	}, []string{"outcome"})
)
