// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scopedstore defines the transactional scoped store the
// orchestrator (G), injection selector (I), kill-switch controller (J),
// and evolution processors (K) are driven by (spec.md §5/§6). The core
// exposes only this interface; InMemoryStore is the reference
// implementation used by every other package's tests, and
// pkg/scopedstore/badgerstore is an optional persistent implementation
// of the same interface.
//
// The spec's "single serialisable transaction per (workspace, project)"
// requirement is emulated, not a real database transaction: each scope
// (workspace for principles, (workspace,project) for everything else)
// is guarded by its own mutex, so WithProjectTx/WithWorkspaceTx calls
// against the same scope never interleave, while calls against distinct
// scopes run fully in parallel (spec.md §5: "Operations on distinct
// projects are independent and may run in parallel").
//
// Cross-entity references are ids, resolved through the store rather
// than embedded pointers, avoiding the Pattern<->Occurrence and
// Alert<->Pattern ownership cycles the design notes call out.
package scopedstore

import (
	"context"
	"time"

	"github.com/attributeai/attribution-engine/pkg/killswitch"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/principlestore"
)

// ProjectStatus is whether a project accepts new attribution calls.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// Project is the scope root every Pattern/Occurrence/Outcome row hangs
// off of.
type Project struct {
	Workspace string
	Project   string
	Status    ProjectStatus
}

// Store is the top-level handle. Callers obtain a ProjectTx or
// WorkspaceTx to perform scoped, serialised operations.
type Store interface {
	// WithProjectTx runs fn holding the (workspace, project) scope's
	// exclusive lock. The in-memory implementation applies writes
	// directly, so writes fn made before returning an error are kept; the
	// Badger implementation discards its underlying transaction.
	WithProjectTx(ctx context.Context, workspace, project string, fn func(ProjectTx) error) error

	// WithWorkspaceTx runs fn holding the workspace scope's exclusive
	// lock, for principle reads/writes (DerivedPrinciple promotion must
	// not race with a concurrent promotion in the same workspace).
	WithWorkspaceTx(ctx context.Context, workspace string, fn func(WorkspaceTx) error) error

	// PutProject registers or updates a project's status. Not part of
	// the scoped-transaction model: project lifecycle is an
	// administrative operation, not an attribution-flow write.
	PutProject(ctx context.Context, p Project) error

	// ListProjects returns every registered project, active or archived.
	// The evolution batch processors (K) use this to fan out confidence
	// decay, salience detection, and alert expiry across every scope;
	// nothing in the attribution-flow hot path needs it.
	ListProjects(ctx context.Context) ([]Project, error)
}

// ProjectTx exposes every operation scoped to a single (workspace,
// project) pair: Pattern/Occurrence CRUD, the secondary outcome-store
// records, and the kill-switch status row.
type ProjectTx interface {
	GetProject() (Project, error)

	// GetPatternByKey looks up the single active pattern for this key,
	// per the "no two active Patterns share a patternKey" invariant.
	// found is false if no active pattern has this key.
	GetPatternByKey(patternKey string) (p patternstore.Pattern, found bool, err error)
	GetPattern(id string) (patternstore.Pattern, bool, error)
	// PutPattern inserts or updates a pattern. Enforces the unique
	// (workspace, project, patternKey)-among-active invariant: inserting
	// a second active pattern with a key already held by another active
	// pattern returns ekind.ConflictViolation.
	PutPattern(p patternstore.Pattern) error
	ListPatterns() ([]patternstore.Pattern, error)

	AppendOccurrence(o patternstore.PatternOccurrence) error
	// UpdateOccurrenceMutableFields updates only status, inactiveReason,
	// wasInjected, wasAdheredTo — the sole fields spec.md §3 allows to
	// change after creation. Every other field of o is ignored and the
	// stored values are kept.
	UpdateOccurrenceMutableFields(o patternstore.PatternOccurrence) error
	GetOccurrence(id string) (patternstore.PatternOccurrence, bool, error)
	ListOccurrencesByPattern(patternID string) ([]patternstore.PatternOccurrence, error)
	ListOccurrencesSince(since time.Time) ([]patternstore.PatternOccurrence, error)

	AppendNoncompliance(n outcomestore.ExecutionNoncompliance) error
	AppendDocUpdateRequest(d outcomestore.DocUpdateRequest) error
	// ListDocUpdateRequests returns every DocUpdateRequest ever appended in
	// this scope, in creation order. The orchestrator uses this to count
	// same-decision-class recurrence for the §4.G step 6 promotion gate.
	ListDocUpdateRequests() ([]outcomestore.DocUpdateRequest, error)
	AppendTaggingMiss(t outcomestore.TaggingMiss) error
	AppendInjectionLog(l outcomestore.InjectionLog) error

	PutProvisionalAlert(a outcomestore.ProvisionalAlert) error
	GetProvisionalAlert(id string) (outcomestore.ProvisionalAlert, bool, error)
	ListProvisionalAlerts() ([]outcomestore.ProvisionalAlert, error)

	// UpsertSalienceIssue inserts a new open issue or, if one with the
	// same locationHash already exists and is open, increments its
	// occurrenceCount (spec.md §3: "subsequent ignores... increment
	// occurrenceCount"). Resolved issues are never reopened: a fresh
	// ignore of a location whose prior issue was resolved creates a new
	// row instead.
	UpsertSalienceIssue(stage, location, excerpt string, at time.Time) (outcomestore.SalienceIssue, error)
	ListSalienceIssuesSince(since time.Time) ([]outcomestore.SalienceIssue, error)
	ResolveSalienceIssue(id string) error

	AppendOutcome(o outcomestore.AttributionOutcome) error
	ListOutcomesSince(since time.Time) ([]outcomestore.AttributionOutcome, error)

	GetKillSwitchStatus() (killswitch.Status, error)
	PutKillSwitchStatus(s killswitch.Status) error
}

// WorkspaceTx exposes Principle CRUD, scoped to one workspace.
type WorkspaceTx interface {
	ListPrinciples() ([]principlestore.Principle, error)
	GetPrincipleByPromotionKey(key string) (principlestore.Principle, bool, error)
	PutPrinciple(p principlestore.Principle) error
}
