// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scopedstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/attributeai/attribution-engine/pkg/ekind"
	"github.com/attributeai/attribution-engine/pkg/killswitch"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/principlestore"
)

type projectKey struct {
	workspace string
	project   string
}

// projectState is the arena for one (workspace, project) scope: every
// entity lives here keyed by its id, with secondary indexes as plain
// maps. This is the "scoped arena keyed by id" the design notes
// recommend to avoid Pattern<->Occurrence ownership cycles.
type projectState struct {
	project Project

	patterns       map[string]patternstore.Pattern
	activeByKey    map[string]string // patternKey -> pattern id, active patterns only
	occurrences    map[string]patternstore.PatternOccurrence
	occByPattern   map[string][]string

	noncompliances    []outcomestore.ExecutionNoncompliance
	docUpdateRequests []outcomestore.DocUpdateRequest
	taggingMisses     []outcomestore.TaggingMiss
	injectionLogs     []outcomestore.InjectionLog

	alerts map[string]outcomestore.ProvisionalAlert

	salience       map[string]outcomestore.SalienceIssue
	salienceByHash map[string]string // locationHash -> id of the open issue, if any

	outcomes []outcomestore.AttributionOutcome

	killSwitch killswitch.Status
}

func newProjectState(p Project) *projectState {
	return &projectState{
		project:        p,
		patterns:       make(map[string]patternstore.Pattern),
		activeByKey:    make(map[string]string),
		occurrences:    make(map[string]patternstore.PatternOccurrence),
		occByPattern:   make(map[string][]string),
		alerts:         make(map[string]outcomestore.ProvisionalAlert),
		salience:       make(map[string]outcomestore.SalienceIssue),
		salienceByHash: make(map[string]string),
		killSwitch:     killswitch.Status{Workspace: p.Workspace, Project: p.Project, State: killswitch.StateActive},
	}
}

type workspaceState struct {
	principles          map[string]principlestore.Principle
	byPromotionKey      map[string]string
}

func newWorkspaceState() *workspaceState {
	return &workspaceState{
		principles:     make(map[string]principlestore.Principle),
		byPromotionKey: make(map[string]string),
	}
}

// InMemoryStore is the reference Store implementation: a process-local,
// mutex-serialised arena per scope. It is the primary implementation the
// rest of the engine is tested against; pkg/scopedstore/badgerstore
// offers the same interface backed by BadgerDB for durability.
type InMemoryStore struct {
	mu sync.Mutex // guards the maps below and their lazy creation

	projectLocks   map[projectKey]*sync.Mutex
	projectStates  map[projectKey]*projectState

	workspaceLocks  map[string]*sync.Mutex
	workspaceStates map[string]*workspaceState
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		projectLocks:    make(map[projectKey]*sync.Mutex),
		projectStates:   make(map[projectKey]*projectState),
		workspaceLocks:  make(map[string]*sync.Mutex),
		workspaceStates: make(map[string]*workspaceState),
	}
}

func (s *InMemoryStore) PutProject(ctx context.Context, p Project) error {
	key := projectKey{p.Workspace, p.Project}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projectLocks[key]; !ok {
		s.projectLocks[key] = &sync.Mutex{}
	}
	if existing, ok := s.projectStates[key]; ok {
		existing.project = p
		return nil
	}
	s.projectStates[key] = newProjectState(p)
	return nil
}

// ListProjects returns every registered project in no particular order;
// callers that need determinism (e.g. evolution batch tests) sort the
// result themselves.
func (s *InMemoryStore) ListProjects(ctx context.Context) ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Project, 0, len(s.projectStates))
	for _, state := range s.projectStates {
		out = append(out, state.project)
	}
	return out, nil
}

func (s *InMemoryStore) lockForProject(key projectKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.projectLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.projectLocks[key] = l
	}
	return l
}

func (s *InMemoryStore) lockForWorkspace(workspace string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.workspaceLocks[workspace]
	if !ok {
		l = &sync.Mutex{}
		s.workspaceLocks[workspace] = l
	}
	return l
}

// WithProjectTx acquires the (workspace, project) scope's lock for the
// duration of fn, so concurrent attribution calls against the same
// project never interleave (spec.md §5).
func (s *InMemoryStore) WithProjectTx(ctx context.Context, workspace, project string, fn func(ProjectTx) error) error {
	key := projectKey{workspace, project}
	lock := s.lockForProject(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	state, ok := s.projectStates[key]
	s.mu.Unlock()
	if !ok {
		return ekind.New(ekind.ScopeNotFound, fmt.Sprintf("project %s/%s not registered", workspace, project))
	}
	if state.project.Status == ProjectArchived {
		return ekind.New(ekind.ScopeArchived, fmt.Sprintf("project %s/%s is archived", workspace, project))
	}

	return fn(&memProjectTx{state: state})
}

// WithWorkspaceTx acquires the workspace scope's lock for the duration
// of fn.
func (s *InMemoryStore) WithWorkspaceTx(ctx context.Context, workspace string, fn func(WorkspaceTx) error) error {
	lock := s.lockForWorkspace(workspace)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	state, ok := s.workspaceStates[workspace]
	if !ok {
		state = newWorkspaceState()
		s.workspaceStates[workspace] = state
	}
	s.mu.Unlock()

	return fn(&memWorkspaceTx{state: state})
}

type memProjectTx struct {
	state *projectState
}

func (tx *memProjectTx) GetProject() (Project, error) {
	return tx.state.project, nil
}

func (tx *memProjectTx) GetPatternByKey(patternKey string) (patternstore.Pattern, bool, error) {
	id, ok := tx.state.activeByKey[patternKey]
	if !ok {
		return patternstore.Pattern{}, false, nil
	}
	return tx.state.patterns[id], true, nil
}

func (tx *memProjectTx) GetPattern(id string) (patternstore.Pattern, bool, error) {
	p, ok := tx.state.patterns[id]
	return p, ok, nil
}

func (tx *memProjectTx) PutPattern(p patternstore.Pattern) error {
	if p.Status == patternstore.StatusActive {
		if existingID, ok := tx.state.activeByKey[p.PatternKey]; ok && existingID != p.ID {
			return ekind.New(ekind.ConflictViolation, fmt.Sprintf("pattern key %s already has an active pattern %s", p.PatternKey, existingID))
		}
		tx.state.activeByKey[p.PatternKey] = p.ID
	} else {
		if tx.state.activeByKey[p.PatternKey] == p.ID {
			delete(tx.state.activeByKey, p.PatternKey)
		}
	}
	tx.state.patterns[p.ID] = p
	return nil
}

func (tx *memProjectTx) ListPatterns() ([]patternstore.Pattern, error) {
	out := make([]patternstore.Pattern, 0, len(tx.state.patterns))
	for _, p := range tx.state.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memProjectTx) AppendOccurrence(o patternstore.PatternOccurrence) error {
	if _, ok := tx.state.patterns[o.PatternID]; !ok {
		return ekind.New(ekind.ConflictViolation, fmt.Sprintf("occurrence %s references unknown pattern %s", o.ID, o.PatternID))
	}
	if _, exists := tx.state.occurrences[o.ID]; exists {
		return ekind.New(ekind.ConflictViolation, fmt.Sprintf("occurrence %s already exists (append-only)", o.ID))
	}
	tx.state.occurrences[o.ID] = o
	tx.state.occByPattern[o.PatternID] = append(tx.state.occByPattern[o.PatternID], o.ID)
	return nil
}

func (tx *memProjectTx) UpdateOccurrenceMutableFields(o patternstore.PatternOccurrence) error {
	existing, ok := tx.state.occurrences[o.ID]
	if !ok {
		return ekind.New(ekind.ConflictViolation, fmt.Sprintf("occurrence %s does not exist", o.ID))
	}
	updated := existing
	updated.Status = o.Status
	updated.InactiveReason = o.InactiveReason
	updated.WasInjected = o.WasInjected
	updated.WasAdheredTo = o.WasAdheredTo
	tx.state.occurrences[o.ID] = updated
	return nil
}

func (tx *memProjectTx) GetOccurrence(id string) (patternstore.PatternOccurrence, bool, error) {
	o, ok := tx.state.occurrences[id]
	return o, ok, nil
}

func (tx *memProjectTx) ListOccurrencesByPattern(patternID string) ([]patternstore.PatternOccurrence, error) {
	ids := tx.state.occByPattern[patternID]
	out := make([]patternstore.PatternOccurrence, 0, len(ids))
	for _, id := range ids {
		out = append(out, tx.state.occurrences[id])
	}
	return out, nil
}

func (tx *memProjectTx) ListOccurrencesSince(since time.Time) ([]patternstore.PatternOccurrence, error) {
	var out []patternstore.PatternOccurrence
	for _, o := range tx.state.occurrences {
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tx *memProjectTx) AppendNoncompliance(n outcomestore.ExecutionNoncompliance) error {
	tx.state.noncompliances = append(tx.state.noncompliances, n)
	return nil
}

func (tx *memProjectTx) AppendDocUpdateRequest(d outcomestore.DocUpdateRequest) error {
	tx.state.docUpdateRequests = append(tx.state.docUpdateRequests, d)
	return nil
}

func (tx *memProjectTx) ListDocUpdateRequests() ([]outcomestore.DocUpdateRequest, error) {
	out := make([]outcomestore.DocUpdateRequest, len(tx.state.docUpdateRequests))
	copy(out, tx.state.docUpdateRequests)
	return out, nil
}

func (tx *memProjectTx) AppendTaggingMiss(t outcomestore.TaggingMiss) error {
	tx.state.taggingMisses = append(tx.state.taggingMisses, t)
	return nil
}

func (tx *memProjectTx) AppendInjectionLog(l outcomestore.InjectionLog) error {
	tx.state.injectionLogs = append(tx.state.injectionLogs, l)
	return nil
}

func (tx *memProjectTx) PutProvisionalAlert(a outcomestore.ProvisionalAlert) error {
	tx.state.alerts[a.ID] = a
	return nil
}

func (tx *memProjectTx) GetProvisionalAlert(id string) (outcomestore.ProvisionalAlert, bool, error) {
	a, ok := tx.state.alerts[id]
	return a, ok, nil
}

func (tx *memProjectTx) ListProvisionalAlerts() ([]outcomestore.ProvisionalAlert, error) {
	out := make([]outcomestore.ProvisionalAlert, 0, len(tx.state.alerts))
	for _, a := range tx.state.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memProjectTx) UpsertSalienceIssue(stage, location, excerpt string, at time.Time) (outcomestore.SalienceIssue, error) {
	hash := outcomestore.ComputeLocationHash(stage, location, excerpt)
	if id, ok := tx.state.salienceByHash[hash]; ok {
		issue := tx.state.salience[id]
		if issue.Status == outcomestore.SalienceOpen {
			issue.OccurrenceCount++
			issue.UpdatedAt = at
			tx.state.salience[id] = issue
			return issue, nil
		}
		// Resolved issues are never reopened: fall through and mint a
		// fresh row, which replaces the hash->id pointer so future
		// ignores increment the new row instead.
	}

	id := hash + ":" + at.Format(time.RFC3339Nano)
	issue := outcomestore.SalienceIssue{
		ID:              id,
		Workspace:       tx.state.project.Workspace,
		Project:         tx.state.project.Project,
		LocationHash:    hash,
		Stage:           stage,
		Location:        location,
		Excerpt:         excerpt,
		OccurrenceCount: 1,
		Status:          outcomestore.SalienceOpen,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	tx.state.salience[id] = issue
	tx.state.salienceByHash[hash] = id
	return issue, nil
}

func (tx *memProjectTx) ListSalienceIssuesSince(since time.Time) ([]outcomestore.SalienceIssue, error) {
	var out []outcomestore.SalienceIssue
	for _, s := range tx.state.salience {
		if !s.CreatedAt.Before(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tx *memProjectTx) ResolveSalienceIssue(id string) error {
	issue, ok := tx.state.salience[id]
	if !ok {
		return ekind.New(ekind.ConflictViolation, fmt.Sprintf("salience issue %s does not exist", id))
	}
	issue.Status = outcomestore.SalienceResolved
	tx.state.salience[id] = issue
	delete(tx.state.salienceByHash, issue.LocationHash)
	return nil
}

func (tx *memProjectTx) AppendOutcome(o outcomestore.AttributionOutcome) error {
	tx.state.outcomes = append(tx.state.outcomes, o)
	return nil
}

func (tx *memProjectTx) ListOutcomesSince(since time.Time) ([]outcomestore.AttributionOutcome, error) {
	var out []outcomestore.AttributionOutcome
	for _, o := range tx.state.outcomes {
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tx *memProjectTx) GetKillSwitchStatus() (killswitch.Status, error) {
	return tx.state.killSwitch, nil
}

func (tx *memProjectTx) PutKillSwitchStatus(st killswitch.Status) error {
	tx.state.killSwitch = st
	return nil
}

type memWorkspaceTx struct {
	state *workspaceState
}

func (tx *memWorkspaceTx) ListPrinciples() ([]principlestore.Principle, error) {
	out := make([]principlestore.Principle, 0, len(tx.state.principles))
	for _, p := range tx.state.principles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memWorkspaceTx) GetPrincipleByPromotionKey(key string) (principlestore.Principle, bool, error) {
	id, ok := tx.state.byPromotionKey[key]
	if !ok {
		return principlestore.Principle{}, false, nil
	}
	return tx.state.principles[id], true, nil
}

func (tx *memWorkspaceTx) PutPrinciple(p principlestore.Principle) error {
	tx.state.principles[p.ID] = p
	if p.PromotionKey != "" {
		tx.state.byPromotionKey[p.PromotionKey] = p.ID
	}
	return nil
}
