// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/attributeai/attribution-engine/pkg/ekind"
	"github.com/attributeai/attribution-engine/pkg/killswitch"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/principlestore"
	"github.com/attributeai/attribution-engine/pkg/scopedstore"
)

// Store is the BadgerDB-backed implementation of scopedstore.Store. Key
// layout mirrors the in-memory store's index shape: every row is JSON
// under a prefixed key, with small pointer rows for the
// active-patternKey and promotionKey/locationHash secondary indexes.
type Store struct {
	db *DB

	mu             sync.Mutex
	projectLocks   map[string]*sync.Mutex
	workspaceLocks map[string]*sync.Mutex
}

// New wraps an already-open DB in a Store.
func New(db *DB) *Store {
	return &Store{
		db:             db,
		projectLocks:   make(map[string]*sync.Mutex),
		workspaceLocks: make(map[string]*sync.Mutex),
	}
}

func scopeKey(workspace, project string) string { return workspace + "\x00" + project }

func (s *Store) lockForProject(workspace, project string) *sync.Mutex {
	key := scopeKey(workspace, project)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.projectLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.projectLocks[key] = l
	}
	return l
}

func (s *Store) lockForWorkspace(workspace string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.workspaceLocks[workspace]
	if !ok {
		l = &sync.Mutex{}
		s.workspaceLocks[workspace] = l
	}
	return l
}

// Key prefixes. Every key embeds workspace/project so a single Badger
// instance can back every scope.
const (
	prefixProject      = "project:"
	prefixPattern      = "pattern:"
	prefixPatternKey   = "patternkey:" // active patternKey -> pattern id
	prefixOccurrence   = "occurrence:"
	prefixOccByPattern = "occbypattern:"
	prefixNoncompl     = "noncompliance:"
	prefixDocUpdate    = "docupdate:"
	prefixTaggingMiss  = "taggingmiss:"
	prefixInjectionLog = "injectionlog:"
	prefixAlert        = "alert:"
	prefixSalience     = "salience:"
	prefixSalienceHash = "saliencehash:"
	prefixOutcome      = "outcome:"
	prefixKillSwitch   = "killswitch:"
	prefixPrinciple    = "principle:"
	prefixPromotionKey = "promotionkey:"
)

func projectKeyBytes(workspace, project string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", prefixProject, workspace, project))
}

func putJSON(txn *badgerdb.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), b)
}

func getJSON(txn *badgerdb.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if err == badgerdb.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func getString(txn *badgerdb.Txn, key string) (string, bool, error) {
	item, err := txn.Get([]byte(key))
	if err == badgerdb.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var s string
	err = item.Value(func(val []byte) error {
		s = string(val)
		return nil
	})
	return s, true, err
}

// iteratePrefix collects every value under prefix, decoding each with
// decode. It is a full prefix scan; fine for the row counts this engine
// deals with (per-project pattern/occurrence/outcome logs), not meant
// for unbounded growth without external archival (the sibling archive
// package uploads snapshots; nothing here trims old rows).
func iteratePrefix(txn *badgerdb.Txn, prefix string, decode func(val []byte) error) error {
	it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
	defer it.Close()
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		if err := item.Value(decode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) PutProject(ctx context.Context, p scopedstore.Project) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return putJSON(txn, string(projectKeyBytes(p.Workspace, p.Project)), p)
	})
}

// ListProjects scans the full project-key prefix. Like iteratePrefix's
// other callers, this is a full scan sized for the engine's per-project
// row counts, not unbounded project growth.
func (s *Store) ListProjects(ctx context.Context) ([]scopedstore.Project, error) {
	var out []scopedstore.Project
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return iteratePrefix(txn, prefixProject, func(val []byte) error {
			var p scopedstore.Project
			if err := json.Unmarshal(val, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// WithProjectTx acquires the (workspace, project) scope's lock, then
// runs fn inside a single Badger read-write transaction bound to that
// scope's key prefix.
func (s *Store) WithProjectTx(ctx context.Context, workspace, project string, fn func(scopedstore.ProjectTx) error) error {
	lock := s.lockForProject(workspace, project)
	lock.Lock()
	defer lock.Unlock()

	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		var proj scopedstore.Project
		found, err := getJSON(txn, string(projectKeyBytes(workspace, project)), &proj)
		if err != nil {
			return err
		}
		if !found {
			return ekind.New(ekind.ScopeNotFound, fmt.Sprintf("project %s/%s not registered", workspace, project))
		}
		if proj.Status == scopedstore.ProjectArchived {
			return ekind.New(ekind.ScopeArchived, fmt.Sprintf("project %s/%s is archived", workspace, project))
		}
		tx := &projectTx{txn: txn, workspace: workspace, project: project, proj: proj}
		return fn(tx)
	})
}

func (s *Store) WithWorkspaceTx(ctx context.Context, workspace string, fn func(scopedstore.WorkspaceTx) error) error {
	lock := s.lockForWorkspace(workspace)
	lock.Lock()
	defer lock.Unlock()

	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		tx := &workspaceTx{txn: txn, workspace: workspace}
		return fn(tx)
	})
}

type projectTx struct {
	txn       *badgerdb.Txn
	workspace string
	project   string
	proj      scopedstore.Project
}

func (tx *projectTx) scoped(prefix, id string) string {
	return fmt.Sprintf("%s%s/%s/%s", prefix, tx.workspace, tx.project, id)
}

func (tx *projectTx) scopePrefix(prefix string) string {
	return fmt.Sprintf("%s%s/%s/", prefix, tx.workspace, tx.project)
}

func (tx *projectTx) GetProject() (scopedstore.Project, error) {
	return tx.proj, nil
}

func (tx *projectTx) GetPatternByKey(patternKey string) (patternstore.Pattern, bool, error) {
	id, found, err := getString(tx.txn, tx.scoped(prefixPatternKey, patternKey))
	if err != nil || !found {
		return patternstore.Pattern{}, false, err
	}
	return tx.GetPattern(id)
}

func (tx *projectTx) GetPattern(id string) (patternstore.Pattern, bool, error) {
	var p patternstore.Pattern
	found, err := getJSON(tx.txn, tx.scoped(prefixPattern, id), &p)
	return p, found, err
}

func (tx *projectTx) PutPattern(p patternstore.Pattern) error {
	keyIndexKey := tx.scoped(prefixPatternKey, p.PatternKey)
	if p.Status == patternstore.StatusActive {
		existingID, found, err := getString(tx.txn, keyIndexKey)
		if err != nil {
			return err
		}
		if found && existingID != p.ID {
			return ekind.New(ekind.ConflictViolation, fmt.Sprintf("pattern key %s already has an active pattern %s", p.PatternKey, existingID))
		}
		if err := tx.txn.Set([]byte(keyIndexKey), []byte(p.ID)); err != nil {
			return err
		}
	} else {
		existingID, found, err := getString(tx.txn, keyIndexKey)
		if err != nil {
			return err
		}
		if found && existingID == p.ID {
			if err := tx.txn.Delete([]byte(keyIndexKey)); err != nil {
				return err
			}
		}
	}
	return putJSON(tx.txn, tx.scoped(prefixPattern, p.ID), p)
}

func (tx *projectTx) ListPatterns() ([]patternstore.Pattern, error) {
	var out []patternstore.Pattern
	err := iteratePrefix(tx.txn, tx.scopePrefix(prefixPattern), func(val []byte) error {
		var p patternstore.Pattern
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (tx *projectTx) AppendOccurrence(o patternstore.PatternOccurrence) error {
	if _, found, err := tx.GetPattern(o.PatternID); err != nil {
		return err
	} else if !found {
		return ekind.New(ekind.ConflictViolation, fmt.Sprintf("occurrence %s references unknown pattern %s", o.ID, o.PatternID))
	}
	key := tx.scoped(prefixOccurrence, o.ID)
	if _, err := tx.txn.Get([]byte(key)); err == nil {
		return ekind.New(ekind.ConflictViolation, fmt.Sprintf("occurrence %s already exists (append-only)", o.ID))
	}
	if err := putJSON(tx.txn, key, o); err != nil {
		return err
	}
	idxKey := fmt.Sprintf("%s%s/%s", tx.scopePrefix(prefixOccByPattern), o.PatternID, o.ID)
	return tx.txn.Set([]byte(idxKey), []byte{})
}

func (tx *projectTx) UpdateOccurrenceMutableFields(o patternstore.PatternOccurrence) error {
	key := tx.scoped(prefixOccurrence, o.ID)
	var existing patternstore.PatternOccurrence
	found, err := getJSON(tx.txn, key, &existing)
	if err != nil {
		return err
	}
	if !found {
		return ekind.New(ekind.ConflictViolation, fmt.Sprintf("occurrence %s does not exist", o.ID))
	}
	existing.Status = o.Status
	existing.InactiveReason = o.InactiveReason
	existing.WasInjected = o.WasInjected
	existing.WasAdheredTo = o.WasAdheredTo
	return putJSON(tx.txn, key, existing)
}

func (tx *projectTx) GetOccurrence(id string) (patternstore.PatternOccurrence, bool, error) {
	var o patternstore.PatternOccurrence
	found, err := getJSON(tx.txn, tx.scoped(prefixOccurrence, id), &o)
	return o, found, err
}

func (tx *projectTx) ListOccurrencesByPattern(patternID string) ([]patternstore.PatternOccurrence, error) {
	prefix := fmt.Sprintf("%s%s/", tx.scopePrefix(prefixOccByPattern), patternID)
	var ids []string
	it := tx.txn.NewIterator(badgerdb.DefaultIteratorOptions)
	func() {
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			k := string(it.Item().Key())
			ids = append(ids, k[len(prefix):])
		}
	}()
	var out []patternstore.PatternOccurrence
	for _, id := range ids {
		o, found, err := tx.GetOccurrence(id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, o)
		}
	}
	return out, nil
}

func (tx *projectTx) ListOccurrencesSince(since time.Time) ([]patternstore.PatternOccurrence, error) {
	var out []patternstore.PatternOccurrence
	err := iteratePrefix(tx.txn, tx.scopePrefix(prefixOccurrence), func(val []byte) error {
		var o patternstore.PatternOccurrence
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (tx *projectTx) AppendNoncompliance(n outcomestore.ExecutionNoncompliance) error {
	return putJSON(tx.txn, tx.scoped(prefixNoncompl, n.ID), n)
}

func (tx *projectTx) AppendDocUpdateRequest(d outcomestore.DocUpdateRequest) error {
	return putJSON(tx.txn, tx.scoped(prefixDocUpdate, d.ID), d)
}

func (tx *projectTx) ListDocUpdateRequests() ([]outcomestore.DocUpdateRequest, error) {
	var out []outcomestore.DocUpdateRequest
	err := iteratePrefix(tx.txn, tx.scopePrefix(prefixDocUpdate), func(val []byte) error {
		var d outcomestore.DocUpdateRequest
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (tx *projectTx) AppendTaggingMiss(t outcomestore.TaggingMiss) error {
	return putJSON(tx.txn, tx.scoped(prefixTaggingMiss, t.ID), t)
}

func (tx *projectTx) AppendInjectionLog(l outcomestore.InjectionLog) error {
	return putJSON(tx.txn, tx.scoped(prefixInjectionLog, l.ID), l)
}

func (tx *projectTx) PutProvisionalAlert(a outcomestore.ProvisionalAlert) error {
	return putJSON(tx.txn, tx.scoped(prefixAlert, a.ID), a)
}

func (tx *projectTx) GetProvisionalAlert(id string) (outcomestore.ProvisionalAlert, bool, error) {
	var a outcomestore.ProvisionalAlert
	found, err := getJSON(tx.txn, tx.scoped(prefixAlert, id), &a)
	return a, found, err
}

func (tx *projectTx) ListProvisionalAlerts() ([]outcomestore.ProvisionalAlert, error) {
	var out []outcomestore.ProvisionalAlert
	err := iteratePrefix(tx.txn, tx.scopePrefix(prefixAlert), func(val []byte) error {
		var a outcomestore.ProvisionalAlert
		if err := json.Unmarshal(val, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (tx *projectTx) UpsertSalienceIssue(stage, location, excerpt string, at time.Time) (outcomestore.SalienceIssue, error) {
	hash := outcomestore.ComputeLocationHash(stage, location, excerpt)
	hashKey := tx.scoped(prefixSalienceHash, hash)

	if id, found, err := getString(tx.txn, hashKey); err != nil {
		return outcomestore.SalienceIssue{}, err
	} else if found {
		var issue outcomestore.SalienceIssue
		issueFound, err := getJSON(tx.txn, tx.scoped(prefixSalience, id), &issue)
		if err != nil {
			return outcomestore.SalienceIssue{}, err
		}
		if issueFound && issue.Status == outcomestore.SalienceOpen {
			issue.OccurrenceCount++
			issue.UpdatedAt = at
			if err := putJSON(tx.txn, tx.scoped(prefixSalience, id), issue); err != nil {
				return outcomestore.SalienceIssue{}, err
			}
			return issue, nil
		}
	}

	id := hash + ":" + at.Format(time.RFC3339Nano)
	issue := outcomestore.SalienceIssue{
		ID:              id,
		Workspace:       tx.workspace,
		Project:         tx.project,
		LocationHash:    hash,
		Stage:           stage,
		Location:        location,
		Excerpt:         excerpt,
		OccurrenceCount: 1,
		Status:          outcomestore.SalienceOpen,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	if err := putJSON(tx.txn, tx.scoped(prefixSalience, id), issue); err != nil {
		return outcomestore.SalienceIssue{}, err
	}
	if err := tx.txn.Set([]byte(hashKey), []byte(id)); err != nil {
		return outcomestore.SalienceIssue{}, err
	}
	return issue, nil
}

func (tx *projectTx) ListSalienceIssuesSince(since time.Time) ([]outcomestore.SalienceIssue, error) {
	var out []outcomestore.SalienceIssue
	err := iteratePrefix(tx.txn, tx.scopePrefix(prefixSalience), func(val []byte) error {
		var s outcomestore.SalienceIssue
		if err := json.Unmarshal(val, &s); err != nil {
			return err
		}
		if !s.CreatedAt.Before(since) {
			out = append(out, s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (tx *projectTx) ResolveSalienceIssue(id string) error {
	key := tx.scoped(prefixSalience, id)
	var issue outcomestore.SalienceIssue
	found, err := getJSON(tx.txn, key, &issue)
	if err != nil {
		return err
	}
	if !found {
		return ekind.New(ekind.ConflictViolation, fmt.Sprintf("salience issue %s does not exist", id))
	}
	issue.Status = outcomestore.SalienceResolved
	if err := putJSON(tx.txn, key, issue); err != nil {
		return err
	}
	return tx.txn.Delete([]byte(tx.scoped(prefixSalienceHash, issue.LocationHash)))
}

func (tx *projectTx) AppendOutcome(o outcomestore.AttributionOutcome) error {
	return putJSON(tx.txn, tx.scoped(prefixOutcome, o.ID), o)
}

func (tx *projectTx) ListOutcomesSince(since time.Time) ([]outcomestore.AttributionOutcome, error) {
	var out []outcomestore.AttributionOutcome
	err := iteratePrefix(tx.txn, tx.scopePrefix(prefixOutcome), func(val []byte) error {
		var o outcomestore.AttributionOutcome
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (tx *projectTx) GetKillSwitchStatus() (killswitch.Status, error) {
	var st killswitch.Status
	found, err := getJSON(tx.txn, tx.scoped(prefixKillSwitch, ""), &st)
	if err != nil {
		return killswitch.Status{}, err
	}
	if !found {
		return killswitch.Status{Workspace: tx.workspace, Project: tx.project, State: killswitch.StateActive}, nil
	}
	return st, nil
}

func (tx *projectTx) PutKillSwitchStatus(st killswitch.Status) error {
	return putJSON(tx.txn, tx.scoped(prefixKillSwitch, ""), st)
}

type workspaceTx struct {
	txn       *badgerdb.Txn
	workspace string
}

func (tx *workspaceTx) scoped(prefix, id string) string {
	return fmt.Sprintf("%s%s/%s", prefix, tx.workspace, id)
}

func (tx *workspaceTx) scopePrefix(prefix string) string {
	return fmt.Sprintf("%s%s/", prefix, tx.workspace)
}

func (tx *workspaceTx) ListPrinciples() ([]principlestore.Principle, error) {
	var out []principlestore.Principle
	err := iteratePrefix(tx.txn, tx.scopePrefix(prefixPrinciple), func(val []byte) error {
		var p principlestore.Principle
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (tx *workspaceTx) GetPrincipleByPromotionKey(key string) (principlestore.Principle, bool, error) {
	id, found, err := getString(tx.txn, tx.scoped(prefixPromotionKey, key))
	if err != nil || !found {
		return principlestore.Principle{}, false, err
	}
	var p principlestore.Principle
	pfound, err := getJSON(tx.txn, tx.scoped(prefixPrinciple, id), &p)
	return p, pfound, err
}

func (tx *workspaceTx) PutPrinciple(p principlestore.Principle) error {
	if err := putJSON(tx.txn, tx.scoped(prefixPrinciple, p.ID), p); err != nil {
		return err
	}
	if p.PromotionKey != "" {
		if err := tx.txn.Set([]byte(tx.scoped(prefixPromotionKey, p.PromotionKey)), []byte(p.ID)); err != nil {
			return err
		}
	}
	return nil
}
