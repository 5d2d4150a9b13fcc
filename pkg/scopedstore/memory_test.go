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
	"sync"
	"testing"
	"time"

	"github.com/attributeai/attribution-engine/pkg/ekind"
	"github.com/attributeai/attribution-engine/pkg/evidence"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/principlestore"
)

func newTestStore(t *testing.T, workspace, project string) *InMemoryStore {
	t.Helper()
	s := NewInMemoryStore()
	if err := s.PutProject(context.Background(), Project{Workspace: workspace, Project: project, Status: ProjectActive}); err != nil {
		t.Fatalf("PutProject: %v", err)
	}
	return s
}

func TestPutPatternRejectsDuplicateActiveKey(t *testing.T) {
	s := newTestStore(t, "ws", "proj")
	ctx := context.Background()

	err := s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		if err := tx.PutPattern(patternstore.Pattern{ID: "p1", PatternKey: "key-a", Status: patternstore.StatusActive}); err != nil {
			return err
		}
		return tx.PutPattern(patternstore.Pattern{ID: "p2", PatternKey: "key-a", Status: patternstore.StatusActive})
	})
	if !ekind.OfKind(err, ekind.ConflictViolation) {
		t.Fatalf("expected ConflictViolation, got %v", err)
	}
}

func TestPutPatternAllowsKeyReuseAfterArchival(t *testing.T) {
	s := newTestStore(t, "ws", "proj")
	ctx := context.Background()

	err := s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		if err := tx.PutPattern(patternstore.Pattern{ID: "p1", PatternKey: "key-a", Status: patternstore.StatusActive}); err != nil {
			return err
		}
		if err := tx.PutPattern(patternstore.Pattern{ID: "p1", PatternKey: "key-a", Status: patternstore.StatusArchived}); err != nil {
			return err
		}
		return tx.PutPattern(patternstore.Pattern{ID: "p2", PatternKey: "key-a", Status: patternstore.StatusActive})
	})
	if err != nil {
		t.Fatalf("expected key reuse after archival to succeed, got %v", err)
	}
}

func TestAppendOccurrenceRejectsUnknownPattern(t *testing.T) {
	s := newTestStore(t, "ws", "proj")
	ctx := context.Background()

	err := s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		return tx.AppendOccurrence(patternstore.PatternOccurrence{ID: "occ-1", PatternID: "missing-pattern"})
	})
	if !ekind.OfKind(err, ekind.ConflictViolation) {
		t.Fatalf("expected ConflictViolation for dangling pattern reference, got %v", err)
	}
}

func TestUpdateOccurrenceMutableFieldsOnlyChangesAllowedFields(t *testing.T) {
	s := newTestStore(t, "ws", "proj")
	ctx := context.Background()

	err := s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		if err := tx.PutPattern(patternstore.Pattern{ID: "p1", PatternKey: "key-a", Status: patternstore.StatusActive}); err != nil {
			return err
		}
		if err := tx.AppendOccurrence(patternstore.PatternOccurrence{
			ID: "occ-1", PatternID: "p1", Severity: evidence.SeverityHigh,
			Status: patternstore.OccurrenceActive,
		}); err != nil {
			return err
		}
		return tx.UpdateOccurrenceMutableFields(patternstore.PatternOccurrence{
			ID: "occ-1", PatternID: "p1", Status: patternstore.OccurrenceInactive,
			InactiveReason: patternstore.InactiveReasonSourceFixed,
			WasAdheredTo:   patternstore.AdherenceFalse,
		})
	})
	if err != nil {
		t.Fatalf("expected mutable-field update to succeed, got %v", err)
	}

	var stored patternstore.PatternOccurrence
	_ = s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		o, found, err := tx.GetOccurrence("occ-1")
		if err != nil || !found {
			t.Fatalf("expected occurrence to be found, found=%v err=%v", found, err)
		}
		stored = o
		return nil
	})
	if stored.Status != patternstore.OccurrenceInactive {
		t.Errorf("status not updated: %v", stored.Status)
	}
	if stored.PatternID != "p1" {
		t.Errorf("immutable PatternID changed: %v", stored.PatternID)
	}
	if stored.Severity != evidence.SeverityHigh {
		t.Errorf("immutable Severity field changed: %v", stored.Severity)
	}
}

func TestUpdateOccurrenceMutableFieldsRejectsUnknownOccurrence(t *testing.T) {
	s := newTestStore(t, "ws", "proj")
	ctx := context.Background()
	err := s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		return tx.UpdateOccurrenceMutableFields(patternstore.PatternOccurrence{ID: "missing"})
	})
	if !ekind.OfKind(err, ekind.ConflictViolation) {
		t.Fatalf("expected ConflictViolation, got %v", err)
	}
}

func TestUpsertSalienceIssueIncrementsOnRepeatAndNeverReopensResolved(t *testing.T) {
	s := newTestStore(t, "ws", "proj")
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)

	var firstID string
	err := s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		issue, err := tx.UpsertSalienceIssue("spec", "section-2", "excerpt text", t0)
		if err != nil {
			return err
		}
		firstID = issue.ID
		if issue.OccurrenceCount != 1 {
			t.Errorf("expected first upsert occurrenceCount=1, got %d", issue.OccurrenceCount)
		}

		issue2, err := tx.UpsertSalienceIssue("spec", "section-2", "excerpt text", t1)
		if err != nil {
			return err
		}
		if issue2.ID != firstID {
			t.Errorf("expected same issue id on repeat ignore, got %v vs %v", issue2.ID, firstID)
		}
		if issue2.OccurrenceCount != 2 {
			t.Errorf("expected occurrenceCount=2 after repeat, got %d", issue2.OccurrenceCount)
		}

		if err := tx.ResolveSalienceIssue(firstID); err != nil {
			return err
		}

		issue3, err := tx.UpsertSalienceIssue("spec", "section-2", "excerpt text", t2)
		if err != nil {
			return err
		}
		if issue3.ID == firstID {
			t.Error("expected a resolved issue to never be reopened; got same id")
		}
		if issue3.OccurrenceCount != 1 {
			t.Errorf("expected fresh issue to start at occurrenceCount=1, got %d", issue3.OccurrenceCount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithProjectTxRejectsUnregisteredScope(t *testing.T) {
	s := NewInMemoryStore()
	err := s.WithProjectTx(context.Background(), "ws", "nope", func(tx ProjectTx) error { return nil })
	if !ekind.OfKind(err, ekind.ScopeNotFound) {
		t.Fatalf("expected ScopeNotFound, got %v", err)
	}
}

func TestWithProjectTxRejectsArchivedScope(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	if err := s.PutProject(ctx, Project{Workspace: "ws", Project: "proj", Status: ProjectArchived}); err != nil {
		t.Fatalf("PutProject: %v", err)
	}
	err := s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error { return nil })
	if !ekind.OfKind(err, ekind.ScopeArchived) {
		t.Fatalf("expected ScopeArchived, got %v", err)
	}
}

// TestDistinctScopesDoNotBlockEachOther exercises spec.md §5's
// independence guarantee: two different (workspace, project) scopes can
// both hold their transactions concurrently.
func TestDistinctScopesDoNotBlockEachOther(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	_ = s.PutProject(ctx, Project{Workspace: "ws", Project: "proj-a", Status: ProjectActive})
	_ = s.PutProject(ctx, Project{Workspace: "ws", Project: "proj-b", Status: ProjectActive})

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_ = s.WithProjectTx(ctx, "ws", "proj-a", func(tx ProjectTx) error {
			close(started)
			<-release
			return nil
		})
	}()

	go func() {
		defer wg.Done()
		<-started
		done := make(chan struct{})
		go func() {
			_ = s.WithProjectTx(ctx, "ws", "proj-b", func(tx ProjectTx) error { return nil })
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("proj-b transaction blocked on proj-a's lock")
		}
		close(release)
	}()

	wg.Wait()
}

func TestPrincipleByPromotionKeyRoundTrips(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	err := s.WithWorkspaceTx(ctx, "ws", func(tx WorkspaceTx) error {
		return tx.PutPrinciple(principlestore.Principle{ID: "pr-1", PromotionKey: "promo-key-1", Origin: principlestore.OriginDerived})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = s.WithWorkspaceTx(ctx, "ws", func(tx WorkspaceTx) error {
		p, found, err := tx.GetPrincipleByPromotionKey("promo-key-1")
		if err != nil || !found {
			t.Fatalf("expected to find principle by promotion key, found=%v err=%v", found, err)
		}
		if p.ID != "pr-1" {
			t.Errorf("got %v, want pr-1", p.ID)
		}
		return nil
	})
}

func TestOutcomeAppendAndListSince(t *testing.T) {
	s := newTestStore(t, "ws", "proj")
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		if err := tx.AppendOutcome(outcomestore.AttributionOutcome{ID: "o1", CreatedAt: t0}); err != nil {
			return err
		}
		return tx.AppendOutcome(outcomestore.AttributionOutcome{ID: "o2", CreatedAt: t0.Add(time.Hour)})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = s.WithProjectTx(ctx, "ws", "proj", func(tx ProjectTx) error {
		out, err := tx.ListOutcomesSince(t0.Add(30 * time.Minute))
		if err != nil {
			return err
		}
		if len(out) != 1 || out[0].ID != "o2" {
			t.Errorf("expected only o2 since cutoff, got %+v", out)
		}
		return nil
	})
}
