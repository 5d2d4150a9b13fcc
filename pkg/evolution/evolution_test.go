// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evolution

import (
	"context"
	"testing"
	"time"

	"github.com/attributeai/attribution-engine/pkg/clock"
	"github.com/attributeai/attribution-engine/pkg/evidence"
	"github.com/attributeai/attribution-engine/pkg/idgen"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/patternstore"
	"github.com/attributeai/attribution-engine/pkg/scopedstore"
)

func newTestProcessor(t *testing.T, now time.Time) (*Processor, *scopedstore.InMemoryStore) {
	t.Helper()
	store := scopedstore.NewInMemoryStore()
	if err := store.PutProject(context.Background(), scopedstore.Project{Workspace: "ws", Project: "proj", Status: scopedstore.ProjectActive}); err != nil {
		t.Fatalf("PutProject: %v", err)
	}
	p := New(store, clock.Fixed{At: now}, idgen.NewSequential("t"), nil, nil, nil)
	return p, store
}

func TestDecayPatternsArchivesBelowThreshold(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, store := newTestProcessor(t, now)

	// An inferred-quote pattern that has been injected repeatedly and
	// never adhered to, its sole occurrence long past: base 0.40, no
	// occurrence-count boost, full 0.15 recency decay, and the batch
	// job's suspectedDrift proxy firing (>=3 injections, 0 adherence)
	// subtracts another 0.15, landing at 0.10 -- below threshold.
	err := store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		pattern := patternstore.Pattern{
			ID:                      "pattern-1",
			Workspace:               "ws",
			Project:                 "proj",
			PatternKey:              "key-1",
			PatternContent:          "never do X",
			CarrierStage:            evidence.CarrierSpec,
			FindingCategory:         evidence.ScoutBugs,
			PrimaryCarrierQuoteType: evidence.QuoteInferred,
			Status:                  patternstore.StatusActive,
			CreatedAt:               now.Add(-200 * 24 * time.Hour),
			UpdatedAt:               now.Add(-200 * 24 * time.Hour),
		}
		if err := tx.PutPattern(pattern); err != nil {
			return err
		}
		for i := 0; i < salienceMinIgnored; i++ {
			status := patternstore.OccurrenceInactive
			if i == 0 {
				// Exactly one active occurrence keeps the occurrence-count
				// boost at zero (activeOccurrences-1 == 0) while still
				// counting all three toward the injection/adherence stats
				// the suspectedDrift proxy reads.
				status = patternstore.OccurrenceActive
			}
			if err := tx.AppendOccurrence(patternstore.PatternOccurrence{
				ID:           idSuffix("occ", i),
				PatternID:    "pattern-1",
				Workspace:    "ws",
				Project:      "proj",
				FindingID:    idSuffix("finding", i),
				Evidence:     evidence.EvidenceBundle{CarrierStage: evidence.CarrierSpec, CarrierQuoteType: evidence.QuoteInferred},
				Status:       status,
				WasInjected:  true,
				WasAdheredTo: patternstore.AdherenceFalse,
				CreatedAt:    now.Add(-200 * 24 * time.Hour),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.TotalPatternsArchived() != 1 {
		t.Fatalf("TotalPatternsArchived() = %d, want 1", report.TotalPatternsArchived())
	}

	_ = store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		pat, found, err := tx.GetPattern("pattern-1")
		if err != nil || !found {
			t.Fatalf("GetPattern: found=%v err=%v", found, err)
		}
		if pat.Status != patternstore.StatusArchived {
			t.Fatalf("Status = %q, want archived", pat.Status)
		}
		return nil
	})
}

func TestDecayPatternsSkipsPermanent(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, store := newTestProcessor(t, now)

	err := store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		return tx.PutPattern(patternstore.Pattern{
			ID:                      "pattern-1",
			Workspace:               "ws",
			Project:                 "proj",
			PatternKey:              "key-1",
			CarrierStage:            evidence.CarrierSpec,
			FindingCategory:         evidence.ScoutBugs,
			PrimaryCarrierQuoteType: evidence.QuoteInferred,
			Status:                  patternstore.StatusActive,
			Permanent:               true,
			CreatedAt:               now.Add(-400 * 24 * time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.TotalPatternsArchived() != 0 {
		t.Fatalf("TotalPatternsArchived() = %d, want 0 (permanent patterns never decay)", report.TotalPatternsArchived())
	}
}

func TestDetectSalienceOpensIssueAtThreshold(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, store := newTestProcessor(t, now)

	err := store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		for i := 0; i < salienceMinIgnored; i++ {
			occ := patternstore.PatternOccurrence{
				ID:               idSuffix("occ", i),
				PatternID:        "pattern-1",
				Workspace:        "ws",
				Project:          "proj",
				FindingID:        idSuffix("finding", i),
				Evidence:         evidence.EvidenceBundle{CarrierStage: evidence.CarrierContextPack, CarrierQuote: "always validate input"},
				GuidanceLocation: "section: validation",
				Status:           patternstore.OccurrenceActive,
				WasInjected:      true,
				WasAdheredTo:     patternstore.AdherenceFalse,
				CreatedAt:        now.Add(-1 * time.Hour),
			}
			if err := tx.AppendOccurrence(occ); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(report.Projects) != 1 || report.Projects[0].SalienceIssuesOpened != 1 {
		t.Fatalf("SalienceIssuesOpened = %+v, want 1 issue opened", report.Projects)
	}

	_ = store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		issues, err := tx.ListSalienceIssuesSince(time.Time{})
		if err != nil {
			t.Fatalf("ListSalienceIssuesSince: %v", err)
		}
		if len(issues) != 1 {
			t.Fatalf("len(issues) = %d, want 1", len(issues))
		}
		if issues[0].Status != outcomestore.SalienceOpen {
			t.Fatalf("Status = %q, want open", issues[0].Status)
		}
		return nil
	})
}

func TestDetectSalienceSkipsAlreadyPendingIssue(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, store := newTestProcessor(t, now)

	err := store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		if _, err := tx.UpsertSalienceIssue("context-pack", "section: validation", "always validate input", now.Add(-2*time.Hour)); err != nil {
			return err
		}
		for i := 0; i < salienceMinIgnored; i++ {
			if err := tx.AppendOccurrence(patternstore.PatternOccurrence{
				ID:               idSuffix("occ", i),
				PatternID:        "pattern-1",
				Workspace:        "ws",
				Project:          "proj",
				FindingID:        idSuffix("finding", i),
				Evidence:         evidence.EvidenceBundle{CarrierStage: evidence.CarrierContextPack, CarrierQuote: "always validate input"},
				GuidanceLocation: "section: validation",
				Status:           patternstore.OccurrenceActive,
				WasInjected:      true,
				WasAdheredTo:     patternstore.AdherenceFalse,
				CreatedAt:        now.Add(-1 * time.Hour),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.Projects[0].SalienceIssuesOpened != 0 {
		t.Fatalf("SalienceIssuesOpened = %d, want 0 (issue already pending)", report.Projects[0].SalienceIssuesOpened)
	}

	_ = store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		issues, err := tx.ListSalienceIssuesSince(time.Time{})
		if err != nil {
			t.Fatalf("ListSalienceIssuesSince: %v", err)
		}
		if len(issues) != 1 {
			t.Fatalf("len(issues) = %d, want 1 (no duplicate)", len(issues))
		}
		return nil
	})
}

func TestExpireAlertsMarksExpiredWhenGateNotMet(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, store := newTestProcessor(t, now)

	err := store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		return tx.PutProvisionalAlert(outcomestore.ProvisionalAlert{
			ID:                            "alert-1",
			Workspace:                     "ws",
			Project:                       "proj",
			Touches:                       []string{"auth"},
			RepresentativeCarrierStage:    string(evidence.CarrierSpec),
			RepresentativeFindingCategory: string(evidence.ScoutSecurity),
			RepresentativeQuote:           "disable TLS verification for internal calls",
			LinkedOccurrenceIDs:           []string{"occ-a"},
			LinkedFindingIDs:              []string{"finding-a"},
			Status:                        outcomestore.AlertActive,
			ExpiresAt:                     now.Add(-1 * time.Hour),
			CreatedAt:                     now.Add(-15 * 24 * time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.Projects[0].AlertsExpired != 1 || report.Projects[0].AlertsPromoted != 0 {
		t.Fatalf("report = %+v, want 1 expired, 0 promoted", report.Projects[0])
	}
}

func TestExpireAlertsPromotesWhenGateMet(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, store := newTestProcessor(t, now)

	err := store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		return tx.PutProvisionalAlert(outcomestore.ProvisionalAlert{
			ID:                            "alert-1",
			Workspace:                     "ws",
			Project:                       "proj",
			Touches:                       []string{"auth"},
			RepresentativeCarrierStage:    string(evidence.CarrierSpec),
			RepresentativeFindingCategory: string(evidence.ScoutSecurity),
			RepresentativeQuote:           "disable TLS verification for internal calls",
			LinkedOccurrenceIDs:           []string{"occ-a", "occ-b"},
			LinkedFindingIDs:              []string{"finding-a", "finding-b"},
			Status:                        outcomestore.AlertActive,
			ExpiresAt:                     now.Add(-1 * time.Hour),
			CreatedAt:                     now.Add(-15 * 24 * time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.Projects[0].AlertsPromoted != 1 {
		t.Fatalf("AlertsPromoted = %d, want 1", report.Projects[0].AlertsPromoted)
	}

	_ = store.WithProjectTx(context.Background(), "ws", "proj", func(tx scopedstore.ProjectTx) error {
		alert, found, err := tx.GetProvisionalAlert("alert-1")
		if err != nil || !found {
			t.Fatalf("GetProvisionalAlert: found=%v err=%v", found, err)
		}
		if alert.Status != outcomestore.AlertPromoted || alert.PromotedToPatternID == "" {
			t.Fatalf("alert = %+v, want promoted with a pattern id", alert)
		}
		pattern, found, err := tx.GetPattern(alert.PromotedToPatternID)
		if err != nil || !found {
			t.Fatalf("GetPattern: found=%v err=%v", found, err)
		}
		if pattern.SeverityMax != evidence.SeverityHigh {
			t.Fatalf("SeverityMax = %q, want HIGH", pattern.SeverityMax)
		}
		return nil
	})
}

func idSuffix(prefix string, i int) string {
	digits := "0123456789"
	return prefix + "-" + string(digits[i%10])
}
