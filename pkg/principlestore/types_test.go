// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package principlestore

import "testing"

func TestComputePromotionKeyIdempotent(t *testing.T) {
	k1, sorted1 := ComputePromotionKey([]string{"p3", "p1", "p2"})
	k2, sorted2 := ComputePromotionKey([]string{"p1", "p2", "p3"})
	if k1 != k2 {
		t.Errorf("expected order-independent key, got %q vs %q", k1, k2)
	}
	if len(sorted1) != 3 || len(sorted2) != 3 {
		t.Fatalf("expected 3 sorted ids, got %v and %v", sorted1, sorted2)
	}

	// Re-promotion with the exact same frozen set must be idempotent.
	k3, _ := ComputePromotionKey([]string{"p1", "p2", "p3"})
	if k1 != k3 {
		t.Error("expected re-promotion with same set to be idempotent")
	}
}

func TestComputePromotionKeyDeduplicates(t *testing.T) {
	k1, sorted := ComputePromotionKey([]string{"p1", "p1", "p2"})
	k2, _ := ComputePromotionKey([]string{"p1", "p2"})
	if k1 != k2 {
		t.Error("expected duplicate ids to be deduplicated before hashing")
	}
	if len(sorted) != 2 {
		t.Errorf("expected 2 deduplicated ids, got %d", len(sorted))
	}
}

func TestTouchOverlapCount(t *testing.T) {
	p := &Principle{Touches: []string{"database", "api"}}
	if got := p.TouchOverlapCount([]string{"database", "frontend"}); got != 1 {
		t.Errorf("overlap = %d, want 1", got)
	}
	if got := p.TouchOverlapCount([]string{"infra"}); got != 0 {
		t.Errorf("overlap = %d, want 0", got)
	}
	if got := p.TouchOverlapCount(nil); got != 0 {
		t.Errorf("overlap = %d, want 0", got)
	}
}
