// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package keywordtable

import (
	"reflect"
	"testing"
)

func TestEmbeddedDataIntegrity(t *testing.T) {
	if len(DefaultKeywords) == 0 {
		t.Fatal("embedded keyword table is empty; did the build fail to include keywords.yaml?")
	}
	tbl, err := LoadDefault()
	if err != nil {
		t.Fatalf("failed to load embedded default: %v", err)
	}
	if tbl.Version != "1" {
		t.Errorf("expected version \"1\", got %q", tbl.Version)
	}
}

func TestExtract(t *testing.T) {
	tbl, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}

	tests := []struct {
		name             string
		text             string
		wantTouches      []string
		wantTechnologies []string
		wantTaskTypes    []string
	}{
		{
			name:             "postgres migration bugfix",
			text:             "Fix the postgres migration that crashed on schema changes",
			wantTouches:      []string{"database"},
			wantTechnologies: []string{"postgres"},
			wantTaskTypes:    []string{"bugfix"},
		},
		{
			name:             "kubernetes deploy feature",
			text:             "Implement a new kubernetes deploy pipeline",
			wantTouches:      []string{"infra"},
			wantTechnologies: []string{"kubernetes"},
			wantTaskTypes:    []string{"feature"},
		},
		{
			name:             "no matches",
			text:             "The weather today is pleasant",
			wantTouches:      nil,
			wantTechnologies: nil,
			wantTaskTypes:    nil,
		},
		{
			name:             "multi category match",
			text:             "Sanitize the auth token endpoint against injection, refactor the handler",
			wantTouches:      []string{"api", "auth"},
			wantTechnologies: nil,
			wantTaskTypes:    []string{"refactor", "security"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tbl.Extract(tc.text)
			if !reflect.DeepEqual(got.Touches, tc.wantTouches) {
				t.Errorf("Touches = %v, want %v", got.Touches, tc.wantTouches)
			}
			if !reflect.DeepEqual(got.Technologies, tc.wantTechnologies) {
				t.Errorf("Technologies = %v, want %v", got.Technologies, tc.wantTechnologies)
			}
			if !reflect.DeepEqual(got.TaskTypes, tc.wantTaskTypes) {
				t.Errorf("TaskTypes = %v, want %v", got.TaskTypes, tc.wantTaskTypes)
			}
		})
	}
}

func TestLoadRejectsBadRegex(t *testing.T) {
	bad := []byte(`
version: "1"
touches:
  - name: broken
    regex: '(?i)\b(unterminated'
`)
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for unterminated regex, got nil")
	}
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	noVersion := []byte(`
touches:
  - name: database
    regex: '(?i)\bsql\b'
`)
	if _, err := Load(noVersion); err == nil {
		t.Fatal("expected error for missing version, got nil")
	}
}
