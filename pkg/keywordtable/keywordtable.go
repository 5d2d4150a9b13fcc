// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package keywordtable implements the versioned, explicit-data
// touch/technology/taskType keyword extraction design note calls for in
// place of ad-hoc inline regexes: "Ad-hoc keyword regex tables for
// touch/technology/task extraction should be explicit data, versioned
// alongside the code, so tests can pin exact outputs."
//
// The table format and compile/sort pipeline mirrors
// services/policy_engine: embedded YAML -> yaml.Unmarshal -> compile
// regexes -> ready to scan.
package keywordtable

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Category is one named keyword entry within a table section.
type Category struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`

	compiled *regexp.Regexp
}

// File is the on-disk/embedded shape of the keyword table.
type File struct {
	Version      string     `yaml:"version"`
	Touches      []Category `yaml:"touches"`
	Technologies []Category `yaml:"technologies"`
	TaskTypes    []Category `yaml:"task_types"`
}

// Table is a compiled, ready-to-query keyword table.
type Table struct {
	Version      string
	touches      []Category
	technologies []Category
	taskTypes    []Category
}

// LoadDefault parses and compiles the embedded default keyword table.
func LoadDefault() (*Table, error) {
	return Load(DefaultKeywords)
}

// Load parses and compiles a keyword table from raw YAML bytes.
func Load(raw []byte) (*Table, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal keyword table: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("keyword table missing version")
	}

	compile := func(cats []Category) ([]Category, error) {
		out := make([]Category, len(cats))
		for i, c := range cats {
			re, err := regexp.Compile(c.Regex)
			if err != nil {
				return nil, fmt.Errorf("compile regex for %q: %w", c.Name, err)
			}
			c.compiled = re
			out[i] = c
		}
		// Deterministic alphabetical order so extraction output is stable
		// regardless of file authoring order.
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}

	touches, err := compile(f.Touches)
	if err != nil {
		return nil, err
	}
	technologies, err := compile(f.Technologies)
	if err != nil {
		return nil, err
	}
	taskTypes, err := compile(f.TaskTypes)
	if err != nil {
		return nil, err
	}

	return &Table{
		Version:      f.Version,
		touches:      touches,
		technologies: technologies,
		taskTypes:    taskTypes,
	}, nil
}

// Extraction is the result of scanning text against the keyword table.
type Extraction struct {
	Touches      []string
	Technologies []string
	TaskTypes    []string
}

func matchAll(cats []Category, text string) []string {
	var out []string
	for _, c := range cats {
		if c.compiled.MatchString(text) {
			out = append(out, c.Name)
		}
	}
	return out
}

// Extract scans free text (finding title + description + evidence excerpt)
// and returns every matching touch/technology/taskType name, each list
// sorted alphabetically for determinism.
func (t *Table) Extract(text string) Extraction {
	return Extraction{
		Touches:      matchAll(t.touches, text),
		Technologies: matchAll(t.technologies, text),
		TaskTypes:    matchAll(t.taskTypes, text),
	}
}
