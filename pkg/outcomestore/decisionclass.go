// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package outcomestore

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed decisionclass.yaml
var defaultDecisionClasses []byte

type decisionWeightedPattern struct {
	Regex  string  `yaml:"regex"`
	Weight float64 `yaml:"weight"`

	compiled *regexp.Regexp
}

type decisionClassDef struct {
	Name     string                    `yaml:"name"`
	Patterns []decisionWeightedPattern `yaml:"patterns"`
}

type decisionClassFile struct {
	Version string              `yaml:"version"`
	Classes []decisionClassDef  `yaml:"classes"`
}

// DecisionClassifier scores free text against a weighted-regex decision
// class table (spec.md §4.G step 6: "infer DecisionClass by weighted-regex
// scoring; tie-break alphabetical on class name"), mirroring
// services/policy_engine's embed -> unmarshal -> compile pipeline.
type DecisionClassifier struct {
	classes []decisionClassDef
}

// NewDefaultDecisionClassifier loads and compiles the embedded decision
// class table.
func NewDefaultDecisionClassifier() (*DecisionClassifier, error) {
	var f decisionClassFile
	if err := yaml.Unmarshal(defaultDecisionClasses, &f); err != nil {
		return nil, fmt.Errorf("unmarshal decision class table: %w", err)
	}
	for ci, class := range f.Classes {
		for pi, p := range class.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compile regex for decision class %q: %w", class.Name, err)
			}
			f.Classes[ci].Patterns[pi].compiled = re
		}
	}
	return &DecisionClassifier{classes: f.Classes}, nil
}

// Classify scores text against every decision class and returns the
// highest-scoring class name. Ties are broken alphabetically on class
// name, per spec.md §4.G step 6. A text matching no pattern in any class
// returns ("", false).
func (c *DecisionClassifier) Classify(text string) (DecisionClass, bool) {
	type scored struct {
		name  string
		score float64
	}
	var results []scored
	for _, class := range c.classes {
		var score float64
		for _, p := range class.Patterns {
			if p.compiled.MatchString(text) {
				score += p.Weight
			}
		}
		if score > 0 {
			results = append(results, scored{name: class.Name, score: score})
		}
	}
	if len(results) == 0 {
		return "", false
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].name < results[j].name
	})
	return DecisionClass(results[0].name), true
}
