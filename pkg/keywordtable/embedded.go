// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file bridges the build system and the runtime keyword table. It bakes
keywords.yaml into the compiled binary via Go's embed package so the default
touch/technology/taskType keyword table is immutable at runtime and travels
with the binary, the same way services/policy_engine embeds its
data_classification_patterns.yaml.
*/

package keywordtable

import _ "embed"

// DefaultKeywords holds the raw bytes of the built-in, versioned keyword
// table. Pass to yaml.Unmarshal, or just call Load() / LoadDefault().
//
//go:embed keywords.yaml
var DefaultKeywords []byte
