/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package executor

import (
	"encoding/json"

	"github.com/salesintel/decisionengine/pkg/tools"
)

// compareOutputs reports whether primary and secondary agree on every
// string-valued field of their typed Result (the "categorical" part of the
// output, e.g. tier, priority, band) and the signed difference between
// their Confidence values (spec §4.4 step 6 "comparison block").
//
// Results are compared by round-tripping through JSON rather than by
// switching on each tool's concrete Result type, since the comparison
// logic is identical across all five tools and none of them expose a
// common interface for it.
func compareOutputs(primary, secondary *tools.Output) (categoricalMatch bool, numericDifference float64) {
	primaryFields := stringFields(primary.Result)
	secondaryFields := stringFields(secondary.Result)

	categoricalMatch = len(primaryFields) > 0
	for k, v := range primaryFields {
		if secondaryFields[k] != v {
			categoricalMatch = false
			break
		}
	}

	numericDifference = secondary.Confidence - primary.Confidence
	return categoricalMatch, numericDifference
}

func stringFields(result any) map[string]string {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	fields := make(map[string]string, len(decoded))
	for k, v := range decoded {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	return fields
}
