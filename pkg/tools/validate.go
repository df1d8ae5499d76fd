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

package tools

import (
	"encoding/json"
	"strings"

	validator "github.com/go-playground/validator/v10"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
)

// decodeParams re-marshals a free-form params map into a typed struct.
// Tool inputs arrive over the wire as JSON already (spec §6); round-
// tripping through encoding/json keeps one decode path for both the
// HTTP envelope and in-process callers instead of a bespoke
// map-to-struct reflection layer.
func decodeParams(raw map[string]any, dst any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return appErrors.NewValidationError("params is not JSON-serializable").WithDetails(err.Error())
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return appErrors.NewSchemaValidationError("params does not match the declared tool schema").WithDetails(err.Error())
	}
	return nil
}

// runStructValidation translates go-playground/validator field errors
// into a single AppError carrying every violation, so a caller gets the
// full set of problems in one response instead of one-at-a-time.
func runStructValidation(v *validator.Validate, input any) error {
	if err := v.Struct(input); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return appErrors.NewSchemaValidationError(err.Error())
		}
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fe.Namespace()+" failed on "+fe.Tag())
		}
		msg := "params failed validation"
		return appErrors.NewSchemaValidationError(msg).WithDetails(strings.Join(details, "; "))
	}
	return nil
}

// ValidatedInput is the normalized result of a tool's input validation:
// the typed input struct's fields flattened into the variable envelope
// pkg/interpreter evaluates against, plus a record of which fields the
// tool inferred or defaulted rather than received explicitly (spec §4.3
// "Handling missing/ambiguous inputs").
type ValidatedInput struct {
	Values          map[string]any
	InferredFields  []string
	DefaultedFields []string
}
