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
	"strings"

	validator "github.com/go-playground/validator/v10"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/pkg/interpreter"
	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

// ContactTierInput is the declared input schema for the ContactTier tool
// (spec §4.3). Only Title is required; Seniority and Department, when
// absent, are inferred from Title by keyword matching and carry a
// declared confidence penalty (spec §4.3 "Inference and penalties").
type ContactTierInput struct {
	Title       string `json:"title" validate:"required"`
	Seniority   string `json:"seniority,omitempty"`
	Department  string `json:"department,omitempty"`
	CompanySize int    `json:"company_size,omitempty"`
	Velocity    string `json:"velocity,omitempty"`
	Maturity    string `json:"maturity,omitempty"`
}

// ContactTierOutput is the typed result of a ContactTier decision.
type ContactTierOutput struct {
	Tier          string   `json:"tier"`
	Priority      int      `json:"priority"`
	TargetTitles  []string `json:"target_titles"`
	FallbackTitles []string `json:"fallback_titles"`
	Confidence    float64  `json:"confidence"`
}

// seniorityHierarchy is checked in order; the first keyword match wins,
// mirroring the C-Level > VP > Director > Manager > Individual hierarchy
// spec §4.3 names explicitly.
var seniorityHierarchy = []struct {
	Level    string
	Keywords []string
}{
	{"C-Level", []string{"chief", "ceo", "cfo", "coo", "cto", "chro", "cio", "president", "founder"}},
	{"VP", []string{"vp", "vice president", "svp", "evp"}},
	{"Director", []string{"director", "head of"}},
	{"Manager", []string{"manager", "lead"}},
}

// departmentKeywords maps a department name to the title substrings that
// imply it. Checked in map iteration order is not guaranteed, so the
// caller iterates departmentOrder instead.
var departmentKeywords = map[string][]string{
	"Human Resources": {"hr", "human resources", "people", "talent", "recruit"},
	"Finance":          {"finance", "cfo", "controller", "treasury"},
	"Technology":       {"cto", "engineering", "it ", "technology", "infrastructure"},
	"Sales":            {"sales", "revenue", "business development"},
	"Operations":       {"operations", "coo", "supply chain"},
}

var departmentOrder = []string{"Human Resources", "Finance", "Technology", "Sales", "Operations"}

func inferSeniority(title string) (string, bool) {
	// Keywords match whole words, so "cto" does not fire inside "director".
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	padded := " " + strings.Join(words, " ") + " "
	for _, band := range seniorityHierarchy {
		for _, kw := range band.Keywords {
			if strings.Contains(padded, " "+kw+" ") {
				return band.Level, true
			}
		}
	}
	return "Individual", false
}

func inferDepartment(title string) (string, bool) {
	lower := strings.ToLower(title)
	for _, dept := range departmentOrder {
		for _, kw := range departmentKeywords[dept] {
			if strings.Contains(lower, kw) {
				return dept, true
			}
		}
	}
	return "", false
}

type contactTierTool struct{}

func (contactTierTool) validate(raw map[string]any, v *validator.Validate) (*ValidatedInput, error) {
	var in ContactTierInput
	if err := decodeParams(raw, &in); err != nil {
		return nil, err
	}
	if err := runStructValidation(v, &in); err != nil {
		return nil, err
	}

	var inferred, defaulted []string

	seniority := in.Seniority
	if seniority == "" {
		var ok bool
		seniority, ok = inferSeniority(in.Title)
		inferred = append(inferred, "seniority")
		_ = ok
	}

	department := in.Department
	if department == "" {
		if d, ok := inferDepartment(in.Title); ok {
			department = d
			inferred = append(inferred, "department")
		} else {
			defaulted = append(defaulted, "department")
		}
	}

	tokenCount := len(strings.Fields(strings.TrimSpace(in.Title)))
	if tokenCount <= 1 {
		inferred = append(inferred, "short_title")
	}

	return &ValidatedInput{
		Values: map[string]any{
			"seniority":    seniority,
			"department":   department,
			"company_size": float64(in.CompanySize),
			"velocity":     in.Velocity,
			"maturity":     in.Maturity,
		},
		InferredFields:  inferred,
		DefaultedFields: defaulted,
	}, nil
}

func (contactTierTool) compose(doc *ruledoc.RuleDocument, vi *ValidatedInput) (*Output, error) {
	result, extras, err := interpreter.EvaluateMulti(doc, vi.Values, []string{"priority", "target_titles", "fallback_titles"})
	if err != nil {
		return nil, err
	}

	tier, ok := result.Result.(string)
	if !ok {
		return nil, appErrors.NewEvaluationError(doc.Entrypoint, "compose", "tier rule did not resolve to a string")
	}
	priority, ok := interpreter.AsFloat(extras["priority"])
	if !ok {
		return nil, appErrors.NewEvaluationError("priority", "compose", "priority rule did not resolve to a number")
	}
	targetTitles := toStringSlice(extras["target_titles"])
	fallbackTitles := toStringSlice(extras["fallback_titles"])

	confidence := 1.0
	for _, field := range vi.InferredFields {
		if p, ok := doc.Confidence.Penalties[field]; ok {
			confidence -= p
		}
	}
	for _, field := range vi.DefaultedFields {
		if p, ok := doc.Confidence.Penalties["missing_"+field]; ok {
			confidence -= p
		}
	}
	confidence = clampConfidence(confidence, doc.Confidence.Floor, ceilingOrDefault(doc.Confidence.Ceiling))

	return &Output{
		Tool: ContactTier,
		Result: ContactTierOutput{
			Tier:           tier,
			Priority:       int(priority),
			TargetTitles:   targetTitles,
			FallbackTitles: fallbackTitles,
			Confidence:     confidence,
		},
		Confidence:      confidence,
		Breakdown:       toSteps(result.Breakdown),
		Variables:       result.Variables,
		KeyFactors:      toSteps(interpreter.KeyFactors(result.Breakdown, 3)),
		InferredFields:  vi.InferredFields,
		DefaultedFields: vi.DefaultedFields,
		RuleVersion:     result.RuleVersion,
	}, nil
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
