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
	validator "github.com/go-playground/validator/v10"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/pkg/interpreter"
	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

// CompanyQualityInput is the declared input schema for the CompanyQuality
// tool (spec §4.3). LicenseType and Sector are optional: a missing value
// is recorded as a defaulted field rather than rejected.
type CompanyQualityInput struct {
	Name             string             `json:"name" validate:"required"`
	Industry         string             `json:"industry" validate:"required"`
	Size             int                `json:"size" validate:"required,gte=0"`
	LicenseType      string             `json:"license_type,omitempty"`
	Sector           string             `json:"sector,omitempty"`
	LocaleSignals    []string           `json:"locale_signals,omitempty"`
	SalaryIndicators map[string]float64 `json:"salary_indicators,omitempty"`
}

// CompanyQualityOutput is the typed result the executor attaches to a
// CompanyQuality DecisionRecord.
type CompanyQualityOutput struct {
	QualityTier string   `json:"quality_tier"`
	Score       float64  `json:"score"`
	Confidence  float64  `json:"confidence"`
	Breakdown   []Step   `json:"breakdown"`
	KeyFactors  []Step   `json:"key_factors"`
}

const defaultSector = "Private"

type companyQualityTool struct{}

func (companyQualityTool) validate(raw map[string]any, v *validator.Validate) (*ValidatedInput, error) {
	var in CompanyQualityInput
	if err := decodeParams(raw, &in); err != nil {
		return nil, err
	}
	if err := runStructValidation(v, &in); err != nil {
		return nil, err
	}

	var defaulted []string
	if in.Sector == "" {
		in.Sector = defaultSector
		defaulted = append(defaulted, "sector")
	}
	if in.LicenseType == "" {
		in.LicenseType = "Mainland"
		defaulted = append(defaulted, "license_type")
	}

	return &ValidatedInput{
		Values: map[string]any{
			"size":          float64(in.Size),
			"industry":      in.Industry,
			"license_type":  in.LicenseType,
			"sector":        in.Sector,
			"locale_signal_count": float64(len(in.LocaleSignals)),
		},
		DefaultedFields: defaulted,
	}, nil
}

// compose resolves the document's score entrypoint plus the quality_tier
// rule in one evaluation pass (pkg/interpreter.EvaluateMulti), since
// quality_tier is derived from the same score rule's pre-edge-case value:
// edge cases (e.g. government_entity) adjust the returned score, but the
// tier boundary classification is fixed against the formula's own output
// so a single steep edge-case multiplier cannot silently relabel a
// genuinely strong company as TIER_3.
func (companyQualityTool) compose(doc *ruledoc.RuleDocument, vi *ValidatedInput) (*Output, error) {
	result, extras, err := interpreter.EvaluateMulti(doc, vi.Values, []string{"quality_tier"})
	if err != nil {
		return nil, err
	}

	score, ok := interpreter.AsFloat(result.Result)
	if !ok {
		return nil, appErrors.NewEvaluationError(doc.Entrypoint, "compose", "score rule did not resolve to a number")
	}
	tier, _ := extras["quality_tier"].(string)

	confidence := 1.0
	for _, field := range vi.DefaultedFields {
		if p, ok := doc.Confidence.Penalties[field]; ok {
			confidence -= p
		}
	}
	confidence = clampConfidence(confidence, doc.Confidence.Floor, ceilingOrDefault(doc.Confidence.Ceiling))

	var edgeCases []string
	steps := make([]Step, 0, len(result.Breakdown))
	for _, s := range result.Breakdown {
		steps = append(steps, Step{StepName: s.StepName, Value: s.Value, Reason: s.Reason})
		if name, isEdge := edgeCaseName(s.StepName); isEdge {
			edgeCases = append(edgeCases, name)
		}
	}

	return &Output{
		Tool: CompanyQuality,
		Result: CompanyQualityOutput{
			QualityTier: tier,
			Score:       score,
			Confidence:  confidence,
			Breakdown:   steps,
		},
		Confidence:       confidence,
		Breakdown:        steps,
		Variables:        result.Variables,
		KeyFactors:       toSteps(interpreter.KeyFactors(result.Breakdown, 3)),
		EdgeCasesApplied: edgeCases,
		DefaultedFields:  vi.DefaultedFields,
		RuleVersion:      result.RuleVersion,
	}, nil
}

func ceilingOrDefault(c float64) float64 {
	if c == 0 {
		return 1.0
	}
	return c
}

func toSteps(in []interpreter.Step) []Step {
	out := make([]Step, len(in))
	for i, s := range in {
		out[i] = Step{StepName: s.StepName, Value: s.Value, Reason: s.Reason}
	}
	return out
}

func edgeCaseName(stepName string) (string, bool) {
	const prefix = "edge_case:"
	if len(stepName) > len(prefix) && stepName[:len(prefix)] == prefix {
		return stepName[len(prefix):], true
	}
	return "", false
}
