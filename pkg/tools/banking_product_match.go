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

	"github.com/salesintel/decisionengine/pkg/interpreter"
	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

// BankingProductMatchInput is the declared input schema for the
// BankingProductMatch tool (spec §4.3).
type BankingProductMatchInput struct {
	CompanySize     int    `json:"company_size" validate:"required,gte=0"`
	Industry        string `json:"industry" validate:"required"`
	Maturity        string `json:"maturity,omitempty"`
	HiringVelocity  string `json:"hiring_velocity,omitempty"`
}

// BankingProductMatchOutput is the typed result of a BankingProductMatch
// decision.
type BankingProductMatchOutput struct {
	RecommendedProducts []string           `json:"recommended_products"`
	ProductFitScores    map[string]float64 `json:"product_fit_scores"`
	Confidence          float64            `json:"confidence"`
}

const defaultMaturity = "growth"

type bankingProductMatchTool struct{}

func (bankingProductMatchTool) validate(raw map[string]any, v *validator.Validate) (*ValidatedInput, error) {
	var in BankingProductMatchInput
	if err := decodeParams(raw, &in); err != nil {
		return nil, err
	}
	if err := runStructValidation(v, &in); err != nil {
		return nil, err
	}

	var defaulted []string
	if in.Maturity == "" {
		in.Maturity = defaultMaturity
		defaulted = append(defaulted, "maturity")
	}

	return &ValidatedInput{
		Values: map[string]any{
			"company_size":    float64(in.CompanySize),
			"industry":        in.Industry,
			"maturity":        in.Maturity,
			"hiring_velocity": in.HiringVelocity,
		},
		DefaultedFields: defaulted,
	}, nil
}

func (bankingProductMatchTool) compose(doc *ruledoc.RuleDocument, vi *ValidatedInput) (*Output, error) {
	result, extras, err := interpreter.EvaluateMulti(doc, vi.Values, []string{"product_fit_scores"})
	if err != nil {
		return nil, err
	}

	products := toStringSlice(result.Result)
	fitScores := toFloatMap(extras["product_fit_scores"])

	confidence := 1.0
	for _, field := range vi.DefaultedFields {
		if p, ok := doc.Confidence.Penalties[field]; ok {
			confidence -= p
		}
	}
	confidence = clampConfidence(confidence, doc.Confidence.Floor, ceilingOrDefault(doc.Confidence.Ceiling))

	return &Output{
		Tool: BankingProductMatch,
		Result: BankingProductMatchOutput{
			RecommendedProducts: products,
			ProductFitScores:    fitScores,
			Confidence:          confidence,
		},
		Confidence:      confidence,
		Breakdown:       toSteps(result.Breakdown),
		Variables:       result.Variables,
		KeyFactors:      toSteps(interpreter.KeyFactors(result.Breakdown, 3)),
		DefaultedFields: vi.DefaultedFields,
		RuleVersion:     result.RuleVersion,
	}, nil
}

func toFloatMap(v any) map[string]float64 {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, val := range raw {
		if f, ok := interpreter.AsFloat(val); ok {
			out[k] = f
		}
	}
	return out
}
