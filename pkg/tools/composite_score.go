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

// CompositeScoreInput carries the resolved outputs of the other four
// tools as named values, per spec §9 ("the executor passes the resolved
// outputs as named inputs; the composite rule document addresses them by
// name") rather than embedding the upstream tool outputs by reference.
type CompositeScoreInput struct {
	CompanyQualityScore      float64 `json:"company_quality_score" validate:"required"`
	ContactTierPriority      int     `json:"contact_tier_priority" validate:"required,gte=1,lte=4"`
	TimingScore              float64 `json:"timing_score" validate:"required"`
	BankingProductConfidence float64 `json:"banking_product_confidence" validate:"required,gte=0,lte=1"`
	ChannelConfidence        float64 `json:"channel_confidence,omitempty"`
	ContextConfidence        float64 `json:"context_confidence,omitempty"`
}

// CompositeScoreOutput is the typed result of a CompositeScore decision.
type CompositeScoreOutput struct {
	QScore        float64 `json:"q_score"`
	LeadScoreTier string  `json:"lead_score_tier"`
	Confidence    float64 `json:"confidence"`
	Reasoning     []Step  `json:"reasoning"`
}

type compositeScoreTool struct{}

func (compositeScoreTool) validate(raw map[string]any, v *validator.Validate) (*ValidatedInput, error) {
	var in CompositeScoreInput
	if err := decodeParams(raw, &in); err != nil {
		return nil, err
	}
	if err := runStructValidation(v, &in); err != nil {
		return nil, err
	}

	var defaulted []string
	if in.ChannelConfidence == 0 {
		in.ChannelConfidence = 0.5
		defaulted = append(defaulted, "channel_confidence")
	}
	if in.ContextConfidence == 0 {
		in.ContextConfidence = 0.5
		defaulted = append(defaulted, "context_confidence")
	}

	return &ValidatedInput{
		Values: map[string]any{
			"company_quality_score":      in.CompanyQualityScore,
			"contact_tier_priority":      float64(in.ContactTierPriority),
			"timing_score":               in.TimingScore,
			"banking_product_confidence": in.BankingProductConfidence,
			"channel_confidence":         in.ChannelConfidence,
			"context_confidence":         in.ContextConfidence,
		},
		DefaultedFields: defaulted,
	}, nil
}

// compose resolves the q_score formula entrypoint and the lead_score_tier
// threshold in one pass: the formula, weights, and tier thresholds all
// live in the rule document, never in this code (spec §4.3 "No hidden
// constants in code").
func (compositeScoreTool) compose(doc *ruledoc.RuleDocument, vi *ValidatedInput) (*Output, error) {
	result, extras, err := interpreter.EvaluateMulti(doc, vi.Values, []string{"lead_score_tier"})
	if err != nil {
		return nil, err
	}

	qScore, ok := interpreter.AsFloat(result.Result)
	if !ok {
		return nil, appErrors.NewEvaluationError(doc.Entrypoint, "compose", "q_score rule did not resolve to a number")
	}
	tier, _ := extras["lead_score_tier"].(string)

	confidence := 1.0
	for _, field := range vi.DefaultedFields {
		if p, ok := doc.Confidence.Penalties[field]; ok {
			confidence -= p
		}
	}
	confidence = clampConfidence(confidence, doc.Confidence.Floor, ceilingOrDefault(doc.Confidence.Ceiling))

	steps := toSteps(result.Breakdown)

	return &Output{
		Tool: CompositeScore,
		Result: CompositeScoreOutput{
			QScore:        qScore,
			LeadScoreTier: tier,
			Confidence:    confidence,
			Reasoning:     steps,
		},
		Confidence:      confidence,
		Breakdown:       steps,
		Variables:       result.Variables,
		KeyFactors:      toSteps(interpreter.KeyFactors(result.Breakdown, 5)),
		DefaultedFields: vi.DefaultedFields,
		RuleVersion:     result.RuleVersion,
	}, nil
}
