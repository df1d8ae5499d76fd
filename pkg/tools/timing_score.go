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

// TimingScoreInput is the declared input schema for the TimingScore tool
// (spec §4.3). SignalAgeDays is measured as now_wall - signal_wall,
// rounded to whole days; validate clamps a negative (future) value to
// zero and flags it (spec §9 "Time").
type TimingScoreInput struct {
	SignalAgeDays int      `json:"signal_age_days"`
	Signals       []string `json:"signals,omitempty"`
	FiscalContext string   `json:"fiscal_context,omitempty"`
}

// TimingScoreOutput is the typed result of a TimingScore decision.
type TimingScoreOutput struct {
	Priority    string  `json:"priority"`
	TimingScore float64 `json:"timing_score"`
	Urgency     string  `json:"urgency"`
	Confidence  float64 `json:"confidence"`
}

const defaultFiscalContext = "mid_year"

type timingScoreTool struct{}

func (timingScoreTool) validate(raw map[string]any, v *validator.Validate) (*ValidatedInput, error) {
	var in TimingScoreInput
	if err := decodeParams(raw, &in); err != nil {
		return nil, err
	}
	if err := runStructValidation(v, &in); err != nil {
		return nil, err
	}

	var defaulted, inferred []string
	if in.FiscalContext == "" {
		in.FiscalContext = defaultFiscalContext
		defaulted = append(defaulted, "fiscal_context")
	}

	signalAge := in.SignalAgeDays
	if signalAge < 0 {
		signalAge = 0
		inferred = append(inferred, "signal_age_days_future_clamped")
	}

	return &ValidatedInput{
		Values: map[string]any{
			"signal_age_days": float64(signalAge),
			"signal_count":    float64(len(in.Signals)),
			"fiscal_context":  in.FiscalContext,
		},
		DefaultedFields: defaulted,
		InferredFields:  inferred,
	}, nil
}

func (timingScoreTool) compose(doc *ruledoc.RuleDocument, vi *ValidatedInput) (*Output, error) {
	if doc.Entrypoint == "timing_score" {
		hasFiscalBoost := false
		for _, ec := range doc.EdgeCases {
			if ec.Name == "fiscal_year_end_boost" {
				hasFiscalBoost = true
				break
			}
		}
		if !hasFiscalBoost {
			return nil, appErrors.NewRuleInvalidError(doc.ToolName, doc.Version(), "TimingScore document declares fiscal_context as an input but has no fiscal_year_end_boost edge case")
		}
	}

	result, extras, err := interpreter.EvaluateMulti(doc, vi.Values, []string{"priority", "urgency"})
	if err != nil {
		return nil, err
	}

	score, ok := interpreter.AsFloat(result.Result)
	if !ok {
		return nil, appErrors.NewEvaluationError(doc.Entrypoint, "compose", "timing_score rule did not resolve to a number")
	}
	priority, _ := extras["priority"].(string)
	urgency, _ := extras["urgency"].(string)

	confidence := 1.0
	for _, field := range vi.DefaultedFields {
		if p, ok := doc.Confidence.Penalties[field]; ok {
			confidence -= p
		}
	}
	for _, field := range vi.InferredFields {
		if p, ok := doc.Confidence.Penalties[field]; ok {
			confidence -= p
		}
	}
	confidence = clampConfidence(confidence, doc.Confidence.Floor, ceilingOrDefault(doc.Confidence.Ceiling))

	var edgeCases []string
	for _, s := range result.Breakdown {
		if name, isEdge := edgeCaseName(s.StepName); isEdge {
			edgeCases = append(edgeCases, name)
		}
	}

	return &Output{
		Tool: TimingScore,
		Result: TimingScoreOutput{
			Priority:    priority,
			TimingScore: score,
			Urgency:     urgency,
			Confidence:  confidence,
		},
		Confidence:       confidence,
		Breakdown:        toSteps(result.Breakdown),
		Variables:        result.Variables,
		KeyFactors:       toSteps(interpreter.KeyFactors(result.Breakdown, 3)),
		EdgeCasesApplied: edgeCases,
		DefaultedFields:  vi.DefaultedFields,
		RuleVersion:      result.RuleVersion,
	}, nil
}
