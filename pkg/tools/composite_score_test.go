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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

func compositeScoreDoc() *ruledoc.RuleDocument {
	return &ruledoc.RuleDocument{
		ToolName:   "CompositeScore",
		Metadata:   ruledoc.Metadata{Version: "v1", Status: ruledoc.StatusProduction},
		Entrypoint: "q_score",
		Confidence: ruledoc.ConfidencePolicy{Floor: 0.4, Ceiling: 1.0},
		Rules: map[string]ruledoc.Rule{
			"q_score": {
				Name: "q_score", Type: ruledoc.RuleTypeFormula,
				Formula: &ruledoc.FormulaBody{
					Expression: "clamp(company_quality_score * 0.4 + timing_score * 0.3 + banking_product_confidence * 100 * 0.15 + (5 - contact_tier_priority) * 25 * 0.15, 0, 100)",
				},
			},
			"lead_score_tier": {
				Name: "lead_score_tier", Type: ruledoc.RuleTypeThreshold,
				Threshold: &ruledoc.ThresholdBody{
					Input: "q_score",
					Thresholds: []ruledoc.ThresholdEntry{
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "q_score", Value: 75.0}, Value: "HOT"},
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "q_score", Value: 50.0}, Value: "WARM"},
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "q_score", Value: 25.0}, Value: "COLD"},
					},
					Default: "DISQUALIFIED",
				},
			},
		},
	}
}

var _ = Describe("CompositeScore", func() {
	var tool compositeScoreTool
	var v *validator.Validate

	BeforeEach(func() { v = validator.New() })

	It("combines upstream tool outputs into a single Q-Score and tier", func() {
		vi, err := tool.validate(map[string]any{
			"company_quality_score":      90.0,
			"contact_tier_priority":      1,
			"timing_score":               90.0,
			"banking_product_confidence": 0.8,
			"channel_confidence":         0.7,
			"context_confidence":         0.6,
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := tool.compose(compositeScoreDoc(), vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(CompositeScoreOutput)
		Expect(result.QScore).To(BeNumerically(">", 0))
		Expect(result.LeadScoreTier).To(BeElementOf("HOT", "WARM", "COLD", "DISQUALIFIED"))
	})

	It("defaults missing exogenous confidences with no penalty when the document declares none", func() {
		vi, err := tool.validate(map[string]any{
			"company_quality_score":      50.0,
			"contact_tier_priority":      2,
			"timing_score":               50.0,
			"banking_product_confidence": 0.5,
		}, v)
		Expect(err).NotTo(HaveOccurred())
		Expect(vi.DefaultedFields).To(ConsistOf("channel_confidence", "context_confidence"))

		out, err := tool.compose(compositeScoreDoc(), vi)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Confidence).To(Equal(1.0))
	})
})
