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

func companyQualityDoc() *ruledoc.RuleDocument {
	return &ruledoc.RuleDocument{
		ToolName:   "CompanyQuality",
		Metadata:   ruledoc.Metadata{Version: "v1", Status: ruledoc.StatusProduction},
		Entrypoint: "score",
		Confidence: ruledoc.ConfidencePolicy{
			Floor:   0.4,
			Ceiling: 1.0,
			Penalties: map[string]float64{
				"sector":       0.05,
				"license_type": 0.05,
			},
		},
		Rules: map[string]ruledoc.Rule{
			"size_score": {
				Name: "size_score", Type: ruledoc.RuleTypeRangeLookup,
				RangeLookup: &ruledoc.RangeLookupBody{
					Input: "size",
					Ranges: []ruledoc.RangeEntry{
						{Low: 0, High: 50, Value: 40.0},
						{Low: 50, High: 500, Value: 80.0},
						{Low: 500, High: 1e9, Value: 60.0},
					},
				},
			},
			"industry_boost": {
				Name: "industry_boost", Type: ruledoc.RuleTypeMapping,
				Mapping: &ruledoc.MappingBody{
					Input:   "industry",
					Entries: map[string]any{"Technology": 15.0},
					Default: 0.0,
				},
			},
			"score": {
				Name: "score", Type: ruledoc.RuleTypeFormula,
				Formula: &ruledoc.FormulaBody{Expression: "size_score + industry_boost"},
			},
			"quality_tier": {
				Name: "quality_tier", Type: ruledoc.RuleTypeThreshold,
				Threshold: &ruledoc.ThresholdBody{
					Input: "score",
					Thresholds: []ruledoc.ThresholdEntry{
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "score", Value: 70.0}, Value: "TIER_1"},
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "score", Value: 40.0}, Value: "TIER_2"},
					},
					Default: "TIER_3",
				},
			},
		},
		EdgeCases: []ruledoc.EdgeCase{
			{
				Name:      "government_entity",
				Condition: ruledoc.Condition{Op: ruledoc.OpEq, Field: "sector", Value: "government"},
				Action:    ruledoc.Action{Kind: ruledoc.ActionMultiply, Value: 0.05},
			},
		},
	}
}

var _ = Describe("CompanyQuality", func() {
	var tool companyQualityTool
	var v *validator.Validate

	BeforeEach(func() {
		v = validator.New()
	})

	It("scores a midsize tech company into TIER_1 with high confidence", func() {
		vi, err := tool.validate(map[string]any{
			"name":         "TechCorp UAE",
			"industry":     "Technology",
			"size":         150,
			"license_type": "Free Zone",
			"sector":       "Private",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := tool.compose(companyQualityDoc(), vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(CompanyQualityOutput)
		Expect(result.QualityTier).To(Equal("TIER_1"))
		Expect(result.Score).To(BeNumerically(">=", 70))
		Expect(result.Confidence).To(BeNumerically(">=", 0.90))
	})

	It("applies the government_entity edge case and caps score low", func() {
		vi, err := tool.validate(map[string]any{
			"name":     "Dubai Municipality",
			"industry": "government",
			"size":     10000,
			"sector":   "government",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := tool.compose(companyQualityDoc(), vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(CompanyQualityOutput)
		Expect(result.Score).To(BeNumerically("<=", 10))
		Expect(out.EdgeCasesApplied).To(ContainElement("government_entity"))
	})

	It("rejects missing required fields before invoking the interpreter", func() {
		_, err := tool.validate(map[string]any{"industry": "Technology", "size": 10}, v)
		Expect(err).To(HaveOccurred())
	})
})
