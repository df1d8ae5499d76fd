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

func contactTierDoc() *ruledoc.RuleDocument {
	return &ruledoc.RuleDocument{
		ToolName:   "ContactTier",
		Metadata:   ruledoc.Metadata{Version: "v1", Status: ruledoc.StatusProduction},
		Entrypoint: "tier",
		Confidence: ruledoc.ConfidencePolicy{
			Floor:   0.4,
			Ceiling: 1.0,
			Penalties: map[string]float64{
				"seniority":        0.05,
				"department":       0.05,
				"short_title":      0.1,
				"missing_department": 0.1,
			},
		},
		Rules: map[string]ruledoc.Rule{
			"tier": {
				Name: "tier", Type: ruledoc.RuleTypeMapping,
				Mapping: &ruledoc.MappingBody{
					Input: "seniority",
					Entries: map[string]any{
						"C-Level":  "STRATEGIC",
						"VP":       "STRATEGIC",
						"Director": "STRATEGIC",
						"Manager":  "SECONDARY",
					},
					Default: "BACKUP",
				},
			},
			"priority": {
				Name: "priority", Type: ruledoc.RuleTypeMapping,
				Mapping: &ruledoc.MappingBody{
					Input: "tier",
					Entries: map[string]any{
						"STRATEGIC": 1.0,
						"PRIMARY":   2.0,
						"SECONDARY": 3.0,
					},
					Default: 4.0,
				},
			},
			"target_titles": {
				Name: "target_titles", Type: ruledoc.RuleTypeMapping,
				Mapping: &ruledoc.MappingBody{
					Input: "department",
					Entries: map[string]any{
						"Human Resources": []any{"HR Director", "CHRO"},
					},
					Default: []any{},
				},
			},
			"fallback_titles": {
				Name: "fallback_titles", Type: ruledoc.RuleTypeMapping,
				Mapping: &ruledoc.MappingBody{
					Input:   "department",
					Entries: map[string]any{},
					Default: []any{"Office Manager"},
				},
			},
		},
	}
}

var _ = Describe("ContactTier", func() {
	var tool contactTierTool
	var v *validator.Validate

	BeforeEach(func() {
		v = validator.New()
	})

	It("infers seniority and department for an HR Director and ranks STRATEGIC/1", func() {
		vi, err := tool.validate(map[string]any{
			"title":        "HR Director",
			"company_size": 250,
		}, v)
		Expect(err).NotTo(HaveOccurred())
		Expect(vi.InferredFields).To(ConsistOf("seniority", "department"))

		out, err := tool.compose(contactTierDoc(), vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(ContactTierOutput)
		Expect(result.Tier).To(Equal("STRATEGIC"))
		Expect(result.Priority).To(Equal(1))
		Expect(result.TargetTitles).To(ContainElements("HR Director", "CHRO"))

		expectedPenalty := contactTierDoc().Confidence.Penalties["seniority"] + contactTierDoc().Confidence.Penalties["department"]
		Expect(result.Confidence).To(BeNumerically("~", 1.0-expectedPenalty, 0.0001))
	})

	It("does not penalize an explicitly supplied seniority and department", func() {
		vi, err := tool.validate(map[string]any{
			"title":        "Senior Engineer",
			"seniority":    "Manager",
			"department":   "Technology",
			"company_size": 80,
		}, v)
		Expect(err).NotTo(HaveOccurred())
		Expect(vi.InferredFields).To(BeEmpty())

		out, err := tool.compose(contactTierDoc(), vi)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Confidence).To(Equal(1.0))
	})
})
