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

func bankingProductMatchDoc() *ruledoc.RuleDocument {
	return &ruledoc.RuleDocument{
		ToolName:   "BankingProductMatch",
		Metadata:   ruledoc.Metadata{Version: "v1", Status: ruledoc.StatusProduction},
		Entrypoint: "recommended_products",
		Confidence: ruledoc.ConfidencePolicy{Floor: 0.4, Ceiling: 1.0, Penalties: map[string]float64{"maturity": 0.05}},
		Rules: map[string]ruledoc.Rule{
			"recommended_products": {
				Name: "recommended_products", Type: ruledoc.RuleTypeMapping,
				Mapping: &ruledoc.MappingBody{
					Input: "maturity",
					Entries: map[string]any{
						"growth": []any{"business_checking", "line_of_credit"},
					},
					Default: []any{"business_checking"},
				},
			},
			"product_fit_scores": {
				Name: "product_fit_scores", Type: ruledoc.RuleTypeMapping,
				Mapping: &ruledoc.MappingBody{
					Input: "maturity",
					Entries: map[string]any{
						"growth": map[string]any{"business_checking": 0.9, "line_of_credit": 0.7},
					},
					Default: map[string]any{"business_checking": 0.5},
				},
			},
		},
	}
}

var _ = Describe("BankingProductMatch", func() {
	var tool bankingProductMatchTool
	var v *validator.Validate

	BeforeEach(func() { v = validator.New() })

	It("recommends products and fit scores for a growth-stage company", func() {
		vi, err := tool.validate(map[string]any{
			"company_size": 120,
			"industry":     "Technology",
			"maturity":     "growth",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := tool.compose(bankingProductMatchDoc(), vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(BankingProductMatchOutput)
		Expect(result.RecommendedProducts).To(ContainElements("business_checking", "line_of_credit"))
		Expect(result.ProductFitScores["business_checking"]).To(Equal(0.9))
	})

	It("defaults an absent maturity and penalizes confidence", func() {
		vi, err := tool.validate(map[string]any{
			"company_size": 50,
			"industry":     "Retail",
		}, v)
		Expect(err).NotTo(HaveOccurred())
		Expect(vi.DefaultedFields).To(ContainElement("maturity"))

		out, err := tool.compose(bankingProductMatchDoc(), vi)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Confidence).To(BeNumerically("<", 1.0))
	})
})
