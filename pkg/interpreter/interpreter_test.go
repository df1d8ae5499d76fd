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

package interpreter

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

func TestInterpreter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Interpreter Suite")
}

var _ = Describe("Evaluate", func() {
	Context("formula rules", func() {
		It("should resolve nested rule variables and record one breakdown entry each", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "CompanyQuality",
				Entrypoint: "final_score",
				Metadata:   ruledoc.Metadata{Version: "v1"},
				Rules: map[string]ruledoc.Rule{
					"size_bucket_score": {
						Name: "size_bucket_score", Type: ruledoc.RuleTypeRangeLookup,
						RangeLookup: &ruledoc.RangeLookupBody{
							Input: "size",
							Ranges: []ruledoc.RangeEntry{
								{Low: 0, High: 50, Value: 10.0},
								{Low: 50, High: 500, Value: 40.0},
								{Low: 500, High: 1e9, Value: 20.0},
							},
						},
					},
					"final_score": {
						Name: "final_score", Type: ruledoc.RuleTypeFormula,
						Formula: &ruledoc.FormulaBody{Expression: "size_bucket_score + 30"},
					},
				},
			}

			result, err := Evaluate(doc, map[string]any{"size": 150.0})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Result).To(Equal(70.0))
			Expect(result.Variables).To(HaveKeyWithValue("size", 150.0))
			Expect(result.Variables).To(HaveKeyWithValue("size_bucket_score", 40.0))
			Expect(result.RuleVersion).To(Equal("v1"))
		})

		It("should fail on division by zero", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "X",
				Entrypoint: "r",
				Rules: map[string]ruledoc.Rule{
					"r": {Name: "r", Type: ruledoc.RuleTypeFormula, Formula: &ruledoc.FormulaBody{Expression: "a / b"}},
				},
			}
			_, err := Evaluate(doc, map[string]any{"a": 10.0, "b": 0.0})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("division by zero"))
		})

		It("should support min max round clamp", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "X",
				Entrypoint: "r",
				Rules: map[string]ruledoc.Rule{
					"r": {Name: "r", Type: ruledoc.RuleTypeFormula, Formula: &ruledoc.FormulaBody{
						Expression: "clamp(round(max(a, b) + min(a, b)), 0, 10)",
					}},
				},
			}
			result, err := Evaluate(doc, map[string]any{"a": 3.4, "b": 20.0})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Result).To(Equal(10.0))
		})
	})

	Context("decision_tree rules", func() {
		It("should take the first matching branch in document order", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "ContactTier",
				Entrypoint: "tier",
				Rules: map[string]ruledoc.Rule{
					"tier": {Name: "tier", Type: ruledoc.RuleTypeDecisionTree, DecisionTree: &ruledoc.DecisionTreeBody{
						Branches: []ruledoc.Branch{
							{Condition: ruledoc.Condition{Op: ruledoc.OpEq, Field: "seniority", Value: "C-Level"}, Output: "STRATEGIC"},
							{Condition: ruledoc.Condition{Op: ruledoc.OpEq, Field: "seniority", Value: "Director"}, Output: "PRIMARY"},
						},
						Fallback: "BACKUP",
					}},
				},
			}
			result, err := Evaluate(doc, map[string]any{"seniority": "Director"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Result).To(Equal("PRIMARY"))
		})

		It("should use the fallback when no branch matches", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "ContactTier",
				Entrypoint: "tier",
				Rules: map[string]ruledoc.Rule{
					"tier": {Name: "tier", Type: ruledoc.RuleTypeDecisionTree, DecisionTree: &ruledoc.DecisionTreeBody{
						Branches: []ruledoc.Branch{
							{Condition: ruledoc.Condition{Op: ruledoc.OpEq, Field: "seniority", Value: "C-Level"}, Output: "STRATEGIC"},
						},
						Fallback: "BACKUP",
					}},
				},
			}
			result, err := Evaluate(doc, map[string]any{"seniority": "Individual"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Result).To(Equal("BACKUP"))
		})
	})

	Context("range_lookup rules", func() {
		It("should fail with EvaluationError for an uncovered region", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "X",
				Entrypoint: "bucket",
				Rules: map[string]ruledoc.Rule{
					"bucket": {Name: "bucket", Type: ruledoc.RuleTypeRangeLookup, RangeLookup: &ruledoc.RangeLookupBody{
						Input:  "size",
						Ranges: []ruledoc.RangeEntry{{Low: 0, High: 50, Value: "small"}},
					}},
				},
			}
			_, err := Evaluate(doc, map[string]any{"size": 100.0})
			Expect(err).To(HaveOccurred())
		})

		It("should treat the lower bound as inclusive and upper as exclusive", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "X",
				Entrypoint: "bucket",
				Rules: map[string]ruledoc.Rule{
					"bucket": {Name: "bucket", Type: ruledoc.RuleTypeRangeLookup, RangeLookup: &ruledoc.RangeLookupBody{
						Input: "size",
						Ranges: []ruledoc.RangeEntry{
							{Low: 0, High: 50, Value: "small"},
							{Low: 50, High: 1000, Value: "midsize"},
						},
					}},
				},
			}
			result, err := Evaluate(doc, map[string]any{"size": 50.0})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Result).To(Equal("midsize"))
		})
	})

	Context("mapping rules", func() {
		It("should fall back to the declared default on a miss", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "X",
				Entrypoint: "m",
				Rules: map[string]ruledoc.Rule{
					"m": {Name: "m", Type: ruledoc.RuleTypeMapping, Mapping: &ruledoc.MappingBody{
						Input:   "industry",
						Entries: map[string]any{"Technology": 1.15},
						Default: 1.0,
					}},
				},
			}
			result, err := Evaluate(doc, map[string]any{"industry": "Retail"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Result).To(Equal(1.0))
		})
	})

	Context("edge cases", func() {
		It("should apply edge cases in declaration order and record each", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "CompanyQuality",
				Entrypoint: "score",
				Rules: map[string]ruledoc.Rule{
					"score": {Name: "score", Type: ruledoc.RuleTypeFormula, Formula: &ruledoc.FormulaBody{Expression: "100"}},
				},
				EdgeCases: []ruledoc.EdgeCase{
					{
						Name:      "government_entity",
						Condition: ruledoc.Condition{Op: ruledoc.OpEq, Field: "sector", Value: "government"},
						Action:    ruledoc.Action{Kind: ruledoc.ActionMultiply, Value: 0.05},
					},
				},
			}
			result, err := Evaluate(doc, map[string]any{"sector": "government"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Result).To(Equal(5.0))
			Expect(result.Breakdown[len(result.Breakdown)-1].StepName).To(Equal("edge_case:government_entity"))
		})

		It("should not apply an edge case whose condition does not match", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "X",
				Entrypoint: "score",
				Rules: map[string]ruledoc.Rule{
					"score": {Name: "score", Type: ruledoc.RuleTypeFormula, Formula: &ruledoc.FormulaBody{Expression: "50"}},
				},
				EdgeCases: []ruledoc.EdgeCase{
					{Name: "gov", Condition: ruledoc.Condition{Op: ruledoc.OpEq, Field: "sector", Value: "government"}, Action: ruledoc.Action{Kind: ruledoc.ActionMultiply, Value: 0.05}},
				},
			}
			result, err := Evaluate(doc, map[string]any{"sector": "private"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Result).To(Equal(50.0))
		})
	})

	Context("determinism (spec invariant)", func() {
		It("should produce byte-identical output across repeated invocations", func() {
			doc := &ruledoc.RuleDocument{
				ToolName:   "X",
				Entrypoint: "score",
				Rules: map[string]ruledoc.Rule{
					"score": {Name: "score", Type: ruledoc.RuleTypeFormula, Formula: &ruledoc.FormulaBody{Expression: "a * 2 + b"}},
				},
			}
			inputs := map[string]any{"a": 3.0, "b": 4.0}
			first, err := Evaluate(doc, inputs)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 10; i++ {
				again, err := Evaluate(doc, inputs)
				Expect(err).NotTo(HaveOccurred())
				Expect(again).To(Equal(first))
			}
		})
	})
})

var _ = Describe("EvaluateMulti", func() {
	It("should resolve extra named rules alongside the entrypoint, sharing the cache", func() {
		doc := &ruledoc.RuleDocument{
			ToolName:   "CompanyQuality",
			Entrypoint: "score",
			Rules: map[string]ruledoc.Rule{
				"size_bucket": {Name: "size_bucket", Type: ruledoc.RuleTypeRangeLookup, RangeLookup: &ruledoc.RangeLookupBody{
					Input: "size",
					Ranges: []ruledoc.RangeEntry{
						{Low: 0, High: 50, Value: "small"},
						{Low: 50, High: 1e9, Value: "midsize"},
					},
				}},
				"score": {Name: "score", Type: ruledoc.RuleTypeFormula, Formula: &ruledoc.FormulaBody{Expression: "80"}},
				"tier": {Name: "tier", Type: ruledoc.RuleTypeThreshold, Threshold: &ruledoc.ThresholdBody{
					Input: "score",
					Thresholds: []ruledoc.ThresholdEntry{
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "score", Value: 70.0}, Value: "TIER_1"},
					},
					Default: "TIER_3",
				}},
			},
		}

		result, extras, err := EvaluateMulti(doc, map[string]any{"size": 150.0}, []string{"tier", "size_bucket"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Result).To(Equal(80.0))
		Expect(extras).To(HaveKeyWithValue("tier", "TIER_1"))
		Expect(extras).To(HaveKeyWithValue("size_bucket", "midsize"))
	})

	It("should error when an extra name is neither an input nor a rule", func() {
		doc := &ruledoc.RuleDocument{
			ToolName:   "X",
			Entrypoint: "score",
			Rules: map[string]ruledoc.Rule{
				"score": {Name: "score", Type: ruledoc.RuleTypeFormula, Formula: &ruledoc.FormulaBody{Expression: "1"}},
			},
		}
		_, _, err := EvaluateMulti(doc, nil, []string{"mystery"})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("KeyFactors", func() {
	It("should return the top-N steps by absolute numeric contribution", func() {
		breakdown := []Step{
			{StepName: "a", Value: 1.0},
			{StepName: "b", Value: -50.0},
			{StepName: "c", Value: 10.0},
			{StepName: "d", Value: "non-numeric"},
		}
		top := KeyFactors(breakdown, 2)
		Expect(top).To(HaveLen(2))
		Expect(top[0].StepName).To(Equal("b"))
		Expect(top[1].StepName).To(Equal("c"))
	})
})
