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

func timingScoreDoc() *ruledoc.RuleDocument {
	return &ruledoc.RuleDocument{
		ToolName:   "TimingScore",
		Metadata:   ruledoc.Metadata{Version: "v1", Status: ruledoc.StatusProduction},
		Entrypoint: "timing_score",
		Confidence: ruledoc.ConfidencePolicy{Floor: 0.4, Ceiling: 1.0},
		Rules: map[string]ruledoc.Rule{
			"timing_score": {
				Name: "timing_score", Type: ruledoc.RuleTypeRangeLookup,
				RangeLookup: &ruledoc.RangeLookupBody{
					Input: "signal_age_days",
					Ranges: []ruledoc.RangeEntry{
						{Low: 0, High: 7, Value: 90.0},
						{Low: 7, High: 30, Value: 60.0},
						{Low: 30, High: 90, Value: 35.0},
						{Low: 90, High: 1e6, Value: 10.0},
					},
				},
			},
			"priority": {
				Name: "priority", Type: ruledoc.RuleTypeThreshold,
				Threshold: &ruledoc.ThresholdBody{
					Input: "timing_score",
					Thresholds: []ruledoc.ThresholdEntry{
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "timing_score", Value: 80.0}, Value: "HOT"},
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "timing_score", Value: 50.0}, Value: "WARM"},
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "timing_score", Value: 25.0}, Value: "COOL"},
					},
					Default: "COLD",
				},
			},
			"urgency": {
				Name: "urgency", Type: ruledoc.RuleTypeThreshold,
				Threshold: &ruledoc.ThresholdBody{
					Input: "timing_score",
					Thresholds: []ruledoc.ThresholdEntry{
						{Condition: ruledoc.Condition{Op: ruledoc.OpGe, Field: "timing_score", Value: 80.0}, Value: "immediate"},
					},
					Default: "scheduled",
				},
			},
		},
		EdgeCases: []ruledoc.EdgeCase{
			{
				Name:      "fiscal_year_end_boost",
				Condition: ruledoc.Condition{Op: ruledoc.OpEq, Field: "fiscal_context", Value: "year_end"},
				Action:    ruledoc.Action{Kind: ruledoc.ActionAdd, Value: 10},
			},
		},
	}
}

var _ = Describe("TimingScore", func() {
	var tool timingScoreTool
	var v *validator.Validate

	BeforeEach(func() {
		v = validator.New()
	})

	It("scores a fresh hiring signal HOT with no fiscal boost", func() {
		vi, err := tool.validate(map[string]any{
			"signal_age_days": 5,
			"signals":         []string{"new_hire", "job_posting"},
			"fiscal_context":  "mid_year",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := tool.compose(timingScoreDoc(), vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(TimingScoreOutput)
		Expect(result.Priority).To(Equal("HOT"))
		Expect(result.TimingScore).To(Equal(90.0))
		Expect(result.Urgency).To(Equal("immediate"))
	})

	It("boosts a stale signal at fiscal year-end but keeps it COLD", func() {
		vi, err := tool.validate(map[string]any{
			"signal_age_days": 95,
			"signals":         []string{"new_hire"},
			"fiscal_context":  "year_end",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := tool.compose(timingScoreDoc(), vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(TimingScoreOutput)
		Expect(result.Priority).To(Equal("COLD"))
		Expect(result.TimingScore).To(Equal(20.0))
		Expect(out.EdgeCasesApplied).To(ContainElement("fiscal_year_end_boost"))
	})

	It("rejects a TimingScore document missing the required fiscal boost edge case", func() {
		doc := timingScoreDoc()
		doc.EdgeCases = nil
		vi, err := tool.validate(map[string]any{
			"signal_age_days": 10,
			"fiscal_context":  "year_end",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		_, err = tool.compose(doc, vi)
		Expect(err).To(HaveOccurred())
	})
})
