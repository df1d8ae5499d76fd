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

package feedback

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/salesintel/decisionengine/internal/config"
)

func kindsOf(alerts []PerformanceAlert) []AlertKind {
	kinds := make([]AlertKind, len(alerts))
	for i, a := range alerts {
		kinds[i] = a.Kind
	}
	return kinds
}

var _ = Describe("evaluateAlerts", func() {
	var cfg config.FeedbackConfig

	BeforeEach(func() {
		cfg = config.FeedbackConfig{
			MinFeedbackCount:        30,
			SuccessRateThreshold:    0.3,
			ConfidenceThreshold:     0.5,
			UnfedbackedThreshold:    100,
			MatchRateDeltaThreshold: 0.15,
		}
	})

	It("fires nothing for a healthy window", func() {
		agg := windowAggregate{
			ToolName: "CompanyQuality", RuleVersion: "v1",
			TotalDecisions: 150, FeedbackBearing: 120,
			SuccessRate: 0.6, AvgConfidence: 0.8,
			MatchRate: 0.95, ComparedDecisions: 50,
		}
		Expect(evaluateAlerts(agg, 0.96, true, cfg, time.Now())).To(BeEmpty())
	})

	It("fires success-rate-low only once the minimum feedback count is met", func() {
		starved := windowAggregate{FeedbackBearing: 10, SuccessRate: 0.1, TotalDecisions: 20, AvgConfidence: 0.9}
		Expect(evaluateAlerts(starved, 0, false, cfg, time.Now())).To(BeEmpty())

		enough := windowAggregate{FeedbackBearing: 40, SuccessRate: 0.1, TotalDecisions: 50, AvgConfidence: 0.9}
		found := evaluateAlerts(enough, 0, false, cfg, time.Now())
		Expect(kindsOf(found)).To(ConsistOf(AlertSuccessRateLow))
	})

	It("fires confidence-low independent of feedback volume", func() {
		agg := windowAggregate{FeedbackBearing: 0, TotalDecisions: 10, AvgConfidence: 0.2}
		found := evaluateAlerts(agg, 0, false, cfg, time.Now())
		Expect(kindsOf(found)).To(ContainElement(AlertConfidenceLow))
	})

	It("fires feedback-starved when unfedback decisions exceed the threshold", func() {
		agg := windowAggregate{TotalDecisions: 500, FeedbackBearing: 50, AvgConfidence: 0.9, SuccessRate: 0.9}
		found := evaluateAlerts(agg, 0, false, cfg, time.Now())
		Expect(kindsOf(found)).To(ContainElement(AlertFeedbackStarved))
	})

	It("fires match-rate-degraded only when a prior-window baseline exists", func() {
		agg := windowAggregate{
			TotalDecisions: 50, FeedbackBearing: 40, AvgConfidence: 0.9, SuccessRate: 0.9,
			MatchRate: 0.7, ComparedDecisions: 20,
		}
		withoutBaseline := evaluateAlerts(agg, 0, false, cfg, time.Now())
		Expect(kindsOf(withoutBaseline)).NotTo(ContainElement(AlertMatchRateDegraded))

		withBaseline := evaluateAlerts(agg, 0.95, true, cfg, time.Now())
		Expect(kindsOf(withBaseline)).To(ContainElement(AlertMatchRateDegraded))
	})

	It("does not fire match-rate-degraded for drift within the configured delta", func() {
		agg := windowAggregate{
			TotalDecisions: 50, FeedbackBearing: 40, AvgConfidence: 0.9, SuccessRate: 0.9,
			MatchRate: 0.90, ComparedDecisions: 20,
		}
		found := evaluateAlerts(agg, 0.95, true, cfg, time.Now())
		Expect(kindsOf(found)).NotTo(ContainElement(AlertMatchRateDegraded))
	})
})
