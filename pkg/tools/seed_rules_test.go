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
	"context"

	validator "github.com/go-playground/validator/v10"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/rulestore"
)

// These specs load the production rule documents under rules/ - the exact
// files cmd/decisionengine serves - rather than each tool's inline test
// fixture, so a document that drifts from its Go-side contract fails here
// instead of only failing once it is live.
var _ = Describe("seed rule documents", func() {
	var (
		store *rulestore.Store
		v     *validator.Validate
	)

	BeforeEach(func() {
		store = rulestore.New(rulestore.NewFileSource("../../rules"), logging.NewFields())
		Expect(store.Refresh(context.Background())).To(Succeed())
		v = validator.New()
	})

	It("scores a midsize tech company into TIER_1", func() {
		doc, err := store.GetProductionRule("CompanyQuality")
		Expect(err).NotTo(HaveOccurred())

		vi, err := companyQualityTool{}.validate(map[string]any{
			"name":         "TechCorp UAE",
			"industry":     "Technology",
			"size":         150,
			"license_type": "Free Zone",
			"sector":       "Private",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := companyQualityTool{}.compose(doc, vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(CompanyQualityOutput)
		Expect(result.QualityTier).To(Equal("TIER_1"))
		Expect(result.Score).To(BeNumerically(">=", 70))
		Expect(out.Confidence).To(BeNumerically(">=", 0.90))
	})

	It("caps a government entity's score via the edge case multiplier", func() {
		doc, err := store.GetProductionRule("CompanyQuality")
		Expect(err).NotTo(HaveOccurred())

		vi, err := companyQualityTool{}.validate(map[string]any{
			"name":     "Dubai Municipality",
			"industry": "government",
			"size":     10000,
			"sector":   "government",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := companyQualityTool{}.compose(doc, vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(CompanyQualityOutput)
		Expect(result.Score).To(BeNumerically("<=", 10))
		Expect(out.EdgeCasesApplied).To(ContainElement("government_entity"))
	})

	It("derives a STRATEGIC tier and priority 1 for an HR Director", func() {
		doc, err := store.GetProductionRule("ContactTier")
		Expect(err).NotTo(HaveOccurred())

		vi, err := contactTierTool{}.validate(map[string]any{
			"title":        "HR Director",
			"company_size": 250,
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := contactTierTool{}.compose(doc, vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(ContactTierOutput)
		Expect(result.Tier).To(Equal("STRATEGIC"))
		Expect(result.Priority).To(Equal(1))
		Expect(result.TargetTitles).To(ContainElements("HR Director", "CHRO"))
	})

	It("scores a fresh signal as HOT with no fiscal boost", func() {
		doc, err := store.GetProductionRule("TimingScore")
		Expect(err).NotTo(HaveOccurred())

		vi, err := timingScoreTool{}.validate(map[string]any{
			"signal_age_days": 5,
			"signals":         []string{"new_hire", "job_posting"},
			"fiscal_context":  "mid_year",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := timingScoreTool{}.compose(doc, vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(TimingScoreOutput)
		Expect(result.Priority).To(Equal("HOT"))
		Expect(result.TimingScore).To(BeNumerically("==", 90))
		Expect(result.Urgency).To(Equal("immediate"))
	})

	It("scores a stale year-end signal as COLD after the fiscal boost", func() {
		doc, err := store.GetProductionRule("TimingScore")
		Expect(err).NotTo(HaveOccurred())

		vi, err := timingScoreTool{}.validate(map[string]any{
			"signal_age_days": 95,
			"signals":         []string{"new_hire"},
			"fiscal_context":  "year_end",
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := timingScoreTool{}.compose(doc, vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(TimingScoreOutput)
		Expect(result.Priority).To(Equal("COLD"))
		Expect(result.TimingScore).To(BeNumerically("==", 20))
		Expect(out.EdgeCasesApplied).To(ContainElement("fiscal_year_end_boost"))
	})

	It("translates the lead_score_tier threshold into the declared enum", func() {
		doc, err := store.GetProductionRule("CompositeScore")
		Expect(err).NotTo(HaveOccurred())

		vi, err := compositeScoreTool{}.validate(map[string]any{
			"company_quality_score":      85.0,
			"contact_tier_priority":      1,
			"timing_score":               90.0,
			"banking_product_confidence": 0.9,
		}, v)
		Expect(err).NotTo(HaveOccurred())

		out, err := compositeScoreTool{}.compose(doc, vi)
		Expect(err).NotTo(HaveOccurred())

		result := out.Result.(CompositeScoreOutput)
		Expect(result.LeadScoreTier).To(BeElementOf("HOT", "WARM", "COLD", "DISQUALIFIED"))
		Expect(result.LeadScoreTier).To(Equal("HOT"))
	})
})
