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

package shadow

import (
	"context"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/ruledoc"
	"github.com/salesintel/decisionengine/pkg/rulestore"
)

func TestShadow(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "shadow Suite")
}

type fakeShadowSource struct {
	docs map[string][]*ruledoc.RuleDocument
}

func (f fakeShadowSource) Load(_ context.Context) (map[string][]*ruledoc.RuleDocument, error) {
	return f.docs, nil
}

var _ = Describe("Bucket", func() {
	It("is deterministic across repeated calls", func() {
		first := Bucket("K42", "exp-1")
		for i := 0; i < 10; i++ {
			Expect(Bucket("K42", "exp-1")).To(Equal(first))
		}
	})

	It("splits 100 subject keys close to a 0.5 ratio across 10 re-runs", func() {
		exp := Experiment{ExperimentID: "exp-1", ToolName: "CompanyQuality", ControlVersion: "v1", TreatmentVersion: "v2", Split: 0.5}

		var firstRun []Variant
		for run := 0; run < 10; run++ {
			treatment := 0
			variants := make([]Variant, 100)
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("K%d", i)
				a := Assign(exp, key)
				variants[i] = a.Variant
				if a.Variant == VariantTreatment {
					treatment++
				}
			}
			if run == 0 {
				firstRun = variants
			} else {
				Expect(variants).To(Equal(firstRun))
			}
			Expect(float64(treatment) / 100.0).To(BeNumerically("~", 0.5, 0.15))
		}
	})
})

var _ = Describe("Router", func() {
	prodDoc := &ruledoc.RuleDocument{ToolName: "CompanyQuality", Metadata: ruledoc.Metadata{Version: "v1", Status: ruledoc.StatusProduction}, Entrypoint: "score", Rules: map[string]ruledoc.Rule{"score": {Name: "score", Type: ruledoc.RuleTypeFormula, Formula: &ruledoc.FormulaBody{Expression: "1"}}}}
	shadowDoc := &ruledoc.RuleDocument{ToolName: "CompanyQuality", Metadata: ruledoc.Metadata{Version: "v2-shadow", Status: ruledoc.StatusShadow}, Entrypoint: "score", Rules: prodDoc.Rules}
	treatmentDoc := &ruledoc.RuleDocument{ToolName: "CompanyQuality", Metadata: ruledoc.Metadata{Version: "v3-treatment", Status: ruledoc.StatusDraft}, Entrypoint: "score", Rules: prodDoc.Rules}

	newStore := func() *rulestore.Store {
		src := fakeShadowSource{docs: map[string][]*ruledoc.RuleDocument{
			"CompanyQuality": {prodDoc, shadowDoc, treatmentDoc},
		}}
		s := rulestore.New(src, logging.NewFields())
		Expect(s.Refresh(context.Background())).To(Succeed())
		return s
	}

	It("prefers an active A/B treatment over shadow mode", func() {
		store := newStore()
		router := NewRouter(store, map[string]Experiment{
			"CompanyQuality": {ExperimentID: "exp-1", ToolName: "CompanyQuality", ControlVersion: "v1", TreatmentVersion: "v3-treatment", Split: 1.0},
		})

		doc, kind, assignment, err := router.Resolve("CompanyQuality", "K1")
		Expect(err).NotTo(HaveOccurred())
		Expect(kind).To(Equal(SecondaryTreatment))
		Expect(doc.Version()).To(Equal("v3-treatment"))
		Expect(assignment).NotTo(BeNil())
	})

	It("falls back to shadow mode when no experiment is configured", func() {
		store := newStore()
		router := NewRouter(store, nil)

		doc, kind, assignment, err := router.Resolve("CompanyQuality", "K1")
		Expect(err).NotTo(HaveOccurred())
		Expect(kind).To(Equal(SecondaryShadow))
		Expect(doc.Version()).To(Equal("v2-shadow"))
		Expect(assignment).To(BeNil())
	})

	It("returns SecondaryNone when neither an experiment nor a shadow version exists", func() {
		src := fakeShadowSource{docs: map[string][]*ruledoc.RuleDocument{"CompanyQuality": {prodDoc}}}
		s := rulestore.New(src, logging.NewFields())
		Expect(s.Refresh(context.Background())).To(Succeed())
		router := NewRouter(s, nil)

		_, kind, assignment, err := router.Resolve("CompanyQuality", "K1")
		Expect(err).NotTo(HaveOccurred())
		Expect(kind).To(Equal(SecondaryNone))
		Expect(assignment).To(BeNil())
	})
})
