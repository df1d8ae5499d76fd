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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/salesintel/decisionengine/pkg/ledger/models"
)

var _ = Describe("buildCalibrationTable", func() {
	It("buckets by confidence and reports each bucket's actual success rate", func() {
		table := buildCalibrationTable([]models.CalibrationInput{
			{Confidence: 0.82, OutcomePositive: true},
			{Confidence: 0.85, OutcomePositive: true},
			{Confidence: 0.88, OutcomePositive: false},
			{Confidence: 0.31, OutcomePositive: false},
		})

		var highBand, lowBand *CalibrationBucket
		for i := range table {
			switch {
			case table[i].Floor == 0.8:
				highBand = &table[i]
			case table[i].Floor == 0.3:
				lowBand = &table[i]
			}
		}

		Expect(highBand).NotTo(BeNil())
		Expect(highBand.Count).To(Equal(3))
		Expect(highBand.SuccessRate).To(BeNumerically("~", 2.0/3.0, 1e-9))

		Expect(lowBand).NotTo(BeNil())
		Expect(lowBand.Count).To(Equal(1))
		Expect(lowBand.SuccessRate).To(Equal(0.0))
	})

	It("omits bands with no feedback-bearing decisions", func() {
		table := buildCalibrationTable([]models.CalibrationInput{
			{Confidence: 0.95, OutcomePositive: true},
		})
		Expect(table).To(HaveLen(1))
	})

	It("clamps a confidence of exactly 1.0 into the top band instead of overflowing it", func() {
		table := buildCalibrationTable([]models.CalibrationInput{
			{Confidence: 1.0, OutcomePositive: true},
		})
		Expect(table).To(HaveLen(1))
		Expect(table[0].Floor).To(Equal(0.9))
	})

	It("returns no buckets for an empty input set", func() {
		Expect(buildCalibrationTable(nil)).To(BeEmpty())
	})
})
