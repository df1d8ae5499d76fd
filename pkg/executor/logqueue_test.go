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

package executor

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/salesintel/decisionengine/pkg/ledger/models"
	"github.com/salesintel/decisionengine/pkg/obsmetrics"
)

// These tests construct a logQueue directly, with no worker goroutines
// draining it, so a full channel is a controlled precondition rather than
// a timing race.
var _ = Describe("logQueue backpressure", func() {
	It("drops the comparison first, then the whole record, never blocking the caller", func() {
		q := &logQueue{jobs: make(chan logJob, 1)}
		q.enqueueDecision(&models.DecisionRecord{DecisionID: "d1"})

		before := obsmetrics.DroppedLogCount()
		q.enqueueDecision(&models.DecisionRecord{
			DecisionID:       "d2",
			ShadowComparison: &models.ShadowComparison{SecondaryKind: "shadow"},
		})

		Expect(obsmetrics.DroppedLogCount()).To(Equal(before + 2))
		Expect(q.jobs).To(HaveLen(1))
		queued := <-q.jobs
		Expect(queued.decision.DecisionID).To(Equal("d1"))
	})

	It("drops an A/B assignment under backpressure without blocking", func() {
		q := &logQueue{jobs: make(chan logJob)}
		before := obsmetrics.DroppedLogCount()

		q.enqueueABAssignment(&models.ABAssignment{ExperimentID: "exp-1"})

		Expect(obsmetrics.DroppedLogCount()).To(Equal(before + 1))
	})
})
