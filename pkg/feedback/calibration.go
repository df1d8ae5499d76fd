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

import "github.com/salesintel/decisionengine/pkg/ledger/models"

// CalibrationBucket is one row of a calibration table: among the
// feedback-bearing decisions whose confidence fell in [Floor, Ceiling), what
// fraction actually succeeded (spec §4.7).
type CalibrationBucket struct {
	Floor       float64 `json:"floor"`
	Ceiling     float64 `json:"ceiling"`
	Count       int     `json:"count"`
	SuccessRate float64 `json:"success_rate"`
}

// bucketWidth matches the ten-decile granularity the confidence model
// already reports against (tool confidence floors/ceilings are fractions of
// 1.0), giving every tool the same calibration resolution regardless of its
// own confidence policy.
const bucketWidth = 0.1

// buildCalibrationTable buckets inputs by confidence into fixed-width
// [0,0.1) .. [0.9,1.0] bands and computes each band's actual success rate.
// Empty bands are omitted rather than reported as a misleading 0%.
func buildCalibrationTable(inputs []models.CalibrationInput) []CalibrationBucket {
	const numBuckets = 10
	outcomes := make([][]float64, numBuckets)

	for _, in := range inputs {
		idx := int(in.Confidence * numBuckets)
		if idx >= numBuckets {
			idx = numBuckets - 1
		}
		if idx < 0 {
			idx = 0
		}
		var outcome float64
		if in.OutcomePositive {
			outcome = 1.0
		}
		outcomes[idx] = append(outcomes[idx], outcome)
	}

	var table []CalibrationBucket
	for idx, bucket := range outcomes {
		if len(bucket) == 0 {
			continue
		}
		floor := float64(idx) / numBuckets
		ceiling := float64(idx+1) / numBuckets
		table = append(table, CalibrationBucket{
			Floor:       floor,
			Ceiling:     ceiling,
			Count:       len(bucket),
			SuccessRate: Mean(bucket),
		})
	}
	return table
}
