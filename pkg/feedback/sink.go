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
	"context"

	"github.com/google/uuid"

	"github.com/salesintel/decisionengine/pkg/ledger"
	"github.com/salesintel/decisionengine/pkg/ledger/models"
	"github.com/salesintel/decisionengine/pkg/obsmetrics"
)

// LedgerAlertSink persists alerts to the decision ledger and records each
// one against obsmetrics.PerformanceAlertsTotal, the one place alert
// emission actually becomes observable outside the ledger itself.
type LedgerAlertSink struct {
	Repo *ledger.Repository
}

func (s LedgerAlertSink) AppendAlerts(ctx context.Context, alerts []PerformanceAlert) error {
	for _, alert := range alerts {
		rec := &models.PerformanceAlertRecord{
			AlertID:     uuid.NewString(),
			ToolName:    alert.ToolName,
			RuleVersion: alert.RuleVersion,
			Kind:        string(alert.Kind),
			Message:     alert.Message,
			Value:       alert.Value,
			Threshold:   alert.Threshold,
			TriggeredAt: alert.TriggeredAt,
		}
		if err := s.Repo.AppendAlert(ctx, rec); err != nil {
			return err
		}
		obsmetrics.RecordPerformanceAlert(alert.ToolName, string(alert.Kind))
	}
	return nil
}
