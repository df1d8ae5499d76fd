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

	"github.com/salesintel/decisionengine/internal/config"
)

// AlertKind identifies which of spec §4.7's four triggers fired.
type AlertKind string

const (
	AlertSuccessRateLow      AlertKind = "success_rate_low"
	AlertConfidenceLow       AlertKind = "confidence_low"
	AlertFeedbackStarved     AlertKind = "feedback_starved"
	AlertMatchRateDegraded   AlertKind = "match_rate_degraded"
)

// PerformanceAlert is data, not a command: the analyzer never rewrites a
// rule document itself (spec §4.7 "Outputs"), it only emits rows a human or
// a rule-authoring tool consumes.
type PerformanceAlert struct {
	ToolName    string    `json:"tool_name"`
	RuleVersion string    `json:"rule_version"`
	Kind        AlertKind `json:"kind"`
	Message     string    `json:"message"`
	Value       float64   `json:"value"`
	Threshold   float64   `json:"threshold"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// windowAggregate is the rolled-up shape one tool's window reduces to before
// being checked against config.FeedbackConfig's thresholds.
type windowAggregate struct {
	ToolName          string
	RuleVersion       string
	TotalDecisions    int64
	FeedbackBearing   int64
	SuccessRate       float64
	AvgConfidence     float64
	MatchRate         float64
	ComparedDecisions int64
}

// evaluateAlerts checks one tool's current-window aggregate against cfg's
// thresholds (spec §4.7 "Triggers"). prevMatchRate/hasPrevMatchRate carry
// the immediately preceding window's match rate, the baseline the
// degradation trigger measures drift against; hasPrevMatchRate is false
// when there were no compared decisions in the prior window to form a
// baseline from, in which case the degradation check is skipped rather than
// comparing against a meaningless zero.
func evaluateAlerts(agg windowAggregate, prevMatchRate float64, hasPrevMatchRate bool, cfg config.FeedbackConfig, triggeredAt time.Time) []PerformanceAlert {
	var alerts []PerformanceAlert

	if agg.FeedbackBearing >= int64(cfg.MinFeedbackCount) && agg.SuccessRate < cfg.SuccessRateThreshold {
		alerts = append(alerts, PerformanceAlert{
			ToolName: agg.ToolName, RuleVersion: agg.RuleVersion, Kind: AlertSuccessRateLow,
			Message:     "success rate fell below threshold over the analysis window",
			Value:       agg.SuccessRate, Threshold: cfg.SuccessRateThreshold, TriggeredAt: triggeredAt,
		})
	}

	if agg.AvgConfidence < cfg.ConfidenceThreshold {
		alerts = append(alerts, PerformanceAlert{
			ToolName: agg.ToolName, RuleVersion: agg.RuleVersion, Kind: AlertConfidenceLow,
			Message:     "average confidence fell below threshold over the analysis window",
			Value:       agg.AvgConfidence, Threshold: cfg.ConfidenceThreshold, TriggeredAt: triggeredAt,
		})
	}

	unfedback := agg.TotalDecisions - agg.FeedbackBearing
	if unfedback > int64(cfg.UnfedbackedThreshold) {
		alerts = append(alerts, PerformanceAlert{
			ToolName: agg.ToolName, RuleVersion: agg.RuleVersion, Kind: AlertFeedbackStarved,
			Message:     "decisions without feedback exceeded threshold over the analysis window",
			Value:       float64(unfedback), Threshold: float64(cfg.UnfedbackedThreshold), TriggeredAt: triggeredAt,
		})
	}

	if hasPrevMatchRate && agg.ComparedDecisions > 0 {
		degradation := prevMatchRate - agg.MatchRate
		if degradation > cfg.MatchRateDeltaThreshold {
			alerts = append(alerts, PerformanceAlert{
				ToolName: agg.ToolName, RuleVersion: agg.RuleVersion, Kind: AlertMatchRateDegraded,
				Message:     "shadow/treatment match rate degraded versus the prior window",
				Value:       degradation, Threshold: cfg.MatchRateDeltaThreshold, TriggeredAt: triggeredAt,
			})
		}
	}

	return alerts
}
