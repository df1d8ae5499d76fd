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

// Package models defines the ledger's append-only entities (spec §3):
// DecisionRecord, FeedbackRecord, and ABAssignment. These are plain data
// types; pkg/ledger owns persistence and query behavior.
package models

import "time"

// ShadowComparison captures the divergence between a DecisionRecord's
// primary output and a secondary (shadow or A/B treatment) evaluation of
// the same input (spec §4.4 step 6).
type ShadowComparison struct {
	SecondaryKind       string  `db:"secondary_kind" json:"secondary_kind"`
	SecondaryVersion    string  `db:"secondary_version" json:"secondary_version"`
	CategoricalMatch    bool    `db:"categorical_match" json:"categorical_match"`
	NumericDifference   float64 `db:"numeric_difference" json:"numeric_difference"`
	SecondaryLatencyMs  int64   `db:"secondary_latency_ms" json:"secondary_latency_ms"`
	SecondaryEvalFailed bool    `db:"secondary_eval_failed" json:"secondary_eval_failed"`
}

// DecisionRecord is the ledger's primary, append-only entity (spec §3).
// Once written, no field is ever updated; feedback attaches by
// reference via FeedbackRecord.DecisionID.
type DecisionRecord struct {
	DecisionID       string            `db:"decision_id" json:"decision_id"`
	ToolName         string            `db:"tool_name" json:"tool_name"`
	RuleVersion      string            `db:"rule_version" json:"rule_version"`
	InputSnapshot    []byte            `db:"input_snapshot" json:"input_snapshot"`
	OutputSnapshot   []byte            `db:"output_snapshot" json:"output_snapshot"`
	Confidence       float64           `db:"confidence" json:"confidence"`
	KeyFactors       []byte            `db:"key_factors" json:"key_factors"`
	EdgeCasesApplied []byte            `db:"edge_cases_applied" json:"edge_cases_applied"`
	LatencyMs        int64             `db:"latency_ms" json:"latency_ms"`
	DecidedAt        time.Time         `db:"decided_at" json:"decided_at"`
	Caller           string            `db:"caller" json:"caller,omitempty"`
	TenantID         string            `db:"tenant_id" json:"tenant_id,omitempty"`
	ShadowComparison *ShadowComparison `db:"-" json:"shadow_comparison,omitempty"`
}

// OutcomeType is the fixed enum a FeedbackRecord's outcome belongs to
// (spec §3).
type OutcomeType string

const (
	OutcomeConverted OutcomeType = "converted"
	OutcomeEngaged   OutcomeType = "engaged"
	OutcomeIgnored   OutcomeType = "ignored"
	OutcomeBounced   OutcomeType = "bounced"
	OutcomeError     OutcomeType = "error"
)

// FeedbackRecord references an existing DecisionRecord and is itself
// append-only (spec §3): a decision may accumulate multiple feedback
// records over time.
type FeedbackRecord struct {
	FeedbackID      string      `db:"feedback_id" json:"feedback_id"`
	DecisionID      string      `db:"decision_id" json:"decision_id"`
	OutcomePositive *bool       `db:"outcome_positive" json:"outcome_positive"`
	OutcomeType     OutcomeType `db:"outcome_type" json:"outcome_type"`
	OutcomeValue    float64     `db:"outcome_value" json:"outcome_value"`
	Source          string      `db:"source" json:"source,omitempty"`
	Notes           string      `db:"notes" json:"notes,omitempty"`
	FeedbackAt      time.Time   `db:"feedback_at" json:"feedback_at"`
}

// ABVariant mirrors pkg/shadow.Variant at the persistence boundary so
// this package never needs to import pkg/shadow.
type ABVariant string

const (
	ABVariantControl   ABVariant = "control"
	ABVariantTreatment ABVariant = "treatment"
)

// ABAssignment is the durable record of a deterministic A/B routing
// decision (spec §3).
type ABAssignment struct {
	ExperimentID     string    `db:"experiment_id" json:"experiment_id"`
	SubjectKey       string    `db:"subject_key" json:"subject_key"`
	Variant          ABVariant `db:"variant" json:"variant"`
	ToolName         string    `db:"tool_name" json:"tool_name"`
	ControlVersion   string    `db:"control_version" json:"control_version"`
	TreatmentVersion string    `db:"treatment_version" json:"treatment_version"`
	AssignedAt       time.Time `db:"assigned_at" json:"assigned_at"`
}

// DecisionFilter narrows QueryDecisions (spec §4.6). Zero-valued fields
// are not applied as predicates. FreeformQuery, when set, is a gojq
// expression evaluated against each decision's stored JSON snapshot in
// addition to the indexed SQL predicates.
type DecisionFilter struct {
	ToolName      string
	RuleVersion   string
	From          time.Time
	To            time.Time
	Outcome       OutcomeType
	FreeformQuery string
	Limit         int
}

// PerformanceScope narrows SummarizePerformance (spec §4.6): group
// aggregate metrics by tool, version, and day within the given window.
type PerformanceScope struct {
	ToolName string
	From     time.Time
	To       time.Time
}

// PerformanceSummary is one row of SummarizePerformance's result (spec
// §4.6, §4.7 "Metrics produced").
type PerformanceSummary struct {
	ToolName          string    `db:"tool_name" json:"tool_name"`
	RuleVersion       string    `db:"rule_version" json:"rule_version"`
	Day               time.Time `db:"day" json:"day"`
	TotalDecisions    int64     `db:"total_decisions" json:"total_decisions"`
	FeedbackCoverage  float64   `db:"feedback_coverage" json:"feedback_coverage"`
	SuccessRate       float64   `db:"success_rate" json:"success_rate"`
	AvgConfidence     float64   `db:"avg_confidence" json:"avg_confidence"`
	AvgLatencyMs      float64   `db:"avg_latency_ms" json:"avg_latency_ms"`
	AvgOutcomeValue   float64   `db:"avg_outcome_value" json:"avg_outcome_value"`
	MatchRate         float64   `db:"match_rate" json:"match_rate"`
	ComparedDecisions int64     `db:"compared_decisions" json:"compared_decisions"`
}

// CalibrationInput is one feedback-bearing decision's (confidence, outcome)
// pair, the raw material the feedback analyzer buckets into a calibration
// table (spec §4.7 "decisions bucketed by predicted score, each bucket's
// actual success rate").
type CalibrationInput struct {
	Confidence      float64 `db:"confidence" json:"confidence"`
	OutcomePositive bool    `db:"outcome_positive" json:"outcome_positive"`
}

// PerformanceAlertRecord is the durable row a feedback-analyzer alert is
// persisted as (spec §4.7 "Outputs": alerts are data, rows in an alerts
// table). The analyzer never updates or deletes a row once written.
type PerformanceAlertRecord struct {
	AlertID     string    `db:"alert_id" json:"alert_id"`
	ToolName    string    `db:"tool_name" json:"tool_name"`
	RuleVersion string    `db:"rule_version" json:"rule_version"`
	Kind        string    `db:"kind" json:"kind"`
	Message     string    `db:"message" json:"message"`
	Value       float64   `db:"value" json:"value"`
	Threshold   float64   `db:"threshold" json:"threshold"`
	TriggeredAt time.Time `db:"triggered_at" json:"triggered_at"`
}
