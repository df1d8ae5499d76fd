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

// Package obsmetrics is the decision core's Prometheus surface (spec §4.7
// "Metrics produced"). Metrics are package-level vars registered against
// the default registry, the same shape pkg/metrics uses elsewhere in the
// corpus; the only addition here is a lock-free dropped-log counter, since
// the executor's logging backpressure path (spec §5) must never itself
// block or allocate under load.
package obsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

var (
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_engine_decisions_total",
		Help: "Total number of tool decisions rendered, by tool and rule version.",
	}, []string{"tool_name", "rule_version"})

	DecisionLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "decision_engine_decision_latency_seconds",
		Help:    "Latency of a primary tool decision, by tool.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"tool_name"})

	ShadowComparisonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_engine_shadow_comparisons_total",
		Help: "Total number of shadow/treatment comparisons, by tool and whether the categorical output matched.",
	}, []string{"tool_name", "categorical_match"})

	ToolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_engine_tool_errors_total",
		Help: "Total number of tool invocation failures, by tool and error type.",
	}, []string{"tool_name", "error_type"})

	FeedbackCoverage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "decision_engine_feedback_coverage_ratio",
		Help: "Fraction of decisions in the trailing analysis window that have at least one feedback record, by tool.",
	}, []string{"tool_name"})

	DroppedLogsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decision_engine_dropped_logs_total",
		Help: "Total number of decision log writes dropped under backpressure.",
	})

	PerformanceAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_engine_performance_alerts_total",
		Help: "Total number of performance alerts emitted by the feedback analyzer, by tool and alert kind.",
	}, []string{"tool_name", "kind"})
)

// droppedLogCount mirrors DroppedLogsTotal as a lock-free counter the
// executor's hot path can increment without touching the Prometheus
// registry's internal locking, matching the dropped-log accounting spec §5
// calls out as never itself becoming a blocking point.
var droppedLogCount atomic.Uint64

// RecordDecision records one primary decision's outcome and latency.
func RecordDecision(tool, ruleVersion string, d time.Duration) {
	DecisionsTotal.WithLabelValues(tool, ruleVersion).Inc()
	DecisionLatencySeconds.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordShadowComparison records whether a secondary evaluation's
// categorical output matched the primary's.
func RecordShadowComparison(tool string, categoricalMatch bool) {
	ShadowComparisonsTotal.WithLabelValues(tool, boolLabel(categoricalMatch)).Inc()
}

// RecordToolError records a tool invocation failure by its AppError type.
func RecordToolError(tool, errorType string) {
	ToolErrorsTotal.WithLabelValues(tool, errorType).Inc()
}

// RecordDroppedLog increments both the lock-free counter and its
// Prometheus mirror. Called from the executor's non-blocking logging path
// (spec §5 "secondary log first, then primary-decision log as last
// resort").
func RecordDroppedLog() {
	droppedLogCount.Add(1)
	DroppedLogsTotal.Inc()
}

// DroppedLogCount returns the current lock-free dropped-log count, read
// without touching the Prometheus registry.
func DroppedLogCount() uint64 {
	return droppedLogCount.Load()
}

// RecordPerformanceAlert counts one PerformanceAlert emission by tool and
// kind.
func RecordPerformanceAlert(tool, kind string) {
	PerformanceAlertsTotal.WithLabelValues(tool, kind).Inc()
}

// SetFeedbackCoverage records the trailing-window feedback coverage ratio
// the analyzer computed for tool.
func SetFeedbackCoverage(tool string, ratio float64) {
	FeedbackCoverage.WithLabelValues(tool).Set(ratio)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
