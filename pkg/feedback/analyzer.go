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
	"time"

	"github.com/salesintel/decisionengine/internal/config"
	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/ledger"
	"github.com/salesintel/decisionengine/pkg/ledger/models"
	"github.com/salesintel/decisionengine/pkg/obsmetrics"
)

// ledgerReader is the slice of *ledger.Repository the analyzer depends on,
// narrowed so unit tests can stand in a fake without a database.
type ledgerReader interface {
	SummarizePerformance(ctx context.Context, scope models.PerformanceScope) ([]models.PerformanceSummary, error)
	CalibrationInputs(ctx context.Context, scope models.PerformanceScope) ([]models.CalibrationInput, error)
}

// AlertSink persists a batch of alerts. The analyzer never gates emission
// on a Notifier; writing to ledger storage is the durable side effect,
// Notify is a best-effort mirror.
type AlertSink interface {
	AppendAlerts(ctx context.Context, alerts []PerformanceAlert) error
}

// Analyzer is the periodic job described in spec §4.7. It never mutates a
// rule document; every finding it produces is a PerformanceAlert or a
// CalibrationBucket for a human or a rule-authoring tool to act on.
type Analyzer struct {
	repo      ledgerReader
	toolNames []string
	cfg       config.FeedbackConfig
	sink      AlertSink
	notifier  Notifier
	log       logging.Fields
}

// NewAnalyzer constructs an Analyzer over toolNames (typically
// (*tools.Registry).Names(), stringified by the caller). notifier may be
// NoopNotifier{} when no external mirror is configured.
func NewAnalyzer(repo *ledger.Repository, toolNames []string, cfg config.FeedbackConfig, sink AlertSink, notifier Notifier, log logging.Fields) *Analyzer {
	return &Analyzer{
		repo:      repo,
		toolNames: toolNames,
		cfg:       cfg,
		sink:      sink,
		notifier:  notifier,
		log:       log.Component("feedback"),
	}
}

// Run blocks, analyzing every configured tool once per cfg.Interval, until
// ctx is cancelled. A tool whose window analysis fails is skipped; it does
// not abort the other tools' analysis for that tick.
func (a *Analyzer) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Analyzer) tick(ctx context.Context) {
	now := time.Now()
	for _, name := range a.toolNames {
		alerts, _, err := a.AnalyzeOnce(ctx, name, now)
		if err != nil {
			continue
		}
		if len(alerts) == 0 {
			continue
		}
		_ = a.sink.AppendAlerts(ctx, alerts)
		for _, alert := range alerts {
			_ = a.notifier.Notify(ctx, alert)
		}
	}
}

// AnalyzeOnce computes the current window's per-rule-version aggregates for
// tool, checks them against cfg's thresholds, and returns both the alerts
// that fired and the window's calibration table. now anchors the window so
// tests can pin it rather than depend on wall-clock time.
func (a *Analyzer) AnalyzeOnce(ctx context.Context, tool string, now time.Time) ([]PerformanceAlert, []CalibrationBucket, error) {
	scope := models.PerformanceScope{ToolName: tool, From: now.Add(-a.cfg.Window), To: now}
	rows, err := a.repo.SummarizePerformance(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	prevScope := models.PerformanceScope{ToolName: tool, From: scope.From.Add(-a.cfg.Window), To: scope.From}
	prevRows, err := a.repo.SummarizePerformance(ctx, prevScope)
	if err != nil {
		return nil, nil, err
	}

	calibInputs, err := a.repo.CalibrationInputs(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	table := buildCalibrationTable(calibInputs)

	prevMatchByVersion := aggregateByVersion(tool, prevRows)
	currentByVersion := aggregateByVersion(tool, rows)

	var totalDecisions, feedbackBearing int64
	var alerts []PerformanceAlert
	for version, agg := range currentByVersion {
		totalDecisions += agg.TotalDecisions
		feedbackBearing += agg.FeedbackBearing

		prev, hasPrev := prevMatchByVersion[version]
		found := evaluateAlerts(agg, prev.MatchRate, hasPrev && prev.ComparedDecisions > 0, a.cfg, now)
		alerts = append(alerts, found...)
	}
	if totalDecisions > 0 {
		obsmetrics.SetFeedbackCoverage(tool, float64(feedbackBearing)/float64(totalDecisions))
	}

	return alerts, table, nil
}

// aggregateByVersion collapses SummarizePerformance's per-day rows into one
// windowAggregate per rule_version, weighting confidence by decision volume
// and success/match rate by the denominator each was itself averaged over.
func aggregateByVersion(tool string, rows []models.PerformanceSummary) map[string]windowAggregate {
	out := make(map[string]windowAggregate)
	type accum struct {
		totalDecisions    int64
		confidenceWeight  float64
		confidenceSum     float64
		feedbackBearing   float64
		successSum        float64
		comparedDecisions int64
		matchSum          float64
	}
	accums := make(map[string]*accum)

	for _, row := range rows {
		acc, ok := accums[row.RuleVersion]
		if !ok {
			acc = &accum{}
			accums[row.RuleVersion] = acc
		}
		acc.totalDecisions += row.TotalDecisions
		acc.confidenceWeight += float64(row.TotalDecisions)
		acc.confidenceSum += row.AvgConfidence * float64(row.TotalDecisions)

		bearing := row.FeedbackCoverage * float64(row.TotalDecisions)
		acc.feedbackBearing += bearing
		acc.successSum += row.SuccessRate * bearing

		acc.comparedDecisions += row.ComparedDecisions
		acc.matchSum += row.MatchRate * float64(row.ComparedDecisions)
	}

	for version, acc := range accums {
		agg := windowAggregate{
			ToolName:          tool,
			RuleVersion:       version,
			TotalDecisions:    acc.totalDecisions,
			FeedbackBearing:   int64(acc.feedbackBearing),
			ComparedDecisions: acc.comparedDecisions,
		}
		if acc.confidenceWeight > 0 {
			agg.AvgConfidence = acc.confidenceSum / acc.confidenceWeight
		}
		if acc.feedbackBearing > 0 {
			agg.SuccessRate = acc.successSum / acc.feedbackBearing
		}
		if acc.comparedDecisions > 0 {
			agg.MatchRate = acc.matchSum / float64(acc.comparedDecisions)
		}
		out[version] = agg
	}
	return out
}
