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

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/pkg/ledger/models"
)

// feedbackRequest is the body of POST /feedback (spec §6).
type feedbackRequest struct {
	DecisionID      string             `json:"decision_id"`
	OutcomePositive *bool              `json:"outcome_positive"`
	OutcomeType     models.OutcomeType `json:"outcome_type"`
	OutcomeValue    float64            `json:"outcome_value"`
	Notes           string             `json:"notes"`
}

// feedbackResponse is the success body of POST /feedback.
type feedbackResponse struct {
	FeedbackID         string  `json:"feedback_id"`
	CurrentPerformance float64 `json:"current_performance"`
}

// handleSubmitFeedback records a feedback outcome against an existing
// decision and returns the tool's blended success rate over the
// configured feedback window, giving the caller an immediate read on the
// effect of the outcome it just reported.
func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, appErrors.NewValidationError("request body is not valid JSON").WithDetails(err.Error()))
		return
	}
	if body.DecisionID == "" {
		writeError(w, r, appErrors.NewValidationError("decision_id is required"))
		return
	}

	decision, err := s.repo.GetDecision(r.Context(), body.DecisionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	fb := &models.FeedbackRecord{
		FeedbackID:      uuid.NewString(),
		DecisionID:      body.DecisionID,
		OutcomePositive: body.OutcomePositive,
		OutcomeType:     body.OutcomeType,
		OutcomeValue:    body.OutcomeValue,
		Source:          "http",
		Notes:           body.Notes,
		FeedbackAt:      time.Now(),
	}
	if err := s.repo.AppendFeedback(r.Context(), fb); err != nil {
		writeError(w, r, err)
		return
	}

	performance, err := s.currentPerformance(r.Context(), decision.ToolName, s.feedbackWindow)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, feedbackResponse{
		FeedbackID:         fb.FeedbackID,
		CurrentPerformance: performance,
	})
}

// currentPerformance blends SummarizePerformance's daily rows for tool
// over the trailing window into a single success-rate figure, weighted
// by each day's feedback-bearing decision count, the same weighting
// pkg/feedback's analyzer uses for its own windowAggregate.
func (s *Server) currentPerformance(ctx context.Context, tool string, window time.Duration) (float64, error) {
	now := time.Now()
	rows, err := s.repo.SummarizePerformance(ctx, models.PerformanceScope{ToolName: tool, From: now.Add(-window), To: now})
	if err != nil {
		return 0, err
	}

	var successSum, feedbackBearing float64
	for _, row := range rows {
		bearing := row.FeedbackCoverage * float64(row.TotalDecisions)
		feedbackBearing += bearing
		successSum += row.SuccessRate * bearing
	}
	if feedbackBearing == 0 {
		return 0, nil
	}
	return successSum / feedbackBearing, nil
}

// feedbackSummaryResponse is the body of GET /feedback/summary.
type feedbackSummaryResponse struct {
	Rows []models.PerformanceSummary `json:"rows"`
}

// handleFeedbackSummary returns the aggregated performance rollup for a
// tool (and optionally a rule version) over the requested window (spec
// §6 "GET /feedback/summary").
func (s *Server) handleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tool := q.Get("tool")
	if tool == "" {
		writeError(w, r, appErrors.NewValidationError("tool query parameter is required"))
		return
	}

	from, to, err := parseWindow(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows, err := s.repo.SummarizePerformance(r.Context(), models.PerformanceScope{ToolName: tool, From: from, To: to})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if version := q.Get("version"); version != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.RuleVersion == version {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	rows, err = groupSummary(rows, q.Get("group_by"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, feedbackSummaryResponse{Rows: rows})
}

// groupSummary rolls SummarizePerformance's native per-tool-per-version-
// per-day rows up to the grain the caller asked for (spec §6
// "GET /feedback/summary?...&group_by=…"). The underlying query always
// returns the finest grain; coarser grains are a weighted re-aggregation
// of those rows rather than a second query, since the weights a correct
// rollup needs (decisions, feedback-bearing decisions, compared
// decisions) are already present on each row.
func groupSummary(rows []models.PerformanceSummary, groupBy string) ([]models.PerformanceSummary, error) {
	type key struct {
		tool    string
		version string
		day     time.Time
	}
	var keyOf func(models.PerformanceSummary) key
	switch groupBy {
	case "", "day_version", "tool_version_day":
		return rows, nil
	case "tool":
		keyOf = func(r models.PerformanceSummary) key { return key{tool: r.ToolName} }
	case "version":
		keyOf = func(r models.PerformanceSummary) key { return key{tool: r.ToolName, version: r.RuleVersion} }
	case "day":
		keyOf = func(r models.PerformanceSummary) key { return key{tool: r.ToolName, day: r.Day} }
	default:
		return nil, appErrors.NewValidationError("group_by must be one of tool, version, day").WithDetails(groupBy)
	}

	order := make([]key, 0, len(rows))
	acc := make(map[key]*models.PerformanceSummary, len(rows))
	for _, row := range rows {
		k := keyOf(row)
		cur, ok := acc[k]
		if !ok {
			merged := row
			merged.RuleVersion = k.version
			merged.Day = k.day
			acc[k] = &merged
			order = append(order, k)
			continue
		}
		feedbackBearingPrev := cur.FeedbackCoverage * float64(cur.TotalDecisions)
		feedbackBearingNext := row.FeedbackCoverage * float64(row.TotalDecisions)
		totalFeedbackBearing := feedbackBearingPrev + feedbackBearingNext

		weightedAvg := func(prevAvg, nextAvg float64, prevWeight, nextWeight int64) float64 {
			total := prevWeight + nextWeight
			if total == 0 {
				return 0
			}
			return (prevAvg*float64(prevWeight) + nextAvg*float64(nextWeight)) / float64(total)
		}

		if totalFeedbackBearing > 0 {
			cur.SuccessRate = (cur.SuccessRate*feedbackBearingPrev + row.SuccessRate*feedbackBearingNext) / totalFeedbackBearing
			cur.AvgOutcomeValue = (cur.AvgOutcomeValue*feedbackBearingPrev + row.AvgOutcomeValue*feedbackBearingNext) / totalFeedbackBearing
		}
		cur.AvgConfidence = weightedAvg(cur.AvgConfidence, row.AvgConfidence, cur.TotalDecisions, row.TotalDecisions)
		cur.AvgLatencyMs = weightedAvg(cur.AvgLatencyMs, row.AvgLatencyMs, cur.TotalDecisions, row.TotalDecisions)
		cur.MatchRate = weightedAvg(cur.MatchRate, row.MatchRate, cur.ComparedDecisions, row.ComparedDecisions)

		cur.TotalDecisions += row.TotalDecisions
		cur.ComparedDecisions += row.ComparedDecisions
		if cur.TotalDecisions > 0 {
			cur.FeedbackCoverage = totalFeedbackBearing / float64(cur.TotalDecisions)
		}
	}

	out := make([]models.PerformanceSummary, 0, len(order))
	for _, k := range order {
		out = append(out, *acc[k])
	}
	return out, nil
}

// decisionDetailResponse is the body of GET /feedback/decisions/{decision_id}
// (spec §6 "full joined decision + feedback").
type decisionDetailResponse struct {
	Decision models.DecisionRecord  `json:"decision"`
	Feedback []models.FeedbackRecord `json:"feedback"`
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	decisionID := chi.URLParam(r, "decision_id")

	decision, err := s.repo.GetDecision(r.Context(), decisionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	feedback, err := s.repo.FeedbackForDecision(r.Context(), decisionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, decisionDetailResponse{Decision: *decision, Feedback: feedback})
}

func parseWindow(fromRaw, toRaw string) (time.Time, time.Time, error) {
	to := time.Now()
	if toRaw != "" {
		parsed, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.NewValidationError("to must be RFC3339").WithDetails(err.Error())
		}
		to = parsed
	}

	from := to.Add(-7 * 24 * time.Hour)
	if fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.NewValidationError("from must be RFC3339").WithDetails(err.Error())
		}
		from = parsed
	}
	return from, to, nil
}
