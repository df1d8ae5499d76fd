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

// Package ledger is the append-only system of record for every decision
// the core renders and every outcome fed back into it (spec §3, §4.6).
// Repository owns persistence; pkg/ledger/models owns the entity shapes.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/ledger/models"
)

const pgUniqueViolation = "23505"
const pgForeignKeyViolation = "23503"

// Repository is the ledger's Postgres-backed persistence layer.
type Repository struct {
	db  *sqlx.DB
	log logging.Fields
}

// NewRepository constructs a Repository against an already-open *sqlx.DB.
// Repository does not own connection lifecycle.
func NewRepository(db *sqlx.DB, log logging.Fields) *Repository {
	return &Repository{db: db, log: log.Component("ledger")}
}

const insertDecisionSQL = `
INSERT INTO decisions (
	decision_id, tool_name, rule_version, input_snapshot, output_snapshot,
	confidence, key_factors, edge_cases_applied, latency_ms, decided_at,
	caller, tenant_id, secondary_kind, secondary_version, categorical_match,
	numeric_difference, secondary_latency_ms, secondary_eval_failed
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
)
ON CONFLICT (decision_id) DO NOTHING
`

// AppendDecision persists rec. Decisions are immutable once written
// (spec §3): a second call with the same DecisionID is a no-op, not an
// error (ON CONFLICT DO NOTHING). rec's
// ShadowComparison, if set, is flattened into nullable columns on the same
// row rather than a side table, since a decision carries at most one.
func (r *Repository) AppendDecision(ctx context.Context, rec *models.DecisionRecord) error {
	var secKind, secVersion *string
	var categoricalMatch, secEvalFailed *bool
	var numericDiff *float64
	var secLatencyMs *int64
	if c := rec.ShadowComparison; c != nil {
		secKind, secVersion = &c.SecondaryKind, &c.SecondaryVersion
		categoricalMatch, secEvalFailed = &c.CategoricalMatch, &c.SecondaryEvalFailed
		numericDiff = &c.NumericDifference
		secLatencyMs = &c.SecondaryLatencyMs
	}

	_, err := r.db.ExecContext(ctx, insertDecisionSQL,
		rec.DecisionID, rec.ToolName, rec.RuleVersion, rec.InputSnapshot, rec.OutputSnapshot,
		rec.Confidence, rec.KeyFactors, rec.EdgeCasesApplied, rec.LatencyMs, rec.DecidedAt,
		rec.Caller, rec.TenantID, secKind, secVersion, categoricalMatch,
		numericDiff, secLatencyMs, secEvalFailed,
	)
	if err != nil {
		return translateWriteError(err, "decision")
	}
	return nil
}

const insertFeedbackSQL = `
INSERT INTO feedback (
	feedback_id, decision_id, outcome_positive, outcome_type, outcome_value,
	source, notes, feedback_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
`

// AppendFeedback persists fb. A decision may accumulate many feedback
// records over time (spec §3); fb.DecisionID must reference an existing
// decision, enforced by a foreign key, not a pre-check, so a concurrent
// decision write racing a feedback write never produces a false negative.
func (r *Repository) AppendFeedback(ctx context.Context, fb *models.FeedbackRecord) error {
	_, err := r.db.ExecContext(ctx, insertFeedbackSQL,
		fb.FeedbackID, fb.DecisionID, fb.OutcomePositive, fb.OutcomeType, fb.OutcomeValue,
		fb.Source, fb.Notes, fb.FeedbackAt,
	)
	if err != nil {
		return translateWriteError(err, "feedback")
	}
	return nil
}

func translateWriteError(err error, resource string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return appErrors.New(appErrors.ErrorTypeConflict, fmt.Sprintf("%s already recorded", resource)).WithDetails(pgErr.Message)
		case pgForeignKeyViolation:
			return appErrors.NewNotFoundError("decision referenced by " + resource)
		}
	}
	return appErrors.NewDatabaseError("append "+resource, err)
}

// QueryDecisions returns decisions matching filter, newest first. Indexed
// SQL predicates narrow the candidate set; FreeformQuery, when set, is
// additionally evaluated in Go via gojq against each candidate's decoded
// output_snapshot, since an arbitrary jq expression cannot be pushed into
// SQL (spec §4.6 "ad-hoc query surface over the output snapshot").
func (r *Repository) QueryDecisions(ctx context.Context, filter models.DecisionFilter) ([]models.DecisionRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ToolName != "" {
		clauses = append(clauses, "tool_name = "+arg(filter.ToolName))
	}
	if filter.RuleVersion != "" {
		clauses = append(clauses, "rule_version = "+arg(filter.RuleVersion))
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "decided_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "decided_at <= "+arg(filter.To))
	}
	if filter.Outcome != "" {
		clauses = append(clauses, "decision_id IN (SELECT decision_id FROM feedback WHERE outcome_type = "+arg(filter.Outcome)+")")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT decision_id, tool_name, rule_version, input_snapshot, output_snapshot,
			confidence, key_factors, edge_cases_applied, latency_ms, decided_at, caller, tenant_id,
			secondary_kind, secondary_version, categorical_match, numeric_difference,
			secondary_latency_ms, secondary_eval_failed
		 FROM decisions WHERE %s ORDER BY decided_at DESC LIMIT %s`,
		strings.Join(clauses, " AND "), arg(limit),
	)

	var compiled *gojq.Code
	if filter.FreeformQuery != "" {
		ast, err := gojq.Parse(filter.FreeformQuery)
		if err != nil {
			return nil, appErrors.NewValidationError("invalid freeform query").WithDetails(err.Error())
		}
		compiled, err = gojq.Compile(ast)
		if err != nil {
			return nil, appErrors.NewValidationError("invalid freeform query").WithDetails(err.Error())
		}
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, appErrors.NewDatabaseError("query decisions", err)
	}
	defer rows.Close()

	var out []models.DecisionRecord
	for rows.Next() {
		var row decisionRow
		if err := rows.StructScan(&row); err != nil {
			return nil, appErrors.NewDatabaseError("scan decision row", err)
		}
		rec := row.toDecisionRecord()
		if compiled != nil {
			match, err := matchesFreeformQuery(compiled, rec.OutputSnapshot)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewDatabaseError("iterate decision rows", err)
	}
	return out, nil
}

// decisionRow is the flat shape a decisions row scans into: ShadowComparison
// is tagged db:"-" on models.DecisionRecord itself since sqlx can't fold a
// nested struct out of nullable sibling columns, so QueryDecisions scans
// into this local shape and reassembles the pointer field afterward.
type decisionRow struct {
	models.DecisionRecord
	SecondaryKind       *string  `db:"secondary_kind"`
	SecondaryVersion    *string  `db:"secondary_version"`
	CategoricalMatch    *bool    `db:"categorical_match"`
	NumericDifference   *float64 `db:"numeric_difference"`
	SecondaryLatencyMs  *int64   `db:"secondary_latency_ms"`
	SecondaryEvalFailed *bool    `db:"secondary_eval_failed"`
}

func (row decisionRow) toDecisionRecord() models.DecisionRecord {
	rec := row.DecisionRecord
	if row.SecondaryKind != nil {
		rec.ShadowComparison = &models.ShadowComparison{
			SecondaryKind:    *row.SecondaryKind,
			SecondaryVersion: derefString(row.SecondaryVersion),
		}
		if row.CategoricalMatch != nil {
			rec.ShadowComparison.CategoricalMatch = *row.CategoricalMatch
		}
		if row.NumericDifference != nil {
			rec.ShadowComparison.NumericDifference = *row.NumericDifference
		}
		if row.SecondaryLatencyMs != nil {
			rec.ShadowComparison.SecondaryLatencyMs = *row.SecondaryLatencyMs
		}
		if row.SecondaryEvalFailed != nil {
			rec.ShadowComparison.SecondaryEvalFailed = *row.SecondaryEvalFailed
		}
	}
	return rec
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func matchesFreeformQuery(compiled *gojq.Code, outputSnapshot []byte) (bool, error) {
	var decoded any
	if err := json.Unmarshal(outputSnapshot, &decoded); err != nil {
		return false, appErrors.NewDatabaseError("decode output_snapshot", err)
	}

	iter := compiled.Run(decoded)
	v, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, ok := v.(error); ok {
		return false, appErrors.NewValidationError("freeform query evaluation failed").WithDetails(err.Error())
	}
	switch v {
	case nil, false:
		return false, nil
	default:
		return true, nil
	}
}

const summarizePerformanceSQL = `
SELECT
	d.tool_name AS tool_name,
	d.rule_version AS rule_version,
	date_trunc('day', d.decided_at) AS day,
	COUNT(*) AS total_decisions,
	COALESCE(COUNT(f.decision_id)::float / NULLIF(COUNT(*), 0), 0) AS feedback_coverage,
	COALESCE(AVG(CASE WHEN f.outcome_positive THEN 1.0 ELSE 0.0 END), 0) AS success_rate,
	COALESCE(AVG(d.confidence), 0) AS avg_confidence,
	COALESCE(AVG(d.latency_ms), 0) AS avg_latency_ms,
	COALESCE(AVG(f.outcome_value), 0) AS avg_outcome_value,
	COALESCE(AVG(CASE WHEN d.categorical_match THEN 1.0 ELSE 0.0 END), 0) AS match_rate,
	COUNT(d.categorical_match) AS compared_decisions
FROM decisions d
LEFT JOIN feedback f ON f.decision_id = d.decision_id
WHERE d.tool_name = $1 AND d.decided_at >= $2 AND d.decided_at <= $3
GROUP BY d.tool_name, d.rule_version, date_trunc('day', d.decided_at)
ORDER BY day DESC
`

// SummarizePerformance aggregates ledger entries into the per-tool,
// per-version, per-day rollups the feedback analyzer and the performance
// HTTP endpoint both read (spec §4.6, §4.7 "Metrics produced").
func (r *Repository) SummarizePerformance(ctx context.Context, scope models.PerformanceScope) ([]models.PerformanceSummary, error) {
	rows, err := r.db.QueryxContext(ctx, summarizePerformanceSQL, scope.ToolName, scope.From, scope.To)
	if err != nil {
		return nil, appErrors.NewDatabaseError("summarize performance", err)
	}
	defer rows.Close()

	var out []models.PerformanceSummary
	for rows.Next() {
		var row models.PerformanceSummary
		if err := rows.StructScan(&row); err != nil {
			return nil, appErrors.NewDatabaseError("scan performance row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewDatabaseError("iterate performance rows", err)
	}
	return out, nil
}

const calibrationInputsSQL = `
SELECT d.confidence AS confidence, COALESCE(f.outcome_positive, false) AS outcome_positive
FROM decisions d
JOIN feedback f ON f.decision_id = d.decision_id
WHERE d.tool_name = $1 AND d.decided_at >= $2 AND d.decided_at <= $3 AND f.outcome_positive IS NOT NULL
`

// CalibrationInputs returns the (confidence, outcome) pair of every
// feedback-bearing decision for scope, the raw material
// pkg/feedback buckets into a calibration table (spec §4.7).
func (r *Repository) CalibrationInputs(ctx context.Context, scope models.PerformanceScope) ([]models.CalibrationInput, error) {
	rows, err := r.db.QueryxContext(ctx, calibrationInputsSQL, scope.ToolName, scope.From, scope.To)
	if err != nil {
		return nil, appErrors.NewDatabaseError("query calibration inputs", err)
	}
	defer rows.Close()

	var out []models.CalibrationInput
	for rows.Next() {
		var in models.CalibrationInput
		if err := rows.StructScan(&in); err != nil {
			return nil, appErrors.NewDatabaseError("scan calibration input", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewDatabaseError("iterate calibration inputs", err)
	}
	return out, nil
}

// AppendAlert persists a performance alert emitted by the feedback
// analyzer (spec §4.7 "Outputs"). Alerts are append-only like everything
// else in the ledger; there is no update path.
func (r *Repository) AppendAlert(ctx context.Context, rec *models.PerformanceAlertRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO performance_alerts (alert_id, tool_name, rule_version, kind, message, value, threshold, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (alert_id) DO NOTHING
	`, rec.AlertID, rec.ToolName, rec.RuleVersion, rec.Kind, rec.Message, rec.Value, rec.Threshold, rec.TriggeredAt)
	if err != nil {
		return translateWriteError(err, "performance_alert")
	}
	return nil
}

const getDecisionSQL = `
SELECT decision_id, tool_name, rule_version, input_snapshot, output_snapshot,
	confidence, key_factors, edge_cases_applied, latency_ms, decided_at, caller, tenant_id,
	secondary_kind, secondary_version, categorical_match, numeric_difference,
	secondary_latency_ms, secondary_eval_failed
FROM decisions WHERE decision_id = $1
`

// GetDecision returns a single decision by ID, or a NotFound AppError if no
// such decision exists.
func (r *Repository) GetDecision(ctx context.Context, decisionID string) (*models.DecisionRecord, error) {
	var row decisionRow
	if err := r.db.GetContext(ctx, &row, getDecisionSQL, decisionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFoundError("decision " + decisionID)
		}
		return nil, appErrors.NewDatabaseError("get decision", err)
	}
	rec := row.toDecisionRecord()
	return &rec, nil
}

// FeedbackForDecision returns every feedback record attached to
// decisionID, oldest first, since a decision may accumulate several over
// its lifetime (spec §3).
func (r *Repository) FeedbackForDecision(ctx context.Context, decisionID string) ([]models.FeedbackRecord, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT feedback_id, decision_id, outcome_positive, outcome_type, outcome_value, source, notes, feedback_at
		FROM feedback WHERE decision_id = $1 ORDER BY feedback_at ASC
	`, decisionID)
	if err != nil {
		return nil, appErrors.NewDatabaseError("query feedback for decision", err)
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		var fb models.FeedbackRecord
		if err := rows.StructScan(&fb); err != nil {
			return nil, appErrors.NewDatabaseError("scan feedback row", err)
		}
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewDatabaseError("iterate feedback rows", err)
	}
	return out, nil
}

// AppendABAssignment durably records a deterministic A/B routing decision
// the first time a subject is assigned (spec §3 "ABAssignment"), so a
// later re-run of pkg/shadow.Assign for the same subject can be audited
// even after the experiment's Split changes.
func (r *Repository) AppendABAssignment(ctx context.Context, a *models.ABAssignment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ab_assignments (experiment_id, subject_key, variant, tool_name, control_version, treatment_version, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (experiment_id, subject_key) DO NOTHING
	`, a.ExperimentID, a.SubjectKey, a.Variant, a.ToolName, a.ControlVersion, a.TreatmentVersion, a.AssignedAt)
	if err != nil {
		return translateWriteError(err, "ab_assignment")
	}
	return nil
}
