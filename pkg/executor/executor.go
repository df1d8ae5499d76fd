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

// Package executor is the single synchronous path every decision request
// follows (spec §4.4). Execute validates, resolves rule versions,
// evaluates production, dispatches the secondary (shadow/treatment)
// evaluation and the ledger write off-thread, and returns the production
// result without ever waiting on either.
package executor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/ledger"
	"github.com/salesintel/decisionengine/pkg/ledger/models"
	"github.com/salesintel/decisionengine/pkg/obsmetrics"
	"github.com/salesintel/decisionengine/pkg/shadow"
	"github.com/salesintel/decisionengine/pkg/tools"
)

// Strict tools must complete in <=2s at p95; assisted-composition tools
// allow <=5s (spec §5). Secondary evaluation is independently bounded,
// shorter, so a slow shadow/treatment run never extends the request.
const (
	strictTimeout    = 2 * time.Second
	assistedTimeout  = 5 * time.Second
	secondaryTimeout = 1 * time.Second
)

// RequestContext carries the caller-supplied context a decision needs
// beyond the tool's own input: who is calling, which tenant, and the
// stable key the shadow/A-B router buckets on (spec §4.4, §4.5).
type RequestContext struct {
	Caller     string
	TenantID   string
	SubjectKey string
}

// ToolResult is what Execute returns to the caller (spec §6 response
// envelope, minus transport concerns owned by pkg/httpapi).
type ToolResult struct {
	Tool             tools.Name
	Result           any
	Confidence       float64
	Breakdown        []tools.Step
	KeyFactors       []tools.Step
	EdgeCasesApplied []string
	RuleVersion      string
	DecisionID       string
}

// Executor orchestrates Execute for all five tools. The zero value is not
// usable; construct with New.
type Executor struct {
	registry *tools.Registry
	router   *shadow.Router
	log      logging.Fields
	queue    *logQueue
	inFlight sync.WaitGroup
}

// New constructs an Executor. queueCapacity bounds the async ledger-write
// queue (spec §5 "lock-free queue with backpressure"); workerCount is the
// number of goroutines draining it.
func New(registry *tools.Registry, router *shadow.Router, repo *ledger.Repository, log logging.Fields, queueCapacity, workerCount int) *Executor {
	log = log.Component("executor")
	return &Executor{
		registry: registry,
		router:   router,
		log:      log,
		queue:    newLogQueue(repo, log, queueCapacity, workerCount),
	}
}

// Shutdown waits for every in-flight secondary evaluation to finish
// enqueueing its log entry, then stops accepting new log jobs and waits
// for the queue to drain, up to ctx's deadline. Closing the queue before
// every finishAsync goroutine has enqueued would panic on a send to a
// closed channel, so the two waits are sequenced.
func (e *Executor) Shutdown(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		e.inFlight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.queue.shutdown(ctx)
}

// Execute runs the full decision procedure for one tool call (spec §4.4
// steps 1-7).
func (e *Executor) Execute(ctx context.Context, tool tools.Name, rawParams map[string]any, reqCtx RequestContext) (*ToolResult, error) {
	def, ok := e.registry.Definition(tool)
	if !ok {
		return nil, appErrors.NewNotFoundError("tool " + string(tool))
	}

	if err := e.registry.Authorize(ctx, tool, reqCtx.Caller); err != nil {
		return nil, err
	}

	// Step 1: validate. A SchemaValidationError here is the caller's
	// fault and is never logged to the ledger.
	vi, err := e.registry.Validate(tool, rawParams)
	if err != nil {
		return nil, err
	}

	// Step 2: resolve rule versions.
	prodDoc, err := e.registry.ProductionRule(tool)
	if err != nil {
		return nil, err
	}

	timeout := strictTimeout
	if def.SLA == tools.SLAAssisted {
		timeout = assistedTimeout
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, endSpan := obsmetrics.StartDecisionSpan(ctx, string(tool), prodDoc.Version())
	defer endSpan(nil)

	// Step 3: evaluate production. Compose itself is pure CPU-bound work
	// (spec §5); the deadline only guards against a runaway rule document.
	start := time.Now()
	primaryOut, err := composeWithDeadline(evalCtx, e.registry, tool, prodDoc, vi)
	latency := time.Since(start)
	if err != nil {
		obsmetrics.RecordToolError(string(tool), string(appErrors.GetType(err)))
		return nil, err
	}
	obsmetrics.RecordDecision(string(tool), primaryOut.RuleVersion, latency)

	decisionID := uuid.NewString()
	decidedAt := time.Now()

	// Steps 4-6 run off-thread; the caller never waits on them.
	e.inFlight.Add(1)
	go func() {
		defer e.inFlight.Done()
		e.finishAsync(tool, reqCtx, vi, primaryOut, rawParams, decisionID, decidedAt, latency)
	}()

	// Step 7: return the production result.
	return &ToolResult{
		Tool:             tool,
		Result:           primaryOut.Result,
		Confidence:       primaryOut.Confidence,
		Breakdown:        primaryOut.Breakdown,
		KeyFactors:       primaryOut.KeyFactors,
		EdgeCasesApplied: primaryOut.EdgeCasesApplied,
		RuleVersion:      primaryOut.RuleVersion,
		DecisionID:       decisionID,
	}, nil
}

// finishAsync evaluates the secondary version (if any), builds the
// comparison block, and enqueues the DecisionRecord for the ledger. It
// runs detached from the request's context, since neither a client
// disconnect nor the request's own deadline should cancel logging.
func (e *Executor) finishAsync(tool tools.Name, reqCtx RequestContext, vi *tools.ValidatedInput, primaryOut *tools.Output, rawParams map[string]any, decisionID string, decidedAt time.Time, latency time.Duration) {
	bgCtx := context.Background()

	var comparison *models.ShadowComparison
	secDoc, secKind, assignment, err := e.router.Resolve(string(tool), reqCtx.SubjectKey)
	if err != nil {
		// Resolution failure means the rule store doesn't have the
		// treatment version it claims is active; it never affects the
		// primary response, only skips secondary comparison for this
		// decision.
		obsmetrics.RecordToolError(string(tool)+":secondary", string(appErrors.GetType(err)))
	} else if secDoc != nil {
		secCtx, cancel := context.WithTimeout(bgCtx, secondaryTimeout)
		secStart := time.Now()
		secOut, secErr := composeWithDeadline(secCtx, e.registry, tool, secDoc, vi)
		secLatency := time.Since(secStart)
		cancel()

		if secErr != nil {
			comparison = &models.ShadowComparison{
				SecondaryKind:       string(secKind),
				SecondaryVersion:    secDoc.Version(),
				SecondaryLatencyMs:  secLatency.Milliseconds(),
				SecondaryEvalFailed: true,
			}
		} else {
			match, diff := compareOutputs(primaryOut, secOut)
			comparison = &models.ShadowComparison{
				SecondaryKind:      string(secKind),
				SecondaryVersion:   secDoc.Version(),
				CategoricalMatch:   match,
				NumericDifference:  diff,
				SecondaryLatencyMs: secLatency.Milliseconds(),
			}
			obsmetrics.RecordShadowComparison(string(tool), match)
		}

		if assignment != nil {
			controlVersion := ""
			if exp, ok := e.router.ExperimentFor(string(tool)); ok {
				controlVersion = exp.ControlVersion
			}
			e.queue.enqueueABAssignment(&models.ABAssignment{
				ExperimentID:     assignment.ExperimentID,
				SubjectKey:       assignment.SubjectKey,
				Variant:          models.ABVariant(assignment.Variant),
				ToolName:         assignment.ToolName,
				ControlVersion:   controlVersion,
				TreatmentVersion: assignment.Version,
				AssignedAt:       decidedAt,
			})
		}
	}

	inputSnapshot, _ := json.Marshal(rawParams)
	outputSnapshot, _ := json.Marshal(primaryOut.Result)
	keyFactors, _ := json.Marshal(primaryOut.KeyFactors)
	edgeCases, _ := json.Marshal(primaryOut.EdgeCasesApplied)

	rec := &models.DecisionRecord{
		DecisionID:       decisionID,
		ToolName:         string(tool),
		RuleVersion:      primaryOut.RuleVersion,
		InputSnapshot:    inputSnapshot,
		OutputSnapshot:   outputSnapshot,
		Confidence:       primaryOut.Confidence,
		KeyFactors:       keyFactors,
		EdgeCasesApplied: edgeCases,
		LatencyMs:        latency.Milliseconds(),
		DecidedAt:        decidedAt,
		Caller:           reqCtx.Caller,
		TenantID:         reqCtx.TenantID,
		ShadowComparison: comparison,
	}

	e.queue.enqueueDecision(rec)
}
