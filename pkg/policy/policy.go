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

// Package policy authorizes tool invocations against each tool's declared
// allowed_callers list (spec §4.3) via a compiled OPA rego policy, rather
// than a hand-rolled membership check, so caller-authorization rules stay
// declarative and independently auditable from the rest of the core.
package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/internal/logging"
)

//go:embed policy.rego
var defaultPolicy string

const decisionQuery = "data.decisionengine.authz.allow"

// Engine authorizes (caller, tool) pairs. A zero Engine is not usable;
// construct with New or NewFromSource.
type Engine struct {
	compiled rego.PreparedEvalQuery
	log      logging.Fields
}

// New compiles the bundled default policy, which authorizes a caller
// against the per-request AllowedCallers list supplied at evaluation time.
func New(ctx context.Context, log logging.Fields) (*Engine, error) {
	return NewFromSource(ctx, defaultPolicy, log)
}

// NewFromSource compiles a caller-supplied rego module, allowing
// deployments to replace the default allow-list check with a richer
// policy (e.g. time-of-day restrictions) without touching Go code.
func NewFromSource(ctx context.Context, source string, log logging.Fields) (*Engine, error) {
	prepared, err := rego.New(
		rego.Query(decisionQuery),
		rego.Module("policy.rego", source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrorTypeConfiguration, "compiling authorization policy")
	}
	return &Engine{compiled: prepared, log: log.Component("policy")}, nil
}

// Authorize evaluates whether caller may invoke tool, given the tool's
// declared allow-list. It returns a PolicyViolation AppError on denial, so
// callers can propagate it directly as the decision core's POLICY_VIOLATION
// wire error (spec §6).
func (e *Engine) Authorize(ctx context.Context, tool, caller string, allowedCallers []string) error {
	input := map[string]any{
		"caller":               caller,
		"tool_allowed_callers": allowedCallers,
	}

	results, err := e.compiled.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrorTypeInternal, fmt.Sprintf("evaluating authorization policy for tool %q", tool))
	}

	if !decisionAllows(results) {
		return appErrors.NewPolicyViolationError(tool, caller)
	}
	return nil
}

func decisionAllows(results rego.ResultSet) bool {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false
	}
	allow, _ := results[0].Expressions[0].Value.(bool)
	return allow
}
