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

package obsmetrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope the executor's spans are
// reported under.
const tracerName = "github.com/salesintel/decisionengine/pkg/obsmetrics"

// StartDecisionSpan opens a span around one primary tool execution. The
// returned end function records the outcome and closes the span; callers
// defer it immediately:
//
//	ctx, end := obsmetrics.StartDecisionSpan(ctx, tool, ruleVersion)
//	defer end(err)
func StartDecisionSpan(ctx context.Context, tool, ruleVersion string) (context.Context, func(err error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "decision.execute",
		trace.WithAttributes(
			attribute.String("tool_name", tool),
			attribute.String("rule_version", ruleVersion),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
