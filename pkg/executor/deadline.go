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

package executor

import (
	"context"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/pkg/ruledoc"
	"github.com/salesintel/decisionengine/pkg/tools"
)

// composeWithDeadline runs registry.Compose, which has no context
// parameter of its own, and converts ctx's deadline into a Timeout error
// rather than letting a pathological rule document block its caller
// indefinitely. The interpreter itself is synchronous, so on timeout the
// goroutine is abandoned (not killed) and its result discarded.
func composeWithDeadline(ctx context.Context, registry *tools.Registry, tool tools.Name, doc *ruledoc.RuleDocument, vi *tools.ValidatedInput) (*tools.Output, error) {
	type result struct {
		out *tools.Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := registry.Compose(tool, doc, vi)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, appErrors.NewTimeoutError(string(tool) + " evaluation")
	}
}
