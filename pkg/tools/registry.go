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

package tools

import (
	"context"

	validator "github.com/go-playground/validator/v10"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/policy"
	"github.com/salesintel/decisionengine/pkg/ruledoc"
	"github.com/salesintel/decisionengine/pkg/rulestore"
)

// toolImpl is the two-phase contract every declared tool implements:
// validate shapes and normalizes the caller's params into the variable
// envelope the interpreter evaluates against; compose turns the raw
// interpreter result into the tool's typed Output (spec §4.3, §4.4
// steps 1 and 5).
type toolImpl interface {
	validate(raw map[string]any, v *validator.Validate) (*ValidatedInput, error)
	compose(doc *ruledoc.RuleDocument, vi *ValidatedInput) (*Output, error)
}

// Registry is the closed catalog of decision tools (spec §3
// "ToolDefinition", §4.3). It binds each tool's static metadata to its
// Go-side validate/compose implementation and, at call time, to the Rule
// Store's currently pinned production document.
type Registry struct {
	defs     map[Name]Definition
	impls    map[Name]toolImpl
	store    *rulestore.Store
	policy   *policy.Engine
	validate *validator.Validate
	log      logging.Fields
}

// NewRegistry constructs the fixed five-tool registry. defs supplies each
// tool's SLA class and allowed-callers list (operator-configured, spec
// §3); the Go-side validate/compose bindings are fixed by this package
// and never configurable.
func NewRegistry(defs map[Name]Definition, store *rulestore.Store, eng *policy.Engine, log logging.Fields) *Registry {
	return &Registry{
		defs:  defs,
		store: store,
		policy: eng,
		validate: validator.New(),
		log:    log.Component("tools"),
		impls: map[Name]toolImpl{
			CompanyQuality:      companyQualityTool{},
			ContactTier:         contactTierTool{},
			TimingScore:         timingScoreTool{},
			BankingProductMatch: bankingProductMatchTool{},
			CompositeScore:      compositeScoreTool{},
		},
	}
}

// Definition returns tool's static metadata, or false if tool is not a
// member of the closed registry.
func (r *Registry) Definition(tool Name) (Definition, bool) {
	d, ok := r.defs[tool]
	return d, ok
}

// Names returns every tool this registry was configured with, in no
// particular order. The feedback analyzer uses this to iterate the closed
// tool set without hardcoding it a second time.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	return names
}

// Authorize checks caller against tool's declared allow-list (spec §4.3).
// Kept separate from Invoke so the executor can authorize once up front
// and reuse the same decision for both the production and secondary
// evaluation of a single request.
func (r *Registry) Authorize(ctx context.Context, tool Name, caller string) error {
	def, ok := r.defs[tool]
	if !ok {
		return appErrors.NewNotFoundError("tool " + string(tool))
	}
	return r.policy.Authorize(ctx, string(tool), caller, def.AllowedCallers)
}

// Validate runs tool's input validation in isolation from rule
// evaluation, so the executor can fail fast on SchemaValidationError
// before resolving any rule version (spec §4.4 step 1).
func (r *Registry) Validate(tool Name, rawParams map[string]any) (*ValidatedInput, error) {
	impl, ok := r.impls[tool]
	if !ok {
		return nil, appErrors.NewNotFoundError("tool " + string(tool))
	}
	return impl.validate(rawParams, r.validate)
}

// Compose evaluates doc against a previously validated input and shapes
// the result into tool's typed Output (spec §4.4 steps 3/5). Called once
// for the production document and, independently, once more for any
// secondary (shadow/treatment) document the executor resolves.
func (r *Registry) Compose(tool Name, doc *ruledoc.RuleDocument, vi *ValidatedInput) (*Output, error) {
	impl, ok := r.impls[tool]
	if !ok {
		return nil, appErrors.NewNotFoundError("tool " + string(tool))
	}
	return impl.compose(doc, vi)
}

// ProductionRule returns the Rule Store's current production document for
// tool (spec §4.4 step 2).
func (r *Registry) ProductionRule(tool Name) (*ruledoc.RuleDocument, error) {
	return r.store.GetProductionRule(string(tool))
}

// ShadowRule returns the Rule Store's current shadow document for tool,
// if any.
func (r *Registry) ShadowRule(tool Name) (*ruledoc.RuleDocument, bool) {
	return r.store.GetShadowRule(string(tool))
}

// PinnedRule returns a specific version of tool's document, used by the
// A/B router to resolve a treatment version.
func (r *Registry) PinnedRule(tool Name, version string) (*ruledoc.RuleDocument, error) {
	return r.store.GetRule(string(tool), version)
}
