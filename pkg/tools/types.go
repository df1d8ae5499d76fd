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

// Package tools implements the closed registry of decision tools (spec
// §4.3): CompanyQuality, ContactTier, TimingScore, BankingProductMatch,
// and CompositeScore. Each tool validates its own input shape, builds the
// variable envelope pkg/interpreter evaluates against, and shapes the raw
// interpreter result into a typed output with a clamped confidence.
package tools

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Name is one of the five declared tools. The set is closed: no caller
// can register a sixth.
type Name string

const (
	CompanyQuality      Name = "CompanyQuality"
	ContactTier         Name = "ContactTier"
	TimingScore         Name = "TimingScore"
	BankingProductMatch Name = "BankingProductMatch"
	CompositeScore      Name = "CompositeScore"
)

// SLAClass distinguishes the two latency budgets spec §5 declares.
type SLAClass string

const (
	// SLAStrict tools must complete in <=2s at p95 (spec §5).
	SLAStrict SLAClass = "strict"
	// SLAAssisted tools (explanation formatting only) allow <=5s at p95.
	SLAAssisted SLAClass = "assisted"
)

// Definition is a tool's static metadata: the ToolDefinition entity of
// spec §3, minus the version bindings the Rule Store owns.
type Definition struct {
	Name           Name
	SLA            SLAClass
	AllowedCallers []string
	// ParamsSchema is an optional schema carried with the definition. No
	// code in this package validates params against it; params are checked
	// only by each tool's struct tags.
	ParamsSchema *openapi3.Schema
}

// Output is the common envelope every tool call produces, regardless of
// the typed Result it carries. The executor logs Confidence, KeyFactors,
// and EdgeCasesApplied directly into the DecisionRecord.
type Output struct {
	Tool             Name
	Result           any
	Confidence       float64
	Breakdown        []Step
	Variables        map[string]any
	KeyFactors       []Step
	EdgeCasesApplied []string
	InferredFields   []string
	DefaultedFields  []string
	RuleVersion      string
}

// Step mirrors interpreter.Step at the tools package boundary so callers
// of this package never need to import pkg/interpreter directly.
type Step struct {
	StepName string `json:"step_name"`
	Value    any    `json:"value"`
	Reason   string `json:"reason"`
}

// confidenceBounds is declared per tool's rule document in production;
// clampConfidence enforces spec §4.3 "Confidence is always clamped to a
// declared floor ... and ceiling (1.0)".
func clampConfidence(v, floor, ceiling float64) float64 {
	if v < floor {
		return floor
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
