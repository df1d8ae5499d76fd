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

// Package interpreter is the pure evaluator for rule documents (spec
// §4.2). It has no side effects: the same document and inputs always
// produce byte-identical output, including breakdown order (spec §8).
package interpreter

import (
	"fmt"
	"sort"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

// Step is one entry of an evaluation's stepwise breakdown (spec §4.2
// "Output").
type Step struct {
	StepName string `json:"step_name"`
	Value    any    `json:"value"`
	Reason   string `json:"reason"`
}

// Result is the output of evaluating a rule document's entrypoint,
// including every applied edge case (spec §4.2 "Output").
type Result struct {
	Result      any            `json:"result"`
	Breakdown   []Step         `json:"breakdown"`
	Variables   map[string]any `json:"variables"`
	FormulaUsed string         `json:"formula_used"`
	RuleVersion string         `json:"rule_version"`
}

type state struct {
	doc       *ruledoc.RuleDocument
	inputs    map[string]any
	resolved  map[string]any
	breakdown []Step
}

// Evaluate runs doc's entrypoint rule against inputs, applies the
// document's edge cases in declaration order, and returns the full
// breakdown (spec §4.2).
func Evaluate(doc *ruledoc.RuleDocument, inputs map[string]any) (*Result, error) {
	if doc.Entrypoint == "" {
		return nil, appErrors.NewRuleInvalidError(doc.ToolName, doc.Version(), "document has no entrypoint")
	}

	st := &state{
		doc:      doc,
		inputs:   inputs,
		resolved: map[string]any{},
	}

	base, err := st.resolveVar(doc.Entrypoint)
	if err != nil {
		return nil, err
	}

	final := base
	for _, ec := range doc.EdgeCases {
		matched, err := st.evalCondition(ec.Condition)
		if err != nil {
			return nil, appErrors.NewEvaluationError(doc.Entrypoint, "edge_case:"+ec.Name, err.Error())
		}
		if !matched {
			continue
		}
		numeric, ok := asFloat(final)
		if !ok {
			return nil, appErrors.NewEvaluationError(doc.Entrypoint, "edge_case:"+ec.Name, "edge case action requires a numeric base value")
		}
		applied, err := applyAction(numeric, ec.Action)
		if err != nil {
			return nil, appErrors.NewEvaluationError(doc.Entrypoint, "edge_case:"+ec.Name, err.Error())
		}
		final = applied
		st.breakdown = append(st.breakdown, Step{
			StepName: "edge_case:" + ec.Name,
			Value:    final,
			Reason:   fmt.Sprintf("%s(%v) applied", ec.Action.Kind, ec.Action.Value),
		})
	}

	return &Result{
		Result:      final,
		Breakdown:   st.breakdown,
		Variables:   st.resolved,
		FormulaUsed: doc.Entrypoint,
		RuleVersion: doc.Version(),
	}, nil
}

// EvaluateMulti runs doc's entrypoint exactly as Evaluate does (including
// edge cases), then additionally resolves each name in extra against the
// same evaluation state — so a tool whose typed output draws on more than
// one named rule in a document (e.g. a numeric score plus a categorical
// tier) gets both from a single pass, sharing the memoized resolution
// cache and without edge cases being (incorrectly) applied to the extras.
// The second return value maps each requested extra name to its resolved
// value; a name that is neither a declared input nor a named rule yields
// an error identifying which.
func EvaluateMulti(doc *ruledoc.RuleDocument, inputs map[string]any, extra []string) (*Result, map[string]any, error) {
	if doc.Entrypoint == "" {
		return nil, nil, appErrors.NewRuleInvalidError(doc.ToolName, doc.Version(), "document has no entrypoint")
	}

	st := &state{
		doc:      doc,
		inputs:   inputs,
		resolved: map[string]any{},
	}

	base, err := st.resolveVar(doc.Entrypoint)
	if err != nil {
		return nil, nil, err
	}

	final := base
	for _, ec := range doc.EdgeCases {
		matched, err := st.evalCondition(ec.Condition)
		if err != nil {
			return nil, nil, appErrors.NewEvaluationError(doc.Entrypoint, "edge_case:"+ec.Name, err.Error())
		}
		if !matched {
			continue
		}
		numeric, ok := asFloat(final)
		if !ok {
			return nil, nil, appErrors.NewEvaluationError(doc.Entrypoint, "edge_case:"+ec.Name, "edge case action requires a numeric base value")
		}
		applied, err := applyAction(numeric, ec.Action)
		if err != nil {
			return nil, nil, appErrors.NewEvaluationError(doc.Entrypoint, "edge_case:"+ec.Name, err.Error())
		}
		final = applied
		st.breakdown = append(st.breakdown, Step{
			StepName: "edge_case:" + ec.Name,
			Value:    final,
			Reason:   fmt.Sprintf("%s(%v) applied", ec.Action.Kind, ec.Action.Value),
		})
	}

	extras := make(map[string]any, len(extra))
	for _, name := range extra {
		v, err := st.resolveVar(name)
		if err != nil {
			return nil, nil, err
		}
		extras[name] = v
	}

	return &Result{
		Result:      final,
		Breakdown:   st.breakdown,
		Variables:   st.resolved,
		FormulaUsed: doc.Entrypoint,
		RuleVersion: doc.Version(),
	}, extras, nil
}

func applyAction(base float64, a ruledoc.Action) (float64, error) {
	switch a.Kind {
	case ruledoc.ActionMultiply:
		return base * a.Value, nil
	case ruledoc.ActionAdd:
		return base + a.Value, nil
	case ruledoc.ActionSet:
		return a.Value, nil
	case ruledoc.ActionCap:
		if base > a.Value {
			return a.Value, nil
		}
		return base, nil
	case ruledoc.ActionFloor:
		if base < a.Value {
			return a.Value, nil
		}
		return base, nil
	default:
		return 0, fmt.Errorf("unrecognized edge case action %q", a.Kind)
	}
}

// resolveVar resolves a symbol either from the declared inputs or by
// evaluating the named rule, memoizing the result and recording exactly
// one breakdown step per variable resolved (spec §4.2 "Output" —
// "Breakdown must contain at least one entry per variable resolved").
func (st *state) resolveVar(name string) (any, error) {
	if v, ok := st.resolved[name]; ok {
		return v, nil
	}
	if v, ok := st.inputs[name]; ok {
		st.resolved[name] = v
		st.breakdown = append(st.breakdown, Step{StepName: name, Value: v, Reason: "given as input"})
		return v, nil
	}
	rule, ok := st.doc.Rules[name]
	if !ok {
		return nil, appErrors.NewEvaluationError(st.doc.Entrypoint, name, fmt.Sprintf("variable %q is neither a declared input nor a named rule", name))
	}
	v, reason, err := st.evalRule(rule)
	if err != nil {
		return nil, err
	}
	st.resolved[name] = v
	st.breakdown = append(st.breakdown, Step{StepName: name, Value: v, Reason: reason})
	return v, nil
}

func (st *state) evalRule(rule ruledoc.Rule) (any, string, error) {
	switch rule.Type {
	case ruledoc.RuleTypeFormula:
		return st.evalFormula(rule)
	case ruledoc.RuleTypeDecisionTree:
		return st.evalDecisionTree(rule)
	case ruledoc.RuleTypeLookupTable:
		return st.evalLookupTable(rule)
	case ruledoc.RuleTypeRangeLookup:
		return st.evalRangeLookup(rule)
	case ruledoc.RuleTypeMapping:
		return st.evalMapping(rule)
	case ruledoc.RuleTypeThreshold:
		return st.evalThreshold(rule)
	default:
		return nil, "", appErrors.NewEvaluationError(st.doc.Entrypoint, rule.Name, fmt.Sprintf("unrecognized rule type %q", rule.Type))
	}
}

func (st *state) evalFormula(rule ruledoc.Rule) (any, string, error) {
	expr, err := ruledoc.ParseExpr(rule.Formula.Expression)
	if err != nil {
		return nil, "", appErrors.NewEvaluationError(st.doc.Entrypoint, rule.Name, "formula failed to parse: "+err.Error())
	}
	v, err := st.evalExpr(rule.Name, expr)
	if err != nil {
		return nil, "", err
	}
	return v, fmt.Sprintf("formula %q", rule.Formula.Expression), nil
}

func (st *state) evalExpr(ruleName string, e *ruledoc.Expr) (float64, error) {
	switch e.Kind {
	case ruledoc.ExprNumber:
		return e.Number, nil
	case ruledoc.ExprVar:
		v, err := st.resolveVar(e.Var)
		if err != nil {
			return 0, err
		}
		f, ok := asFloat(v)
		if !ok {
			return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, fmt.Sprintf("variable %q is not numeric", e.Var))
		}
		return f, nil
	case ruledoc.ExprBinary:
		l, err := st.evalExpr(ruleName, e.Left)
		if err != nil {
			return 0, err
		}
		r, err := st.evalExpr(ruleName, e.Right)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case '+':
			return l + r, nil
		case '-':
			return l - r, nil
		case '*':
			return l * r, nil
		case '/':
			if r == 0 {
				return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, "division by zero")
			}
			return l / r, nil
		default:
			return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, fmt.Sprintf("unrecognized operator %q", e.Op))
		}
	case ruledoc.ExprCall:
		return st.evalCall(ruleName, e)
	default:
		return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, "malformed expression node")
	}
}

func (st *state) evalCall(ruleName string, e *ruledoc.Expr) (float64, error) {
	args := make([]float64, len(e.Args))
	for i, a := range e.Args {
		v, err := st.evalExpr(ruleName, a)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	switch e.Func {
	case "min":
		if len(args) == 0 {
			return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, "min requires at least one argument")
		}
		m := args[0]
		for _, a := range args[1:] {
			if a < m {
				m = a
			}
		}
		return m, nil
	case "max":
		if len(args) == 0 {
			return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, "max requires at least one argument")
		}
		m := args[0]
		for _, a := range args[1:] {
			if a > m {
				m = a
			}
		}
		return m, nil
	case "round":
		if len(args) != 1 {
			return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, "round requires exactly one argument")
		}
		return float64(int64(args[0] + 0.5)), nil
	case "clamp":
		if len(args) != 3 {
			return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, "clamp requires exactly three arguments: value, low, high")
		}
		v, low, high := args[0], args[1], args[2]
		if v < low {
			return low, nil
		}
		if v > high {
			return high, nil
		}
		return v, nil
	default:
		return 0, appErrors.NewEvaluationError(st.doc.Entrypoint, ruleName, fmt.Sprintf("unrecognized function %q", e.Func))
	}
}

func (st *state) evalDecisionTree(rule ruledoc.Rule) (any, string, error) {
	body := rule.DecisionTree
	for i, branch := range body.Branches {
		matched, err := st.evalCondition(branch.Condition)
		if err != nil {
			return nil, "", appErrors.NewEvaluationError(st.doc.Entrypoint, rule.Name, err.Error())
		}
		if matched {
			return branch.Output, fmt.Sprintf("decision_tree branch %d matched", i), nil
		}
	}
	return body.Fallback, "decision_tree fallback", nil
}

func (st *state) evalLookupTable(rule ruledoc.Rule) (any, string, error) {
	body := rule.LookupTable
	v, err := st.resolveVar(body.Input)
	if err != nil {
		return nil, "", err
	}
	for _, e := range body.Entries {
		if looseEqual(v, e.Key) {
			return e.Value, fmt.Sprintf("lookup_table matched key %v", e.Key), nil
		}
	}
	return nil, "", appErrors.NewEvaluationError(st.doc.Entrypoint, rule.Name, fmt.Sprintf("no lookup_table entry for %v", v))
}

func (st *state) evalRangeLookup(rule ruledoc.Rule) (any, string, error) {
	body := rule.RangeLookup
	raw, err := st.resolveVar(body.Input)
	if err != nil {
		return nil, "", err
	}
	v, ok := asFloat(raw)
	if !ok {
		return nil, "", appErrors.NewEvaluationError(st.doc.Entrypoint, rule.Name, fmt.Sprintf("input %q is not numeric", body.Input))
	}
	for _, r := range body.Ranges {
		if v >= r.Low && v < r.High {
			return r.Value, fmt.Sprintf("range_lookup matched [%v,%v)", r.Low, r.High), nil
		}
	}
	return nil, "", appErrors.NewEvaluationError(st.doc.Entrypoint, rule.Name, fmt.Sprintf("no range_lookup interval covers %v", v))
}

func (st *state) evalMapping(rule ruledoc.Rule) (any, string, error) {
	body := rule.Mapping
	raw, err := st.resolveVar(body.Input)
	if err != nil {
		return nil, "", err
	}
	key := fmt.Sprintf("%v", raw)
	if v, ok := body.Entries[key]; ok {
		return v, fmt.Sprintf("mapping matched key %q", key), nil
	}
	return body.Default, "mapping default", nil
}

func (st *state) evalThreshold(rule ruledoc.Rule) (any, string, error) {
	body := rule.Threshold
	for i, t := range body.Thresholds {
		matched, err := st.evalCondition(t.Condition)
		if err != nil {
			return nil, "", appErrors.NewEvaluationError(st.doc.Entrypoint, rule.Name, err.Error())
		}
		if matched {
			return t.Value, fmt.Sprintf("threshold %d matched", i), nil
		}
	}
	return body.Default, "threshold default", nil
}

// evalCondition evaluates a predicate tree (spec §4.2 "Conditions"),
// short-circuiting and/or in declaration order.
func (st *state) evalCondition(c ruledoc.Condition) (bool, error) {
	switch c.Op {
	case ruledoc.OpAnd:
		for _, operand := range c.Operands {
			ok, err := st.evalCondition(operand)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case ruledoc.OpOr:
		for _, operand := range c.Operands {
			ok, err := st.evalCondition(operand)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case ruledoc.OpNot:
		if len(c.Operands) != 1 {
			return false, fmt.Errorf("'not' requires exactly one operand")
		}
		ok, err := st.evalCondition(c.Operands[0])
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		fieldVal, err := st.resolveVar(c.Field)
		if err != nil {
			return false, err
		}
		return evalLeaf(c, fieldVal)
	}
}

func evalLeaf(c ruledoc.Condition, fieldVal any) (bool, error) {
	switch c.Op {
	case ruledoc.OpEq:
		return looseEqual(fieldVal, c.Value), nil
	case ruledoc.OpNe:
		return !looseEqual(fieldVal, c.Value), nil
	case ruledoc.OpLt, ruledoc.OpLe, ruledoc.OpGt, ruledoc.OpGe:
		fv, ok1 := asFloat(fieldVal)
		cv, ok2 := asFloat(c.Value)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("field %q comparison requires numeric operands", c.Field)
		}
		switch c.Op {
		case ruledoc.OpLt:
			return fv < cv, nil
		case ruledoc.OpLe:
			return fv <= cv, nil
		case ruledoc.OpGt:
			return fv > cv, nil
		default:
			return fv >= cv, nil
		}
	case ruledoc.OpBetween:
		fv, ok1 := asFloat(fieldVal)
		lo, ok2 := asFloat(c.Low)
		hi, ok3 := asFloat(c.High)
		if !ok1 || !ok2 || !ok3 {
			return false, fmt.Errorf("field %q between requires numeric operands", c.Field)
		}
		return fv >= lo && fv <= hi, nil
	case ruledoc.OpIn:
		for _, v := range c.Values {
			if looseEqual(fieldVal, v) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized leaf operator %q", c.Op)
	}
}

// AsFloat exposes the interpreter's numeric coercion to callers outside
// the package (pkg/tools composes a Result.Result value of unknown
// concrete numeric type into a typed score field).
func AsFloat(v any) (float64, bool) {
	return asFloat(v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func looseEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// KeyFactors returns the top-N breakdown steps by absolute numeric
// contribution, used by the executor to populate a ToolResult's
// key_factors (spec §4.4 "Compose explanation").
func KeyFactors(breakdown []Step, n int) []Step {
	numeric := make([]Step, 0, len(breakdown))
	for _, s := range breakdown {
		if _, ok := asFloat(s.Value); ok {
			numeric = append(numeric, s)
		}
	}
	sort.SliceStable(numeric, func(i, j int) bool {
		vi, _ := asFloat(numeric[i].Value)
		vj, _ := asFloat(numeric[j].Value)
		return abs(vi) > abs(vj)
	})
	if len(numeric) > n {
		numeric = numeric[:n]
	}
	return numeric
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
