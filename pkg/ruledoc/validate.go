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

package ruledoc

import "fmt"

var recognizedTypes = map[RuleType]bool{
	RuleTypeFormula:      true,
	RuleTypeDecisionTree: true,
	RuleTypeLookupTable:  true,
	RuleTypeMapping:      true,
	RuleTypeRangeLookup:  true,
	RuleTypeThreshold:    true,
}

// Validate enforces the load-time invariants of spec §4.1: every Rule's
// type is recognized, every formula parses and references only declared
// symbols, every decision tree has a fallback, and every range_lookup's
// ranges are sorted and non-overlapping. declaredInputs is the tool's
// input schema field set (spec §3 "RuleDocument" invariant).
func Validate(doc *RuleDocument, declaredInputs []string) error {
	if doc.Entrypoint == "" {
		return fmt.Errorf("rule document for %q has no entrypoint", doc.ToolName)
	}
	if _, ok := doc.Rules[doc.Entrypoint]; !ok {
		return fmt.Errorf("entrypoint %q is not a declared rule", doc.Entrypoint)
	}

	declared := map[string]struct{}{}
	for _, in := range declaredInputs {
		declared[in] = struct{}{}
	}

	for name, rule := range doc.Rules {
		if !recognizedTypes[rule.Type] {
			return fmt.Errorf("rule %q has unrecognized type %q", name, rule.Type)
		}
		if err := validateRuleBody(name, rule); err != nil {
			return err
		}
		if rule.Type == RuleTypeFormula {
			expr, err := ParseExpr(rule.Formula.Expression)
			if err != nil {
				return fmt.Errorf("rule %q: formula does not parse: %w", name, err)
			}
			for v := range expr.Vars() {
				if _, isDeclared := declared[v]; isDeclared {
					continue
				}
				if _, isRule := doc.Rules[v]; isRule {
					continue
				}
				return fmt.Errorf("rule %q: formula references undeclared symbol %q", name, v)
			}
		}
	}

	for _, ec := range doc.EdgeCases {
		if err := validateCondition(ec.Condition, declared, doc.Rules); err != nil {
			return fmt.Errorf("edge case %q: %w", ec.Name, err)
		}
		if !validActionKind(ec.Action.Kind) {
			return fmt.Errorf("edge case %q: unrecognized action %q", ec.Name, ec.Action.Kind)
		}
	}

	return nil
}

func validActionKind(k ActionKind) bool {
	switch k {
	case ActionMultiply, ActionAdd, ActionSet, ActionCap, ActionFloor:
		return true
	default:
		return false
	}
}

func validateRuleBody(name string, rule Rule) error {
	switch rule.Type {
	case RuleTypeFormula:
		if rule.Formula == nil || rule.Formula.Expression == "" {
			return fmt.Errorf("rule %q: formula body is missing an expression", name)
		}
	case RuleTypeDecisionTree:
		if rule.DecisionTree == nil {
			return fmt.Errorf("rule %q: decision_tree body is missing", name)
		}
		if rule.DecisionTree.Fallback == nil {
			return fmt.Errorf("rule %q: decision_tree must declare a fallback branch", name)
		}
	case RuleTypeLookupTable:
		if rule.LookupTable == nil || len(rule.LookupTable.Entries) == 0 {
			return fmt.Errorf("rule %q: lookup_table body is missing entries", name)
		}
	case RuleTypeRangeLookup:
		if rule.RangeLookup == nil || len(rule.RangeLookup.Ranges) == 0 {
			return fmt.Errorf("rule %q: range_lookup body is missing ranges", name)
		}
		if err := validateRanges(rule.RangeLookup.Ranges); err != nil {
			return fmt.Errorf("rule %q: %w", name, err)
		}
	case RuleTypeMapping:
		if rule.Mapping == nil || len(rule.Mapping.Entries) == 0 {
			return fmt.Errorf("rule %q: mapping body is missing entries", name)
		}
	case RuleTypeThreshold:
		if rule.Threshold == nil || len(rule.Threshold.Thresholds) == 0 {
			return fmt.Errorf("rule %q: threshold body is missing thresholds", name)
		}
	}
	return nil
}

// validateRanges requires ranges sorted ascending by Low with no gap and
// no overlap: entry[i].High must equal entry[i+1].Low (spec §4.1
// "numeric lookup tables are sorted and non-overlapping").
func validateRanges(ranges []RangeEntry) error {
	for i, r := range ranges {
		if r.Low >= r.High {
			return fmt.Errorf("range %d: low (%v) must be less than high (%v)", i, r.Low, r.High)
		}
		if i > 0 {
			prev := ranges[i-1]
			if r.Low < prev.High {
				return fmt.Errorf("range %d overlaps preceding range ending at %v", i, prev.High)
			}
			if r.Low > prev.High {
				return fmt.Errorf("range %d leaves a gap after preceding range ending at %v", i, prev.High)
			}
		}
	}
	return nil
}

func validateCondition(c Condition, declared map[string]struct{}, rules map[string]Rule) error {
	switch c.Op {
	case OpAnd, OpOr:
		for _, operand := range c.Operands {
			if err := validateCondition(operand, declared, rules); err != nil {
				return err
			}
		}
		return nil
	case OpNot:
		if len(c.Operands) != 1 {
			return fmt.Errorf("'not' condition requires exactly one operand")
		}
		return validateCondition(c.Operands[0], declared, rules)
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpBetween, OpIn:
		if c.Field == "" {
			return fmt.Errorf("condition %q requires a field", c.Op)
		}
		if _, isDeclared := declared[c.Field]; isDeclared {
			return nil
		}
		if _, isRule := rules[c.Field]; isRule {
			return nil
		}
		return fmt.Errorf("condition references undeclared field %q", c.Field)
	default:
		return fmt.Errorf("unrecognized condition operator %q", c.Op)
	}
}
