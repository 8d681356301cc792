// Package rules implements the pure condition evaluator: rule sets combined
// left to right with short-circuiting, and ordered branch selection.
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/driptide/driptide/pkg/models"
)

// Supported rule operators.
const (
	OpEquals      = "eq"
	OpNotEquals   = "neq"
	OpGreater     = "gt"
	OpGreaterEq   = "gte"
	OpLess        = "lt"
	OpLessEq      = "lte"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpBefore      = "before"
	OpAfter       = "after"
	OpBetween     = "between"
	OpExists      = "exists"
	OpNotExists   = "not_exists"
)

const (
	logicalAnd = "and"
	logicalOr  = "or"
)

// EvaluateRuleSet combines rules left to right; each rule contributes through
// its own logical operator (default AND). Evaluation short-circuits: once the
// accumulator decides the combination, the rule's field is never resolved. A
// rule on an undefined field fails (except the existence operators); an
// unknown operator is a hard error, never coerced to a boolean.
func EvaluateRuleSet(ruleSet []models.Rule, ctx *models.ExecutionContext) (bool, error) {
	if len(ruleSet) == 0 {
		return true, nil
	}

	acc, err := evaluateRule(ruleSet[0], ctx)
	if err != nil {
		return false, err
	}

	for _, rule := range ruleSet[1:] {
		op := rule.LogicalOperator
		if op == "" {
			op = logicalAnd
		}

		switch op {
		case logicalAnd:
			if !acc {
				continue
			}
		case logicalOr:
			if acc {
				continue
			}
		default:
			return false, models.NewExecutionError(models.ErrCodeUnsupportedOperator, "",
				fmt.Sprintf("unknown logical operator %q", op))
		}

		acc, err = evaluateRule(rule, ctx)
		if err != nil {
			return false, err
		}
	}

	return acc, nil
}

func evaluateRule(rule models.Rule, ctx *models.ExecutionContext) (bool, error) {
	value, found := ctx.Field(rule.Field)

	switch rule.Operator {
	case OpExists:
		return found, nil
	case OpNotExists:
		return !found, nil
	}

	if !found {
		return false, nil
	}

	switch rule.Operator {
	case OpEquals:
		return equal(value, rule.Value), nil
	case OpNotEquals:
		return !equal(value, rule.Value), nil
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		return compareNumeric(rule.Operator, value, rule.Value)
	case OpContains:
		return contains(value, rule.Value), nil
	case OpNotContains:
		return !contains(value, rule.Value), nil
	case OpIn:
		return member(value, rule.Value), nil
	case OpNotIn:
		return !member(value, rule.Value), nil
	case OpBefore, OpAfter:
		return compareDates(rule.Operator, value, rule.Value)
	case OpBetween:
		return betweenDates(value, rule.Value)
	default:
		return false, models.NewExecutionError(models.ErrCodeUnsupportedOperator, "",
			fmt.Sprintf("unsupported operator %q", rule.Operator))
	}
}

// equal compares after numeric normalization so JSON-decoded float64s match
// integer literals.
func equal(a, b any) bool {
	if na, aok := toFloat(a); aok {
		if nb, bok := toFloat(b); bok {
			return na == nb
		}
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(op string, a, b any) (bool, error) {
	na, aok := toFloat(a)
	nb, bok := toFloat(b)

	if !aok || !bok {
		return false, nil
	}

	switch op {
	case OpGreater:
		return na > nb, nil
	case OpGreaterEq:
		return na >= nb, nil
	case OpLess:
		return na < nb, nil
	case OpLessEq:
		return na <= nb, nil
	}

	return false, nil
}

func contains(value, needle any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", needle))
	case []any:
		for _, item := range v {
			if equal(item, needle) {
				return true
			}
		}
	}

	return false
}

func member(value, set any) bool {
	items, ok := set.([]any)
	if !ok {
		return false
	}

	for _, item := range items {
		if equal(value, item) {
			return true
		}
	}

	return false
}

func compareDates(op string, a, b any) (bool, error) {
	ta, aok := toTime(a)
	tb, bok := toTime(b)

	if !aok || !bok {
		return false, nil
	}

	if op == OpBefore {
		return ta.Before(tb), nil
	}

	return ta.After(tb), nil
}

// betweenDates expects the rule value to be a two-element [start, end] range.
func betweenDates(value, bounds any) (bool, error) {
	pair, ok := bounds.([]any)
	if !ok || len(pair) != 2 {
		return false, nil
	}

	t, ok := toTime(value)
	if !ok {
		return false, nil
	}

	start, sok := toTime(pair[0])
	end, eok := toTime(pair[1])

	if !sok || !eok {
		return false, nil
	}

	return !t.Before(start) && !t.After(end), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}

		return parsed, true
	default:
		return time.Time{}, false
	}
}
