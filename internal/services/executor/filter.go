// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package executor

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
)

// FilterOperator compares one resource field against a filter value.
type FilterOperator string

// Supported comparison operators.
const (
	OpEquals             FilterOperator = "equals"
	OpNotEquals          FilterOperator = "not_equals"
	OpContains           FilterOperator = "contains"
	OpNotContains        FilterOperator = "not_contains"
	OpGreaterThan        FilterOperator = "greater_than"
	OpLessThan           FilterOperator = "less_than"
	OpGreaterThanOrEqual FilterOperator = "greater_than_or_equal"
	OpLessThanOrEqual    FilterOperator = "less_than_or_equal"
)

// FilterLogic joins a filter with the accumulated result of the filters
// before it.
type FilterLogic string

// Join connectives.
const (
	LogicAnd FilterLogic = "AND"
	LogicOr  FilterLogic = "OR"
)

// Filter is one predicate over a resource. Field is a dot path into the
// resource ("vendor", "seo.title").
type Filter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
	Logic    FilterLogic    `json:"logic,omitempty"` // joins with the preceding result; defaults to AND
}

// EvaluateFilters folds the filter list left to right: the first filter
// seeds the result, each later filter combines with the accumulated result
// via its own Logic. There is no grouping and no precedence between AND and
// OR, so "A AND B OR C" evaluates as "(A AND B) OR C". An empty list
// matches everything.
func EvaluateFilters(r platform.Resource, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	result := matches(r, filters[0])
	for _, f := range filters[1:] {
		switch f.Logic {
		case LogicOr:
			result = result || matches(r, f)
		default:
			result = result && matches(r, f)
		}
	}
	return result
}

// FilterResources returns the candidates that satisfy the filter list,
// preserving input order.
func FilterResources(candidates []platform.Resource, filters []Filter) []platform.Resource {
	matched := make([]platform.Resource, 0, len(candidates))
	for _, r := range candidates {
		if EvaluateFilters(r, filters) {
			matched = append(matched, r)
		}
	}
	return matched
}

func matches(r platform.Resource, f Filter) bool {
	value := lookupField(r, f.Field)

	switch f.Operator {
	case OpEquals:
		return looseEqual(value, f.Value)
	case OpNotEquals:
		return !looseEqual(value, f.Value)
	case OpContains:
		return contains(value, f.Value)
	case OpNotContains:
		return !contains(value, f.Value)
	case OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual:
		left, lok := coerceFloat(value)
		right, rok := coerceFloat(f.Value)
		if !lok || !rok {
			return false
		}
		switch f.Operator {
		case OpGreaterThan:
			return left > right
		case OpLessThan:
			return left < right
		case OpGreaterThanOrEqual:
			return left >= right
		default:
			return left <= right
		}
	default:
		return false
	}
}

// lookupField resolves a dot path through nested maps. A missing segment or
// a non-map intermediate yields nil.
func lookupField(r platform.Resource, path string) any {
	var current any = map[string]any(r)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// looseEqual compares numerically when both sides coerce to numbers, and as
// strings otherwise, so `"10" equals 10` holds either way round.
func looseEqual(a, b any) bool {
	if af, aok := coerceFloat(a); aok {
		if bf, bok := coerceFloat(b); bok {
			return af == bf
		}
	}
	return stringify(a) == stringify(b)
}

// contains matches substrings for string fields and membership for list
// fields.
func contains(value, needle any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), strings.ToLower(stringify(needle)))
	case []any:
		for _, item := range v {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
