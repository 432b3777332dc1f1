// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package diff computes field-level diffs and coarse risk classification
// between a current-state snapshot and a proposed-state projection. The same
// comparison is used by preview and by any post-write verification, so a
// preview shows exactly the change an execute would report.
package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
)

// ChangeType classifies one field-level change.
type ChangeType string

// Change types.
const (
	ChangeIncrease   ChangeType = "increase"
	ChangeDecrease   ChangeType = "decrease"
	ChangeAdded      ChangeType = "added"
	ChangeRemoved    ChangeType = "removed"
	ChangeModified   ChangeType = "modified"
	ChangeCalculated ChangeType = "calculated"
)

// FieldChange is one changed field on one entity.
type FieldChange struct {
	Field         string     `json:"field"`
	FieldLabel    string     `json:"field_label"`
	Before        any        `json:"before"`
	After         any        `json:"after"`
	BeforeDisplay string     `json:"before_display"`
	AfterDisplay  string     `json:"after_display"`
	ChangeType    ChangeType `json:"change_type"`
}

// Diff is the set of changed fields for one entity. Entities with zero
// differing fields are omitted from diff output entirely.
type Diff struct {
	EntityID string        `json:"entity_id"`
	Changes  []FieldChange `json:"changes"`
}

// priceFields are compared numerically and count toward price-risk.
var priceFields = map[string]bool{
	"price":            true,
	"cost":             true,
	"compare_at_price": true,
}

// quantityFields are compared numerically but carry no price-risk weight.
var quantityFields = map[string]bool{
	"quantity":  true,
	"available": true,
}

// fieldLabels overrides the generated label for known fields.
var fieldLabels = map[string]string{
	"price":            "Price",
	"cost":             "Cost",
	"compare_at_price": "Compare-at Price",
	"quantity":         "Quantity",
	"available":        "Available",
	"seo_title":        "SEO Title",
	"seo_description":  "SEO Description",
	"title":            "Title",
	"description":      "Description",
	"tags":             "Tags",
	"status":           "Status",
}

// maxTextDisplay is where long text values are truncated for display.
const maxTextDisplay = 100

// IsPriceField reports whether the field carries price-risk weight.
func IsPriceField(field string) bool { return priceFields[field] }

// IsQuantityField reports whether the field is compared numerically as a
// quantity.
func IsQuantityField(field string) bool { return quantityFields[field] }

// Generate compares every field present in each proposed entry (except id)
// against the matching current entry. Matching is by id; proposed entries
// with no current counterpart are skipped, and entities with no differing
// fields are omitted.
func Generate(current, proposed []platform.Resource) []Diff {
	byID := make(map[string]platform.Resource, len(current))
	for _, entity := range current {
		byID[entity.ID()] = entity
	}

	var diffs []Diff
	for _, prop := range proposed {
		id := prop.ID()
		cur, ok := byID[id]
		if !ok {
			continue
		}

		// Sorted field order keeps diff output deterministic, so repeated
		// previews of the same input are byte-identical.
		fields := make([]string, 0, len(prop))
		for field := range prop {
			if field == "id" {
				continue
			}
			fields = append(fields, field)
		}
		sort.Strings(fields)

		var changes []FieldChange
		for _, field := range fields {
			after := prop[field]
			before := cur[field]
			if structurallyEqual(before, after) {
				continue
			}
			changes = append(changes, newFieldChange(field, before, after))
		}
		if len(changes) == 0 {
			continue
		}
		diffs = append(diffs, Diff{EntityID: id, Changes: changes})
	}
	return diffs
}

// CalculateRisk classifies a batch of diffs. HIGH when more than 10 price
// fields or more than 50 fields change in total; MEDIUM above 5 price fields
// or 20 total; else LOW. Pure function: callers use it to gate confirmation.
func CalculateRisk(diffs []Diff) models.RiskLevel {
	var totalChanges, priceChanges int
	for _, d := range diffs {
		totalChanges += len(d.Changes)
		for _, c := range d.Changes {
			if IsPriceField(c.Field) {
				priceChanges++
			}
		}
	}

	switch {
	case priceChanges > 10 || totalChanges > 50:
		return models.RiskHigh
	case priceChanges > 5 || totalChanges > 20:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Summarize renders a one-line human summary of a diff batch.
func Summarize(diffs []Diff) string {
	if len(diffs) == 0 {
		return "no changes"
	}
	total := 0
	for _, d := range diffs {
		total += len(d.Changes)
	}
	return fmt.Sprintf("%d field change(s) across %d item(s)", total, len(diffs))
}

// RoundMoney rounds to 2 decimals, half away from zero, matching how the
// platform itself rounds money amounts.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// newFieldChange classifies and formats one differing field.
func newFieldChange(field string, before, after any) FieldChange {
	fc := FieldChange{
		Field:      field,
		FieldLabel: labelFor(field),
		Before:     before,
		After:      after,
		ChangeType: classify(field, before, after),
	}
	fc.BeforeDisplay = formatValue(field, before)
	fc.AfterDisplay = formatValue(field, after)
	return fc
}

// classify determines the change type for a differing field.
// null→value is added, value→null is removed; price- and quantity-like
// fields compare numerically for increase/decrease; everything else is
// modified.
func classify(field string, before, after any) ChangeType {
	if before == nil && after != nil {
		return ChangeAdded
	}
	if before != nil && after == nil {
		return ChangeRemoved
	}

	if IsPriceField(field) || IsQuantityField(field) {
		b, okB := toFloat(before)
		a, okA := toFloat(after)
		if okB && okA {
			switch {
			case a > b:
				return ChangeIncrease
			case a < b:
				return ChangeDecrease
			}
		}
	}
	return ChangeModified
}

// structurallyEqual compares two values by serialized equality. Arrays and
// objects are order-sensitive, matching the platform's own representation.
func structurallyEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if (a == nil) != (b == nil) {
		return false
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
	return string(aj) == string(bj)
}

// labelFor returns the display label for a field.
func labelFor(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// formatValue renders a field value for display: currency fields with a
// symbol and 2 decimals, lists as joined text or an element count, long text
// truncated at 100 characters.
func formatValue(field string, v any) string {
	if v == nil {
		return "(none)"
	}

	if IsPriceField(field) {
		if f, ok := toFloat(v); ok {
			return fmt.Sprintf("$%.2f", f)
		}
	}

	switch val := v.(type) {
	case []any:
		return formatList(val)
	case []string:
		anys := make([]any, len(val))
		for i, s := range val {
			anys[i] = s
		}
		return formatList(anys)
	case string:
		return truncate(val)
	case float64:
		if val == math.Trunc(val) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return truncate(fmt.Sprintf("%v", val))
	}
}

// formatList renders a slice as joined text when it is short string content,
// otherwise as an element count.
func formatList(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return fmt.Sprintf("%d items", len(items))
		}
		parts = append(parts, s)
	}
	joined := strings.Join(parts, ", ")
	if len(joined) > maxTextDisplay {
		return fmt.Sprintf("%d items", len(items))
	}
	return joined
}

// truncate cuts long text at maxTextDisplay characters with an ellipsis.
// Counting runes keeps multi-byte text from being cut mid-character.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxTextDisplay {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxTextDisplay]) + "…"
}

// toFloat coerces a JSON value to float64 when it is numeric.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
