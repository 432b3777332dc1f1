// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package executor

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
)

// ActionKind identifies one typed operation inside a command's execution plan.
type ActionKind string

// Action kinds. The set is closed: ParseAction rejects anything else and the
// dispatcher's type switch covers every variant.
const (
	KindGetProducts       ActionKind = "get_products"
	KindUpdateProducts    ActionKind = "update_products"
	KindApplyDiscount     ActionKind = "apply_discount"
	KindUpdateInventory   ActionKind = "update_inventory"
	KindUpdateSEO         ActionKind = "update_seo"
	KindConditionalUpdate ActionKind = "conditional_update"
)

// Action is one typed operation. Implementations are the closed set of
// *Action structs in this file; parameters are validated at the JSON
// boundary before dispatch ever sees them.
type Action interface {
	Kind() ActionKind
	Validate() error
}

// GetProductsAction fetches products without mutating anything.
type GetProductsAction struct {
	IDs     []string `json:"ids,omitempty"`
	Filters []Filter `json:"filters,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Kind implements Action.
func (a *GetProductsAction) Kind() ActionKind { return KindGetProducts }

// Validate implements Action.
func (a *GetProductsAction) Validate() error { return nil }

// UpdateProductsAction applies a field map to each target product.
type UpdateProductsAction struct {
	IDs     []string       `json:"ids,omitempty"`
	Filters []Filter       `json:"filters,omitempty"`
	Fields  map[string]any `json:"fields"`
}

// Kind implements Action.
func (a *UpdateProductsAction) Kind() ActionKind { return KindUpdateProducts }

// Validate implements Action.
func (a *UpdateProductsAction) Validate() error {
	if len(a.Fields) == 0 {
		return apperrors.NewValidationError("update_products requires at least one field")
	}
	if _, ok := a.Fields["id"]; ok {
		return apperrors.NewValidationError("update_products must not rewrite id")
	}
	return nil
}

// ApplyDiscountAction creates a discount covering the target products.
type ApplyDiscountAction struct {
	Title      string   `json:"title"`
	ValueType  string   `json:"value_type"` // "percentage" or "fixed_amount"
	Value      float64  `json:"value"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Filters    []Filter `json:"filters,omitempty"`
}

// Kind implements Action.
func (a *ApplyDiscountAction) Kind() ActionKind { return KindApplyDiscount }

// Validate implements Action.
func (a *ApplyDiscountAction) Validate() error {
	if a.Title == "" {
		return apperrors.NewValidationError("apply_discount requires a title")
	}
	switch a.ValueType {
	case "percentage", "fixed_amount":
	default:
		return apperrors.NewValidationError(fmt.Sprintf("apply_discount value_type %q is not supported", a.ValueType))
	}
	if a.Value <= 0 {
		return apperrors.NewValidationError("apply_discount value must be positive")
	}
	return nil
}

// UpdateInventoryAction sets, adds to, or subtracts from on-hand quantities.
type UpdateInventoryAction struct {
	ItemIDs   []string `json:"item_ids"`
	Operation string   `json:"operation"` // "set", "add", "subtract"
	Quantity  *int     `json:"quantity"`  // pointer: absent and zero differ
}

// Kind implements Action.
func (a *UpdateInventoryAction) Kind() ActionKind { return KindUpdateInventory }

// Validate implements Action.
func (a *UpdateInventoryAction) Validate() error {
	if len(a.ItemIDs) == 0 {
		return apperrors.NewValidationError("update_inventory requires item_ids")
	}
	switch a.Operation {
	case "set", "add", "subtract":
	default:
		return apperrors.NewValidationError(fmt.Sprintf("update_inventory operation %q is not supported", a.Operation))
	}
	if a.Quantity == nil {
		return apperrors.NewValidationError("update_inventory requires a quantity")
	}
	if *a.Quantity < 0 {
		return apperrors.NewValidationError("update_inventory quantity must not be negative")
	}
	return nil
}

// UpdateSEOAction rewrites SEO fields on the target listings.
type UpdateSEOAction struct {
	ListingIDs     []string `json:"listing_ids"`
	SEOTitle       *string  `json:"seo_title,omitempty"`
	SEODescription *string  `json:"seo_description,omitempty"`
}

// Kind implements Action.
func (a *UpdateSEOAction) Kind() ActionKind { return KindUpdateSEO }

// Validate implements Action.
func (a *UpdateSEOAction) Validate() error {
	if len(a.ListingIDs) == 0 {
		return apperrors.NewValidationError("update_seo requires listing_ids")
	}
	if a.SEOTitle == nil && a.SEODescription == nil {
		return apperrors.NewValidationError("update_seo requires seo_title or seo_description")
	}
	return nil
}

// Fields returns the non-nil SEO fields as an update map.
func (a *UpdateSEOAction) Fields() map[string]any {
	fields := make(map[string]any, 2)
	if a.SEOTitle != nil {
		fields["seo_title"] = *a.SEOTitle
	}
	if a.SEODescription != nil {
		fields["seo_description"] = *a.SEODescription
	}
	return fields
}

// ConditionalUpdateAction partitions a candidate set with its condition and
// applies Then to the matching resources and the optional Else to the rest.
// Then and Else recurse into the normal dispatch, so any action kind can be
// wrapped, including another conditional.
type ConditionalUpdateAction struct {
	CandidateIDs []string `json:"candidate_ids,omitempty"`
	Condition    []Filter `json:"condition"`
	Then         Action   `json:"-"`
	Else         Action   `json:"-"` // optional
}

// Kind implements Action.
func (a *ConditionalUpdateAction) Kind() ActionKind { return KindConditionalUpdate }

// Validate implements Action.
func (a *ConditionalUpdateAction) Validate() error {
	if len(a.Condition) == 0 {
		return apperrors.NewValidationError("conditional_update requires a condition")
	}
	if a.Then == nil {
		return apperrors.NewValidationError("conditional_update requires a then_action")
	}
	if err := a.Then.Validate(); err != nil {
		return err
	}
	if a.Else != nil {
		return a.Else.Validate()
	}
	return nil
}

// Envelope is the wire form of one action: a type tag plus parameters.
type Envelope struct {
	Type       ActionKind      `json:"type"`
	Parameters json.RawMessage `json:"parameters"`
}

// conditionalEnvelope is the wire form of conditional_update parameters.
type conditionalEnvelope struct {
	CandidateIDs []string  `json:"candidate_ids,omitempty"`
	Condition    []Filter  `json:"condition"`
	ThenAction   *Envelope `json:"then_action"`
	ElseAction   *Envelope `json:"else_action,omitempty"`
}

// ParseAction decodes and validates one action envelope. Unknown types and
// malformed payloads fail with ValidationError before any external call.
func ParseAction(env Envelope) (Action, error) {
	var action Action
	switch env.Type {
	case KindGetProducts:
		action = &GetProductsAction{}
	case KindUpdateProducts:
		action = &UpdateProductsAction{}
	case KindApplyDiscount:
		action = &ApplyDiscountAction{}
	case KindUpdateInventory:
		action = &UpdateInventoryAction{}
	case KindUpdateSEO:
		action = &UpdateSEOAction{}
	case KindConditionalUpdate:
		return parseConditional(env.Parameters)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown action type %q", env.Type))
	}

	if len(env.Parameters) > 0 {
		if err := json.Unmarshal(env.Parameters, action); err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid %s parameters: %v", env.Type, err))
		}
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// ParseActions decodes a list of envelopes, failing on the first invalid one.
func ParseActions(envs []Envelope) ([]Action, error) {
	actions := make([]Action, 0, len(envs))
	for i, env := range envs {
		action, err := ParseAction(env)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func parseConditional(raw json.RawMessage) (Action, error) {
	var env conditionalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid conditional_update parameters: %v", err))
	}

	action := &ConditionalUpdateAction{
		CandidateIDs: env.CandidateIDs,
		Condition:    env.Condition,
	}
	if env.ThenAction == nil {
		return nil, apperrors.NewValidationError("conditional_update requires a then_action")
	}

	then, err := ParseAction(*env.ThenAction)
	if err != nil {
		return nil, fmt.Errorf("then_action: %w", err)
	}
	action.Then = then

	if env.ElseAction != nil {
		els, err := ParseAction(*env.ElseAction)
		if err != nil {
			return nil, fmt.Errorf("else_action: %w", err)
		}
		action.Else = els
	}

	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}
