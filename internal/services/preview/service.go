// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package preview builds proposed-state projections for typed operations and
// runs them through the diff engine. It is read-only by contract: no method
// here calls a mutating platform endpoint or persists a snapshot, so a
// preview can be repeated any number of times with identical results.
package preview

import (
	"context"
	"fmt"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	apperrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/diff"
)

// PriceUpdateType selects the arithmetic applied to each product's price.
type PriceUpdateType string

// Price update types.
const (
	PriceIncreasePercent PriceUpdateType = "increase_percent"
	PriceDecreasePercent PriceUpdateType = "decrease_percent"
	PriceIncreaseAmount  PriceUpdateType = "increase_amount"
	PriceDecreaseAmount  PriceUpdateType = "decrease_amount"
	PriceSetFixed        PriceUpdateType = "set_fixed"
)

// InventoryOperation selects how a quantity is applied.
type InventoryOperation string

// Inventory operations. Subtract clamps at zero.
const (
	InventorySet      InventoryOperation = "set"
	InventoryAdd      InventoryOperation = "add"
	InventorySubtract InventoryOperation = "subtract"
)

// ParsedIntent is the structured interpretation of a free-text command,
// produced upstream. Exactly one of the payloads is expected to be set.
type ParsedIntent struct {
	PriceUpdate     *PriceIntent     `json:"price_update,omitempty"`
	InventoryUpdate *InventoryIntent `json:"inventory_update,omitempty"`
	FieldUpdates    map[string]any   `json:"field_updates,omitempty"`
}

// PriceIntent is the price payload of a parsed intent.
type PriceIntent struct {
	UpdateType PriceUpdateType `json:"update_type"`
	Value      float64         `json:"value"`
}

// InventoryIntent is the inventory payload of a parsed intent.
type InventoryIntent struct {
	Operation InventoryOperation `json:"operation"`
	Quantity  int                `json:"quantity"`
}

// Result is what a preview returns to the caller.
type Result struct {
	Summary       string              `json:"summary"`
	Changes       []diff.Diff         `json:"changes"`
	RiskLevel     models.RiskLevel    `json:"risk_level"`
	CurrentState  []platform.Resource `json:"current_state"`
	ProposedState []platform.Resource `json:"proposed_state"`
	Revertible    bool                `json:"revertible"`
}

// Service computes read-only previews. Target ids are assumed to be
// ownership-validated by the caller; ids the platform does not return are
// silently omitted from the diff rather than failing the batch.
type Service struct {
	platform platform.API
	logger   *logger.Logger
}

// NewService creates a preview service.
func NewService(api platform.API, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		platform: api,
		logger:   log.Named("preview"),
	}
}

// PreviewPriceUpdate projects a price change over the given products.
func (s *Service) PreviewPriceUpdate(ctx context.Context, ids []string, updateType PriceUpdateType, value float64) (*Result, error) {
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("no product ids provided")
	}

	current, err := s.platform.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching products: %w", err)
	}

	proposed := make([]platform.Resource, 0, len(current))
	for _, product := range current {
		price, ok := product.Float("price")
		if !ok {
			continue
		}
		newPrice, err := applyPriceUpdate(price, updateType, value)
		if err != nil {
			return nil, err
		}
		proposed = append(proposed, platform.Resource{
			"id":    product.ID(),
			"price": newPrice,
		})
	}

	return s.buildResult(current, proposed, fmt.Sprintf("price %s %v", updateType, value)), nil
}

// PreviewInventoryUpdate projects a quantity change over the given inventory
// items. Besides the direct quantity entry, it synthesizes the derived
// available = quantity - reserved entry, which the diff marks calculated.
func (s *Service) PreviewInventoryUpdate(ctx context.Context, itemIDs []string, op InventoryOperation, quantity int) (*Result, error) {
	if len(itemIDs) == 0 {
		return nil, apperrors.NewValidationError("no inventory item ids provided")
	}
	if quantity < 0 {
		return nil, apperrors.NewValidationError("quantity must not be negative")
	}

	current, err := s.platform.GetInventoryItems(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching inventory items: %w", err)
	}

	proposed := make([]platform.Resource, 0, len(current))
	for _, item := range current {
		have, ok := item.Float("quantity")
		if !ok {
			continue
		}
		newQuantity, err := applyInventoryOp(int(have), op, quantity)
		if err != nil {
			return nil, err
		}

		reserved, _ := item.Float("reserved")
		proposed = append(proposed, platform.Resource{
			"id":        item.ID(),
			"quantity":  float64(newQuantity),
			"available": float64(newQuantity) - reserved,
		})
	}

	result := s.buildResult(current, proposed, fmt.Sprintf("inventory %s %d", op, quantity))
	markCalculated(result.Changes, "available")
	return result, nil
}

// PreviewListingUpdate projects a partial field map over the given listings.
// The current value of each field is the listing's effective value: the
// listing field itself, falling back to the parent product field when the
// listing field is null.
func (s *Service) PreviewListingUpdate(ctx context.Context, listingIDs []string, updates map[string]any) (*Result, error) {
	if len(listingIDs) == 0 {
		return nil, apperrors.NewValidationError("no listing ids provided")
	}
	if len(updates) == 0 {
		return nil, apperrors.NewValidationError("no listing updates provided")
	}

	current, err := s.platform.GetListings(ctx, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching listings: %w", err)
	}

	effective := make([]platform.Resource, 0, len(current))
	proposed := make([]platform.Resource, 0, len(current))
	for _, listing := range current {
		parent, _ := listing["product"].(map[string]any)

		cur := platform.Resource{"id": listing.ID()}
		prop := platform.Resource{"id": listing.ID()}
		for field, newValue := range updates {
			cur[field] = effectiveValue(listing, parent, field)
			prop[field] = newValue
		}
		effective = append(effective, cur)
		proposed = append(proposed, prop)
	}

	return s.buildResult(effective, proposed, fmt.Sprintf("listing update (%d fields)", len(updates))), nil
}

// PreviewCommand is the generic path for an already-interpreted free-text
// command. It projects changes the same way the typed paths do and marks the
// result revertible.
func (s *Service) PreviewCommand(ctx context.Context, text string, intent ParsedIntent, ids []string) (*Result, error) {
	var (
		result *Result
		err    error
	)
	switch {
	case intent.PriceUpdate != nil:
		result, err = s.PreviewPriceUpdate(ctx, ids, intent.PriceUpdate.UpdateType, intent.PriceUpdate.Value)
	case intent.InventoryUpdate != nil:
		result, err = s.PreviewInventoryUpdate(ctx, ids, intent.InventoryUpdate.Operation, intent.InventoryUpdate.Quantity)
	case len(intent.FieldUpdates) > 0:
		result, err = s.previewFieldUpdates(ctx, ids, intent.FieldUpdates)
	default:
		return nil, apperrors.NewValidationError("parsed intent carries no actionable payload")
	}
	if err != nil {
		return nil, err
	}

	result.Revertible = true
	if text != "" {
		result.Summary = fmt.Sprintf("%s — %s", text, result.Summary)
	}
	s.logger.Debug("command previewed",
		"targets", len(ids),
		"changes", len(result.Changes),
		"risk", result.RiskLevel,
	)
	return result, nil
}

// previewFieldUpdates projects a flat field map over products.
func (s *Service) previewFieldUpdates(ctx context.Context, ids []string, updates map[string]any) (*Result, error) {
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("no product ids provided")
	}

	current, err := s.platform.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching products: %w", err)
	}

	proposed := make([]platform.Resource, 0, len(current))
	for _, product := range current {
		prop := platform.Resource{"id": product.ID()}
		for field, v := range updates {
			prop[field] = v
		}
		proposed = append(proposed, prop)
	}
	return s.buildResult(current, proposed, fmt.Sprintf("field update (%d fields)", len(updates))), nil
}

// buildResult runs the diff engine and assembles the caller-facing result.
func (s *Service) buildResult(current, proposed []platform.Resource, label string) *Result {
	changes := diff.Generate(current, proposed)
	return &Result{
		Summary:       fmt.Sprintf("%s: %s", label, diff.Summarize(changes)),
		Changes:       changes,
		RiskLevel:     diff.CalculateRisk(changes),
		CurrentState:  current,
		ProposedState: proposed,
	}
}

// applyPriceUpdate computes the new price for one product, rounded to 2
// decimals half away from zero.
func applyPriceUpdate(price float64, updateType PriceUpdateType, value float64) (float64, error) {
	var newPrice float64
	switch updateType {
	case PriceIncreasePercent:
		newPrice = price * (1 + value/100)
	case PriceDecreasePercent:
		newPrice = price * (1 - value/100)
	case PriceIncreaseAmount:
		newPrice = price + value
	case PriceDecreaseAmount:
		newPrice = price - value
	case PriceSetFixed:
		newPrice = value
	default:
		return 0, apperrors.NewValidationError(fmt.Sprintf("unknown price update type %q", updateType))
	}
	return diff.RoundMoney(newPrice), nil
}

// applyInventoryOp computes the new quantity. Subtract never goes below zero.
func applyInventoryOp(current int, op InventoryOperation, quantity int) (int, error) {
	switch op {
	case InventorySet:
		return quantity, nil
	case InventoryAdd:
		return current + quantity, nil
	case InventorySubtract:
		result := current - quantity
		if result < 0 {
			result = 0
		}
		return result, nil
	default:
		return 0, apperrors.NewValidationError(fmt.Sprintf("unknown inventory operation %q", op))
	}
}

// effectiveValue resolves a listing field with product fallback.
func effectiveValue(listing platform.Resource, parent map[string]any, field string) any {
	if v, ok := listing[field]; ok && v != nil {
		return v
	}
	if parent != nil {
		if v, ok := parent[field]; ok {
			return v
		}
	}
	return nil
}

// markCalculated rewrites the change type of derived fields. The diff engine
// classifies available numerically; the preview reports it as calculated
// because it is derived from quantity, not directly requested.
func markCalculated(diffs []diff.Diff, field string) {
	for i := range diffs {
		for j := range diffs[i].Changes {
			if diffs[i].Changes[j].Field == field {
				diffs[i].Changes[j].ChangeType = diff.ChangeCalculated
			}
		}
	}
}
