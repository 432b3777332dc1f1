// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package preview

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	apperrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/diff"
)

// ---------------------------------------------------------------------------
// Mock platform
// ---------------------------------------------------------------------------

// mockPlatform serves canned resources and counts every mutating call so
// tests can assert previews stay read-only.
type mockPlatform struct {
	products  map[string]platform.Resource
	listings  map[string]platform.Resource
	inventory map[string]platform.Resource

	readCalls   int
	mutateCalls int
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		products:  make(map[string]platform.Resource),
		listings:  make(map[string]platform.Resource),
		inventory: make(map[string]platform.Resource),
	}
}

func (m *mockPlatform) GetProduct(_ context.Context, id string) (platform.Resource, error) {
	m.readCalls++
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return nil, &platform.APIError{Status: 404}
}

func (m *mockPlatform) GetProducts(_ context.Context, ids []string) ([]platform.Resource, error) {
	m.readCalls++
	var out []platform.Resource
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPlatform) SearchProducts(_ context.Context, _ platform.SearchOptions) ([]platform.Resource, error) {
	m.readCalls++
	var out []platform.Resource
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockPlatform) GetListings(_ context.Context, ids []string) ([]platform.Resource, error) {
	m.readCalls++
	var out []platform.Resource
	for _, id := range ids {
		if l, ok := m.listings[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockPlatform) GetInventoryItems(_ context.Context, ids []string) ([]platform.Resource, error) {
	m.readCalls++
	var out []platform.Resource
	for _, id := range ids {
		if item, ok := m.inventory[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockPlatform) UpdateProduct(_ context.Context, _ string, _ map[string]any) (platform.Resource, error) {
	m.mutateCalls++
	return nil, nil
}

func (m *mockPlatform) UpdateListing(_ context.Context, _ string, _ map[string]any) (platform.Resource, error) {
	m.mutateCalls++
	return nil, nil
}

func (m *mockPlatform) SetInventoryLevel(_ context.Context, _ string, _ int) (platform.Resource, error) {
	m.mutateCalls++
	return nil, nil
}

func (m *mockPlatform) CreateDiscount(_ context.Context, _ platform.DiscountInput) (platform.Resource, error) {
	m.mutateCalls++
	return nil, nil
}

func (m *mockPlatform) DeleteDiscount(_ context.Context, _ string) error {
	m.mutateCalls++
	return nil
}

func testService(m *mockPlatform) *Service {
	return NewService(m, logger.Nop())
}

// ---------------------------------------------------------------------------
// PreviewPriceUpdate
// ---------------------------------------------------------------------------

func TestPreviewPriceUpdate_IncreasePercent(t *testing.T) {
	m := newMockPlatform()
	m.products["p1"] = platform.Resource{"id": "p1", "price": 50.0}
	m.products["p2"] = platform.Resource{"id": "p2", "price": 200.0}
	svc := testService(m)

	result, err := svc.PreviewPriceUpdate(context.Background(), []string{"p1", "p2"}, PriceIncreasePercent, 10)
	if err != nil {
		t.Fatalf("PreviewPriceUpdate: %v", err)
	}

	wantPrices := map[string]float64{"p1": 55.00, "p2": 220.00}
	if len(result.ProposedState) != 2 {
		t.Fatalf("proposed state has %d entries, want 2", len(result.ProposedState))
	}
	for _, prop := range result.ProposedState {
		got, _ := prop.Float("price")
		if got != wantPrices[prop.ID()] {
			t.Errorf("proposed price for %s = %v, want %v", prop.ID(), got, wantPrices[prop.ID()])
		}
	}
	for _, d := range result.Changes {
		for _, c := range d.Changes {
			if c.ChangeType != diff.ChangeIncrease {
				t.Errorf("change type for %s = %q, want increase", d.EntityID, c.ChangeType)
			}
		}
	}
	if m.mutateCalls != 0 {
		t.Errorf("preview made %d mutating calls, want 0", m.mutateCalls)
	}
}

func TestPreviewPriceUpdate_SetFixedRoundsHalfUp(t *testing.T) {
	m := newMockPlatform()
	m.products["p1"] = platform.Resource{"id": "p1", "price": 12.0}
	svc := testService(m)

	result, err := svc.PreviewPriceUpdate(context.Background(), []string{"p1"}, PriceSetFixed, 19.999)
	if err != nil {
		t.Fatalf("PreviewPriceUpdate: %v", err)
	}
	got, _ := result.ProposedState[0].Float("price")
	if got != 20.00 {
		t.Errorf("set_fixed 19.999 yields %v, want 20.00", got)
	}
}

func TestPreviewPriceUpdate_Idempotent(t *testing.T) {
	m := newMockPlatform()
	m.products["p1"] = platform.Resource{"id": "p1", "price": 50.0}
	svc := testService(m)

	r1, err := svc.PreviewPriceUpdate(context.Background(), []string{"p1"}, PriceIncreasePercent, 10)
	if err != nil {
		t.Fatalf("first preview: %v", err)
	}
	r2, err := svc.PreviewPriceUpdate(context.Background(), []string{"p1"}, PriceIncreasePercent, 10)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}

	j1, _ := json.Marshal(r1)
	j2, _ := json.Marshal(r2)
	if string(j1) != string(j2) {
		t.Error("identical inputs should produce byte-identical previews")
	}
	if m.mutateCalls != 0 {
		t.Errorf("preview made %d mutating calls, want 0", m.mutateCalls)
	}
}

func TestPreviewPriceUpdate_DecreaseAmount(t *testing.T) {
	m := newMockPlatform()
	m.products["p1"] = platform.Resource{"id": "p1", "price": 30.0}
	svc := testService(m)

	result, err := svc.PreviewPriceUpdate(context.Background(), []string{"p1"}, PriceDecreaseAmount, 5)
	if err != nil {
		t.Fatalf("PreviewPriceUpdate: %v", err)
	}
	got, _ := result.ProposedState[0].Float("price")
	if got != 25.00 {
		t.Errorf("decrease_amount 5 on 30 yields %v, want 25.00", got)
	}
}

func TestPreviewPriceUpdate_UnknownTypeFails(t *testing.T) {
	m := newMockPlatform()
	m.products["p1"] = platform.Resource{"id": "p1", "price": 30.0}
	svc := testService(m)

	_, err := svc.PreviewPriceUpdate(context.Background(), []string{"p1"}, "halve", 0)
	if !apperrors.IsValidationError(err) {
		t.Errorf("expected ValidationError for unknown update type, got: %v", err)
	}
}

func TestPreviewPriceUpdate_MissingProductOmitted(t *testing.T) {
	m := newMockPlatform()
	m.products["p1"] = platform.Resource{"id": "p1", "price": 50.0}
	svc := testService(m)

	result, err := svc.PreviewPriceUpdate(context.Background(), []string{"p1", "ghost"}, PriceIncreasePercent, 10)
	if err != nil {
		t.Fatalf("missing entity should not fail the batch: %v", err)
	}
	if len(result.Changes) != 1 {
		t.Errorf("expected 1 diff, got %d", len(result.Changes))
	}
}

func TestPreviewPriceUpdate_NoIDs(t *testing.T) {
	svc := testService(newMockPlatform())
	_, err := svc.PreviewPriceUpdate(context.Background(), nil, PriceSetFixed, 10)
	if !apperrors.IsValidationError(err) {
		t.Errorf("expected ValidationError for empty ids, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// PreviewInventoryUpdate
// ---------------------------------------------------------------------------

func TestPreviewInventoryUpdate_SubtractClampsAtZero(t *testing.T) {
	m := newMockPlatform()
	m.inventory["i1"] = platform.Resource{"id": "i1", "quantity": 5.0, "reserved": 2.0}
	svc := testService(m)

	result, err := svc.PreviewInventoryUpdate(context.Background(), []string{"i1"}, InventorySubtract, 20)
	if err != nil {
		t.Fatalf("PreviewInventoryUpdate: %v", err)
	}
	got, _ := result.ProposedState[0].Float("quantity")
	if got != 0 {
		t.Errorf("subtract 20 from 5 yields %v, want 0", got)
	}
}

func TestPreviewInventoryUpdate_DerivedAvailableIsCalculated(t *testing.T) {
	m := newMockPlatform()
	m.inventory["i1"] = platform.Resource{"id": "i1", "quantity": 10.0, "reserved": 3.0, "available": 7.0}
	svc := testService(m)

	result, err := svc.PreviewInventoryUpdate(context.Background(), []string{"i1"}, InventoryAdd, 5)
	if err != nil {
		t.Fatalf("PreviewInventoryUpdate: %v", err)
	}

	var quantityType, availableType diff.ChangeType
	var availableAfter float64
	for _, d := range result.Changes {
		for _, c := range d.Changes {
			switch c.Field {
			case "quantity":
				quantityType = c.ChangeType
			case "available":
				availableType = c.ChangeType
				availableAfter, _ = c.After.(float64)
			}
		}
	}

	if quantityType != diff.ChangeIncrease {
		t.Errorf("quantity change type = %q, want increase", quantityType)
	}
	if availableType != diff.ChangeCalculated {
		t.Errorf("available change type = %q, want calculated", availableType)
	}
	if availableAfter != 12 { // 15 on hand minus 3 reserved
		t.Errorf("available after = %v, want 12", availableAfter)
	}
}

func TestPreviewInventoryUpdate_NegativeQuantityRejected(t *testing.T) {
	svc := testService(newMockPlatform())
	_, err := svc.PreviewInventoryUpdate(context.Background(), []string{"i1"}, InventorySet, -1)
	if !apperrors.IsValidationError(err) {
		t.Errorf("expected ValidationError, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// PreviewListingUpdate
// ---------------------------------------------------------------------------

func TestPreviewListingUpdate_EffectiveValueFallsBackToProduct(t *testing.T) {
	m := newMockPlatform()
	m.listings["l1"] = platform.Resource{
		"id":        "l1",
		"seo_title": nil,
		"product":   map[string]any{"seo_title": "Parent title"},
	}
	svc := testService(m)

	result, err := svc.PreviewListingUpdate(context.Background(), []string{"l1"},
		map[string]any{"seo_title": "Override title"})
	if err != nil {
		t.Fatalf("PreviewListingUpdate: %v", err)
	}

	if len(result.Changes) != 1 || len(result.Changes[0].Changes) != 1 {
		t.Fatalf("expected one change, got %+v", result.Changes)
	}
	change := result.Changes[0].Changes[0]
	if change.Before != "Parent title" {
		t.Errorf("before = %v, want parent fallback value", change.Before)
	}
	if change.After != "Override title" {
		t.Errorf("after = %v, want override", change.After)
	}
}

func TestPreviewListingUpdate_OwnValueWins(t *testing.T) {
	m := newMockPlatform()
	m.listings["l1"] = platform.Resource{
		"id":        "l1",
		"seo_title": "Listing title",
		"product":   map[string]any{"seo_title": "Parent title"},
	}
	svc := testService(m)

	result, err := svc.PreviewListingUpdate(context.Background(), []string{"l1"},
		map[string]any{"seo_title": "New title"})
	if err != nil {
		t.Fatalf("PreviewListingUpdate: %v", err)
	}
	if result.Changes[0].Changes[0].Before != "Listing title" {
		t.Errorf("before = %v, want listing's own value", result.Changes[0].Changes[0].Before)
	}
}

// ---------------------------------------------------------------------------
// PreviewCommand
// ---------------------------------------------------------------------------

func TestPreviewCommand_PriceIntent(t *testing.T) {
	m := newMockPlatform()
	m.products["p1"] = platform.Resource{"id": "p1", "price": 100.0}
	svc := testService(m)

	intent := ParsedIntent{PriceUpdate: &PriceIntent{UpdateType: PriceIncreasePercent, Value: 10}}
	result, err := svc.PreviewCommand(context.Background(), "raise prices 10%", intent, []string{"p1"})
	if err != nil {
		t.Fatalf("PreviewCommand: %v", err)
	}

	got, _ := result.ProposedState[0].Float("price")
	if got != 110.00 {
		t.Errorf("proposed price = %v, want 110.00", got)
	}
	if !result.Revertible {
		t.Error("command preview should be marked revertible")
	}
	if m.mutateCalls != 0 {
		t.Errorf("preview made %d mutating calls, want 0", m.mutateCalls)
	}
}

func TestPreviewCommand_FieldUpdates(t *testing.T) {
	m := newMockPlatform()
	m.products["p1"] = platform.Resource{"id": "p1", "status": "active"}
	svc := testService(m)

	intent := ParsedIntent{FieldUpdates: map[string]any{"status": "draft"}}
	result, err := svc.PreviewCommand(context.Background(), "", intent, []string{"p1"})
	if err != nil {
		t.Fatalf("PreviewCommand: %v", err)
	}
	if len(result.Changes) != 1 {
		t.Fatalf("expected 1 diff, got %d", len(result.Changes))
	}
	if result.Changes[0].Changes[0].ChangeType != diff.ChangeModified {
		t.Errorf("change type = %q, want modified", result.Changes[0].Changes[0].ChangeType)
	}
}

func TestPreviewCommand_EmptyIntentRejected(t *testing.T) {
	svc := testService(newMockPlatform())
	_, err := svc.PreviewCommand(context.Background(), "do nothing", ParsedIntent{}, []string{"p1"})
	if !apperrors.IsValidationError(err) {
		t.Errorf("expected ValidationError, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Interface check
// ---------------------------------------------------------------------------

func TestMockImplementsAPI(t *testing.T) {
	var api platform.API = newMockPlatform()
	if !reflect.ValueOf(api).IsValid() {
		t.Fatal("mock should satisfy platform.API")
	}
}
