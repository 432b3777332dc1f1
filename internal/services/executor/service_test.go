// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	apperrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
)

// ============================================================================
// Mock platform
// ============================================================================

type mockPlatform struct {
	mu        sync.Mutex
	products  map[string]platform.Resource
	listings  map[string]platform.Resource
	inventory map[string]platform.Resource
	failIDs   map[string]bool
	writes    int
	nextID    int
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		products:  make(map[string]platform.Resource),
		listings:  make(map[string]platform.Resource),
		inventory: make(map[string]platform.Resource),
		failIDs:   make(map[string]bool),
	}
}

func (m *mockPlatform) GetProduct(_ context.Context, id string) (platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, &platform.APIError{Status: 404, Body: "not found"}
	}
	return p.Clone(), nil
}

func (m *mockPlatform) GetProducts(_ context.Context, ids []string) ([]platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []platform.Resource
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *mockPlatform) SearchProducts(_ context.Context, _ platform.SearchOptions) ([]platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []platform.Resource
	for i := 1; i <= m.nextID; i++ {
		if p, ok := m.products[fmt.Sprintf("p%d", i)]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *mockPlatform) GetListings(_ context.Context, ids []string) ([]platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []platform.Resource
	for _, id := range ids {
		if l, ok := m.listings[id]; ok {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (m *mockPlatform) GetInventoryItems(_ context.Context, ids []string) ([]platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []platform.Resource
	for _, id := range ids {
		if item, ok := m.inventory[id]; ok {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

func (m *mockPlatform) UpdateProduct(_ context.Context, id string, fields map[string]any) (platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.failIDs[id] {
		return nil, &platform.APIError{Status: 500, Body: "boom"}
	}
	p, ok := m.products[id]
	if !ok {
		return nil, &platform.APIError{Status: 404, Body: "not found"}
	}
	for k, v := range fields {
		p[k] = v
	}
	return p.Clone(), nil
}

func (m *mockPlatform) UpdateListing(_ context.Context, id string, fields map[string]any) (platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	l, ok := m.listings[id]
	if !ok {
		return nil, &platform.APIError{Status: 404, Body: "not found"}
	}
	for k, v := range fields {
		l[k] = v
	}
	return l.Clone(), nil
}

func (m *mockPlatform) SetInventoryLevel(_ context.Context, itemID string, quantity int) (platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	item, ok := m.inventory[itemID]
	if !ok {
		return nil, &platform.APIError{Status: 404, Body: "not found"}
	}
	item["quantity"] = float64(quantity)
	return item.Clone(), nil
}

func (m *mockPlatform) CreateDiscount(_ context.Context, input platform.DiscountInput) (platform.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	return platform.Resource{
		"id":         "disc-1",
		"title":      input.Title,
		"value_type": input.ValueType,
		"value":      input.Value,
	}, nil
}

func (m *mockPlatform) DeleteDiscount(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	return nil
}

func (m *mockPlatform) addProduct(r platform.Resource) {
	m.nextID++
	m.products[r.ID()] = r
}

func newTestSession(api platform.API) *platform.Session {
	return platform.NewSession(&models.PlatformConnection{
		ID:         uuid.New(),
		Platform:   models.PlatformShopify,
		ShopDomain: "test.example.com",
		IsActive:   true,
	}, api)
}

// ============================================================================
// Action parsing
// ============================================================================

func TestParseActionUpdateProducts(t *testing.T) {
	env := Envelope{
		Type:       KindUpdateProducts,
		Parameters: json.RawMessage(`{"ids":["p1","p2"],"fields":{"vendor":"Acme"}}`),
	}
	action, err := ParseAction(env)
	if err != nil {
		t.Fatalf("ParseAction() error = %v", err)
	}
	upd, ok := action.(*UpdateProductsAction)
	if !ok {
		t.Fatalf("ParseAction() type = %T, want *UpdateProductsAction", action)
	}
	if len(upd.IDs) != 2 || upd.Fields["vendor"] != "Acme" {
		t.Errorf("unexpected payload: %+v", upd)
	}
}

func TestParseActionUnknownType(t *testing.T) {
	_, err := ParseAction(Envelope{Type: "delete_everything"})
	if !apperrors.IsValidationError(err) {
		t.Errorf("ParseAction() error = %v, want ValidationError", err)
	}
}

func TestParseActionInventoryMissingQuantity(t *testing.T) {
	env := Envelope{
		Type:       KindUpdateInventory,
		Parameters: json.RawMessage(`{"item_ids":["i1"],"operation":"set"}`),
	}
	if _, err := ParseAction(env); !apperrors.IsValidationError(err) {
		t.Errorf("ParseAction() error = %v, want ValidationError", err)
	}
}

func TestParseActionConditionalNested(t *testing.T) {
	env := Envelope{
		Type: KindConditionalUpdate,
		Parameters: json.RawMessage(`{
			"condition":[{"field":"vendor","operator":"equals","value":"Acme"}],
			"then_action":{"type":"update_products","parameters":{"ids":["p1"],"fields":{"status":"active"}}},
			"else_action":{"type":"update_products","parameters":{"ids":["p2"],"fields":{"status":"draft"}}}
		}`),
	}
	action, err := ParseAction(env)
	if err != nil {
		t.Fatalf("ParseAction() error = %v", err)
	}
	cond, ok := action.(*ConditionalUpdateAction)
	if !ok {
		t.Fatalf("ParseAction() type = %T, want *ConditionalUpdateAction", action)
	}
	if cond.Then.Kind() != KindUpdateProducts {
		t.Errorf("Then kind = %s, want %s", cond.Then.Kind(), KindUpdateProducts)
	}
	if cond.Else == nil || cond.Else.Kind() != KindUpdateProducts {
		t.Errorf("Else not parsed: %+v", cond.Else)
	}
}

func TestParseActionConditionalInvalidThen(t *testing.T) {
	env := Envelope{
		Type: KindConditionalUpdate,
		Parameters: json.RawMessage(`{
			"condition":[{"field":"vendor","operator":"equals","value":"Acme"}],
			"then_action":{"type":"update_products","parameters":{"ids":["p1"],"fields":{}}}
		}`),
	}
	if _, err := ParseAction(env); err == nil {
		t.Error("ParseAction() accepted then_action with empty fields")
	}
}

// ============================================================================
// Filter evaluation
// ============================================================================

func TestEvaluateFiltersFold(t *testing.T) {
	r := platform.Resource{"vendor": "Acme", "price": 30.0, "status": "draft"}

	// A AND B OR C folds as (A AND B) OR C.
	filters := []Filter{
		{Field: "vendor", Operator: OpEquals, Value: "Acme"},
		{Field: "price", Operator: OpGreaterThan, Value: 100, Logic: LogicAnd},
		{Field: "status", Operator: OpEquals, Value: "draft", Logic: LogicOr},
	}
	if !EvaluateFilters(r, filters) {
		t.Error("(A AND B) OR C should match: C is true")
	}

	// Reordered as C OR B AND A it folds as (C OR B) AND A.
	reordered := []Filter{
		{Field: "status", Operator: OpEquals, Value: "draft"},
		{Field: "price", Operator: OpGreaterThan, Value: 100, Logic: LogicOr},
		{Field: "vendor", Operator: OpEquals, Value: "Other", Logic: LogicAnd},
	}
	if EvaluateFilters(r, reordered) {
		t.Error("(C OR B) AND A should not match: A is false")
	}
}

func TestEvaluateFiltersEmptyMatchesAll(t *testing.T) {
	if !EvaluateFilters(platform.Resource{"x": 1}, nil) {
		t.Error("empty filter list should match everything")
	}
}

func TestFilterOperators(t *testing.T) {
	r := platform.Resource{
		"title": "Blue Widget Deluxe",
		"price": "19.99",
		"tags":  []any{"sale", "featured"},
		"seo":   map[string]any{"title": "widget"},
	}

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"contains substring case-insensitive", Filter{Field: "title", Operator: OpContains, Value: "widget"}, true},
		{"not_contains", Filter{Field: "title", Operator: OpNotContains, Value: "red"}, true},
		{"contains list membership", Filter{Field: "tags", Operator: OpContains, Value: "sale"}, true},
		{"numeric compare on string field", Filter{Field: "price", Operator: OpLessThan, Value: 20}, true},
		{"greater_than_or_equal boundary", Filter{Field: "price", Operator: OpGreaterThanOrEqual, Value: 19.99}, true},
		{"equals numeric coercion", Filter{Field: "price", Operator: OpEquals, Value: 19.99}, true},
		{"dot path lookup", Filter{Field: "seo.title", Operator: OpEquals, Value: "widget"}, true},
		{"missing field never matches compare", Filter{Field: "weight", Operator: OpGreaterThan, Value: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matches(r, tt.f); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Execution
// ============================================================================

func TestPreviewModeNeverWrites(t *testing.T) {
	api := newMockPlatform()
	api.addProduct(platform.Resource{"id": "p1", "price": 10.0})
	api.addProduct(platform.Resource{"id": "p2", "price": 20.0})
	svc := NewService(Config{}, nil)

	action := &UpdateProductsAction{IDs: []string{"p1", "p2"}, Fields: map[string]any{"status": "active"}}
	results, err := svc.ExecuteAction(context.Background(), newTestSession(api), action, ModePreview)
	if err != nil {
		t.Fatalf("ExecuteAction() error = %v", err)
	}
	if api.writes != 0 {
		t.Errorf("preview issued %d writes, want 0", api.writes)
	}
	res := results[0]
	if res.ChangesMade {
		t.Error("preview must report changes_made=false")
	}
	if res.Snapshot != nil {
		t.Error("preview must not capture a snapshot")
	}
	if res.Results[0].After["status"] != "active" {
		t.Errorf("projected after state missing field: %+v", res.Results[0].After)
	}
}

func TestExecutePartialFailure(t *testing.T) {
	api := newMockPlatform()
	api.addProduct(platform.Resource{"id": "p1", "price": 10.0})
	api.addProduct(platform.Resource{"id": "p2", "price": 20.0})
	api.addProduct(platform.Resource{"id": "p3", "price": 30.0})
	api.failIDs["p2"] = true
	svc := NewService(Config{MaxConcurrency: 2}, nil)

	action := &UpdateProductsAction{IDs: []string{"p1", "p2", "p3"}, Fields: map[string]any{"status": "active"}}
	results, err := svc.ExecuteAction(context.Background(), newTestSession(api), action, ModeExecute)
	if err != nil {
		t.Fatalf("ExecuteAction() error = %v", err)
	}
	res := results[0]
	if !res.ChangesMade {
		t.Error("changes_made should be true with two successes")
	}
	if len(res.Results) != 3 {
		t.Fatalf("got %d resource results, want 3", len(res.Results))
	}
	var failures int
	for _, r := range res.Results {
		if !r.Success {
			failures++
			if r.ResourceID != "p2" {
				t.Errorf("unexpected failure on %s", r.ResourceID)
			}
			if r.Error == "" {
				t.Error("failed result missing error message")
			}
		}
	}
	if failures != 1 {
		t.Errorf("got %d failures, want 1", failures)
	}

	snap := res.Snapshot
	if snap == nil {
		t.Fatal("expected a snapshot over the succeeded items")
	}
	if len(snap.AffectedResources) != 2 {
		t.Errorf("snapshot covers %d resources, want 2", len(snap.AffectedResources))
	}
	for _, ref := range snap.AffectedResources {
		if ref.ID == "p2" {
			t.Error("snapshot must not include the failed resource")
		}
		if ref.Type != models.ResourceTypeProduct {
			t.Errorf("resource type = %s, want product", ref.Type)
		}
	}

	var befores []platform.Resource
	if err := json.Unmarshal(*snap.BeforeState, &befores); err != nil {
		t.Fatalf("before_state not a resource array: %v", err)
	}
	if len(befores) != 2 {
		t.Errorf("before_state has %d entries, want 2", len(befores))
	}
	if _, ok := befores[0]["status"]; ok {
		t.Error("before_state must hold the pre-update resource")
	}
}

func TestExecuteResultsPreserveTargetOrder(t *testing.T) {
	api := newMockPlatform()
	for i := 1; i <= 9; i++ {
		api.addProduct(platform.Resource{"id": fmt.Sprintf("p%d", i), "price": float64(i)})
	}
	svc := NewService(Config{MaxConcurrency: 3}, nil)

	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}
	action := &UpdateProductsAction{IDs: ids, Fields: map[string]any{"status": "active"}}
	results, err := svc.ExecuteAction(context.Background(), newTestSession(api), action, ModeExecute)
	if err != nil {
		t.Fatalf("ExecuteAction() error = %v", err)
	}
	for i, r := range results[0].Results {
		if r.ResourceID != ids[i] {
			t.Fatalf("result %d is %s, want %s", i, r.ResourceID, ids[i])
		}
	}
}

func TestExecuteInventorySubtractClamps(t *testing.T) {
	api := newMockPlatform()
	api.inventory["i1"] = platform.Resource{"id": "i1", "quantity": 3.0}
	svc := NewService(Config{}, nil)

	qty := 10
	action := &UpdateInventoryAction{ItemIDs: []string{"i1"}, Operation: "subtract", Quantity: &qty}
	results, err := svc.ExecuteAction(context.Background(), newTestSession(api), action, ModeExecute)
	if err != nil {
		t.Fatalf("ExecuteAction() error = %v", err)
	}
	after := results[0].Results[0].After
	if got, _ := after.Float("quantity"); got != 0 {
		t.Errorf("quantity after clamped subtract = %v, want 0", got)
	}
}

func TestExecuteApplyDiscountSnapshot(t *testing.T) {
	api := newMockPlatform()
	svc := NewService(Config{}, nil)

	action := &ApplyDiscountAction{Title: "Summer Sale", ValueType: "percentage", Value: 15, ProductIDs: []string{"p1"}}
	results, err := svc.ExecuteAction(context.Background(), newTestSession(api), action, ModeExecute)
	if err != nil {
		t.Fatalf("ExecuteAction() error = %v", err)
	}
	snap := results[0].Snapshot
	if snap == nil {
		t.Fatal("expected snapshot for created discount")
	}
	if snap.BeforeState != nil {
		t.Error("discount creation has no before state")
	}
	if len(snap.AffectedResources) != 1 || snap.AffectedResources[0].Type != models.ResourceTypeDiscount {
		t.Errorf("unexpected affected resources: %+v", snap.AffectedResources)
	}
	if snap.AffectedResources[0].ID != "disc-1" {
		t.Errorf("affected id = %s, want disc-1", snap.AffectedResources[0].ID)
	}
}

func TestExecuteConditionalPartitions(t *testing.T) {
	api := newMockPlatform()
	api.addProduct(platform.Resource{"id": "p1", "vendor": "Acme", "price": 10.0})
	api.addProduct(platform.Resource{"id": "p2", "vendor": "Other", "price": 20.0})
	api.addProduct(platform.Resource{"id": "p3", "vendor": "Acme", "price": 30.0})
	svc := NewService(Config{}, nil)

	action := &ConditionalUpdateAction{
		Condition: []Filter{{Field: "vendor", Operator: OpEquals, Value: "Acme"}},
		Then:      &UpdateProductsAction{Fields: map[string]any{"status": "active"}},
		Else:      &UpdateProductsAction{Fields: map[string]any{"status": "draft"}},
	}
	results, err := svc.ExecuteAction(context.Background(), newTestSession(api), action, ModeExecute)
	if err != nil {
		t.Fatalf("ExecuteAction() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d branch results, want 2", len(results))
	}

	then, els := results[0], results[1]
	if len(then.Results) != 2 {
		t.Errorf("then branch touched %d products, want 2", len(then.Results))
	}
	if len(els.Results) != 1 {
		t.Errorf("else branch touched %d products, want 1", len(els.Results))
	}
	if got := api.products["p1"]["status"]; got != "active" {
		t.Errorf("p1 status = %v, want active", got)
	}
	if got := api.products["p2"]["status"]; got != "draft" {
		t.Errorf("p2 status = %v, want draft", got)
	}
}

func TestExecuteAllCollectsSnapshots(t *testing.T) {
	api := newMockPlatform()
	api.addProduct(platform.Resource{"id": "p1", "price": 10.0})
	api.inventory["i1"] = platform.Resource{"id": "i1", "quantity": 5.0}
	svc := NewService(Config{}, nil)

	qty := 8
	actions := []Action{
		&UpdateProductsAction{IDs: []string{"p1"}, Fields: map[string]any{"status": "active"}},
		&UpdateInventoryAction{ItemIDs: []string{"i1"}, Operation: "set", Quantity: &qty},
	}
	batch, err := svc.ExecuteAll(context.Background(), newTestSession(api), actions, ModeExecute)
	if err != nil {
		t.Fatalf("ExecuteAll() error = %v", err)
	}
	if !batch.ChangesMade {
		t.Error("batch should report changes")
	}
	if len(batch.Snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(batch.Snapshots))
	}
	if batch.Snapshots[0].ActionType != string(KindUpdateProducts) {
		t.Errorf("snapshot 0 action = %s", batch.Snapshots[0].ActionType)
	}
	if batch.Snapshots[1].ActionType != string(KindUpdateInventory) {
		t.Errorf("snapshot 1 action = %s", batch.Snapshots[1].ActionType)
	}
}

func TestExecuteRequiresTargets(t *testing.T) {
	api := newMockPlatform()
	svc := NewService(Config{}, nil)

	action := &UpdateProductsAction{Fields: map[string]any{"status": "active"}}
	_, err := svc.ExecuteAction(context.Background(), newTestSession(api), action, ModeExecute)
	if !apperrors.IsValidationError(err) {
		t.Errorf("ExecuteAction() error = %v, want ValidationError", err)
	}
	if api.writes != 0 {
		t.Errorf("rejected action issued %d writes, want 0", api.writes)
	}
}
