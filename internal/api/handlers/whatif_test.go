// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/preview"
)

// stubAPI serves canned resources and fails on any write.
type stubAPI struct {
	products  map[string]platform.Resource
	inventory map[string]platform.Resource
	writes    int
}

func (s *stubAPI) GetProduct(_ context.Context, id string) (platform.Resource, error) {
	if r, ok := s.products[id]; ok {
		return r, nil
	}
	return nil, &platform.APIError{Status: http.StatusNotFound, Body: "not found"}
}

func (s *stubAPI) GetProducts(_ context.Context, ids []string) ([]platform.Resource, error) {
	var out []platform.Resource
	for _, id := range ids {
		if r, ok := s.products[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubAPI) SearchProducts(context.Context, platform.SearchOptions) ([]platform.Resource, error) {
	return nil, nil
}

func (s *stubAPI) GetListings(context.Context, []string) ([]platform.Resource, error) {
	return nil, nil
}

func (s *stubAPI) GetInventoryItems(_ context.Context, ids []string) ([]platform.Resource, error) {
	var out []platform.Resource
	for _, id := range ids {
		if r, ok := s.inventory[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubAPI) UpdateProduct(context.Context, string, map[string]any) (platform.Resource, error) {
	s.writes++
	return nil, &platform.APIError{Status: http.StatusForbidden, Body: "write in what-if"}
}

func (s *stubAPI) UpdateListing(context.Context, string, map[string]any) (platform.Resource, error) {
	s.writes++
	return nil, &platform.APIError{Status: http.StatusForbidden, Body: "write in what-if"}
}

func (s *stubAPI) SetInventoryLevel(context.Context, string, int) (platform.Resource, error) {
	s.writes++
	return nil, &platform.APIError{Status: http.StatusForbidden, Body: "write in what-if"}
}

func (s *stubAPI) CreateDiscount(context.Context, platform.DiscountInput) (platform.Resource, error) {
	s.writes++
	return nil, &platform.APIError{Status: http.StatusForbidden, Body: "write in what-if"}
}

func (s *stubAPI) DeleteDiscount(context.Context, string) error {
	s.writes++
	return &platform.APIError{Status: http.StatusForbidden, Body: "write in what-if"}
}

// activeConnStore returns one fixed active connection.
type activeConnStore struct {
	mockConnectionStore
	conn *models.PlatformConnection
}

func (s *activeConnStore) GetByID(_ context.Context, id uuid.UUID) (*models.PlatformConnection, error) {
	return s.conn, nil
}

type plainDecryptor struct{}

func (plainDecryptor) DecryptString(ciphertext string) (string, error) {
	return ciphertext, nil
}

func newWhatIfRouter(api *stubAPI, conn *models.PlatformConnection) chi.Router {
	factory := platform.ClientFactory(func(*models.PlatformConnection, string) platform.API {
		return api
	})
	r := chi.NewRouter()
	store := &activeConnStore{conn: conn}
	r.Mount("/whatif", NewWhatIfHandler(store, plainDecryptor{}, factory, nil).Routes())
	return r
}

func activeConnection() *models.PlatformConnection {
	return &models.PlatformConnection{
		ID:                   uuid.New(),
		Platform:             models.PlatformShopify,
		ShopDomain:           "demo.myshopify.com",
		AccessTokenEncrypted: "token",
		IsActive:             true,
	}
}

func TestWhatIfPrice(t *testing.T) {
	api := &stubAPI{products: map[string]platform.Resource{
		"p1": {"id": "p1", "price": 10.0},
		"p2": {"id": "p2", "price": 20.0},
	}}
	conn := activeConnection()
	router := newWhatIfRouter(api, conn)

	rec := postJSON(t, router, "/whatif/price", map[string]any{
		"connection_id": conn.ID.String(),
		"product_ids":   []string{"p1", "p2"},
		"update_type":   "increase_percent",
		"value":         10,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}
	if api.writes != 0 {
		t.Errorf("writes = %d, what-if must be read-only", api.writes)
	}

	var result preview.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(result.Changes) == 0 {
		t.Error("expected at least one projected change")
	}
	if len(result.ProposedState) != 2 {
		t.Errorf("proposed state has %d resources, want 2", len(result.ProposedState))
	}
}

func TestWhatIfPriceRejectsUnknownUpdateType(t *testing.T) {
	conn := activeConnection()
	router := newWhatIfRouter(&stubAPI{}, conn)

	rec := postJSON(t, router, "/whatif/price", map[string]any{
		"connection_id": conn.ID.String(),
		"product_ids":   []string{"p1"},
		"update_type":   "double_it",
		"value":         2,
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body)
	}
}

func TestWhatIfInventory(t *testing.T) {
	api := &stubAPI{inventory: map[string]platform.Resource{
		"i1": {"id": "i1", "quantity": 5.0, "reserved": 1.0},
	}}
	conn := activeConnection()
	router := newWhatIfRouter(api, conn)

	rec := postJSON(t, router, "/whatif/inventory", map[string]any{
		"connection_id": conn.ID.String(),
		"item_ids":      []string{"i1"},
		"operation":     "add",
		"quantity":      3,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}
	if api.writes != 0 {
		t.Errorf("writes = %d, what-if must be read-only", api.writes)
	}
}

func TestWhatIfCommand(t *testing.T) {
	api := &stubAPI{products: map[string]platform.Resource{
		"p1": {"id": "p1", "price": 40.0},
	}}
	conn := activeConnection()
	router := newWhatIfRouter(api, conn)

	rec := postJSON(t, router, "/whatif/command", map[string]any{
		"connection_id": conn.ID.String(),
		"text":          "raise prices by 25 percent",
		"product_ids":   []string{"p1"},
		"intent": map[string]any{
			"price_update": map[string]any{
				"update_type": "increase_percent",
				"value":       25,
			},
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}
	if api.writes != 0 {
		t.Errorf("writes = %d, what-if must be read-only", api.writes)
	}

	var result preview.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !result.Revertible {
		t.Error("command projection should be marked revertible")
	}
	if !strings.Contains(result.Summary, "raise prices by 25 percent") {
		t.Errorf("summary should carry the command text, got %q", result.Summary)
	}
	if len(result.ProposedState) != 1 {
		t.Fatalf("proposed state has %d resources, want 1", len(result.ProposedState))
	}
	if price, ok := result.ProposedState[0].Float("price"); !ok || price != 50.0 {
		t.Errorf("proposed price = %v, want 50", result.ProposedState[0]["price"])
	}
}

func TestWhatIfCommandRejectsEmptyIntent(t *testing.T) {
	conn := activeConnection()
	router := newWhatIfRouter(&stubAPI{}, conn)

	rec := postJSON(t, router, "/whatif/command", map[string]any{
		"connection_id": conn.ID.String(),
		"product_ids":   []string{"p1"},
		"intent":        map[string]any{},
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body)
	}
}

func TestWhatIfRejectsInactiveConnection(t *testing.T) {
	conn := activeConnection()
	conn.IsActive = false
	router := newWhatIfRouter(&stubAPI{}, conn)

	rec := postJSON(t, router, "/whatif/price", map[string]any{
		"connection_id": conn.ID.String(),
		"product_ids":   []string{"p1"},
		"update_type":   "set_fixed",
		"value":         5,
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422, body %s", rec.Code, rec.Body)
	}
}
