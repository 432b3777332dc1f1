// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	apperrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
)

type mockConnectionStore struct {
	created       *models.PlatformConnection
	createErr     error
	lastToken     string
	lastActive    *bool
	deletedID     uuid.UUID
	listActiveArg bool
}

func (m *mockConnectionStore) Create(_ context.Context, platform models.PlatformKind, shopDomain, encryptedToken string) (*models.PlatformConnection, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.lastToken = encryptedToken
	m.created = &models.PlatformConnection{
		ID:         uuid.New(),
		Platform:   platform,
		ShopDomain: shopDomain,
		IsActive:   true,
	}
	return m.created, nil
}

func (m *mockConnectionStore) GetByID(_ context.Context, id uuid.UUID) (*models.PlatformConnection, error) {
	return nil, apperrors.NotFound("connection")
}

func (m *mockConnectionStore) List(_ context.Context, activeOnly bool) ([]*models.PlatformConnection, error) {
	m.listActiveArg = activeOnly
	return []*models.PlatformConnection{{ID: uuid.New()}}, nil
}

func (m *mockConnectionStore) UpdateToken(_ context.Context, id uuid.UUID, encryptedToken string) error {
	m.lastToken = encryptedToken
	return nil
}

func (m *mockConnectionStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.lastActive = &active
	return nil
}

func (m *mockConnectionStore) Delete(_ context.Context, id uuid.UUID) error {
	m.deletedID = id
	return nil
}

// prefixEncryptor makes it easy to assert the handler stored ciphertext
// rather than the plaintext token.
type prefixEncryptor struct{}

func (prefixEncryptor) EncryptString(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func jsonBody(t *testing.T, body any) io.Reader {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(buf)
}

func newConnectionRouter(store ConnectionStore) chi.Router {
	r := chi.NewRouter()
	r.Mount("/connections", NewConnectionHandler(store, prefixEncryptor{}, nil).Routes())
	return r
}

func TestCreateConnectionEncryptsToken(t *testing.T) {
	store := &mockConnectionStore{}
	router := newConnectionRouter(store)

	rec := postJSON(t, router, "/connections/", map[string]any{
		"platform":     "shopify",
		"shop_domain":  "demo-store.myshopify.com",
		"access_token": "shpat_0123456789abcdef",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body)
	}
	if store.lastToken != "enc:shpat_0123456789abcdef" {
		t.Errorf("stored token = %q, plaintext must not reach the store", store.lastToken)
	}
	if store.created.Platform != models.PlatformShopify {
		t.Errorf("platform = %s, want shopify", store.created.Platform)
	}
}

func TestCreateConnectionRejectsBadDomain(t *testing.T) {
	store := &mockConnectionStore{}
	router := newConnectionRouter(store)

	rec := postJSON(t, router, "/connections/", map[string]any{
		"platform":     "shopify",
		"shop_domain":  "https://demo.myshopify.com",
		"access_token": "shpat_0123456789abcdef",
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body)
	}
	if store.created != nil {
		t.Error("store must not be called for invalid input")
	}
}

func TestCreateConnectionRejectsUnknownPlatform(t *testing.T) {
	router := newConnectionRouter(&mockConnectionStore{})

	rec := postJSON(t, router, "/connections/", map[string]any{
		"platform":     "etsy",
		"shop_domain":  "demo.myshopify.com",
		"access_token": "shpat_0123456789abcdef",
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetConnectionNotFound(t *testing.T) {
	router := newConnectionRouter(&mockConnectionStore{})

	req := httptest.NewRequest(http.MethodGet, "/connections/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListConnectionsActiveFilter(t *testing.T) {
	store := &mockConnectionStore{}
	router := newConnectionRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/connections/?active=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !store.listActiveArg {
		t.Error("active filter not passed to store")
	}
}

func TestUpdateTokenEncrypts(t *testing.T) {
	store := &mockConnectionStore{}
	router := newConnectionRouter(store)

	req := httptest.NewRequest(http.MethodPut,
		"/connections/"+uuid.New().String()+"/token",
		jsonBody(t, map[string]any{"access_token": "shpat_newtoken99"}))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body %s", rec.Code, rec.Body)
	}
	if store.lastToken != "enc:shpat_newtoken99" {
		t.Errorf("stored token = %q", store.lastToken)
	}
}

func TestDeactivateConnection(t *testing.T) {
	store := &mockConnectionStore{}
	router := newConnectionRouter(store)

	rec := postJSON(t, router, "/connections/"+uuid.New().String()+"/deactivate", nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if store.lastActive == nil || *store.lastActive {
		t.Errorf("active = %v, want false", store.lastActive)
	}
}

func TestDeleteConnection(t *testing.T) {
	store := &mockConnectionStore{}
	router := newConnectionRouter(store)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/connections/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if store.deletedID != id {
		t.Errorf("deleted id = %s, want %s", store.deletedID, id)
	}
}
