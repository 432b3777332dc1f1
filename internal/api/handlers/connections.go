// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
)

// ConnectionStore is the repository surface the handler needs.
type ConnectionStore interface {
	Create(ctx context.Context, platform models.PlatformKind, shopDomain, encryptedToken string) (*models.PlatformConnection, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformConnection, error)
	List(ctx context.Context, activeOnly bool) ([]*models.PlatformConnection, error)
	UpdateToken(ctx context.Context, id uuid.UUID, encryptedToken string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TokenEncryptor encrypts access tokens before they reach storage.
type TokenEncryptor interface {
	EncryptString(plaintext string) (string, error)
}

// ConnectionHandler handles platform connection API requests.
type ConnectionHandler struct {
	BaseHandler
	store     ConnectionStore
	encryptor TokenEncryptor
}

// NewConnectionHandler creates a new connection handler.
func NewConnectionHandler(store ConnectionStore, encryptor TokenEncryptor, log *logger.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		BaseHandler: NewBaseHandler(log),
		store:       store,
		encryptor:   encryptor,
	}
}

// Routes returns the connection routes.
func (h *ConnectionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}/token", h.UpdateToken)
	r.Post("/{id}/activate", h.Activate)
	r.Post("/{id}/deactivate", h.Deactivate)
	r.Delete("/{id}", h.Delete)

	return r
}

// ============================================================================
// Request types
// ============================================================================

// CreateConnectionRequest is the body of POST /connections.
type CreateConnectionRequest struct {
	Platform    string `json:"platform" validate:"required,oneof=shopify bigcommerce"`
	ShopDomain  string `json:"shop_domain" validate:"required,shop_domain"`
	AccessToken string `json:"access_token" validate:"required,min=8"`
}

// UpdateTokenRequest is the body of PUT /connections/{id}/token.
type UpdateTokenRequest struct {
	AccessToken string `json:"access_token" validate:"required,min=8"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create handles POST /api/v1/connections
// The access token is encrypted before it touches the database; the plaintext
// is never stored or returned.
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	encrypted, err := h.encryptor.EncryptString(req.AccessToken)
	if err != nil {
		h.InternalError(w, err)
		return
	}

	conn, err := h.store.Create(r.Context(), models.PlatformKind(req.Platform), req.ShopDomain, encrypted)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, conn)
}

// Get handles GET /api/v1/connections/{id}
func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := h.URLParamUUID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	conn, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, conn)
}

// List handles GET /api/v1/connections
// Supports ?active=true to list only active connections.
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := h.QueryParamBool(r, "active", false)

	connections, err := h.store.List(r.Context(), activeOnly)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, map[string]any{
		"connections": connections,
		"count":       len(connections),
	})
}

// UpdateToken handles PUT /api/v1/connections/{id}/token
func (h *ConnectionHandler) UpdateToken(w http.ResponseWriter, r *http.Request) {
	id, err := h.URLParamUUID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req UpdateTokenRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	encrypted, err := h.encryptor.EncryptString(req.AccessToken)
	if err != nil {
		h.InternalError(w, err)
		return
	}

	if err := h.store.UpdateToken(r.Context(), id, encrypted); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// Activate handles POST /api/v1/connections/{id}/activate
func (h *ConnectionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /api/v1/connections/{id}/deactivate
func (h *ConnectionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *ConnectionHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := h.URLParamUUID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.store.SetActive(r.Context(), id, active); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// Delete handles DELETE /api/v1/connections/{id}
func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := h.URLParamUUID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}
