// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/sarahliz0715/Tandril-sub000/internal/api/errors"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/preview"
)

// TokenDecryptor recovers plaintext access tokens for platform calls.
type TokenDecryptor interface {
	DecryptString(ciphertext string) (string, error)
}

// WhatIfHandler serves ad-hoc projections: the caller names resources and a
// change, and gets back the diff the change would produce. Nothing is
// persisted; these are scratch calculations, unlike the command preview
// which pins a plan for execution.
type WhatIfHandler struct {
	BaseHandler
	store     ConnectionStore
	decryptor TokenDecryptor
	factory   platform.ClientFactory
}

// NewWhatIfHandler creates a what-if handler. factory may be nil, in which
// case the default HTTP client factory is used.
func NewWhatIfHandler(store ConnectionStore, decryptor TokenDecryptor, factory platform.ClientFactory, log *logger.Logger) *WhatIfHandler {
	if factory == nil {
		factory = platform.DefaultClientFactory
	}
	return &WhatIfHandler{
		BaseHandler: NewBaseHandler(log),
		store:       store,
		decryptor:   decryptor,
		factory:     factory,
	}
}

// Routes returns the what-if routes.
func (h *WhatIfHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/price", h.Price)
	r.Post("/inventory", h.Inventory)
	r.Post("/listing", h.Listing)
	r.Post("/command", h.Command)

	return r
}

// WhatIfPriceRequest is the body of POST /whatif/price.
type WhatIfPriceRequest struct {
	ConnectionID string   `json:"connection_id" validate:"required,uuid"`
	ProductIDs   []string `json:"product_ids" validate:"required,min=1,max=250,dive,required"`
	UpdateType   string   `json:"update_type" validate:"required,oneof=increase_percent decrease_percent increase_amount decrease_amount set_fixed"`
	Value        float64  `json:"value" validate:"required"`
}

// WhatIfInventoryRequest is the body of POST /whatif/inventory.
type WhatIfInventoryRequest struct {
	ConnectionID string   `json:"connection_id" validate:"required,uuid"`
	ItemIDs      []string `json:"item_ids" validate:"required,min=1,max=250,dive,required"`
	Operation    string   `json:"operation" validate:"required,oneof=set add subtract"`
	Quantity     int      `json:"quantity" validate:"min=0"`
}

// WhatIfListingRequest is the body of POST /whatif/listing.
type WhatIfListingRequest struct {
	ConnectionID string         `json:"connection_id" validate:"required,uuid"`
	ListingIDs   []string       `json:"listing_ids" validate:"required,min=1,max=250,dive,required"`
	Updates      map[string]any `json:"updates" validate:"required,min=1"`
}

// WhatIfCommandRequest is the body of POST /whatif/command. The intent is the
// structured interpretation produced upstream; which payload it carries
// decides the projection.
type WhatIfCommandRequest struct {
	ConnectionID string               `json:"connection_id" validate:"required,uuid"`
	Text         string               `json:"text" validate:"max=1000"`
	Intent       preview.ParsedIntent `json:"intent"`
	ProductIDs   []string             `json:"product_ids" validate:"required,min=1,max=250,dive,required"`
}

// Price handles POST /api/v1/whatif/price
func (h *WhatIfHandler) Price(w http.ResponseWriter, r *http.Request) {
	var req WhatIfPriceRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	svc, apiErr := h.previewService(r, req.ConnectionID)
	if apiErr != nil {
		h.Error(w, apiErr)
		return
	}

	result, err := svc.PreviewPriceUpdate(r.Context(), req.ProductIDs,
		preview.PriceUpdateType(req.UpdateType), req.Value)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, result)
}

// Inventory handles POST /api/v1/whatif/inventory
func (h *WhatIfHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	var req WhatIfInventoryRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	svc, apiErr := h.previewService(r, req.ConnectionID)
	if apiErr != nil {
		h.Error(w, apiErr)
		return
	}

	result, err := svc.PreviewInventoryUpdate(r.Context(), req.ItemIDs,
		preview.InventoryOperation(req.Operation), req.Quantity)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, result)
}

// Listing handles POST /api/v1/whatif/listing
func (h *WhatIfHandler) Listing(w http.ResponseWriter, r *http.Request) {
	var req WhatIfListingRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	svc, apiErr := h.previewService(r, req.ConnectionID)
	if apiErr != nil {
		h.Error(w, apiErr)
		return
	}

	result, err := svc.PreviewListingUpdate(r.Context(), req.ListingIDs, req.Updates)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, result)
}

// Command handles POST /api/v1/whatif/command
func (h *WhatIfHandler) Command(w http.ResponseWriter, r *http.Request) {
	var req WhatIfCommandRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	svc, apiErr := h.previewService(r, req.ConnectionID)
	if apiErr != nil {
		h.Error(w, apiErr)
		return
	}

	result, err := svc.PreviewCommand(r.Context(), req.Text, req.Intent, req.ProductIDs)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, result)
}

// previewService resolves a connection id into an authenticated preview
// service against that connection's store.
func (h *WhatIfHandler) previewService(r *http.Request, rawConnID string) (*preview.Service, *apierrors.APIError) {
	connID, err := uuid.Parse(rawConnID)
	if err != nil {
		return nil, apierrors.InvalidInput("invalid connection_id format")
	}

	conn, err := h.store.GetByID(r.Context(), connID)
	if err != nil {
		return nil, apierrors.FromError(err)
	}
	if !conn.IsActive {
		return nil, apierrors.ConnectionInactive(conn.ID.String())
	}

	token, err := h.decryptor.DecryptString(conn.AccessTokenEncrypted)
	if err != nil {
		h.Logger().Error("failed to decrypt access token", "connection_id", conn.ID, "error", err)
		return nil, apierrors.Internal("cannot access connection credentials")
	}

	return preview.NewService(h.factory(conn, token), h.Logger()), nil
}
