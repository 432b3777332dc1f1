// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sarahliz0715/Tandril-sub000/internal/api/middleware"
	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/command"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/executor"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/undo"
)

// CommandService is the lifecycle service surface the handler needs.
type CommandService interface {
	Preview(ctx context.Context, req command.PreviewRequest) (*command.PreviewOutcome, error)
	Execute(ctx context.Context, commandID uuid.UUID) (*command.ExecuteOutcome, error)
	Undo(ctx context.Context, commandID uuid.UUID) (*undo.Result, error)
	Get(ctx context.Context, commandID uuid.UUID) (*models.Command, error)
	List(ctx context.Context, opts models.CommandListOptions) ([]*models.Command, error)
	History(ctx context.Context, commandID uuid.UUID) (*models.CommandHistory, error)
}

// CommandHandler handles command lifecycle API requests.
type CommandHandler struct {
	BaseHandler
	commands CommandService
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(commands CommandService, log *logger.Logger) *CommandHandler {
	return &CommandHandler{
		BaseHandler: NewBaseHandler(log),
		commands:    commands,
	}
}

// Routes returns the command routes.
func (h *CommandHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/history", h.History)

	// Platform mutations get the stricter limiter.
	r.Group(func(r chi.Router) {
		r.Use(middleware.MutationRateLimit())
		r.Post("/preview", h.Preview)
		r.Post("/{id}/execute", h.Execute)
		r.Post("/{id}/undo", h.Undo)
	})

	return r
}

// ============================================================================
// Request/response types
// ============================================================================

// PreviewCommandRequest is the body of POST /commands/preview.
type PreviewCommandRequest struct {
	ConnectionID string                  `json:"connection_id" validate:"required,uuid"`
	Intent       string                  `json:"intent" validate:"required,min=3,max=2000"`
	Actions      []PreviewActionEnvelope `json:"actions" validate:"required,min=1,dive"`
}

// PreviewActionEnvelope mirrors the executor envelope at the API boundary so
// action types are rejected before the service layer parses parameters.
type PreviewActionEnvelope struct {
	Type       string          `json:"type" validate:"required,action_type"`
	Parameters json.RawMessage `json:"parameters"`
}

// ============================================================================
// Handlers
// ============================================================================

// Preview handles POST /api/v1/commands/preview
// Creates a command and dry-runs its action plan against the platform.
func (h *CommandHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewCommandRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	connectionID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		h.BadRequest(w, "invalid connection_id format")
		return
	}

	envelopes := make([]executor.Envelope, 0, len(req.Actions))
	for _, a := range req.Actions {
		envelopes = append(envelopes, executor.Envelope{
			Type:       executor.ActionKind(a.Type),
			Parameters: a.Parameters,
		})
	}

	outcome, err := h.commands.Preview(r.Context(), command.PreviewRequest{
		ConnectionID: connectionID,
		Intent:       req.Intent,
		Actions:      envelopes,
	})
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, outcome)
}

// Execute handles POST /api/v1/commands/{id}/execute
// Runs a previewed command for real.
func (h *CommandHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := h.URLParamUUID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	outcome, err := h.commands.Execute(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, outcome)
}

// Undo handles POST /api/v1/commands/{id}/undo
// Reverts a completed command from its stored snapshots.
func (h *CommandHandler) Undo(w http.ResponseWriter, r *http.Request) {
	id, err := h.URLParamUUID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	result, err := h.commands.Undo(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, result)
}

// Get handles GET /api/v1/commands/{id}
func (h *CommandHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := h.URLParamUUID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	cmd, err := h.commands.Get(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, cmd)
}

// List handles GET /api/v1/commands
// Supports pagination plus filters: ?connection_id=, ?status=, ?since=, ?until=
func (h *CommandHandler) List(w http.ResponseWriter, r *http.Request) {
	pagination := h.GetPagination(r)

	opts := models.CommandListOptions{
		Limit:  pagination.PerPage,
		Offset: pagination.Offset,
	}

	opts.ConnectionID = h.QueryParamUUID(r, "connection_id")

	if status := h.QueryParam(r, "status"); status != "" {
		opts.Status = models.CommandStatus(status)
		if !opts.Status.Valid() {
			h.BadRequest(w, "invalid status filter")
			return
		}
	}

	if since := h.QueryParam(r, "since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Since = &t
		}
	}

	if until := h.QueryParam(r, "until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			opts.Until = &t
		}
	}

	commands, err := h.commands.List(r.Context(), opts)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, map[string]any{
		"commands": commands,
		"count":    len(commands),
		"page":     pagination.Page,
		"per_page": pagination.PerPage,
	})
}

// History handles GET /api/v1/commands/{id}/history
func (h *CommandHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := h.URLParamUUID(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	hist, err := h.commands.History(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, hist)
}
