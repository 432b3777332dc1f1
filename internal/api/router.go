// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sarahliz0715/Tandril-sub000/internal/api/handlers"
	"github.com/sarahliz0715/Tandril-sub000/internal/api/middleware"
)

// RouterConfig contains configuration for setting up routes.
type RouterConfig struct {
	// CORSConfig is the CORS configuration.
	CORSConfig middleware.CORSConfig

	// RequestTimeout is the timeout for HTTP requests.
	RequestTimeout time.Duration

	// Logger for request logging.
	Logger middleware.RequestLogger

	// EnableDebugLogging enables verbose request logging.
	EnableDebugLogging bool
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORSConfig:     middleware.DefaultCORSConfig(),
		RequestTimeout: 60 * time.Second,
	}
}

// Handlers contains all API handlers.
// Fields left nil won't have their routes mounted.
type Handlers struct {
	System     *handlers.SystemHandler
	Command    *handlers.CommandHandler
	Connection *handlers.ConnectionHandler
	WhatIf     *handlers.WhatIfHandler
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(config RouterConfig, h *Handlers) chi.Router {
	r := chi.NewRouter()

	// Request ID (must be first)
	r.Use(middleware.RequestID)

	// Real IP extraction from proxy headers
	r.Use(middleware.RealIP)

	// Request logging
	if config.Logger != nil {
		if config.EnableDebugLogging {
			r.Use(middleware.DebugLogging(config.Logger))
		} else {
			r.Use(middleware.SimpleLogging(config.Logger))
		}
	}

	// Panic recovery
	r.Use(middleware.Recovery(middleware.RecoveryConfig{
		Logger:     config.Logger,
		PrintStack: true,
	}))

	// CORS
	r.Use(middleware.CORS(config.CORSConfig))

	// Health check routes (no rate limit, probed constantly)
	if h.System != nil {
		r.Get("/health", h.System.Health)
		r.Get("/healthz", h.System.Liveness)
		r.Get("/ready", h.System.Readiness)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.RequestTimeout))
		r.Use(middleware.APIRateLimit())

		if h.System != nil {
			r.Mount("/system", h.System.Routes())
		}
		if h.Connection != nil {
			r.Mount("/connections", h.Connection.Routes())
		}
		if h.Command != nil {
			r.Mount("/commands", h.Command.Routes())
		}
		if h.WhatIf != nil {
			r.Mount("/whatif", h.WhatIf.Routes())
		}
	})

	return r
}
