// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORSConfig contains CORS configuration options.
type CORSConfig struct {
	// AllowedOrigins is a list of origins a cross-domain request can be
	// executed from. "*" allows all origins; an origin may contain at most
	// one wildcard (e.g. https://*.example.com).
	AllowedOrigins []string

	// AllowedMethods is a list of methods the client is allowed to use.
	AllowedMethods []string

	// AllowedHeaders is a list of non-simple headers clients may send.
	AllowedHeaders []string

	// ExposedHeaders indicates which headers are safe to expose.
	ExposedHeaders []string

	// AllowCredentials indicates whether requests may include credentials.
	AllowCredentials bool

	// MaxAge is how long (seconds) a preflight result may be cached.
	MaxAge int
}

// DefaultCORSConfig returns a configuration suitable for development.
// Set explicit origins in production.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

// CORS returns a CORS middleware handler with the given configuration.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		ExposedHeaders:   config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	})
}

// CORSFromOrigins creates a CORS configuration from a comma-separated
// origins string, e.g. "https://app.example.com,https://admin.example.com".
func CORSFromOrigins(origins string, credentials bool) CORSConfig {
	config := DefaultCORSConfig()

	if origins != "" && origins != "*" {
		originList := strings.Split(origins, ",")
		trimmed := make([]string, 0, len(originList))
		for _, o := range originList {
			if t := strings.TrimSpace(o); t != "" {
				trimmed = append(trimmed, t)
			}
		}
		if len(trimmed) > 0 {
			config.AllowedOrigins = trimmed
		}
	}

	config.AllowCredentials = credentials
	return config
}
