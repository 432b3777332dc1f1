// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package middleware

import (
	"net/http"
	"runtime/debug"

	apierrors "github.com/sarahliz0715/Tandril-sub000/internal/api/errors"
)

// RecoveryConfig configures the panic recovery middleware.
type RecoveryConfig struct {
	// Logger receives the panic value and stack trace. May be nil.
	Logger RequestLogger

	// PrintStack includes the stack trace in the log entry.
	PrintStack bool
}

// Recovery converts panics into 500 responses instead of dropped connections.
func Recovery(config RecoveryConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// http.ErrAbortHandler is the sanctioned way to abort a
				// response; let it propagate.
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				if config.Logger != nil {
					kv := []any{
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", GetRequestID(r.Context()),
					}
					if config.PrintStack {
						kv = append(kv, "stack", string(debug.Stack()))
					}
					config.Logger.Error("panic recovered", kv...)
				}

				apierrors.WriteErrorWithRequestID(w, apierrors.Internal(""), GetRequestID(r.Context()))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
