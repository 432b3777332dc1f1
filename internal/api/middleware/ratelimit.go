// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	apierrors "github.com/sarahliz0715/Tandril-sub000/internal/api/errors"
)

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed per window.
	RequestLimit int

	// WindowLength is the duration of the rate limit window.
	WindowLength time.Duration

	// KeyFunc extracts the rate limit key from the request.
	// If nil, defaults to IP-based limiting.
	KeyFunc func(r *http.Request) (string, error)
}

// DefaultRateLimitConfig returns 100 requests per minute per IP.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
}

// RateLimit returns a rate limiting middleware with the given configuration.
func RateLimit(config RateLimitConfig) func(http.Handler) http.Handler {
	opts := []httprate.Option{
		httprate.WithLimitHandler(rateLimitHandler(config.WindowLength)),
	}

	if config.KeyFunc != nil {
		opts = append(opts, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return config.KeyFunc(r)
		}))
	}

	return httprate.Limit(config.RequestLimit, config.WindowLength, opts...)
}

// RateLimitByIP returns a rate limiting middleware that limits by IP address.
func RateLimitByIP(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: requestLimit,
		WindowLength: window,
		KeyFunc: func(r *http.Request) (string, error) {
			return "ip:" + getRealIP(r), nil
		},
	})
}

// APIRateLimit returns the standard limiter for read endpoints.
// 100 requests per minute per IP.
func APIRateLimit() func(http.Handler) http.Handler {
	return RateLimitByIP(100, time.Minute)
}

// MutationRateLimit returns a stricter limiter for endpoints that write to
// the commerce platform. A runaway client hammering execute or undo does
// real damage, not just load.
func MutationRateLimit() func(http.Handler) http.Handler {
	return RateLimitByIP(20, time.Minute)
}

// rateLimitHandler returns the handler called when rate limit is exceeded.
func rateLimitHandler(window time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		retryAfter := int(window.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

		requestID := GetRequestID(r.Context())
		apiErr := apierrors.RateLimited(retryAfter)
		apierrors.WriteErrorWithRequestID(w, apiErr, requestID)
	}
}
