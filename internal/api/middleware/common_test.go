// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "203.0.113.5:4312",
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip wins",
			remoteAddr: "10.0.0.1:80",
			realIP:     "198.51.100.7",
			want:       "198.51.100.7",
		},
		{
			name:       "forwarded-for rightmost public",
			remoteAddr: "10.0.0.1:80",
			forwarded:  "198.51.100.7, 203.0.113.9, 192.168.1.1",
			want:       "203.0.113.9",
		},
		{
			name:       "forwarded-for all private uses rightmost",
			remoteAddr: "10.0.0.1:80",
			forwarded:  "192.168.1.5, 10.1.2.3",
			want:       "10.1.2.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			if got := getRealIP(r); got != tt.want {
				t.Errorf("getRealIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestIDGenerated(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if captured == "" {
		t.Fatal("no request ID in context")
	}
	if got := rec.Header().Get(HeaderRequestID); got != captured {
		t.Errorf("response header = %q, context = %q", got, captured)
	}
}

func TestRequestIDHonorsHeader(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, "proxy-supplied-id")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if captured != "proxy-supplied-id" {
		t.Errorf("request ID = %q, want proxy-supplied-id", captured)
	}
}

func TestRecoveryConvertsPanics(t *testing.T) {
	handler := Recovery(RecoveryConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRecoveryPassesThrough(t *testing.T) {
	handler := Recovery(RecoveryConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

func TestRateLimitByIP(t *testing.T) {
	handler := RateLimitByIP(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "203.0.113.5:1000"
		handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:1000"
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}
