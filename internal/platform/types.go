// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Resource is one record held by the external platform, kept as its raw
// field map so the diff engine can compare arbitrary fields without a schema.
type Resource map[string]any

// ID returns the resource id as a string, whatever the wire type was.
func (r Resource) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; platform ids are integral
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// String returns the named field as a string, or "" when absent.
func (r Resource) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Float returns the named field as a float64. Numeric strings are parsed,
// since platforms commonly serialize money fields as strings.
func (r Resource) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the resource.
func (r Resource) Clone() Resource {
	out := make(Resource, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SearchOptions narrows a product search used for filter-based targeting.
type SearchOptions struct {
	Query string // free-text query, platform-interpreted
	Limit int    // 0 means the client default
}

// DiscountInput describes a discount to create on the platform.
type DiscountInput struct {
	Title      string   `json:"title"`
	ValueType  string   `json:"value_type"` // "percentage" or "fixed_amount"
	Value      float64  `json:"value"`
	ProductIDs []string `json:"product_ids,omitempty"`
	StartsAt   string   `json:"starts_at,omitempty"`
	EndsAt     string   `json:"ends_at,omitempty"`
}

// API is the platform adapter consumed by the preview, executor, and undo
// services. Read methods never mutate platform state.
type API interface {
	// Reads
	GetProduct(ctx context.Context, id string) (Resource, error)
	GetProducts(ctx context.Context, ids []string) ([]Resource, error)
	SearchProducts(ctx context.Context, opts SearchOptions) ([]Resource, error)
	GetListings(ctx context.Context, ids []string) ([]Resource, error)
	GetInventoryItems(ctx context.Context, ids []string) ([]Resource, error)

	// Writes
	UpdateProduct(ctx context.Context, id string, fields map[string]any) (Resource, error)
	UpdateListing(ctx context.Context, id string, fields map[string]any) (Resource, error)
	SetInventoryLevel(ctx context.Context, itemID string, quantity int) (Resource, error)
	CreateDiscount(ctx context.Context, input DiscountInput) (Resource, error)
	DeleteDiscount(ctx context.Context, id string) error
}

// APIError is a non-2xx response from the platform. During batch execution
// it is caught per resource and recorded, never aborting sibling items.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("platform api error (%d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("platform api error: %d", e.Status)
}

// IsNotFound reports whether the platform returned 404.
func (e *APIError) IsNotFound() bool {
	return e.Status == 404
}

// AsAPIError extracts an APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
