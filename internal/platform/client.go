// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package platform provides the authenticated REST client for the external
// commerce API. It is the only package in tandril that issues platform I/O;
// everything above it works with Resource field maps and APIError values.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single platform call when no override is given.
const DefaultTimeout = 30 * time.Second

// Client is an authenticated platform API client for one shop.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a platform client for the given API base URL and token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ============================================================================
// HTTP helpers
// ============================================================================

func (c *Client) request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	u := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Access-Token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.request(ctx, http.MethodPost, path, body)
}

func (c *Client) put(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.request(ctx, http.MethodPut, path, body)
}

func (c *Client) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.request(ctx, http.MethodDelete, path, nil)
}

func decodeJSON[T any](resp *http.Response) (T, error) {
	var result T
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return result, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func drain(resp *http.Response) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ============================================================================
// Products
// ============================================================================

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, id string) (Resource, error) {
	resp, err := c.get(ctx, "/products/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	return decodeJSON[Resource](resp)
}

// GetProducts fetches the products with the given ids. Ids the platform does
// not know are absent from the result; callers treat that as "omit from the
// batch", not as an error.
func (c *Client) GetProducts(ctx context.Context, ids []string) ([]Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	path := "/products?ids=" + url.QueryEscape(strings.Join(ids, ","))
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeJSON[[]Resource](resp)
}

// SearchProducts returns a candidate set for filter-based targeting.
func (c *Client) SearchProducts(ctx context.Context, opts SearchOptions) ([]Resource, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 250
	}
	path := fmt.Sprintf("/products?limit=%d", limit)
	if opts.Query != "" {
		path += "&query=" + url.QueryEscape(opts.Query)
	}
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeJSON[[]Resource](resp)
}

// UpdateProduct applies the given field map to one product and returns the
// updated resource as the platform reports it.
func (c *Client) UpdateProduct(ctx context.Context, id string, fields map[string]any) (Resource, error) {
	resp, err := c.put(ctx, "/products/"+url.PathEscape(id), fields)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Resource](resp)
}

// ============================================================================
// Listings
// ============================================================================

// GetListings fetches channel listings with their parent product fields
// embedded under "product".
func (c *Client) GetListings(ctx context.Context, ids []string) ([]Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	path := "/listings?ids=" + url.QueryEscape(strings.Join(ids, ","))
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeJSON[[]Resource](resp)
}

// UpdateListing applies the given field map to one listing.
func (c *Client) UpdateListing(ctx context.Context, id string, fields map[string]any) (Resource, error) {
	resp, err := c.put(ctx, "/listings/"+url.PathEscape(id), fields)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Resource](resp)
}

// ============================================================================
// Inventory
// ============================================================================

// GetInventoryItems fetches inventory items (quantity, reserved, available).
func (c *Client) GetInventoryItems(ctx context.Context, ids []string) ([]Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	path := "/inventory_items?ids=" + url.QueryEscape(strings.Join(ids, ","))
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeJSON[[]Resource](resp)
}

// SetInventoryLevel sets the absolute on-hand quantity for one item.
func (c *Client) SetInventoryLevel(ctx context.Context, itemID string, quantity int) (Resource, error) {
	body := map[string]any{
		"inventory_item_id": itemID,
		"quantity":          quantity,
	}
	resp, err := c.post(ctx, "/inventory_levels/set", body)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Resource](resp)
}

// ============================================================================
// Discounts
// ============================================================================

// CreateDiscount creates a discount and returns the created resource.
func (c *Client) CreateDiscount(ctx context.Context, input DiscountInput) (Resource, error) {
	resp, err := c.post(ctx, "/discounts", input)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Resource](resp)
}

// DeleteDiscount deletes a discount by id. Reverting a creation is a
// deletion; there is no prior state to restore.
func (c *Client) DeleteDiscount(ctx context.Context, id string) error {
	resp, err := c.delete(ctx, "/discounts/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	return drain(resp)
}
