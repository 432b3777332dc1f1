// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package platform

import (
	"fmt"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
)

// Session is the execution context for one command run against one platform
// connection. It carries the connection and a client already authenticated
// with the decrypted access token, so credentials are decrypted exactly once
// per run and handlers never touch the ciphertext.
type Session struct {
	Connection *models.PlatformConnection
	Client     API
}

// ClientFactory builds an authenticated client for a connection. The token
// is the decrypted access token.
type ClientFactory func(conn *models.PlatformConnection, token string) API

// DefaultClientFactory builds the HTTP client against the connection's shop
// domain admin API.
func DefaultClientFactory(conn *models.PlatformConnection, token string) API {
	return NewClient(fmt.Sprintf("https://%s/admin/api", conn.ShopDomain), token)
}

// NewSession pairs a connection with an authenticated client.
func NewSession(conn *models.PlatformConnection, client API) *Session {
	return &Session{Connection: conn, Client: client}
}
