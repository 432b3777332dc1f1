// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformKind identifies the external commerce platform behind a connection.
type PlatformKind string

// Supported platform kinds.
const (
	PlatformShopify     PlatformKind = "shopify"
	PlatformBigCommerce PlatformKind = "bigcommerce"
)

// PlatformConnection is a stored, authenticated link to one shop on an
// external platform. The access token is encrypted at rest; services receive
// the plaintext only through crypto.AESEncryptor.DecryptString, once per
// command run.
type PlatformConnection struct {
	ID                   uuid.UUID    `json:"id" db:"id"`
	Platform             PlatformKind `json:"platform" db:"platform"`
	ShopDomain           string       `json:"shop_domain" db:"shop_domain"`
	AccessTokenEncrypted string       `json:"-" db:"access_token_encrypted"`
	IsActive             bool         `json:"is_active" db:"is_active"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at" db:"updated_at"`
}
