// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
)

// ConnectionRepository persists platform connections. Access tokens are
// stored encrypted; this layer never sees plaintext.
type ConnectionRepository struct {
	db *DB
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a new connection.
func (r *ConnectionRepository) Create(ctx context.Context, platform models.PlatformKind, shopDomain, encryptedToken string) (*models.PlatformConnection, error) {
	conn := &models.PlatformConnection{
		ID:                   uuid.New(),
		Platform:             platform,
		ShopDomain:           shopDomain,
		AccessTokenEncrypted: encryptedToken,
		IsActive:             true,
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO platform_connections (id, platform, shop_domain, access_token_encrypted, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		conn.ID, conn.Platform, conn.ShopDomain, conn.AccessTokenEncrypted, conn.IsActive,
	).Scan(&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, errors.AlreadyExists("connection")
		}
		return nil, fmt.Errorf("create connection: %w", err)
	}
	return conn, nil
}

// GetByID retrieves a connection by ID.
func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformConnection, error) {
	conn := &models.PlatformConnection{}
	err := r.db.QueryRow(ctx, `
		SELECT id, platform, shop_domain, access_token_encrypted, is_active, created_at, updated_at
		FROM platform_connections WHERE id = $1`, id).Scan(
		&conn.ID, &conn.Platform, &conn.ShopDomain, &conn.AccessTokenEncrypted,
		&conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("connection")
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// List returns connections, optionally only active ones.
func (r *ConnectionRepository) List(ctx context.Context, activeOnly bool) ([]*models.PlatformConnection, error) {
	query := `
		SELECT id, platform, shop_domain, access_token_encrypted, is_active, created_at, updated_at
		FROM platform_connections`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY shop_domain ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*models.PlatformConnection
	for rows.Next() {
		conn := &models.PlatformConnection{}
		if err := rows.Scan(
			&conn.ID, &conn.Platform, &conn.ShopDomain, &conn.AccessTokenEncrypted,
			&conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt,
		); err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// UpdateToken replaces the stored encrypted token.
func (r *ConnectionRepository) UpdateToken(ctx context.Context, id uuid.UUID, encryptedToken string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE platform_connections SET access_token_encrypted = $2, updated_at = now()
		WHERE id = $1`, id, encryptedToken)
	if err != nil {
		return fmt.Errorf("update connection token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("connection")
	}
	return nil
}

// SetActive toggles a connection without deleting its command history.
func (r *ConnectionRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE platform_connections SET is_active = $2, updated_at = now()
		WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set connection active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("connection")
	}
	return nil
}

// Delete removes a connection and cascades to its commands.
func (r *ConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM platform_connections WHERE id = $1`, id)
	return err
}
