// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/crypto"
	"github.com/sarahliz0715/Tandril-sub000/internal/repository/postgres"
)

// RunMigrations runs database migrations. action is "up", "status", or
// "down:N" for a rollback of N steps.
func RunMigrations(cfgFile, action string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	db, err := postgres.New(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	switch action {
	case "up":
		return db.Migrate(ctx)
	case "status":
		return db.MigrationStatus(ctx)
	default:
		if rest, ok := strings.CutPrefix(action, "down:"); ok {
			steps, err := strconv.Atoi(rest)
			if err != nil || steps < 1 {
				return fmt.Errorf("invalid rollback step count: %s", rest)
			}
			return db.MigrateDown(ctx, steps)
		}
		return fmt.Errorf("unknown migration action: %s", action)
	}
}

// GenerateEncryptionKey prints a fresh AES-256 key suitable for
// security.encryption_key.
func GenerateEncryptionKey() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	fmt.Println(key)
	return nil
}
