// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package postgres

import (
	"context"
	"fmt"
)

// migration is one ordered schema step. Down statements are kept alongside
// the up statements so rollbacks stay reviewable in the same place.
type migration struct {
	version int
	name    string
	up      string
	down    string
}

var migrations = []migration{
	{
		version: 1,
		name:    "platform_connections",
		up: `
			CREATE TABLE IF NOT EXISTS platform_connections (
				id UUID PRIMARY KEY,
				platform TEXT NOT NULL,
				shop_domain TEXT NOT NULL,
				access_token_encrypted TEXT NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (platform, shop_domain)
			);
			CREATE INDEX IF NOT EXISTS idx_platform_connections_active
				ON platform_connections (is_active) WHERE is_active;
		`,
		down: `DROP TABLE IF EXISTS platform_connections;`,
	},
	{
		version: 2,
		name:    "commands",
		up: `
			CREATE TABLE IF NOT EXISTS commands (
				id UUID PRIMARY KEY,
				connection_id UUID NOT NULL REFERENCES platform_connections(id) ON DELETE CASCADE,
				intent TEXT NOT NULL,
				parsed_intent JSONB,
				status TEXT NOT NULL DEFAULT 'pending',
				risk_level TEXT NOT NULL DEFAULT 'low',
				error TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				executed_at TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_commands_connection ON commands (connection_id);
			CREATE INDEX IF NOT EXISTS idx_commands_status ON commands (status);
			CREATE INDEX IF NOT EXISTS idx_commands_created ON commands (created_at DESC);
		`,
		down: `DROP TABLE IF EXISTS commands;`,
	},
	{
		version: 3,
		name:    "command_history",
		up: `
			CREATE TABLE IF NOT EXISTS command_history (
				id UUID PRIMARY KEY,
				command_id UUID NOT NULL REFERENCES commands(id) ON DELETE CASCADE,
				change_snapshots JSONB NOT NULL DEFAULT '[]',
				can_undo BOOLEAN NOT NULL DEFAULT FALSE,
				executed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				undone_at TIMESTAMPTZ,
				UNIQUE (command_id)
			);
			CREATE INDEX IF NOT EXISTS idx_command_history_command ON command_history (command_id);
		`,
		down: `DROP TABLE IF EXISTS command_history;`,
	},
}

// Migrate applies all pending migrations in order. Each migration runs in
// its own transaction together with its schema_migrations bookkeeping row.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, m.up); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.version, m.name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// MigrateDown rolls back the given number of most recent migrations.
func (db *DB) MigrateDown(ctx context.Context, steps int) error {
	if steps < 1 {
		steps = 1
	}
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for i := len(migrations) - 1; i >= 0 && steps > 0; i-- {
		m := migrations[i]
		if !applied[m.version] {
			continue
		}
		tx, err := db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin rollback %d: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, m.down); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("rollback migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM schema_migrations WHERE version = $1`, m.version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("unrecord migration %d: %w", m.version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit rollback %d: %w", m.version, err)
		}
		steps--
	}
	return nil
}

// MigrationStatus prints one line per migration with its applied state.
func (db *DB) MigrationStatus(ctx context.Context) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		state := "pending"
		if applied[m.version] {
			state = "applied"
		}
		fmt.Printf("%3d  %-24s %s\n", m.version, m.name, state)
	}
	return nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
