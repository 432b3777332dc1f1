// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
)

// CommandRepository persists bulk-change commands and their lifecycle.
type CommandRepository struct {
	db *DB
}

// NewCommandRepository creates a new command repository.
func NewCommandRepository(db *DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Create inserts a new command in pending state.
func (r *CommandRepository) Create(ctx context.Context, connectionID uuid.UUID, intent string) (*models.Command, error) {
	cmd := &models.Command{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		Intent:       intent,
		Status:       models.CommandStatusPending,
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO commands (id, connection_id, intent, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		cmd.ID, cmd.ConnectionID, cmd.Intent, cmd.Status,
	).Scan(&cmd.CreatedAt, &cmd.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}

	return cmd, nil
}

// GetByID retrieves a command by ID.
func (r *CommandRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Command, error) {
	cmd := &models.Command{}
	err := r.db.QueryRow(ctx, `
		SELECT id, connection_id, intent, parsed_intent, status, risk_level,
		       COALESCE(error, ''), created_at, updated_at, executed_at
		FROM commands WHERE id = $1`, id).Scan(
		&cmd.ID, &cmd.ConnectionID, &cmd.Intent, &cmd.ParsedIntent, &cmd.Status,
		&cmd.RiskLevel, &cmd.Error, &cmd.CreatedAt, &cmd.UpdatedAt, &cmd.ExecutedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("command")
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// List returns commands matching the options, newest first.
func (r *CommandRepository) List(ctx context.Context, opts models.CommandListOptions) ([]*models.Command, error) {
	query := `
		SELECT id, connection_id, intent, parsed_intent, status, risk_level,
		       COALESCE(error, ''), created_at, updated_at, executed_at
		FROM commands WHERE 1=1`
	args := []interface{}{}
	argn := 0

	if opts.ConnectionID != nil {
		argn++
		query += fmt.Sprintf(" AND connection_id = $%d", argn)
		args = append(args, *opts.ConnectionID)
	}
	if opts.Status != "" {
		argn++
		query += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, opts.Status)
	}
	if opts.Since != nil {
		argn++
		query += fmt.Sprintf(" AND created_at >= $%d", argn)
		args = append(args, *opts.Since)
	}
	if opts.Until != nil {
		argn++
		query += fmt.Sprintf(" AND created_at < $%d", argn)
		args = append(args, *opts.Until)
	}

	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		argn++
		query += fmt.Sprintf(" LIMIT $%d", argn)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		argn++
		query += fmt.Sprintf(" OFFSET $%d", argn)
		args = append(args, opts.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []*models.Command
	for rows.Next() {
		cmd := &models.Command{}
		if err := rows.Scan(
			&cmd.ID, &cmd.ConnectionID, &cmd.Intent, &cmd.ParsedIntent, &cmd.Status,
			&cmd.RiskLevel, &cmd.Error, &cmd.CreatedAt, &cmd.UpdatedAt, &cmd.ExecutedAt,
		); err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

// UpdateStatus advances the lifecycle with a compare-and-set on the current
// status, so two concurrent executes can never both win the transition.
func (r *CommandRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.CommandStatus) error {
	if !from.CanTransitionTo(to) {
		return errors.NewStateError(fmt.Sprintf("cannot transition from %s to %s", from, to))
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE commands SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("update command status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewStateError(fmt.Sprintf("command is no longer %s", from))
	}
	return nil
}

// SavePreview stores the parsed intent and risk classification produced by a
// preview and moves the command to previewed.
func (r *CommandRepository) SavePreview(ctx context.Context, id uuid.UUID, parsed json.RawMessage, risk models.RiskLevel) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE commands
		SET parsed_intent = $2, risk_level = $3, status = $4, updated_at = now()
		WHERE id = $1 AND status IN ($5, $6)`,
		id, parsed, risk, models.CommandStatusPreviewed,
		models.CommandStatusPending, models.CommandStatusPreviewed)
	if err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewStateError("command can no longer be previewed")
	}
	return nil
}

// MarkExecuted records the terminal result of an execute run. status must be
// completed or failed; errMsg is stored only for failures.
func (r *CommandRepository) MarkExecuted(ctx context.Context, id uuid.UUID, status models.CommandStatus, errMsg string) error {
	if status != models.CommandStatusCompleted && status != models.CommandStatusFailed {
		return errors.NewStateError(fmt.Sprintf("%s is not a terminal execute status", status))
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE commands
		SET status = $2, error = NULLIF($3, ''), executed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, status, errMsg, models.CommandStatusExecuting)
	if err != nil {
		return fmt.Errorf("mark command executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewStateError("command is not executing")
	}
	return nil
}

// Delete removes a command. History rows cascade.
func (r *CommandRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM commands WHERE id = $1`, id)
	return err
}
