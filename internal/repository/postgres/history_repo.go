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

// HistoryRepository persists the undo record of executed commands. Snapshots
// are stored as one jsonb document per history row.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts the history row for one execute run.
func (r *HistoryRepository) Create(ctx context.Context, commandID uuid.UUID, snapshots []models.ChangeSnapshot, canUndo bool) (*models.CommandHistory, error) {
	data, err := json.Marshal(snapshots)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshots: %w", err)
	}

	hist := &models.CommandHistory{
		ID:              uuid.New(),
		CommandID:       commandID,
		ChangeSnapshots: snapshots,
		CanUndo:         canUndo,
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO command_history (id, command_id, change_snapshots, can_undo, executed_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING executed_at`,
		hist.ID, hist.CommandID, data, hist.CanUndo,
	).Scan(&hist.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("create command history: %w", err)
	}
	return hist, nil
}

// GetByCommandID returns the history row for a command.
func (r *HistoryRepository) GetByCommandID(ctx context.Context, commandID uuid.UUID) (*models.CommandHistory, error) {
	hist := &models.CommandHistory{}
	var data []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, command_id, change_snapshots, can_undo, executed_at, undone_at
		FROM command_history WHERE command_id = $1`, commandID).Scan(
		&hist.ID, &hist.CommandID, &data, &hist.CanUndo, &hist.ExecutedAt, &hist.UndoneAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("command history")
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &hist.ChangeSnapshots); err != nil {
		return nil, fmt.Errorf("unmarshal snapshots: %w", err)
	}
	return hist, nil
}

// MarkUndone sets undone_at exactly once. A second call loses the WHERE
// clause race and reports a state error instead of silently rewriting the
// timestamp.
func (r *HistoryRepository) MarkUndone(ctx context.Context, historyID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE command_history SET undone_at = now()
		WHERE id = $1 AND undone_at IS NULL`, historyID)
	if err != nil {
		return fmt.Errorf("mark history undone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewStateError("history is already undone")
	}
	return nil
}

// ListByConnection returns history rows for commands on one connection,
// newest first.
func (r *HistoryRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]*models.CommandHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT h.id, h.command_id, h.change_snapshots, h.can_undo, h.executed_at, h.undone_at
		FROM command_history h
		JOIN commands c ON c.id = h.command_id
		WHERE c.connection_id = $1
		ORDER BY h.executed_at DESC
		LIMIT $2`, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var histories []*models.CommandHistory
	for rows.Next() {
		hist := &models.CommandHistory{}
		var data []byte
		if err := rows.Scan(
			&hist.ID, &hist.CommandID, &data, &hist.CanUndo, &hist.ExecutedAt, &hist.UndoneAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &hist.ChangeSnapshots); err != nil {
			return nil, fmt.Errorf("unmarshal snapshots: %w", err)
		}
		histories = append(histories, hist)
	}
	return histories, rows.Err()
}
