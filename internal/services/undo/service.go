// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package undo reverts executed commands from their captured snapshots.
// Undo is available exactly once per command, only from COMPLETED, and is
// best-effort per snapshot: a failing revert is counted and logged while
// the remaining snapshots still run.
package undo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	apperrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/executor"
)

// HistoryStore is the slice of the history repository undo needs.
type HistoryStore interface {
	GetByCommandID(ctx context.Context, commandID uuid.UUID) (*models.CommandHistory, error)
	MarkUndone(ctx context.Context, historyID uuid.UUID) error
}

// CommandStore is the slice of the command repository undo needs.
type CommandStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Command, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.CommandStatus) error
}

// ConnectionStore resolves platform connections for snapshot reverts.
type ConnectionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformConnection, error)
}

// Decryptor recovers plaintext access tokens from stored ciphertext.
type Decryptor interface {
	DecryptString(ciphertext string) (string, error)
}

// Result is the per-snapshot accounting of one undo run.
type Result struct {
	CommandID  uuid.UUID `json:"command_id"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// Service reverts commands.
type Service struct {
	commands    CommandStore
	history     HistoryStore
	connections ConnectionStore
	decryptor   Decryptor
	factory     platform.ClientFactory
	log         *logger.Logger
}

// NewService creates an undo service. factory may be nil, in which case the
// default HTTP client factory is used.
func NewService(commands CommandStore, history HistoryStore, connections ConnectionStore, decryptor Decryptor, factory platform.ClientFactory, log *logger.Logger) *Service {
	if factory == nil {
		factory = platform.DefaultClientFactory
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		commands:    commands,
		history:     history,
		connections: connections,
		decryptor:   decryptor,
		factory:     factory,
		log:         log.Named("undo"),
	}
}

// UndoCommand reverts every snapshot of a completed command. All
// preconditions are checked before a single platform call is made; once the
// run starts, failures are accounted per snapshot and the history row is
// marked undone regardless, so a second attempt is always rejected.
func (s *Service) UndoCommand(ctx context.Context, commandID uuid.UUID) (*Result, error) {
	cmd, err := s.commands.GetByID(ctx, commandID)
	if err != nil {
		return nil, err
	}
	if cmd.Status != models.CommandStatusCompleted {
		return nil, apperrors.NewStateError(fmt.Sprintf("command is %s, only completed commands can be undone", cmd.Status))
	}

	hist, err := s.history.GetByCommandID(ctx, commandID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.NewStateError("command has no execution history to undo")
		}
		return nil, err
	}
	if !hist.CanUndo {
		return nil, apperrors.NewStateError("command is not undoable")
	}
	if hist.UndoneAt != nil {
		return nil, apperrors.NewStateError("command has already been undone")
	}

	result := &Result{CommandID: commandID}
	sessions := make(map[uuid.UUID]*platform.Session)

	// Snapshots revert in reverse execution order so later writes are
	// unwound before the states they were built on.
	for i := len(hist.ChangeSnapshots) - 1; i >= 0; i-- {
		snap := hist.ChangeSnapshots[i]
		sess, err := s.sessionFor(ctx, sessions, snap.ConnectionID)
		if err != nil {
			result.Failed++
			result.Warnings = append(result.Warnings, fmt.Sprintf("snapshot %d: %v", i, err))
			continue
		}
		if err := s.revertSnapshot(ctx, sess, snap); err != nil {
			result.Failed++
			result.Warnings = append(result.Warnings, fmt.Sprintf("snapshot %d (%s): %v", i, snap.ActionType, err))
			s.log.Warnw("snapshot revert failed", "command_id", commandID, "action", snap.ActionType, "error", err)
			continue
		}
		result.Successful++
	}

	// The history row is consumed even on partial failure; re-running undo
	// against half-reverted state would do more damage than it fixes.
	if err := s.history.MarkUndone(ctx, hist.ID); err != nil {
		return nil, err
	}
	if err := s.commands.UpdateStatus(ctx, commandID, models.CommandStatusCompleted, models.CommandStatusUndone); err != nil {
		return nil, err
	}

	s.log.Infow("command undone",
		"command_id", commandID,
		"successful", result.Successful,
		"failed", result.Failed,
	)
	return result, nil
}

// sessionFor builds at most one authenticated session per connection, so
// tokens are decrypted once per run no matter how many snapshots share the
// connection.
func (s *Service) sessionFor(ctx context.Context, cache map[uuid.UUID]*platform.Session, connectionID uuid.UUID) (*platform.Session, error) {
	if sess, ok := cache[connectionID]; ok {
		return sess, nil
	}
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	token, err := s.decryptor.DecryptString(conn.AccessTokenEncrypted)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to decrypt access token")
	}
	sess := platform.NewSession(conn, s.factory(conn, token))
	cache[connectionID] = sess
	return sess, nil
}

func (s *Service) revertSnapshot(ctx context.Context, sess *platform.Session, snap models.ChangeSnapshot) error {
	switch snap.ActionType {
	case string(executor.KindUpdateProducts):
		return s.revertProductUpdate(ctx, sess, snap)
	case string(executor.KindApplyDiscount):
		return s.revertDiscount(ctx, sess, snap)
	case string(executor.KindUpdateInventory), string(executor.KindUpdateSEO):
		// Reverting these needs platform history beyond the snapshot
		// (inventory moves, search-index effects), so it is not supported.
		s.log.Warnw("undo not implemented for action type", "action", snap.ActionType)
		return fmt.Errorf("undo not implemented for %s", snap.ActionType)
	default:
		return fmt.Errorf("unknown action type %q in snapshot", snap.ActionType)
	}
}

// revertProductUpdate writes every captured before state back in full, which
// also reverts fields a later out-of-band edit may have touched.
func (s *Service) revertProductUpdate(ctx context.Context, sess *platform.Session, snap models.ChangeSnapshot) error {
	if snap.BeforeState == nil {
		return fmt.Errorf("snapshot has no before state")
	}
	var befores []platform.Resource
	if err := json.Unmarshal(*snap.BeforeState, &befores); err != nil {
		return fmt.Errorf("invalid before state: %w", err)
	}

	var failed int
	for _, before := range befores {
		id := before.ID()
		if id == "" {
			failed++
			continue
		}
		fields := before.Clone()
		delete(fields, "id")
		if _, err := sess.Client.UpdateProduct(ctx, id, fields); err != nil {
			failed++
			s.log.Warnw("product revert failed", "product_id", id, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d product(s) failed to revert", failed, len(befores))
	}
	return nil
}

// revertDiscount deletes the discount that the action created.
func (s *Service) revertDiscount(ctx context.Context, sess *platform.Session, snap models.ChangeSnapshot) error {
	for _, ref := range snap.AffectedResources {
		if ref.Type != models.ResourceTypeDiscount {
			continue
		}
		if err := sess.Client.DeleteDiscount(ctx, ref.ID); err != nil {
			return fmt.Errorf("delete discount %s: %w", ref.ID, err)
		}
	}
	return nil
}
