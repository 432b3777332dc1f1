// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package command orchestrates the command lifecycle: submit, preview,
// execute, undo. It owns status transitions and the execution lock; the
// actual platform work happens in the executor and undo services.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sarahliz0715/Tandril-sub000/internal/events"
	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	apperrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
	"github.com/sarahliz0715/Tandril-sub000/internal/repository/redis"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/diff"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/executor"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/undo"
)

// CommandStore is the command repository surface this service needs.
type CommandStore interface {
	Create(ctx context.Context, connectionID uuid.UUID, intent string) (*models.Command, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Command, error)
	List(ctx context.Context, opts models.CommandListOptions) ([]*models.Command, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.CommandStatus) error
	SavePreview(ctx context.Context, id uuid.UUID, parsed json.RawMessage, risk models.RiskLevel) error
	MarkExecuted(ctx context.Context, id uuid.UUID, status models.CommandStatus, errMsg string) error
}

// HistoryStore is the history repository surface this service needs.
type HistoryStore interface {
	Create(ctx context.Context, commandID uuid.UUID, snapshots []models.ChangeSnapshot, canUndo bool) (*models.CommandHistory, error)
	GetByCommandID(ctx context.Context, commandID uuid.UUID) (*models.CommandHistory, error)
}

// ConnectionStore resolves platform connections.
type ConnectionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformConnection, error)
}

// Decryptor recovers plaintext access tokens.
type Decryptor interface {
	DecryptString(ciphertext string) (string, error)
}

// Locker serializes execution per command. The redis client satisfies it.
type Locker interface {
	TryWithLock(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// Cache holds short-lived preview results. The redis client satisfies it.
type Cache interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Undoer reverts a completed command.
type Undoer interface {
	UndoCommand(ctx context.Context, commandID uuid.UUID) (*undo.Result, error)
}

// Config tunes the lifecycle service.
type Config struct {
	LockTTL    time.Duration // execution lock expiry
	PreviewTTL time.Duration // cached preview expiry
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LockTTL:    5 * time.Minute,
		PreviewTTL: 15 * time.Minute,
	}
}

// Service drives the command lifecycle.
type Service struct {
	commands    CommandStore
	history     HistoryStore
	connections ConnectionStore
	decryptor   Decryptor
	factory     platform.ClientFactory
	exec        *executor.Service
	undoer      Undoer
	locker      Locker
	cache       Cache
	publisher   events.Publisher
	cfg         Config
	log         *logger.Logger
}

// NewService wires the lifecycle service. locker and cache may be nil when
// Redis is disabled; publisher may be nil when NATS is disabled.
func NewService(
	commands CommandStore,
	history HistoryStore,
	connections ConnectionStore,
	decryptor Decryptor,
	factory platform.ClientFactory,
	exec *executor.Service,
	undoer Undoer,
	locker Locker,
	cache Cache,
	publisher events.Publisher,
	cfg Config,
	log *logger.Logger,
) *Service {
	if factory == nil {
		factory = platform.DefaultClientFactory
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	if cfg.PreviewTTL <= 0 {
		cfg.PreviewTTL = DefaultConfig().PreviewTTL
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
		exec:        exec,
		undoer:      undoer,
		locker:      locker,
		cache:       cache,
		publisher:   publisher,
		cfg:         cfg,
		log:         log.Named("command"),
	}
}

// PreviewRequest is a full preview submission: the connection to run
// against, the original intent text, and the interpreted action plan.
type PreviewRequest struct {
	ConnectionID uuid.UUID           `json:"connection_id"`
	Intent       string              `json:"intent"`
	Actions      []executor.Envelope `json:"actions"`
}

// PreviewOutcome is everything a caller needs to confirm or abandon a
// command: the persisted command, the field-level diffs, and the risk class.
type PreviewOutcome struct {
	Command   *models.Command          `json:"command"`
	Summary   string                   `json:"summary"`
	Diffs     []diff.Diff              `json:"diffs"`
	RiskLevel models.RiskLevel         `json:"risk_level"`
	Results   []*executor.ActionResult `json:"results"`
}

// ExecuteOutcome reports one execute run.
type ExecuteOutcome struct {
	Command     *models.Command          `json:"command"`
	Results     []*executor.ActionResult `json:"results"`
	ChangesMade bool                     `json:"changes_made"`
	CanUndo     bool                     `json:"can_undo"`
}

// Preview creates a command and dry-runs its action plan. Nothing is
// written to the platform; the parsed plan and risk class are persisted so
// Execute replays exactly what was shown.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewOutcome, error) {
	if req.Intent == "" {
		return nil, apperrors.InvalidInput("intent is required")
	}
	if len(req.Actions) == 0 {
		return nil, apperrors.InvalidInput("at least one action is required")
	}

	actions, err := executor.ParseActions(req.Actions)
	if err != nil {
		return nil, err
	}

	sess, err := s.session(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}

	cmd, err := s.commands.Create(ctx, req.ConnectionID, req.Intent)
	if err != nil {
		return nil, err
	}

	batch, err := s.exec.ExecuteAll(ctx, sess, actions, executor.ModePreview)
	if err != nil {
		return nil, err
	}

	current, proposed := collectStates(batch)
	diffs := diff.Generate(current, proposed)
	risk := diff.CalculateRisk(diffs)

	parsed, err := json.Marshal(req.Actions)
	if err != nil {
		return nil, fmt.Errorf("marshal action plan: %w", err)
	}
	if err := s.commands.SavePreview(ctx, cmd.ID, parsed, risk); err != nil {
		return nil, err
	}
	cmd.Status = models.CommandStatusPreviewed
	cmd.RiskLevel = risk
	raw := json.RawMessage(parsed)
	cmd.ParsedIntent = &raw

	outcome := &PreviewOutcome{
		Command:   cmd,
		Summary:   diff.Summarize(diffs),
		Diffs:     diffs,
		RiskLevel: risk,
		Results:   batch.Results,
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, redis.PreviewCacheKey(cmd.ID.String()), outcome, s.cfg.PreviewTTL); err != nil {
			s.log.Warnw("preview cache write failed", "command_id", cmd.ID, "error", err)
		}
	}
	s.publish(events.CommandEvent{
		CommandID:    cmd.ID,
		ConnectionID: cmd.ConnectionID,
		Status:       models.CommandStatusPreviewed,
		RiskLevel:    risk,
		Summary:      outcome.Summary,
	})
	return outcome, nil
}

// Execute runs a previewed command for real. The per-command lock and the
// compare-and-set transition together guarantee a plan executes at most
// once even when two callers confirm simultaneously.
func (s *Service) Execute(ctx context.Context, commandID uuid.UUID) (*ExecuteOutcome, error) {
	if s.locker == nil {
		return s.execute(ctx, commandID)
	}

	var outcome *ExecuteOutcome
	acquired, err := s.locker.TryWithLock(ctx, redis.ExecutionLock(commandID.String()), s.cfg.LockTTL, func(ctx context.Context) error {
		var execErr error
		outcome, execErr = s.execute(ctx, commandID)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperrors.NewConflictError("command is already executing")
	}
	return outcome, nil
}

func (s *Service) execute(ctx context.Context, commandID uuid.UUID) (*ExecuteOutcome, error) {
	cmd, err := s.commands.GetByID(ctx, commandID)
	if err != nil {
		return nil, err
	}
	if cmd.Status != models.CommandStatusPreviewed {
		return nil, apperrors.NewStateError(fmt.Sprintf("command is %s, preview it before executing", cmd.Status))
	}
	if cmd.ParsedIntent == nil {
		return nil, apperrors.NewStateError("command has no action plan")
	}

	var envs []executor.Envelope
	if err := json.Unmarshal(*cmd.ParsedIntent, &envs); err != nil {
		return nil, fmt.Errorf("decode action plan: %w", err)
	}
	actions, err := executor.ParseActions(envs)
	if err != nil {
		return nil, err
	}

	sess, err := s.session(ctx, cmd.ConnectionID)
	if err != nil {
		return nil, err
	}

	if err := s.commands.UpdateStatus(ctx, commandID, models.CommandStatusPreviewed, models.CommandStatusExecuting); err != nil {
		return nil, err
	}
	s.publish(events.CommandEvent{
		CommandID:    commandID,
		ConnectionID: cmd.ConnectionID,
		Status:       models.CommandStatusExecuting,
		RiskLevel:    cmd.RiskLevel,
	})

	batch, err := s.exec.ExecuteAll(ctx, sess, actions, executor.ModeExecute)
	if err != nil {
		// ExecuteAll only fails on wiring problems, not on platform errors.
		if markErr := s.commands.MarkExecuted(ctx, commandID, models.CommandStatusFailed, err.Error()); markErr != nil {
			s.log.Errorw("failed to mark command failed", "command_id", commandID, "error", markErr)
		}
		s.publish(events.CommandEvent{
			CommandID:    commandID,
			ConnectionID: cmd.ConnectionID,
			Status:       models.CommandStatusFailed,
		})
		return nil, err
	}

	canUndo := false
	for _, snap := range batch.Snapshots {
		if snap.ActionType == string(executor.KindUpdateProducts) || snap.ActionType == string(executor.KindApplyDiscount) {
			canUndo = true
			break
		}
	}
	if len(batch.Snapshots) > 0 {
		if _, err := s.history.Create(ctx, commandID, batch.Snapshots, canUndo); err != nil {
			// The platform writes already happened; losing the undo record
			// must not hide that from the caller.
			s.log.Errorw("failed to persist command history", "command_id", commandID, "error", err)
		}
	}

	status := models.CommandStatusCompleted
	errMsg := ""
	if failed, total := countFailures(batch); total > 0 && failed == total {
		status = models.CommandStatusFailed
		errMsg = fmt.Sprintf("all %d resource(s) failed", total)
	}
	if err := s.commands.MarkExecuted(ctx, commandID, status, errMsg); err != nil {
		return nil, err
	}
	cmd.Status = status
	cmd.Error = errMsg

	s.publish(events.CommandEvent{
		CommandID:    commandID,
		ConnectionID: cmd.ConnectionID,
		Status:       status,
		RiskLevel:    cmd.RiskLevel,
	})
	s.log.Infow("command executed",
		"command_id", commandID,
		"status", status,
		"snapshots", len(batch.Snapshots),
		"can_undo", canUndo,
	)

	return &ExecuteOutcome{
		Command:     cmd,
		Results:     batch.Results,
		ChangesMade: batch.ChangesMade,
		CanUndo:     canUndo && len(batch.Snapshots) > 0,
	}, nil
}

// Undo reverts a completed command under its own lock.
func (s *Service) Undo(ctx context.Context, commandID uuid.UUID) (*undo.Result, error) {
	run := func(ctx context.Context) (*undo.Result, error) {
		result, err := s.undoer.UndoCommand(ctx, commandID)
		if err != nil {
			return nil, err
		}
		cmd, getErr := s.commands.GetByID(ctx, commandID)
		if getErr == nil {
			s.publish(events.CommandEvent{
				CommandID:    commandID,
				ConnectionID: cmd.ConnectionID,
				Status:       models.CommandStatusUndone,
			})
		}
		return result, nil
	}

	if s.locker == nil {
		return run(ctx)
	}
	var result *undo.Result
	acquired, err := s.locker.TryWithLock(ctx, redis.UndoLock(commandID.String()), s.cfg.LockTTL, func(ctx context.Context) error {
		var undoErr error
		result, undoErr = run(ctx)
		return undoErr
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperrors.NewConflictError("command is already being undone")
	}
	return result, nil
}

// Get returns one command.
func (s *Service) Get(ctx context.Context, commandID uuid.UUID) (*models.Command, error) {
	return s.commands.GetByID(ctx, commandID)
}

// List returns commands matching the options.
func (s *Service) List(ctx context.Context, opts models.CommandListOptions) ([]*models.Command, error) {
	return s.commands.List(ctx, opts)
}

// History returns the undo record of a command.
func (s *Service) History(ctx context.Context, commandID uuid.UUID) (*models.CommandHistory, error) {
	return s.history.GetByCommandID(ctx, commandID)
}

// session resolves a connection, decrypts its token once, and returns an
// authenticated platform session.
func (s *Service) session(ctx context.Context, connectionID uuid.UUID) (*platform.Session, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive {
		return nil, apperrors.InvalidInput("connection is not active")
	}
	token, err := s.decryptor.DecryptString(conn.AccessTokenEncrypted)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to decrypt access token")
	}
	return platform.NewSession(conn, s.factory(conn, token)), nil
}

func (s *Service) publish(event events.CommandEvent) {
	if err := s.publisher.PublishCommandEvent(event); err != nil {
		s.log.Warnw("event publish failed", "command_id", event.CommandID, "status", event.Status, "error", err)
	}
}

// collectStates flattens a preview batch into parallel current/proposed
// resource lists for the diff engine.
func collectStates(batch *executor.BatchResult) (current, proposed []platform.Resource) {
	for _, res := range batch.Results {
		for _, r := range res.Results {
			if r.Before == nil && r.After == nil {
				continue
			}
			if r.Before != nil {
				current = append(current, r.Before)
				proposed = append(proposed, r.After)
			}
		}
	}
	return current, proposed
}

func countFailures(batch *executor.BatchResult) (failed, total int) {
	for _, res := range batch.Results {
		for _, r := range res.Results {
			total++
			if !r.Success {
				failed++
			}
		}
	}
	return failed, total
}
