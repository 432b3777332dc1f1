// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CommandStatus is the lifecycle state of a bulk-change command.
type CommandStatus string

// Command lifecycle states. Status advances monotonically; UNDONE is
// reachable only from COMPLETED and at most once.
const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusPreviewed CommandStatus = "previewed"
	CommandStatusExecuting CommandStatus = "executing"
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
	CommandStatusUndone    CommandStatus = "undone"
)

// Valid reports whether s is a known lifecycle state.
func (s CommandStatus) Valid() bool {
	switch s {
	case CommandStatusPending, CommandStatusPreviewed, CommandStatusExecuting,
		CommandStatusCompleted, CommandStatusFailed, CommandStatusUndone:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s CommandStatus) CanTransitionTo(next CommandStatus) bool {
	switch s {
	case CommandStatusPending:
		return next == CommandStatusPreviewed || next == CommandStatusExecuting
	case CommandStatusPreviewed:
		return next == CommandStatusExecuting
	case CommandStatusExecuting:
		return next == CommandStatusCompleted || next == CommandStatusFailed
	case CommandStatusCompleted:
		return next == CommandStatusUndone
	default:
		return false
	}
}

// RiskLevel is the coarse impact classification of a command's diff.
type RiskLevel string

// Risk levels.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Command is a user-issued bulk-change request with a lifecycle status.
// The intent text comes from an upstream interpreter; tandril never parses
// natural language itself.
type Command struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	ConnectionID uuid.UUID        `json:"connection_id" db:"connection_id"`
	Intent       string           `json:"intent" db:"intent"`
	ParsedIntent *json.RawMessage `json:"parsed_intent,omitempty" db:"parsed_intent"`
	Status       CommandStatus    `json:"status" db:"status"`
	RiskLevel    RiskLevel        `json:"risk_level,omitempty" db:"risk_level"`
	Error        string           `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
	ExecutedAt   *time.Time       `json:"executed_at,omitempty" db:"executed_at"`
}

// CommandListOptions provides filtering/pagination for listing commands.
type CommandListOptions struct {
	ConnectionID *uuid.UUID
	Status       CommandStatus
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}
