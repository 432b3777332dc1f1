// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ResourceRef is a typed reference to one external platform resource.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Resource types used in affected-resource references.
const (
	ResourceTypeProduct   = "product"
	ResourceTypeVariant   = "variant"
	ResourceTypeListing   = "listing"
	ResourceTypeInventory = "inventory_item"
	ResourceTypeDiscount  = "discount"
)

// ChangeSnapshot is the captured before/after state of one external resource.
// It is the unit of undo and is created only by successful EXECUTE-mode
// actions that actually changed something. Preview runs never produce one.
type ChangeSnapshot struct {
	ActionType        string           `json:"action_type"`
	ConnectionID      uuid.UUID        `json:"connection_id"`
	BeforeState       *json.RawMessage `json:"before_state,omitempty"`
	AfterState        *json.RawMessage `json:"after_state,omitempty"`
	AffectedResources []ResourceRef    `json:"affected_resources"`
}

// CommandHistory is the durable undo record for one EXECUTE run. A row exists
// only when the run produced at least one snapshot; can_undo is set at
// creation and never re-evaluated. UndoneAt is set exactly once and never
// cleared.
type CommandHistory struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	CommandID       uuid.UUID        `json:"command_id" db:"command_id"`
	ChangeSnapshots []ChangeSnapshot `json:"change_snapshots" db:"change_snapshots"`
	CanUndo         bool             `json:"can_undo" db:"can_undo"`
	ExecutedAt      time.Time        `json:"executed_at" db:"executed_at"`
	UndoneAt        *time.Time       `json:"undone_at,omitempty" db:"undone_at"`
}
