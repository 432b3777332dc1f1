// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
)

// Subject prefix for command lifecycle events. The lifecycle state is the
// last token, e.g. "tandril.commands.completed".
const commandSubjectPrefix = "tandril.commands."

// CommandEvent is the payload published on every lifecycle transition.
type CommandEvent struct {
	CommandID    uuid.UUID            `json:"command_id"`
	ConnectionID uuid.UUID            `json:"connection_id"`
	Status       models.CommandStatus `json:"status"`
	RiskLevel    models.RiskLevel     `json:"risk_level,omitempty"`
	Summary      string               `json:"summary,omitempty"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// CommandSubject returns the subject for a lifecycle state.
func CommandSubject(status models.CommandStatus) string {
	return commandSubjectPrefix + string(status)
}

// Publisher emits command lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishCommandEvent(event CommandEvent) error
}

// NATSPublisher publishes events over a NATS connection.
type NATSPublisher struct {
	client *Client
	logger *zap.Logger
}

// NewPublisher creates a NATS-backed publisher.
func NewPublisher(client *Client, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{client: client, logger: logger.Named("events")}
}

// PublishCommandEvent publishes the event on its lifecycle subject. A
// publish failure is reported but callers treat events as advisory; the
// command pipeline never rolls back because a message did not go out.
func (p *NATSPublisher) PublishCommandEvent(event CommandEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal command event: %w", err)
	}

	subject := CommandSubject(event.Status)
	if err := p.client.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("published command event",
		zap.String("subject", subject),
		zap.String("command_id", event.CommandID.String()),
	)
	return nil
}

// NopPublisher drops every event. Used in tests and when NATS is disabled.
type NopPublisher struct{}

// PublishCommandEvent implements Publisher.
func (NopPublisher) PublishCommandEvent(CommandEvent) error { return nil }
