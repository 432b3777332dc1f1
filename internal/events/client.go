// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package events publishes command lifecycle events over NATS so other
// systems can react to previews, executions, and undos without polling.
package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client wraps a NATS connection.
type Client struct {
	conn   *nats.Conn
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
}

// Config holds NATS client configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string
	// Name is the client name for identification
	Name string
	// Token for authentication
	Token string
	// Username for authentication
	Username string
	// Password for authentication
	Password string
	// TLS configuration
	TLSConfig *tls.Config
	// MaxReconnects is the maximum number of reconnect attempts (-1 for infinite)
	MaxReconnects int
	// ReconnectWait is the time to wait between reconnect attempts
	ReconnectWait time.Duration
	// Timeout is the connection timeout
	Timeout time.Duration
}

// DefaultConfig returns a default NATS configuration.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "tandril",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewClient creates a new NATS client. Connect must be called before use.
func NewClient(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: config,
		logger: logger.Named("events"),
	}
}

// Connect establishes a connection to the NATS server.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	opts := []nats.Option{
		nats.Name(c.config.Name),
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.Timeout(c.config.Timeout),
	}

	if c.config.Token != "" {
		opts = append(opts, nats.Token(c.config.Token))
	} else if c.config.Username != "" {
		opts = append(opts, nats.UserInfo(c.config.Username, c.config.Password))
	}
	if c.config.TLSConfig != nil {
		opts = append(opts, nats.Secure(c.config.TLSConfig))
	}

	opts = append(opts,
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			c.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS connection closed")
		}),
	)

	conn, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	c.conn = conn
	c.logger.Info("Connected to NATS", zap.String("url", conn.ConnectedUrl()))
	return nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Health checks the NATS connection health.
func (c *Client) Health(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return fmt.Errorf("NATS client not connected")
	}
	if !c.conn.IsConnected() {
		return fmt.Errorf("NATS connection is not active")
	}
	if err := c.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("NATS flush failed: %w", err)
	}
	return nil
}

// Publish publishes a message to a subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.Publish(subject, data)
}

// Subscribe subscribes to a subject.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	return conn.Subscribe(subject, handler)
}
