// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package redis provides the Redis client used for execution locks and
// short-lived caches. Nothing durable lives here; Postgres owns state.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis client
type Options struct {
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLSConfig    *tls.Config // TLS configuration (nil = no TLS override)
}

// DefaultOptions returns sensible default options
func DefaultOptions() Options {
	return Options{
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Client wraps redis.Client with additional functionality
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(ctx context.Context, url string, opts Options) (*Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if opts.PoolSize > 0 {
		options.PoolSize = opts.PoolSize
	}
	if opts.MinIdleConns > 0 {
		options.MinIdleConns = opts.MinIdleConns
	}
	if opts.DialTimeout > 0 {
		options.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		options.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		options.WriteTimeout = opts.WriteTimeout
	}
	if opts.TLSConfig != nil {
		options.TLSConfig = opts.TLSConfig
	}

	rdb := redis.NewClient(options)

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Redis returns the underlying redis.Client
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// HealthCheck performs a comprehensive health check
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	stats := c.rdb.PoolStats()
	if stats.TotalConns == 0 {
		return fmt.Errorf("no connections available")
	}

	return nil
}

// PoolStats returns connection pool statistics
func (c *Client) PoolStats() *redis.PoolStats {
	return c.rdb.PoolStats()
}

// GetVersion returns the Redis server version string by parsing INFO server.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	info, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return "", fmt.Errorf("redis info: %w", err)
	}
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "redis_version:") {
			return strings.TrimPrefix(line, "redis_version:"), nil
		}
	}
	return "", nil
}

// Key prefixing helpers

// WithPrefix creates a key with a prefix
func (c *Client) WithPrefix(prefix, key string) string {
	return fmt.Sprintf("%s:%s", prefix, key)
}

// CacheKey creates a cache key
func (c *Client) CacheKey(namespace, key string) string {
	return fmt.Sprintf("cache:%s:%s", namespace, key)
}

// LockKey creates a lock key
func (c *Client) LockKey(resource string) string {
	return c.WithPrefix("lock", resource)
}

// LockKey creates a lock key for a resource.
func LockKey(resource string) string {
	return "lock:" + resource
}

// ExecutionLock names the lock held while one command executes.
func ExecutionLock(commandID string) string {
	return "execute:" + commandID
}

// UndoLock names the lock held while one command is being undone.
func UndoLock(commandID string) string {
	return "undo:" + commandID
}

// PreviewCacheKey names the cached preview for one command.
func PreviewCacheKey(commandID string) string {
	return "preview:" + commandID
}
