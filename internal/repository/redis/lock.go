// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock errors.
var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// releaseScript deletes the key only when it still holds our value, so an
// expired lock reacquired by someone else is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// extendScript refreshes the TTL only while we still hold the lock.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

// Lock is a single-holder distributed lock. The value is a random token per
// Lock instance; only the instance that acquired can release or extend.
type Lock struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

// LockOptions configures AcquireWithRetry.
type LockOptions struct {
	RetryCount int
	RetryDelay time.Duration
	TTL        time.Duration
}

// NewLock creates a lock handle for a resource. Nothing is acquired yet.
func (c *Client) NewLock(resource string, ttl time.Duration) *Lock {
	return &Lock{
		client: c,
		key:    c.LockKey(resource),
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Key returns the full Redis key of the lock.
func (l *Lock) Key() string {
	return l.key
}

// TTL returns the configured expiry.
func (l *Lock) TTL() time.Duration {
	return l.ttl
}

// Acquire takes the lock or fails immediately with ErrLockNotAcquired.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.client.rdb.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}
	return nil
}

// AcquireWithRetry retries Acquire until it succeeds, the retries are
// exhausted, or the context is cancelled.
func (l *Lock) AcquireWithRetry(ctx context.Context, opts LockOptions) error {
	if opts.TTL > 0 {
		l.ttl = opts.TTL
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= opts.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		lastErr = l.Acquire(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrLockNotAcquired) {
			return lastErr
		}
	}
	return lastErr
}

// Release gives the lock back. Releasing a lock this instance does not hold
// fails with ErrLockNotHeld.
func (l *Lock) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.value).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend refreshes the TTL while the lock is held.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := extendScript.Run(ctx, l.client.rdb, []string{l.key}, l.value, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	l.ttl = ttl
	return nil
}

// IsHeld reports whether this instance currently holds the lock.
func (l *Lock) IsHeld(ctx context.Context) (bool, error) {
	val, err := l.client.rdb.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check lock: %w", err)
	}
	return val == l.value, nil
}

// WithLock runs fn while holding the resource lock and always releases it
// afterwards. fn's error passes through.
func (c *Client) WithLock(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock := c.NewLock(resource, ttl)
	if err := lock.Acquire(ctx); err != nil {
		return err
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}

// TryWithLock runs fn only if the lock is free. The bool reports whether the
// lock was acquired and fn ran.
func (c *Client) TryWithLock(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	lock := c.NewLock(resource, ttl)
	if err := lock.Acquire(ctx); err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return false, nil
		}
		return false, err
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	return true, fn(ctx)
}
