package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lockout throttles brute-force logins with redis counters. When no redis
// address is configured the zero-value policy is disabled and every call
// short-circuits, keeping login fully functional without the dependency.
type Lockout struct {
	client    *redis.Client
	threshold int64
	window    time.Duration
}

func NewLockout(addr string, threshold int, window time.Duration) *Lockout {
	if addr == "" {
		return &Lockout{}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	return &Lockout{client: rdb, threshold: int64(threshold), window: window}
}

// NewLockoutWithClient exists for tests (miniredis).
func NewLockoutWithClient(client *redis.Client, threshold int, window time.Duration) *Lockout {
	return &Lockout{client: client, threshold: int64(threshold), window: window}
}

func (l *Lockout) Enabled() bool { return l.client != nil }

func failureKey(username string) string {
	return fmt.Sprintf("login_failures:%s", username)
}

// IsLocked reports whether the username crossed the failure threshold
// inside the current window. Redis errors fail open: a throttle outage
// must not take login down with it.
func (l *Lockout) IsLocked(ctx context.Context, username string) bool {
	if l.client == nil {
		return false
	}
	count, err := l.client.Get(ctx, failureKey(username)).Int64()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		return false
	}
	return count >= l.threshold
}

// RecordFailure bumps the counter, starting the window on the first miss.
func (l *Lockout) RecordFailure(ctx context.Context, username string) error {
	if l.client == nil {
		return nil
	}
	key := failureKey(username)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window)
	}
	return nil
}

// Reset clears the counter after a successful login.
func (l *Lockout) Reset(ctx context.Context, username string) error {
	if l.client == nil {
		return nil
	}
	return l.client.Del(ctx, failureKey(username)).Err()
}

func (l *Lockout) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
