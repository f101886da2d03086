// Package ratelimit throttles repeated requests per key.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown allows one action per key per window.
type Cooldown interface {
	// Acquire reports whether the caller may act now. When it may not,
	// retryAfter tells how long the window still runs.
	Acquire(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// RedisCooldown keeps one expiring key per throttled subject.
type RedisCooldown struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func NewRedisCooldown(client *redis.Client, prefix string, window time.Duration) *RedisCooldown {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "cooldown"
	}
	return &RedisCooldown{client: client, prefix: prefix, window: window}
}

func (c *RedisCooldown) Acquire(ctx context.Context, key string) (bool, time.Duration, error) {
	if c.client == nil {
		return false, 0, errors.New("redis cooldown: nil client")
	}
	if c.window <= 0 {
		return true, 0, nil
	}

	full := c.prefix + ":" + key
	ok, err := c.client.SetNX(ctx, full, time.Now().Unix(), c.window).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis cooldown: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := c.client.PTTL(ctx, full).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis cooldown ttl: %w", err)
	}
	if ttl < 0 {
		ttl = c.window
	}
	return false, ttl, nil
}

// Unlimited never throttles. Used when Redis is not configured.
type Unlimited struct{}

func (Unlimited) Acquire(context.Context, string) (bool, time.Duration, error) {
	return true, 0, nil
}
