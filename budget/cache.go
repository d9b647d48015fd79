// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dynamo-works/claude-engine/shared/logger"
)

// cacheTTL bounds staleness of the enforcement hot path. The counter is the
// source of truth; the cache only smooths read load.
const cacheTTL = 30 * time.Second

// Cache is an optional Redis-backed cache of budget status reads. Every
// cache fault degrades to the database.
type Cache struct {
	client *redis.Client
	log    *logger.Logger
}

// NewCache connects to Redis. An empty redisURL returns (nil, nil): caching
// disabled.
func NewCache(ctx context.Context, redisURL string) (*Cache, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Cache{client: client, log: logger.New("budget-cache")}, nil
}

// Close shuts down the Redis connection
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func cacheKey(userID string, periodStart time.Time) string {
	return "budget:" + userID + ":" + FormatDate(periodStart)
}

// Get returns a cached status, or false on miss or fault
func (c *Cache) Get(ctx context.Context, userID string, periodStart time.Time) (*Status, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, cacheKey(userID, periodStart)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("", "budget cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false
	}
	return &st, true
}

// Set stores a status with the cache TTL. Failures are logged and ignored.
func (c *Cache) Set(ctx context.Context, userID string, periodStart time.Time, st *Status) {
	if c == nil {
		return
	}

	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(userID, periodStart), data, cacheTTL).Err(); err != nil {
		c.log.Warn("", "budget cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// Invalidate drops the cached status after a usage write
func (c *Cache) Invalidate(ctx context.Context, userID string, periodStart time.Time) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(userID, periodStart)).Err(); err != nil {
		c.log.Warn("", "budget cache invalidate failed", map[string]interface{}{"error": err.Error()})
	}
}
