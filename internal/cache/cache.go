// Package cache provides Redis-backed caching of last-known agent status.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Cache key prefix
	keyPrefix = "fieldlink:status:"
)

// StatusCache holds the last-known status of each agent with a TTL, so
// dashboards and co-located services can read it without touching the
// orchestrator. Entries expire on their own; this is a cache, not a store.
type StatusCache struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// New creates a Redis-backed status cache. ttl bounds how long a stale
// status survives an agent going quiet; zero means 10 minutes.
func New(redisURL string, ttl time.Duration, logger *slog.Logger) (*StatusCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &StatusCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}, nil
}

// SetStatus stores an agent's status snapshot under its ID.
func (c *StatusCache) SetStatus(ctx context.Context, agentID string, status any) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+agentID, data, c.ttl).Err()
}

// GetStatus retrieves an agent's status snapshot. Returns false if the
// entry is missing or expired.
func (c *StatusCache) GetStatus(ctx context.Context, agentID string, v any) (bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+agentID).Bytes()
	if err == redis.Nil {
		return false, nil // Cache miss
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes an agent's status entry.
func (c *StatusCache) Delete(ctx context.Context, agentID string) error {
	return c.client.Del(ctx, keyPrefix+agentID).Err()
}

// Close releases the Redis connection.
func (c *StatusCache) Close() error {
	return c.client.Close()
}
