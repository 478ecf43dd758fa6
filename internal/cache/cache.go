package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/telemetry"
)

const keyPrefix = "webshop:metrics:"

// Cache keeps computed order metrics in Redis until the next load.
// A Cache without a client does nothing.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a cache; client may be nil to disable caching.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: client, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// IsEnabled returns whether a Redis client is attached.
func (c *Cache) IsEnabled() bool {
	return c != nil && c.redis != nil
}

func (c *Cache) key(name string) string {
	return keyPrefix + name
}

// Get looks up metrics stored under name.
func (c *Cache) Get(ctx context.Context, name string) (*analytics.Metrics, bool, error) {
	if !c.IsEnabled() {
		return nil, false, nil
	}
	data, err := c.redis.Get(ctx, c.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		telemetry.CacheLookupsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to get metrics: %w", err)
	}

	var m analytics.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		telemetry.CacheLookupsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	telemetry.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return &m, true, nil
}

// Set stores metrics under name with the configured TTL.
func (c *Cache) Set(ctx context.Context, name string, m analytics.Metrics) error {
	if !c.IsEnabled() {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if err := c.redis.Set(ctx, c.key(name), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set metrics: %w", err)
	}
	return nil
}

// Invalidate drops every cached entry.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	var keys []string
	iter := c.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan metrics keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete metrics keys: %w", err)
	}
	return nil
}
