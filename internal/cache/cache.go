package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

const reportKeyPrefix = "report:summary:"

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Report Cache Operations

// ReportScope names the cache entry for a summary visible to one user, or to everyone
func ReportScope(userID int64) string {
	if userID == 0 {
		return "all"
	}
	return fmt.Sprintf("user:%d", userID)
}

// SetReportSummary caches a detection summary
func (c *Cache) SetReportSummary(ctx context.Context, scope string, summary []*models.UserDetectionSummary, ttl time.Duration) error {
	return c.SetWithJSON(ctx, reportKeyPrefix+scope, summary, ttl)
}

// GetReportSummary returns a cached summary. ok is false on a cache miss.
func (c *Cache) GetReportSummary(ctx context.Context, scope string) ([]*models.UserDetectionSummary, bool, error) {
	var summary []*models.UserDetectionSummary
	found, err := c.GetWithJSON(ctx, reportKeyPrefix+scope, &summary)
	if err != nil || !found {
		return nil, false, err
	}
	return summary, true, nil
}

// InvalidateReports drops every cached summary
func (c *Cache) InvalidateReports(ctx context.Context) error {
	return c.DeletePattern(ctx, reportKeyPrefix+"*")
}

// Token Denylist Operations

// RevokeToken denies a token id until ttl elapses
func (c *Cache) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := fmt.Sprintf("token:revoked:%s", jti)
	return c.client.Set(ctx, key, "1", ttl).Err()
}

// IsTokenRevoked reports whether a token id was revoked
func (c *Cache) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return c.Exists(ctx, fmt.Sprintf("token:revoked:%s", jti))
}

// Locking Operations for Distributed Systems

// AcquireLock attempts to acquire a distributed lock
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// Batch Operations

// DeletePattern deletes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetWithJSON gets a value with JSON unmarshaling. It reports false on a cache miss.
func (c *Cache) GetWithJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return true, nil
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
