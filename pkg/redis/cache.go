package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":cache:" + k
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	fullKey := c.key(key)
	data, err := c.client.Redis().Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	fullKey := c.key(key)
	return c.client.Redis().Set(ctx, fullKey, data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	fullKey := c.key(key)
	return c.client.Redis().Del(ctx, fullKey).Err()
}

// GetOrSet retrieves from cache or calls fn to populate it.
// A failed cache write still returns fn's value.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	found, err := c.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	value, err := fn()
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal failed: %w", err)
	}

	if c.client.Enabled() {
		_ = c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
	}
	return nil
}

// Predefined TTLs
const (
	TTLSnapshot = 15 * time.Second // 엔진 스냅샷 (snapshot_publish 주기 5s의 3배)
	TTLCalendar = 24 * time.Hour   // 경제 캘린더
	TTLSummary  = 10 * time.Minute // 저널 요약
)

// SnapshotKey is the cache key of the latest engine snapshot for an instrument
func SnapshotKey(instrument string) string {
	return fmt.Sprintf("engine:snapshot:%s", instrument)
}

// CalendarKey is the cache key of the economic calendar for a date (YYYY-MM-DD)
func CalendarKey(date string) string {
	return fmt.Sprintf("calendar:%s", date)
}

// SummaryKey is the cache key of a journal summary for a session date
func SummaryKey(instrument, date string) string {
	return fmt.Sprintf("journal:summary:%s:%s", instrument, date)
}
