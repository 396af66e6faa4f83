package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/flof/backend/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "flof")

	allowed, remaining, err := limiter.Allow(context.Background(), CalendarRateLimit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, CalendarRateLimit.Limit, remaining)
	assert.NoError(t, limiter.Wait(context.Background(), CalendarRateLimit))
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "flof")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, SnapshotKey("ES"), map[string]int{"positions": 1}, TTLSnapshot))

	var result map[string]int
	found, err := cache.Get(ctx, SnapshotKey("ES"), &result)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_GetOrSet_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "flof")

	calls := 0
	var out []string
	err := cache.GetOrSet(context.Background(), CalendarKey("2026-03-06"), &out, TTLCalendar, func() (interface{}, error) {
		calls++
		return []string{"NFP"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"NFP"}, out)
}

func TestCache_RoundTrip(t *testing.T) {
	if os.Getenv("REDIS_HOST") == "" {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}

	client, err := New(&config.Config{Redis: config.RedisConfig{
		Enabled: true,
		Host:    os.Getenv("REDIS_HOST"),
		Port:    "6379",
	}})
	require.NoError(t, err)
	defer client.Close()

	cache := NewCache(client, "flof_test")
	ctx := context.Background()
	key := SnapshotKey("TEST")

	require.NoError(t, cache.Set(ctx, key, map[string]string{"state": "KILL"}, time.Minute))
	defer cache.Delete(ctx, key)

	var got map[string]string
	found, err := cache.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "KILL", got["state"])
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"SnapshotKey", SnapshotKey("ES"), "engine:snapshot:ES"},
		{"CalendarKey", CalendarKey("2026-01-15"), "calendar:2026-01-15"},
		{"SummaryKey", SummaryKey("NQ", "2026-01-15"), "journal:summary:NQ:2026-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestDisabled(t *testing.T) {
	client := Disabled()
	assert.False(t, client.Enabled())
	assert.Nil(t, client.Redis())

	d, err := NewRateLimiter(client, "flof").Check(context.Background(), CalendarRateLimit)
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: CalendarRateLimit.Limit}, d)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	if os.Getenv("REDIS_HOST") == "" {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}

	client, err := New(&config.Config{Redis: config.RedisConfig{
		Enabled: true,
		Host:    os.Getenv("REDIS_HOST"),
		Port:    "6379",
	}})
	require.NoError(t, err)
	defer client.Close()

	cfg := RateLimitConfig{Key: "test_" + time.Now().Format("150405.000000"), Limit: 3, Window: 2 * time.Second}
	limiter := NewRateLimiter(client, "flof_test")
	ctx := context.Background()

	// 연속 호출은 같은 ms 에 들어올 수 있음
	for i := 0; i < 3; i++ {
		d, err := limiter.Check(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := limiter.Check(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, cfg.Window)
}
