package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements sliding window rate limiting shared across processes
// ⭐ SSOT: 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	Key    string        // Unique identifier (e.g., "calendar")
	Limit  int           // Maximum requests allowed
	Window time.Duration // Time window
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // 거절 시 가장 오래된 요청이 창을 벗어날 때까지
}

// slidingWindow keeps one sorted-set member per request scored by its ms timestamp.
// 같은 ms 의 요청이 덮어써지지 않도록 member 에 시퀀스를 붙임
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)

	local count = redis.call('ZCARD', key)
	if count < limit then
		local seq = redis.call('INCR', key .. ':seq')
		redis.call('ZADD', key, now, now .. '-' .. seq)
		redis.call('PEXPIRE', key, window_ms)
		redis.call('PEXPIRE', key .. ':seq', window_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry = window_ms
	if oldest[2] then
		retry = tonumber(oldest[2]) + window_ms - now
	end
	return {0, 0, retry}
`)

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
	}
}

// Check records a request if the window has room
func (r *RateLimiter) Check(ctx context.Context, cfg RateLimitConfig) (Decision, error) {
	if !r.client.Enabled() {
		// Redis 미사용: 제한 없음
		return Decision{Allowed: true, Remaining: cfg.Limit}, nil
	}

	key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, cfg.Key)
	result, err := slidingWindow.Run(ctx, r.client.Redis(), []string{key},
		time.Now().UnixMilli(),
		cfg.Window.Milliseconds(),
		cfg.Limit,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(result) != 3 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(result))
	}

	return Decision{
		Allowed:    result[0] == 1,
		Remaining:  int(result[1]),
		RetryAfter: time.Duration(result[2]) * time.Millisecond,
	}, nil
}

// Allow checks if a request is allowed under the rate limit
// Returns (allowed, remaining, error)
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	d, err := r.Check(ctx, cfg)
	return d.Allowed, d.Remaining, err
}

// Wait blocks until a request is allowed or context is cancelled.
// Rejections sleep until the oldest request leaves the window.
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	for {
		d, err := r.Check(ctx, cfg)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		wait := d.RetryAfter
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Predefined rate limit configs for external APIs
var (
	// 경제 캘린더 페이지: 분당 6회 (보수적)
	CalendarRateLimit = RateLimitConfig{
		Key:    "calendar",
		Limit:  6,
		Window: time.Minute,
	}
)
