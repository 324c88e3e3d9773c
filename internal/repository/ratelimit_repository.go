package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "auth:ratelimit:"

// rateLimitScript increments the window counter and stamps the expiry on
// first hit in a single atomic step, then returns the count and the
// remaining window in milliseconds. Doing this server-side means two
// concurrent requests can never both observe the pre-increment count.
var rateLimitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RateLimitRepository maintains fixed-window counters in Redis.
type RateLimitRepository struct {
	client *redis.Client
}

// NewRateLimitRepository constructs a rate limit repository.
func NewRateLimitRepository(client *redis.Client) *RateLimitRepository {
	return &RateLimitRepository{client: client}
}

// IncrementWindow bumps the counter for the key, setting the window expiry
// when the bucket is new. Returns the post-increment count and the time
// left until the bucket resets.
func (r *RateLimitRepository) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := rateLimitScript.Run(ctx, r.client, []string{rateLimitKeyPrefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment rate limit window: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}

	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// Reset clears the counter for a key. Runs when an administrator clears a
// lockout, so the pair's window opens along with the account.
func (r *RateLimitRepository) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, rateLimitKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit window: %w", err)
	}
	return nil
}
