package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter used to shield the submit endpoints.
// It guards the API edge only; job state never touches redis.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

// Reset drops the counter for key so the next call starts a fresh window.
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, key)
}

// SubmitKey buckets submissions per caller address.
func SubmitKey(remoteAddr string) string {
	return fmt.Sprintf("rate_limit:submit:%s", remoteAddr)
}
