package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "livetrack:rl:"

// RateLimiter - фиксированное окно на INCR, общее для всех инстансов api.
// Счётчик живёт в ключе <prefix><subject>:<номер окна>.
type RateLimiter struct {
	c   *redis.Client
	now func() time.Time
}

func NewRateLimiter(addr string) *RateLimiter {
	return NewRateLimiterFromClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewRateLimiterFromClient(c *redis.Client) *RateLimiter {
	return &RateLimiter{c: c, now: time.Now}
}

func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Allow counts one hit for subject in the current window and reports whether it fits the limit
// together with the hit count so far.
func (rl *RateLimiter) Allow(ctx context.Context, subject string, limit int64, window time.Duration) (bool, int64, error) {
	if window <= 0 {
		window = time.Minute
	}
	key := windowKey(subject, rl.now(), window)

	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// запас на расхождение часов между инстансами
	pipe.Expire(ctx, key, window+10*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func windowKey(subject string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s%s:%d", rateLimitPrefix, subject, now.UnixNano()/int64(window))
}
