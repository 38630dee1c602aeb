package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter bounds sends per recipient over a sliding hourly window
type RateLimiter interface {
	Allow(ctx context.Context, channel, recipient string) error
}

// MemoryRateLimiter keeps counters in process. Each horizontally scaled
// processor instance carries its own budget; use the Redis limiter when that
// imprecision is not acceptable.
type MemoryRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limits map[string]int
	hits   map[string][]time.Time

	now func() time.Time
}

func NewMemoryRateLimiter(emailPerHour, smsPerHour int) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		window: time.Hour,
		limits: map[string]int{
			ChannelEmail: emailPerHour,
			ChannelSMS:   smsPerHour,
		},
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

func (rl *MemoryRateLimiter) Allow(ctx context.Context, channel, recipient string) error {
	limit, ok := rl.limits[channel]
	if !ok || limit <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := channel + ":" + recipient
	cutoff := rl.now().Add(-rl.window)

	recent := rl.hits[key][:0]
	for _, t := range rl.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= limit {
		rl.hits[key] = recent
		return fmt.Errorf("%w: %s %s (%d/h)", ErrRateLimited, channel, recipient, limit)
	}

	rl.hits[key] = append(recent, rl.now())
	return nil
}

// RedisRateLimiter shares counters across processor instances through Redis,
// using fixed hourly buckets that expire on their own.
type RedisRateLimiter struct {
	client *redis.Client
	limits map[string]int
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, emailPerHour, smsPerHour int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limits: map[string]int{
			ChannelEmail: emailPerHour,
			ChannelSMS:   smsPerHour,
		},
		window: time.Hour,
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, channel, recipient string) error {
	limit, ok := rl.limits[channel]
	if !ok || limit <= 0 {
		return nil
	}

	bucket := time.Now().Truncate(rl.window).Unix()
	key := fmt.Sprintf("ratelimit:%s:%s:%d", channel, recipient, bucket)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		// Fail open on Redis trouble rather than blocking all delivery
		return nil
	}
	if count == 1 {
		rl.client.Expire(ctx, key, rl.window)
	}

	if count > int64(limit) {
		return fmt.Errorf("%w: %s %s (%d/h)", ErrRateLimited, channel, recipient, limit)
	}
	return nil
}
