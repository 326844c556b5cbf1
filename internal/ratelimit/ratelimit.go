package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/supertypeai/sectors-corporate-actions/internal/metrics"
)

// Limiter throttles outbound requests per key. Wait blocks until a request may proceed.
type Limiter interface {
	Wait(ctx context.Context, key string) error
	Close() error
}

// slidingWindow atomically trims expired entries and admits a request if the window has room.
const slidingWindow = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('EXPIRE', key, ttl)
		return 1
	end
	return 0
`

// RedisLimiter is a sliding-window limiter shared by every process using the same redis.
// It keeps concurrent runs on different hosts under one request budget for the source.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	poll   time.Duration
	now    func() time.Time
}

// NewRedisLimiter admits at most limit requests per window for each key.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	poll := window / time.Duration(max(limit, 1))
	if poll < 50*time.Millisecond {
		poll = 50 * time.Millisecond
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		poll:   poll,
		now:    time.Now,
	}
}

// Allow reports whether one more request fits in the current window.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	ttl := int64(r.window.Seconds()) + 1

	member := uuid.NewString()

	result, err := r.client.Eval(ctx, slidingWindow, []string{r.key(key)}, now, windowStart, r.limit, ttl, member).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}

// Wait polls Allow until it succeeds or ctx is done.
func (r *RedisLimiter) Wait(ctx context.Context, key string) error {
	counted := false
	for {
		ok, err := r.Allow(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !counted {
			metrics.ThrottleWaits.WithLabelValues(key).Inc()
			counted = true
		}
		timer := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Close is a no-op: the redis client is owned by the caller.
func (r *RedisLimiter) Close() error {
	return nil
}

func (r *RedisLimiter) key(k string) string {
	return r.prefix + ":ratelimit:" + k
}

// TokenBucket is an in-process limiter with one bucket per key.
type TokenBucket struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewTokenBucket spreads requests evenly over window, allowing a burst of one.
func NewTokenBucket(requests int, window time.Duration) *TokenBucket {
	if requests <= 0 {
		requests = 1
	}
	return &TokenBucket{
		limit:    rate.Limit(float64(requests) / window.Seconds()),
		burst:    1,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *TokenBucket) Wait(ctx context.Context, key string) error {
	l := t.get(key)
	if !l.Allow() {
		metrics.ThrottleWaits.WithLabelValues(key).Inc()
		return l.Wait(ctx)
	}
	return nil
}

func (t *TokenBucket) Close() error {
	return nil
}

func (t *TokenBucket) get(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[key] = l
	}
	return l
}

// NoOpLimiter never blocks (for tests or disabled throttling).
type NoOpLimiter struct{}

func (NoOpLimiter) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (NoOpLimiter) Close() error {
	return nil
}
