// Package ratelimit provides per-tenant/per-user token-bucket rate limiting
// for the Gateway, backed by x/time/rate in-process and optionally fronted
// by a redis counter so limits hold across multiple Gateway replicas.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter owns one token bucket per key (a client IP, or tenant_id|user_id),
// created lazily and never evicted explicitly — callers size rps/burst
// small enough that the per-key map stays bounded by the number of active
// tenants/users, mirroring the teacher's identity/cache.go sizing instinct.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int

	redis *redis.Client // optional cross-replica counter
}

type Option func(*Limiter)

func WithRedis(rdb *redis.Client) Option { return func(l *Limiter) { l.redis = rdb } }

func New(rps float64, burst int, opts ...Option) *Limiter {
	l := &Limiter{buckets: make(map[string]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether key may proceed now, consulting the in-process
// bucket first (cheap, always correct for a single replica) and, if a redis
// client is configured, a fixed-window counter shared across replicas.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if !l.bucket(key).Allow() {
		return false
	}
	if l.redis == nil {
		return true
	}
	return l.allowDistributed(ctx, key)
}

// allowDistributed implements a fixed-window counter in redis: INCR the
// current window's key, EXPIRE it on first increment, reject once the
// one-second window's count exceeds rps + burst.
func (l *Limiter) allowDistributed(ctx context.Context, key string) bool {
	const window = time.Second
	windowKey := "ratelimit:" + key + ":" + time.Now().Truncate(window).Format(time.RFC3339)
	count, err := l.redis.Incr(ctx, windowKey).Result()
	if err != nil {
		return true // fail open on redis unavailability; in-process bucket already applied
	}
	if count == 1 {
		l.redis.Expire(ctx, windowKey, window)
	}
	limit := int64(l.rps) + int64(l.burst)
	return count <= limit
}
