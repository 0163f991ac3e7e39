package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/jamesbarnes665/compliGenie-backend/internal/cache"
	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const keyAuthFailure = "compligenie:ratelimit:auth_failure:"

// Decision is the outcome of one Allow call. RetryAfter is set on denial.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether one more event for key is allowed. On error the
// caller should fail open.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter applies a shared token bucket per key.
type RedisLimiter struct {
	bucket *tokenBucket
	prefix string
	rate   float64
	burst  int
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, r float64, burst int) *RedisLimiter {
	return &RedisLimiter{
		bucket: newTokenBucket(client),
		prefix: prefix,
		rate:   r,
		burst:  burst,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	decision, err := l.bucket.take(ctx, l.prefix+key, l.rate, l.burst)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	return decision, nil
}

// LocalLimiter keeps one x/time/rate limiter per key in process memory.
// Idle keys expire so the map stays bounded by recent clients.
type LocalLimiter struct {
	limiters cache.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
}

func NewLocalLimiter(r float64, burst int) *LocalLimiter {
	idle := time.Duration(float64(burst)/r*float64(time.Second)) * 2
	if idle < time.Minute {
		idle = time.Minute
	}
	return &LocalLimiter{
		limiters: cache.NewTTLCache[string, *rate.Limiter](),
		rate:     rate.Limit(r),
		burst:    burst,
		idleTTL:  idle,
	}
}

// Allow reserves a token and hands it back when it is not available yet, so a
// denial does not push the next slot further out.
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
	}
	l.limiters.Set(key, limiter, l.idleTTL)

	now := time.Now()
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}

// AuthFailureLimiter throttles repeated invalid credentials per client.
type AuthFailureLimiter struct {
	Limiter
}

// NewAuthFailureLimiter returns nil when rate limiting is disabled. It uses
// Redis when a client is configured and an in-process limiter otherwise.
func NewAuthFailureLimiter(cfg config.Config, client redis.UniversalClient) *AuthFailureLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || limitCfg.AuthFailureRate <= 0 || limitCfg.AuthFailureBurst <= 0 {
		return nil
	}
	if client != nil {
		return &AuthFailureLimiter{NewRedisLimiter(client, keyAuthFailure, limitCfg.AuthFailureRate, limitCfg.AuthFailureBurst)}
	}
	return &AuthFailureLimiter{NewLocalLimiter(limitCfg.AuthFailureRate, limitCfg.AuthFailureBurst)}
}

// ClientKey normalizes a client address into a limiter key.
func ClientKey(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}
	return ip
}
