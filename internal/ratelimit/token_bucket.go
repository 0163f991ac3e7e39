package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket state lives in one hash per key. Redis truncates Lua numbers in
// replies, so the script answers in whole milliseconds.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now_ms = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "updated_ms")
local tokens = tonumber(state[1]) or burst
local updated = tonumber(state[2]) or now_ms
local elapsed = math.max(0, now_ms - updated)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local retry_ms = 0
if tokens >= 1 then
  tokens = tokens - 1
else
  retry_ms = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "updated_ms", tostring(now_ms))
redis.call("PEXPIRE", KEYS[1], ttl_ms)

if retry_ms > 0 then
  return {0, retry_ms}
end
return {1, 0}
`

var errBucketNotConfigured = errors.New("token bucket not configured")

// tokenBucket is a Redis-backed token bucket shared by every replica.
type tokenBucket struct {
	client redis.UniversalClient
	script *redis.Script
}

func newTokenBucket(client redis.UniversalClient) *tokenBucket {
	if client == nil {
		return nil
	}
	return &tokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *tokenBucket) take(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	switch {
	case t == nil || t.client == nil:
		return Decision{}, errBucketNotConfigured
	case key == "":
		return Decision{}, errors.New("token bucket key is empty")
	case rate <= 0 || burst <= 0:
		return Decision{}, fmt.Errorf("token bucket needs positive rate and burst, got %v/%d", rate, burst)
	}

	ttl := bucketTTL(rate, burst)
	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) != 2 {
		return Decision{}, fmt.Errorf("token bucket: unexpected reply %v", reply)
	}

	return Decision{
		Allowed:    reply[0] == 1,
		RetryAfter: time.Duration(reply[1]) * time.Millisecond,
	}, nil
}

// bucketTTL keeps an idle bucket for twice the time it takes to refill.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	return time.Duration(max(seconds, 1)) * time.Second
}
