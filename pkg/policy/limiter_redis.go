package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript applies the token bucket atomically in Redis so
// multiple sentinel nodes share one write budget per fingerprint.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = current unix time (seconds)
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// RedisLimiterStore implements LimiterStore on Redis for multi-node
// deployments. Script evaluation goes through the Scripter interface so the
// bucket logic is testable without a live server.
type RedisLimiterStore struct {
	client  *redis.Client
	scripts redis.Scripter
	policy  LimiterPolicy
}

// NewRedisLimiterStore creates a Redis-backed limiter.
func NewRedisLimiterStore(addr, password string, db int, policy LimiterPolicy) *RedisLimiterStore {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &RedisLimiterStore{
		client:  client,
		scripts: client,
		policy:  policy,
	}
}

// Allow consumes cost tokens from the shared bucket. Errors propagate so the
// engine can fail toward throttle rather than minting capacity.
func (s *RedisLimiterStore) Allow(ctx context.Context, fingerprintID string, cost int) (bool, error) {
	key := "sentinel:write_budget:" + fingerprintID
	res, err := redisTokenBucketScript.Run(ctx, s.scripts, []string{key},
		s.policy.PerSecond, s.policy.Burst, cost, float64(time.Now().UnixMicro())/1e6).Result()
	if err != nil {
		return false, fmt.Errorf("policy: redis limiter: %w", err)
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("policy: redis limiter: unexpected reply %T", res)
	}
	return allowed == 1, nil
}

// Close releases the Redis connection.
func (s *RedisLimiterStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
