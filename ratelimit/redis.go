package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveScript prunes the sorted-set window and either records the call or
// returns the wait in milliseconds. Running it as one script keeps the
// check-and-record atomic across workers and processes.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return window - (now - tonumber(oldest[2])) + 1000
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 0
`)

// RedisStore shares limiter state between every worker and process.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. prefix namespaces all keys.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient creates a client and verifies connectivity.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisStore) windowKey(provider string) string {
	return r.prefix + ":window:" + provider
}

func (r *RedisStore) quotaKey(provider, day string) string {
	return r.prefix + ":quota:" + provider + ":" + day
}

func (r *RedisStore) Reserve(ctx context.Context, provider string, now time.Time, max int, window time.Duration) (time.Duration, error) {
	ms, err := reserveScript.Run(ctx, r.client,
		[]string{r.windowKey(provider)},
		now.UnixMilli(), window.Milliseconds(), max, uuid.NewString(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("reserve %s: %w", provider, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (r *RedisStore) QuotaExceeded(ctx context.Context, provider, day string) (bool, error) {
	n, err := r.client.Exists(ctx, r.quotaKey(provider, day)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetQuotaExceeded stores the flag with an absolute expiry so it disappears at
// day rollover without a sweeper.
func (r *RedisStore) SetQuotaExceeded(ctx context.Context, provider, day string, until time.Time) error {
	return r.client.SetArgs(ctx, r.quotaKey(provider, day), "1", redis.SetArgs{ExpireAt: until}).Err()
}

func (r *RedisStore) ResetQuota(ctx context.Context, provider, day string) error {
	return r.client.Del(ctx, r.quotaKey(provider, day)).Err()
}

func (r *RedisStore) WindowLen(ctx context.Context, provider string) (int, error) {
	n, err := r.client.ZCard(ctx, r.windowKey(provider)).Result()
	return int(n), err
}
