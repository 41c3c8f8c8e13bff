package deduplication

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BloomConfig configures the RedisBloom key
type BloomConfig struct {
	Key string // redis key for bloom filter
	TTL time.Duration
	// Capacity sets the initial BF.RESERVE capacity (number of items)
	Capacity int
	// ErrorRate sets the desired false positive probability (e.g. 0.001)
	ErrorRate float64
	// If true, BF.RESERVE NONSCALING flag will be used
	NonScaling bool
}

// RedisBloom is a minimal Redis-backed Bloom wrapper using RedisBloom commands
type RedisBloom struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisBloom wraps client and reserves the filter when the key is missing.
// A failing BF.RESERVE is not fatal: BF.ADD auto-creates the filter with
// module defaults.
func NewRedisBloom(ctx context.Context, client redis.UniversalClient, cfg BloomConfig) *RedisBloom {
	if cfg.Key == "" {
		cfg.Key = "contents:bloom"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100000
	}
	if cfg.ErrorRate <= 0 {
		cfg.ErrorRate = 0.001
	}

	rb := &RedisBloom{client: client, key: cfg.Key, ttl: cfg.TTL}

	exists, err := client.Exists(ctx, cfg.Key).Result()
	if err == nil && exists == 0 {
		// BF.RESERVE <key> <error_rate> <capacity> [NONSCALING]
		args := []interface{}{"BF.RESERVE", cfg.Key, fmt.Sprintf("%f", cfg.ErrorRate), cfg.Capacity}
		if cfg.NonScaling {
			args = append(args, "NONSCALING")
		}
		_ = client.Do(ctx, args...).Err()
	}
	return rb
}

// Exists checks whether hash may be present (BF.EXISTS).
func (r *RedisBloom) Exists(ctx context.Context, hash string) (bool, error) {
	res, err := r.client.Do(ctx, "BF.EXISTS", r.key, hash).Result()
	if err != nil {
		return false, err
	}

	switch v := res.(type) {
	case int64:
		return v == 1, nil
	case bool:
		return v, nil
	case string:
		return v == "1", nil
	default:
		return false, fmt.Errorf("unexpected BF.EXISTS response type %T: %v", res, res)
	}
}

// Add inserts hash and refreshes the key TTL.
func (r *RedisBloom) Add(ctx context.Context, hash string) error {
	if err := r.client.Do(ctx, "BF.ADD", r.key, hash).Err(); err != nil {
		return err
	}

	// Sliding window TTL behaviour: reset the expire on each add so that the
	// filter remains active for `ttl` after the most recent insertion.
	return r.client.Expire(ctx, r.key, r.ttl).Err()
}
