// Package revocation stores revoked tokens until their natural expiry.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// Redis keeps revocation entries as plain keys with a TTL.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Set writes key with the given TTL. A non-positive TTL is rejected since the
// entry would never expire.
func (r *Redis) Set(ctx context.Context, key, marker string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("revocation: ttl must be positive")
	}
	if err := r.client.Set(ctx, key, marker, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// DeleteAll removes every key under prefix and returns how many were deleted.
// Keys are collected before any DEL so the SCAN cursor walks a stable keyspace.
func (r *Redis) DeleteAll(ctx context.Context, prefix string) (int64, error) {
	keys, err := r.keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var deleted int64
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		n, err := r.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis del: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}

// Count returns the number of keys under prefix.
func (r *Redis) Count(ctx context.Context, prefix string) (int64, error) {
	keys, err := r.keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// keys lists the distinct keys under prefix; SCAN may return a key twice.
func (r *Redis) keys(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	err := r.scan(ctx, prefix, func(batch []string) error {
		for _, k := range batch {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		return nil
	})
	return out, err
}

// Ping checks connectivity for readiness probes.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) scan(ctx context.Context, prefix string, fn func(keys []string) error) error {
	if prefix == "" {
		return errors.New("revocation: prefix is required")
	}
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
