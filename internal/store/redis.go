package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs the store with an external cache using native per-key TTLs.
// Note for multi-instance deployments: Get followed by Put is not atomic,
// so check-then-act callers (room creation, the chat rate limiter) can
// race across instances. The backend does not hide that.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis connect: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) ListAppend(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.RPush(ctx, key, value).Err(); err != nil {
		return err
	}
	if ttl > 0 {
		return r.client.Expire(ctx, key, ttl).Err()
	}
	return nil
}

func (r *Redis) ListRange(ctx context.Context, key string) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (r *Redis) ListTrim(ctx context.Context, key string, max int) error {
	return r.client.LTrim(ctx, key, int64(-max), -1).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
