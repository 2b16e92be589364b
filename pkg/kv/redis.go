package kv

import (
	"context"
	"errors"
	"fmt"

	pkgredis "github.com/MwailaCoding/storefront/pkg/redis"
)

// RedisStore persists slots as plain string values under sf:slot:<key>.
type RedisStore struct {
	client *pkgredis.Client
}

func NewRedisStore(client *pkgredis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.client.SlotKey(key))
	if errors.Is(err, pkgredis.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return []byte(value), nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.client.SlotKey(key), string(value), 0); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.client.SlotKey(key)); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
