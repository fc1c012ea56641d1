package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisBackend stores drafts in Redis so several API instances share them.
type RedisBackend struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisBackend connects and pings. A zero ttl keeps drafts until removed.
func NewRedisBackend(addr, password string, db int, ttl time.Duration) (*RedisBackend, error) {
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBackend{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, key, value, r.ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
