package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// RedisTokens keeps the token under a single redis key.
type RedisTokens struct {
	r   *Redis
	key string
}

// NewRedisTokens returns a token store on r.
func NewRedisTokens(r *Redis, key string) *RedisTokens {
	return &RedisTokens{r: r, key: key}
}

func (t *RedisTokens) Load(ctx context.Context) (string, error) {
	v, err := t.r.Client.Get(ctx, t.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (t *RedisTokens) Save(ctx context.Context, token string) error {
	if err := t.r.Client.Set(ctx, t.key, token, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (t *RedisTokens) Clear(ctx context.Context) error {
	if err := t.r.Client.Del(ctx, t.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (t *RedisTokens) Close() error { return t.r.Client.Close() }
