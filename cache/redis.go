package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(address, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:            address,
		Password:        password,
		DB:              db,
		PoolSize:        20,
		MinIdleConns:    2,
		ConnMaxIdleTime: 5 * time.Minute,
		DialTimeout:     time.Second,
		ReadTimeout:     500 * time.Millisecond,
		WriteTimeout:    500 * time.Millisecond,
		MaxRetries:      2,
	})
	return &RedisStore{client: client}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Get(ctx context.Context, provider, account string) (string, bool, error) {
	token, err := r.client.Get(ctx, tokenKey(provider, account)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Put skips tokens that would expire within the skew window
func (r *RedisStore) Put(ctx context.Context, provider, account, token string, expiresAt time.Time) error {
	d := ttl(expiresAt, time.Now())
	if d <= 0 {
		return nil
	}
	return r.client.Set(ctx, tokenKey(provider, account), token, d).Err()
}

func (r *RedisStore) Delete(ctx context.Context, provider, account string) error {
	return r.client.Del(ctx, tokenKey(provider, account)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
