package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type RedisStorage struct {
	cfg    RedisConfig
	client *redis.Client
}

func NewRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.User,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	return &RedisStorage{
		cfg:    cfg,
		client: client,
	}, nil
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (r *RedisStorage) Set(ctx context.Context, key string, value string, expiry time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, key, value, expiry).Err()
}

// SetNX stores value only when key is absent and reports whether it did.
func (r *RedisStorage) SetNX(ctx context.Context, key string, value string, expiry time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.client.SetNX(ctx, key, value, expiry).Result()
}

// IncrWithExpiry increments key and starts its expiry on first use, so a
// counter lives for exactly one window.
func (r *RedisStorage) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
