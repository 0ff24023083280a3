package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type (
	RedisConfig struct {
		Addr      string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password  string `yaml:"password" env:"REDIS_PASSWORD"`
		DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
		KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"marquee:"`
	}

	redisStorage struct {
		client *redis.Client
		prefix string
	}
)

// NewRedisStorage connects to the Redis server described by the config. Keys
// are namespaced using the configured prefix so that Marquee can share a
// Redis instance with other applications. Values never expire.
func NewRedisStorage(config RedisConfig) (*redisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	log.Infof("Redis storage connected (%s)\n", config.Addr)
	return &redisStorage{client: client, prefix: config.KeyPrefix}, nil
}

func (store *redisStorage) Get(ctx context.Context, key string) (string, error) {
	val, err := store.client.Get(ctx, store.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to read storage key %s: %w", key, err)
	}

	return val, nil
}

func (store *redisStorage) Set(ctx context.Context, key string, value string) error {
	if err := store.client.Set(ctx, store.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write storage key %s: %w", key, err)
	}

	return nil
}

func (store *redisStorage) Remove(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, store.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove storage key %s: %w", key, err)
	}

	return nil
}

func (store *redisStorage) Close() error { return store.client.Close() }
