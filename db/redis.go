package db

import (
	"context"
	"fmt"
	"time"

	"songforge/config"

	redisv8 "github.com/go-redis/redis/v8"
	redisv9 "github.com/redis/go-redis/v9"
)

// ConnectRedis opens the cache client and verifies it with PING.
func ConnectRedis(cfg *config.Config) (*redisv8.Client, error) {
	client := redisv8.NewClient(&redisv8.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// ConnectStreamRedis opens the client used to publish generation jobs.
func ConnectStreamRedis(cfg *config.Config) (*redisv9.Client, error) {
	client := redisv9.NewClient(&redisv9.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis stream client: %w", err)
	}
	return client, nil
}

// CheckRedis 测试Redis连接和基本操作: write, read back and delete a probe key.
func CheckRedis(ctx context.Context, client *redisv8.Client) error {
	if client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	const probeKey = "songforge:probe"
	const probeValue = "Redis connection successful!"

	if err := client.Set(ctx, probeKey, probeValue, 5*time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}

	val, err := client.Get(ctx, probeKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get Redis key: %w", err)
	}
	if val != probeValue {
		return fmt.Errorf("unexpected value from Redis: got %s", val)
	}

	if err := client.Del(ctx, probeKey).Err(); err != nil {
		return fmt.Errorf("failed to delete Redis key: %w", err)
	}
	return nil
}
