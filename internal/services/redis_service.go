package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "reflex:pathways:snapshot"

// RedisService mirrors the pathway snapshot document to Redis so a fresh
// instance can bootstrap when its local file is missing. Entirely optional:
// a nil *RedisService is safe to call.
type RedisService struct {
	client *redis.Client
}

// NewRedisService connects to Redis and verifies the connection. An empty
// URL returns (nil, nil): Redis mirroring disabled.
func NewRedisService(redisURL string) (*RedisService, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisService{client: client}, nil
}

// StoreSnapshot mirrors the serialized pathway document.
func (r *RedisService) StoreSnapshot(ctx context.Context, document []byte) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Set(ctx, snapshotKey, document, 0).Err()
}

// LoadSnapshot fetches the mirrored document, (nil, nil) when absent.
func (r *RedisService) LoadSnapshot(ctx context.Context) ([]byte, error) {
	if r == nil || r.client == nil {
		return nil, nil
	}
	data, err := r.client.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the Redis connection.
func (r *RedisService) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
