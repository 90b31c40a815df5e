package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/powens/tinyretro/internal/board"
)

const backendRedis = "redis"

// RedisGateway stores the board as a JSON string under a single key.
type RedisGateway struct {
	client *redis.Client
	key    string
}

// NewRedisGateway connects to redisURL and verifies the connection.
func NewRedisGateway(ctx context.Context, redisURL, key string) (*RedisGateway, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisGatewayWithClient(client, key), nil
}

// NewRedisGatewayWithClient wraps an existing client.
func NewRedisGatewayWithClient(client *redis.Client, key string) *RedisGateway {
	return &RedisGateway{client: client, key: key}
}

// Load reads the board key. A missing key yields ErrNoDocument.
func (g *RedisGateway) Load(ctx context.Context) (*board.Board, error) {
	data, err := g.client.Get(ctx, g.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Backend: backendRedis, Err: err}
	}

	b, err := decodeBoard(data)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Backend: backendRedis, Err: err}
	}
	return b, nil
}

// Save overwrites the board key without expiry.
func (g *RedisGateway) Save(ctx context.Context, b *board.Board) error {
	data, err := encodeBoard(b)
	if err != nil {
		return &PersistenceError{Op: "save", Backend: backendRedis, Err: err}
	}
	if err := g.client.Set(ctx, g.key, data, 0).Err(); err != nil {
		return &PersistenceError{Op: "save", Backend: backendRedis, Err: err}
	}
	return nil
}

// Close closes the underlying client.
func (g *RedisGateway) Close() error {
	return g.client.Close()
}
