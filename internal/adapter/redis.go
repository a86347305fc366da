package adapter

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisClient defines the sorted-set subset of Redis used by the leaderboard, to enable mocking
//
//go:generate mockgen -source=redis.go -destination=../mocks/redis.go -package=mocks -mock_names=RedisClient=MockRedisClient
type RedisClient interface {
	// Ping checks if Redis is reachable
	Ping(ctx context.Context) error

	// ZAddGT sets the score of a member unless the stored score is already greater
	ZAddGT(ctx context.Context, key string, score float64, member string) error

	// ZRevRank returns the zero-based rank of a member, highest score first
	ZRevRank(ctx context.Context, key string, member string) (int64, error)

	// Close closes the Redis connection
	Close() error
}

// RealRedisClient wraps the actual Redis client
type RealRedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) RedisClient {
	return &RealRedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (r *RealRedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RealRedisClient) ZAddGT(ctx context.Context, key string, score float64, member string) error {
	return r.client.ZAddGT(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (r *RealRedisClient) ZRevRank(ctx context.Context, key string, member string) (int64, error) {
	return r.client.ZRevRank(ctx, key, member).Result()
}

func (r *RealRedisClient) Close() error {
	return r.client.Close()
}
