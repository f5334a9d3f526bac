package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients holds the two logical connections: Tokens for refresh-token
// storage and PubSub for the realtime notification fan-out. Pub/sub gets its
// own connection because a subscribed client cannot issue regular commands.
type RedisClients struct {
	Tokens *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokenClient := redis.NewClient(opt)
	if err := tokenClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis (tokens): %w", err)
	}

	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		tokenClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Tokens: tokenClient,
		PubSub: pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Tokens.Close()
	r.PubSub.Close()
}
