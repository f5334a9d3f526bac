package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes direct-to-user events on the per-user channel the
// realtime gateway subscribes to while that user holds a live connection.
// PUBLISH reports the subscriber count, which doubles as the delivered flag.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func UserChannel(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

func (n *RedisNotifier) NotifyUser(ctx context.Context, userID uuid.UUID, event string, payload interface{}) bool {
	data, err := json.Marshal(map[string]interface{}{
		"type":    event,
		"payload": payload,
	})
	if err != nil {
		log.Printf("notify user %s: marshal failed: %v", userID, err)
		return false
	}

	receivers, err := n.client.Publish(ctx, UserChannel(userID), data).Result()
	if err != nil {
		log.Printf("notify user %s: publish failed: %v", userID, err)
		return false
	}
	return receivers > 0
}
