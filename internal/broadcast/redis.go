package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes events on Redis pub/sub channels named after the topic.
type RedisBus struct {
	client *redis.Client
	prefix string
}

func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	return &RedisBus{client: client, prefix: prefix}
}

func (b *RedisBus) Channel(topic string) string {
	return b.prefix + topic
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.Channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
