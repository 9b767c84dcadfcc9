package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultOutboxKey = "mail:outbox"

// RedisOutbox queues reset messages on a redis list for a separate mail
// worker to deliver.
type RedisOutbox struct {
	client redis.Cmdable
	key    string
}

func NewRedisOutbox(client redis.Cmdable, key string) *RedisOutbox {
	if key == "" {
		key = DefaultOutboxKey
	}
	return &RedisOutbox{client: client, key: key}
}

func (o *RedisOutbox) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	payload, err := json.Marshal(envelope{Kind: "password_reset", Message: msg})
	if err != nil {
		return fmt.Errorf("encode reset message: %w", err)
	}

	if err := o.client.LPush(ctx, o.key, payload).Err(); err != nil {
		return fmt.Errorf("queue reset message: %w", err)
	}
	return nil
}

type envelope struct {
	Kind    string       `json:"kind"`
	Message ResetMessage `json:"message"`
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
