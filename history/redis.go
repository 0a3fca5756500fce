package history

import (
	"context"
	"encoding/json"
	"fmt"

	"chathub/types"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "chathub:history"

// RedisStore keeps the newest retain messages in a single list, oldest at
// the head.
type RedisStore struct {
	client *redis.Client
	key    string
	retain int64
}

// NewRedisStore parses url (redis://...) and verifies the server answers.
func NewRedisStore(ctx context.Context, url, key string, retain int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", ErrStorage, err)
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, retain: int64(retain)}, nil
}

func (s *RedisStore) Save(ctx context.Context, msg types.ChatMessage) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode message %s: %w", ErrStorage, msg.ID, err)
	}

	// one MULTI/EXEC so the push and the trim apply together
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.key, raw)
		if s.retain > 0 {
			pipe.LTrim(ctx, s.key, -s.retain, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: push message %s: %w", ErrStorage, msg.ID, err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	values, err := s.client.LRange(ctx, s.key, -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read history: %w", ErrStorage, err)
	}

	messages := make([]types.ChatMessage, 0, len(values))
	for _, value := range values {
		var msg types.ChatMessage
		if err := json.Unmarshal([]byte(value), &msg); err != nil {
			return nil, fmt.Errorf("%w: decode message: %w", ErrStorage, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
