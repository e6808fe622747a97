package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

const defaultStateKey = "watchtower:loop_state"

type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = defaultStateKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Save(ctx context.Context, st engine.LoopState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding loop state: %w", err)
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context) (engine.LoopState, error) {
	var st engine.LoopState
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return st, fmt.Errorf("no loop state stored under %q", s.key)
	}
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decoding loop state: %w", err)
	}
	return st, nil
}
