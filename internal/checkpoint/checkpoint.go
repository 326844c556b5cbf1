// Package checkpoint remembers when each action type last completed successfully, so manual
// records can be read incrementally.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// Checkpoint is the state saved after a successful run of one action type.
type Checkpoint struct {
	RunID       string    `json:"run_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store loads and saves checkpoints. Load returns nil when none exists.
type Store interface {
	Load(ctx context.Context, at models.ActionType) (*Checkpoint, error)
	Save(ctx context.Context, at models.ActionType, cp Checkpoint) error
}

// RedisStore keeps one JSON value per action type.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store under prefix. A zero ttl keeps checkpoints forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(at models.ActionType) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.prefix, at)
}

func (s *RedisStore) Load(ctx context.Context, at models.ActionType) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(at)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) Save(ctx context.Context, at models.ActionType, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(at), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// NoOpStore never has a checkpoint, so every run reads all manual records.
type NoOpStore struct{}

func (NoOpStore) Load(context.Context, models.ActionType) (*Checkpoint, error) { return nil, nil }

func (NoOpStore) Save(context.Context, models.ActionType, Checkpoint) error { return nil }
