package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tatianab/hustle/internal/models"
)

// RedisStore keeps the snapshot as JSON under Key, without expiry.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := encodeJSON(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, Key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*models.Snapshot, error) {
	data, err := s.rdb.Get(ctx, Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	return decodeJSON(data)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, Key).Err()
}
