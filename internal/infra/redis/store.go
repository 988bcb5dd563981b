package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/relay/internal/core/domain"
)

const idemKeyPrefix = "relay:idem:"

// Store implements idempotency.Store on Redis. Per-key atomicity comes from
// SET NX; TTLs are native so expired records are simply absent from Get.
// Safe to share across consumer processes.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a redis-backed idempotency store.
func NewStore(c *Client) *Store {
	return &Store{rdb: c.rdb}
}

func (s *Store) key(key string) string {
	return idemKeyPrefix + key
}

// Get returns the record for key, or nil when absent or expired.
func (s *Store) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var rec domain.IdempotencyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return &rec, nil
}

// SetIfAbsent atomically creates the record via SET NX.
func (s *Store) SetIfAbsent(ctx context.Context, key string, rec *domain.IdempotencyRecord, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	won, err := s.rdb.SetNX(ctx, s.key(key), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return won, nil
}

// Set overwrites the record unconditionally.
func (s *Store) Set(ctx context.Context, key string, rec *domain.IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}
