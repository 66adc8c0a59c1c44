package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

const (
	idempotencyPrefix = "idempotency:"
	lockPrefix        = "esewa_lock:"
)

// RedisStore backs both the initiation cache and the reconciler lock.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns nil without error when nothing is cached under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*models.InitiationResult, error) {
	cached, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result models.InitiationResult
	if err := json.Unmarshal(cached, &result); err != nil {
		return nil, fmt.Errorf("decode cached result %s: %w", key, err)
	}
	return &result, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, result *models.InitiationResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyPrefix+key, payload, ttl).Err()
}

func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, lockPrefix+key, "1", ttl).Result()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, lockPrefix+key).Err()
}
