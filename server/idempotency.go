package server

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban/domain"
)

const (
	idemKeyPrefix = "kanban:idem:"
	idemPending   = "pending"
)

// RedisDeduper tracks Idempotency-Key values of create requests across server
// instances. A key is claimed as pending, then completed with the id of the
// stored task, so a replay can point at the record the first request made.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper whose keys expire after ttl.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// Claim reserves key. When the key is already taken it returns false and the
// id the earlier request stored, or "" if that request is still in flight.
func (r *RedisDeduper) Claim(ctx context.Context, key string) (domain.ID, bool, error) {
	ok, err := r.client.SetNX(ctx, idemKeyPrefix+key, idemPending, r.ttl).Result()
	if err != nil || ok {
		return "", ok, err
	}
	prior, err := r.client.Get(ctx, idemKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) || prior == idemPending {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.ParseID(prior), false, nil
}

// Complete records the id stored under a claimed key.
func (r *RedisDeduper) Complete(ctx context.Context, key string, id domain.ID) error {
	return r.client.Set(ctx, idemKeyPrefix+key, id.String(), r.ttl).Err()
}

// Release drops a claim so the caller may retry after a failed write.
func (r *RedisDeduper) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idemKeyPrefix+key).Err()
}
