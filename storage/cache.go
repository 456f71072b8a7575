package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"kanban/domain"
)

const (
	listCacheKey   = "kanban:tasks"
	taskCacheKeyNS = "kanban:task:"
)

// Cache wraps a Backend with Redis-backed caching for reads. Every write
// evicts the list and the written task.
type Cache struct {
	Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper around base using the provided Redis
// client and TTL. A nil client or zero TTL disables caching.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base backend is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Backend: base, redis: client, ttl: ttl}
}

func (c *Cache) List(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, listCacheKey, &tasks) {
		return tasks, nil
	}
	tasks, err := c.Backend.List(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, listCacheKey, tasks)
	return tasks, nil
}

func (c *Cache) Get(ctx context.Context, id domain.ID) (domain.Task, error) {
	var task domain.Task
	if c.load(ctx, taskCacheKey(id), &task) {
		return task, nil
	}
	task, err := c.Backend.Get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.store(ctx, taskCacheKey(id), task)
	return task, nil
}

func (c *Cache) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.Backend.Insert(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, created.ID)
	return created, nil
}

func (c *Cache) Replace(ctx context.Context, id domain.ID, t domain.Task) (domain.Task, error) {
	updated, err := c.Backend.Replace(ctx, id, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, id)
	return updated, nil
}

func (c *Cache) Delete(ctx context.Context, id domain.ID) error {
	if err := c.Backend.Delete(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backend without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.ConfigStd.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, id domain.ID) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, listCacheKey, taskCacheKey(id)).Result()
}

func taskCacheKey(id domain.ID) string {
	return taskCacheKeyNS + key(id)
}
