package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "chorecal:"
	// cacheGenKey is bumped by every write. A fetch only stores its result
	// when the generation is unchanged since the fetch began.
	cacheGenKey = cacheKeyPrefix + "gen"
)

// Cache wraps a Client with Redis-backed caching for fetches. Every write
// evicts the cached snapshots it could affect. Redis failures fall back to
// the wrapped client.
type Cache struct {
	base  Client
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Client using the provided Redis client and TTL.
func NewCache(base Client, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("remote.NewCache: base client is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, accountID string) ([]TaskRecord, error) {
	var tasks []TaskRecord
	if c.load(ctx, tasksCacheKey(accountID), &tasks) {
		return tasks, nil
	}

	gen, genOK := c.generation(ctx)
	tasks, err := c.base.FetchTasks(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if genOK {
		c.store(ctx, tasksCacheKey(accountID), tasks, gen)
	}
	return tasks, nil
}

func (c *Cache) FetchPersons(ctx context.Context, accountID string) ([]PersonRecord, error) {
	var persons []PersonRecord
	if c.load(ctx, personsCacheKey(accountID), &persons) {
		return persons, nil
	}

	gen, genOK := c.generation(ctx)
	persons, err := c.base.FetchPersons(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if genOK {
		c.store(ctx, personsCacheKey(accountID), persons, gen)
	}
	return persons, nil
}

func (c *Cache) UpsertTask(ctx context.Context, rec TaskRecord) error {
	if err := c.base.UpsertTask(ctx, rec); err != nil {
		return err
	}
	c.bump(ctx)
	c.evict(ctx, tasksCacheKey(rec.OwnerID))
	return nil
}

// DeleteTask only knows the id, so every cached task snapshot is dropped.
func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.bump(ctx)
	c.evictMatching(ctx, cacheKeyPrefix+"tasks:*")
	return nil
}

func (c *Cache) UpsertPerson(ctx context.Context, rec PersonRecord) error {
	if err := c.base.UpsertPerson(ctx, rec); err != nil {
		return err
	}
	c.bump(ctx)
	c.evict(ctx, personsCacheKey(rec.OwnerID))
	return nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// store writes v under key unless a write bumped the generation after gen
// was read. A stale fetch is dropped instead of outliving the write's evict.
func (c *Cache) store(ctx context.Context, key string, v any, gen string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, cacheGenKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFetch
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, cacheGenKey)
}

// generation reports the current write generation. ok is false when Redis
// cannot be read, in which case the fetch result is not cached.
func (c *Cache) generation(ctx context.Context) (gen string, ok bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, cacheGenKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false
	}
	return gen, true
}

func (c *Cache) bump(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, cacheGenKey).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func (c *Cache) evictMatching(ctx context.Context, pattern string) {
	if c.redis == nil {
		return
	}
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			c.evict(ctx, keys...)
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

func tasksCacheKey(accountID string) string {
	return cacheKeyPrefix + "tasks:" + accountID
}

func personsCacheKey(accountID string) string {
	return cacheKeyPrefix + "persons:" + accountID
}

var errStaleFetch = errors.New("remote: cache generation moved during fetch")

var _ Client = (*Cache)(nil)
