package duplicates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

// RedisCache keeps one key per fingerprint plus a per-owner index set so an
// owner's entries can be dropped without scanning the keyspace.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
}

func NewRedisCache(rdb *goredis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "dupcache"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) entryKey(fp Fingerprint) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, fp.OwnerID, fp.Hash)
}

func (c *RedisCache) indexKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("%s:idx:%s", c.prefix, ownerID)
}

func (c *RedisCache) Get(ctx context.Context, fp Fingerprint) ([]syllabus.DuplicateMatch, bool, error) {
	raw, err := c.rdb.Get(ctx, c.entryKey(fp)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dupcache get: %w", err)
	}
	var out []syllabus.DuplicateMatch
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("dupcache decode: %w", err)
	}
	if out == nil {
		out = []syllabus.DuplicateMatch{}
	}
	return out, true, nil
}

func (c *RedisCache) Put(ctx context.Context, fp Fingerprint, matches []syllabus.DuplicateMatch, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if matches == nil {
		matches = []syllabus.DuplicateMatch{}
	}
	raw, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("dupcache encode: %w", err)
	}
	key := c.entryKey(fp)
	idx := c.indexKey(fp.OwnerID)
	_, err = c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, key, raw, ttl)
		p.SAdd(ctx, idx, key)
		p.Expire(ctx, idx, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dupcache put: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, ownerID uuid.UUID) error {
	idx := c.indexKey(ownerID)
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("dupcache index: %w", err)
	}
	keys = append(keys, idx)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("dupcache invalidate: %w", err)
	}
	return nil
}
