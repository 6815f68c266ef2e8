// Package data provides data access layer implementations.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ReelGuard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache key prefixes.
const (
	// cacheKeyEntry is the prefix for cached payloads: rg:{key}
	cacheKeyEntry = "rg"
	// cacheKeyTag is the prefix for tag index sets: rgtag:{tag}
	cacheKeyTag = "rgtag"
)

const (
	// hotTierSize is the capacity of the in-process LRU front.
	hotTierSize = 512
	// hotTierTTL bounds staleness of the in-process front; Redis remains the
	// source of truth for invalidation.
	hotTierTTL = 30 * time.Second
	// tagIndexTTL bounds orphaned tag sets when entries expire naturally.
	tagIndexTTL = 24 * time.Hour
)

// LookupRecorder receives one record per cache lookup, feeding the cache
// hit rate metric.
type LookupRecorder interface {
	RecordCacheLookup(hit bool)
}

// cacheRepo implements biz.CacheRepo over a two-tier store: an in-process
// expirable LRU in front of Redis. High-priority entries are pinned into the
// LRU on write; everything else enters it on first read. With Redis down the
// repo degrades to the LRU tier alone.
type cacheRepo struct {
	client   *redis.Client
	hot      *expirable.LRU[string, []byte]
	recorder LookupRecorder
	logger   *log.Helper
}

// NewCacheRepo creates the two-tier cache repository.
func NewCacheRepo(d *Data, recorder LookupRecorder, logger log.Logger) *cacheRepo {
	return &cacheRepo{
		client:   d.redisClient,
		hot:      expirable.NewLRU[string, []byte](hotTierSize, nil, hotTierTTL),
		recorder: recorder,
		logger:   log.NewHelper(logger),
	}
}

// Get retrieves a value and deserializes it into dest.
// Returns ErrCacheNotFound if the key does not exist in either tier.
func (c *cacheRepo) Get(ctx context.Context, key string, dest any) error {
	fullKey := buildCacheKey(cacheKeyEntry, key)

	if raw, ok := c.hot.Get(fullKey); ok {
		c.record(true)
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("cache: failed to unmarshal hot value for key %s: %w", key, err)
		}
		return nil
	}

	if c.client == nil {
		c.record(false)
		return biz.ErrCacheNotFound
	}

	val, err := c.client.Get(ctx, fullKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.record(false)
			return biz.ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	c.record(true)
	c.hot.Add(fullKey, []byte(val))

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

// Set stores a value with TTL, tags and priority. The value is serialized
// to JSON; tagged keys are indexed so InvalidateByTag can sweep them.
func (c *cacheRepo) Set(ctx context.Context, key string, value any, opts *biz.CacheOptions) error {
	if opts == nil {
		opts = &biz.CacheOptions{}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	fullKey := buildCacheKey(cacheKeyEntry, key)

	if opts.Priority >= 1 {
		c.hot.Add(fullKey, data)
	}

	if c.client == nil {
		return nil
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, fullKey, data, opts.TTL)
	for _, tag := range opts.Tags {
		tagKey := buildCacheKey(cacheKeyTag, tag)
		pipe.SAdd(ctx, tagKey, fullKey)
		pipe.Expire(ctx, tagKey, tagIndexTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}
	return nil
}

// InvalidateByTag removes every key carrying the tag. The hot tier is
// purged wholesale; it is small and repopulates on read.
func (c *cacheRepo) InvalidateByTag(ctx context.Context, tag string) error {
	c.hot.Purge()

	if c.client == nil {
		return nil
	}

	tagKey := buildCacheKey(cacheKeyTag, tag)
	keys, err := c.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return fmt.Errorf("cache: failed to read tag index %s: %w", tag, err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache: failed to delete keys for tag %s: %w", tag, err)
		}
	}
	if err := c.client.Del(ctx, tagKey).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete tag index %s: %w", tag, err)
	}

	c.logger.Infow("cache tag invalidated", "tag", tag, "keys", len(keys))
	return nil
}

func (c *cacheRepo) record(hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(hit)
	}
}
