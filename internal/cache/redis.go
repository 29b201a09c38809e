package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "memeflow/config"
	"memeflow/internal/model"
	"memeflow/logger"
)

// ResultCache keeps recent pipeline results in Redis so repeated
// requests within the TTL skip the whole fetch/enrich cycle. Every
// failure degrades to a cache miss.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Log
}

func NewResultCache(cfg appconfig.RedisConfig) *ResultCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ResultCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl: ttl,
		log: logger.GetLogger(),
	}
}

func cacheKey(limit int, chainID string) string {
	if chainID == "" {
		chainID = "all"
	}
	return fmt.Sprintf("memelist:%s:%d", chainID, limit)
}

// Get returns the cached result for (limit, chainID), or nil on any
// miss, decode failure or Redis error.
func (c *ResultCache) Get(ctx context.Context, limit int, chainID string) *model.Result {
	data, err := c.client.Get(ctx, cacheKey(limit, chainID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.WithComponent("cache").WithError(err).Warn("redis get failed")
		}
		return nil
	}

	var result model.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.log.WithComponent("cache").WithError(err).Warn("discarding undecodable cache entry")
		return nil
	}
	return &result
}

// Set stores a result under its (limit, chainID) key. Errors are logged
// and swallowed.
func (c *ResultCache) Set(ctx context.Context, result *model.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.log.WithComponent("cache").WithError(err).Warn("failed to marshal result for cache")
		return
	}
	if err := c.client.Set(ctx, cacheKey(result.Limit, result.ChainID), data, c.ttl).Err(); err != nil {
		c.log.WithComponent("cache").WithError(err).Warn("redis set failed")
	}
}

func (c *ResultCache) Close() error {
	return c.client.Close()
}
