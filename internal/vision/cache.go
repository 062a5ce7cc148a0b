package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lox/releaf/internal/models"
)

const DefaultCacheTTL = 30 * 24 * time.Hour

// RedisCache stores vision records by rounded spot coordinate.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects using a redis:// URL.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{rdb: redis.NewClient(opts), ttl: ttl}, nil
}

// Ping verifies the server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("releaf:vision:%.5f:%.5f", lat, lon)
}

// Get returns the cached record for a coordinate. Misses and errors both report
// false; errors other than a miss are logged.
func (c *RedisCache) Get(ctx context.Context, lat, lon float64) (*models.VisionRecord, bool) {
	s, err := c.rdb.Get(ctx, cacheKey(lat, lon)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("vision: cache get: %v", err)
		return nil, false
	}
	var rec models.VisionRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		log.Printf("vision: cache entry %s corrupt: %v", cacheKey(lat, lon), err)
		return nil, false
	}
	return &rec, true
}

func (c *RedisCache) Put(ctx context.Context, lat, lon float64, rec *models.VisionRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(lat, lon), string(b), c.ttl).Err(); err != nil {
		log.Printf("vision: cache put: %v", err)
	}
}
