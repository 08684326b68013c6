package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Cache implements domain.CacheStore and domain.HashtagIndex using Redis.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis. A failed ping is reported but the client is still
// returned so callers can run degraded until Redis comes back.
func New(ctx context.Context, opts Options) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	c := &Cache{rdb: rdb}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return c, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return c, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Get returns the value at key. A missing key is reported as ok=false with
// no error.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value at key with the given ttl.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// ZRevRangeWithScores reads a sorted set from highest to lowest score.
func (c *Cache) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]domain.ScoredMember, error) {
	zs, err := c.rdb.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", key, err)
	}
	out := make([]domain.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		out = append(out, domain.ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

// IncrementHashtags bumps each tag in the trending set by one per
// occurrence.
func (c *Cache) IncrementHashtags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for _, tag := range tags {
		pipe.ZIncrBy(ctx, domain.TrendingHashtagsKey, 1, tag)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment hashtags: %w", err)
	}
	return nil
}

// ReplaceHashtags swaps the trending set for counts in one transaction.
func (c *Cache) ReplaceHashtags(ctx context.Context, counts []domain.HashtagCount) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, domain.TrendingHashtagsKey)
	if len(counts) > 0 {
		members := make([]redis.Z, len(counts))
		for i, hc := range counts {
			members[i] = redis.Z{Score: float64(hc.Count), Member: hc.Tag}
		}
		pipe.ZAdd(ctx, domain.TrendingHashtagsKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace hashtags: %w", err)
	}
	return nil
}
