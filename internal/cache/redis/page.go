package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
)

const (
	keyPrefix     = "page:"
	versionPrefix = "page:version:"

	// versionTTL outlives any read-then-fill window by a wide margin.
	versionTTL = 24 * time.Hour
)

// PageCache stores rendered product details keyed by storefront path.
//
// Every path has a version counter that Invalidate bumps. A reader passes
// the version it saw on a miss back to Set, and Set refuses to store when
// the page was invalidated in between, so a slow reader cannot put back a
// page that a committed write already replaced.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPageCache creates a Redis-backed page cache.
func NewPageCache(client *redis.Client, ttl time.Duration) *PageCache {
	return &PageCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached product for path, or nil on a miss, together with
// the page version to hand to Set.
func (c *PageCache) Get(ctx context.Context, path string) (*domain.Product, int64, error) {
	pipe := c.client.Pipeline()
	pageCmd := pipe.Get(ctx, keyPrefix+path)
	versionCmd := pipe.Get(ctx, versionPrefix+path)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("redis get page: %w", err)
	}

	version, err := versionOf(versionCmd)
	if err != nil {
		return nil, 0, err
	}

	data, err := pageCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, version, nil
		}
		return nil, 0, fmt.Errorf("redis get page: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, version, fmt.Errorf("unmarshal page: %w", err)
	}
	return &product, version, nil
}

// Set caches product under path with the configured TTL, unless the page
// version is no longer version. A skipped write is not an error.
func (c *PageCache) Set(ctx context.Context, path string, product *domain.Product, version int64) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}

	versionKey := versionPrefix + path
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := versionOf(tx.Get(ctx, versionKey))
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+path, data, c.ttl)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil, errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("redis set page: %w", err)
	}
}

// Invalidate bumps the page version and drops the cached page. Missing keys
// are not an error.
func (c *PageCache) Invalidate(ctx context.Context, path string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionPrefix+path)
		pipe.Expire(ctx, versionPrefix+path, versionTTL)
		pipe.Del(ctx, keyPrefix+path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del page: %w", err)
	}
	return nil
}

func versionOf(cmd *redis.StringCmd) (int64, error) {
	v, err := cmd.Int64()
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, redis.Nil):
		return 0, nil
	default:
		return 0, fmt.Errorf("redis get page version: %w", err)
	}
}
