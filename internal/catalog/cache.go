package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

// ProductCache is a read-through cache in front of Repository.GetProduct.
// Get returns (nil, nil) on a miss.
type ProductCache interface {
	Get(ctx context.Context, id uuid.UUID) (*Product, error)
	Set(ctx context.Context, product *Product) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type redisProductCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisProductCache(client redis.Cmdable, ttl time.Duration) ProductCache {
	return &redisProductCache{client: client, ttl: ttl}
}

func productKey(id uuid.UUID) string {
	return "catalog:product:" + id.String()
}

func (c *redisProductCache) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	raw, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: failed to get product %s: %w", id, err)
	}

	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("cache: failed to decode product %s: %w", id, err)
	}
	return &p, nil
}

func (c *redisProductCache) Set(ctx context.Context, p *Product) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: failed to encode product %s: %w", p.ID, err)
	}
	if err := c.client.Set(ctx, productKey(p.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set product %s: %w", p.ID, err)
	}
	return nil
}

func (c *redisProductCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, productKey(id)).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete product %s: %w", id, err)
	}
	return nil
}

type noopProductCache struct{}

// NoopProductCache disables caching.
func NoopProductCache() ProductCache { return noopProductCache{} }

func (noopProductCache) Get(context.Context, uuid.UUID) (*Product, error) { return nil, nil }
func (noopProductCache) Set(context.Context, *Product) error              { return nil }
func (noopProductCache) Delete(context.Context, uuid.UUID) error          { return nil }
