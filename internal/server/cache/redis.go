package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

const (
	productKeyPrefix = "product:"
	dialTimeout      = 5 * time.Second
)

// NewRedisClient connects and pings; the client is closed if the ping fails.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := client.Ping(dialCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis (ping failed): %w", err)
	}
	return client, nil
}

// RedisProductCache stores products as JSON under "product:<id>".
type RedisProductCache struct {
	client redis.Cmdable
}

func NewRedisProductCache(client redis.Cmdable) *RedisProductCache {
	return &RedisProductCache{client: client}
}

func productKey(id string) string {
	return productKeyPrefix + id
}

type cachedProduct struct {
	models.Product
	ImageKey string `json:"image_key"`
}

func (c *RedisProductCache) Get(ctx context.Context, productID string) (*models.Product, error) {
	val, err := c.client.Get(ctx, productKey(productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to get product %s from redis: %w", productID, err)
	}

	var cp cachedProduct
	if err := json.Unmarshal(val, &cp); err != nil {
		_ = c.Delete(ctx, productID)
		return nil, fmt.Errorf("failed to unmarshal cached product %s: %w", productID, err)
	}
	p := cp.Product
	p.ImageKey = cp.ImageKey
	return &p, nil
}

func (c *RedisProductCache) Set(ctx context.Context, p *models.Product, ttl time.Duration) error {
	if p == nil || p.ID == "" {
		return errors.New("cannot cache nil product or product with empty id")
	}

	data, err := json.Marshal(cachedProduct{Product: *p, ImageKey: p.ImageKey})
	if err != nil {
		return fmt.Errorf("failed to marshal product %s: %w", p.ID, err)
	}
	if err := c.client.Set(ctx, productKey(p.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set product %s in redis: %w", p.ID, err)
	}
	return nil
}

func (c *RedisProductCache) Delete(ctx context.Context, productID string) error {
	if err := c.client.Del(ctx, productKey(productID)).Err(); err != nil {
		return fmt.Errorf("failed to delete product %s from redis: %w", productID, err)
	}
	return nil
}
