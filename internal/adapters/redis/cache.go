package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/class-bookings/internal/domain"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func itemKey(slug string) string {
	return "item:" + slug
}

// GetItem returns nil, nil on a miss.
func (c *Cache) GetItem(ctx context.Context, slug string) (*domain.Item, error) {
	val, err := c.client.Get(ctx, itemKey(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cached item")
	}
	var item domain.Item
	if err := json.Unmarshal(val, &item); err != nil {
		return nil, errors.Wrap(err, "decode cached item")
	}
	return &item, nil
}

func (c *Cache) SetItem(ctx context.Context, item domain.Item, ttl time.Duration) error {
	data, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "encode item")
	}
	return errors.Wrap(c.client.Set(ctx, itemKey(item.Slug), data, ttl).Err(), "set cached item")
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// IncrWindow bumps the counter at key and returns its value. The counter
// expires period after the first hit in the window.
func (c *Cache) IncrWindow(ctx context.Context, key string, period time.Duration) (int64, error) {
	fullKey := "rl:" + key

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, period)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "incr rate window")
	}
	return incr.Val(), nil
}
