package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

var _ port.Cache = (*RedisCache)(nil)

// RedisCache is the write-through view cache for order books and market
// asset snapshots. Entries are JSON with a TTL; a miss returns (nil, nil).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func bookKey(symbol string) string            { return "book:" + symbol }
func assetsKey(c domain.AssetCategory) string { return "assets:" + string(c) }

func (c *RedisCache) SetOrderBook(ctx context.Context, symbol string, book *domain.OrderBook) error {
	b, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, bookKey(symbol), b, c.ttl).Err()
}

func (c *RedisCache) GetOrderBook(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	b, err := c.client.Get(ctx, bookKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var book domain.OrderBook
	if err := json.Unmarshal(b, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, symbol string) error {
	return c.client.Del(ctx, bookKey(symbol)).Err()
}

func (c *RedisCache) SetAssets(ctx context.Context, category domain.AssetCategory, assets []domain.MarketAsset) error {
	b, err := json.Marshal(assets)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, assetsKey(category), b, c.ttl).Err()
}

func (c *RedisCache) GetAssets(ctx context.Context, category domain.AssetCategory) ([]domain.MarketAsset, error) {
	b, err := c.client.Get(ctx, assetsKey(category)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var assets []domain.MarketAsset
	if err := json.Unmarshal(b, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}
