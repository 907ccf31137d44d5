package in_memory

import (
	"context"
	"sync"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

type Cache struct {
	mu     sync.Mutex
	books  map[string]*domain.OrderBook
	assets map[domain.AssetCategory][]domain.MarketAsset
}

var _ port.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{
		books:  make(map[string]*domain.OrderBook),
		assets: make(map[domain.AssetCategory][]domain.MarketAsset),
	}
}

func (c *Cache) SetOrderBook(ctx context.Context, symbol string, book *domain.OrderBook) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *book
	c.books[symbol] = &cp
	return nil
}

func (c *Cache) GetOrderBook(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	book, ok := c.books[symbol]
	if !ok {
		return nil, nil
	}
	cp := *book
	return &cp, nil
}

func (c *Cache) Invalidate(ctx context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.books, symbol)
	return nil
}

func (c *Cache) SetAssets(ctx context.Context, category domain.AssetCategory, assets []domain.MarketAsset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[category] = append([]domain.MarketAsset(nil), assets...)
	return nil
}

func (c *Cache) GetAssets(ctx context.Context, category domain.AssetCategory) ([]domain.MarketAsset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	assets, ok := c.assets[category]
	if !ok {
		return nil, nil
	}
	return append([]domain.MarketAsset(nil), assets...), nil
}
