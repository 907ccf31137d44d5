package port

import (
	"context"

	"github.com/verdantx/carbon-exchange/internal/domain"
)

// Cache is a write-through view cache. A miss or error always degrades to
// the repository; stale entries are overwritten after each matching pass.
type Cache interface {
	SetOrderBook(ctx context.Context, symbol string, book *domain.OrderBook) error
	GetOrderBook(ctx context.Context, symbol string) (*domain.OrderBook, error)
	Invalidate(ctx context.Context, symbol string) error

	SetAssets(ctx context.Context, category domain.AssetCategory, assets []domain.MarketAsset) error
	GetAssets(ctx context.Context, category domain.AssetCategory) ([]domain.MarketAsset, error)
}
