package port

import (
	"context"

	"github.com/verdantx/carbon-exchange/internal/domain"
)

// MarketFeed is the external price/volume snapshot source. Read-only.
type MarketFeed interface {
	Assets(ctx context.Context, category domain.AssetCategory) ([]domain.MarketAsset, error)

	// Asset resolves a single symbol. domain.ErrUnknownSymbol if the feed
	// does not know it.
	Asset(ctx context.Context, symbol string) (*domain.MarketAsset, error)
}
