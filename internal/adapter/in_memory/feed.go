package in_memory

import (
	"context"
	"sync"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

// Feed serves a fixed asset list. The dev profile seeds it; tests set
// whatever quotes a scenario needs.
type Feed struct {
	mu     sync.RWMutex
	assets map[string]domain.MarketAsset
}

var _ port.MarketFeed = (*Feed)(nil)

func NewFeed(assets ...domain.MarketAsset) *Feed {
	f := &Feed{assets: make(map[string]domain.MarketAsset)}
	for _, a := range assets {
		f.assets[a.Symbol] = a
	}
	return f
}

func (f *Feed) SetAsset(a domain.MarketAsset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[a.Symbol] = a
}

func (f *Feed) Assets(ctx context.Context, category domain.AssetCategory) ([]domain.MarketAsset, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	res := make([]domain.MarketAsset, 0, len(f.assets))
	for _, a := range f.assets {
		if category == domain.CategoryAll || category == "" || a.Category == category {
			res = append(res, a)
		}
	}
	return res, nil
}

func (f *Feed) Asset(ctx context.Context, symbol string) (*domain.MarketAsset, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	a, ok := f.assets[symbol]
	if !ok {
		return nil, domain.ErrUnknownSymbol
	}
	cp := a
	return &cp, nil
}
