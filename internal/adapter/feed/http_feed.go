package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

var _ port.MarketFeed = (*HTTPFeed)(nil)

// HTTPFeed queries an external price service:
// GET {base}/prices?category={category} -> {"success":true,"data":[...]}.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type pricesResponse struct {
	Success bool        `json:"success"`
	Data    []assetJSON `json:"data"`
}

type assetJSON struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24h"`
	Volume24h decimal.Decimal `json:"volume24h"`
	MarketCap decimal.Decimal `json:"marketCap"`
	Category  string          `json:"category"`
}

func (f *HTTPFeed) Assets(ctx context.Context, category domain.AssetCategory) ([]domain.MarketAsset, error) {
	if category == "" {
		category = domain.CategoryAll
	}
	u := fmt.Sprintf("%s/prices?category=%s", f.baseURL, url.QueryEscape(string(category)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market feed: unexpected status %d", resp.StatusCode)
	}

	var body pricesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("market feed: decode: %w", err)
	}
	if !body.Success {
		return nil, fmt.Errorf("market feed: upstream reported failure")
	}

	assets := make([]domain.MarketAsset, 0, len(body.Data))
	for _, a := range body.Data {
		assets = append(assets, domain.MarketAsset{
			Symbol:    a.Symbol,
			Name:      a.Name,
			Price:     a.Price,
			Change24h: a.Change24h,
			Volume24h: a.Volume24h,
			MarketCap: a.MarketCap,
			Category:  domain.AssetCategory(a.Category),
		})
	}
	return assets, nil
}

func (f *HTTPFeed) Asset(ctx context.Context, symbol string) (*domain.MarketAsset, error) {
	assets, err := f.Assets(ctx, domain.CategoryAll)
	if err != nil {
		return nil, err
	}
	for i := range assets {
		if assets[i].Symbol == symbol {
			return &assets[i], nil
		}
	}
	return nil, domain.ErrUnknownSymbol
}
