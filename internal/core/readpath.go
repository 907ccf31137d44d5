package core

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/verdantx/carbon-exchange/internal/domain"
)

const (
	defaultTradeLimit  = 30
	maxTradeLimit      = 200
	defaultCandleLimit = 200
)

// dustThreshold hides residual balances too small to display or sell.
var dustThreshold = decimal.NewFromFloat(0.001)

// fallbackCreditPrice values held symbols the market feed does not know
// about, such as credits minted outside the listed assets.
var fallbackCreditPrice = decimal.NewFromInt(15)

// OrderBook returns aggregated open price levels per side. Reads degrade to
// an empty book on store failure rather than failing the caller.
func (e *Engine) OrderBook(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	if e.cache != nil {
		if book, err := e.cache.GetOrderBook(ctx, symbol); err == nil && book != nil {
			return book, nil
		}
	}

	book, err := e.loadBook(ctx, symbol)
	if err != nil {
		e.log.WithError(err).WithField("symbol", symbol).Warn("order book read degraded")
		return &domain.OrderBook{Symbol: symbol}, nil
	}

	if e.cache != nil {
		if err := e.cache.SetOrderBook(ctx, symbol, book); err != nil {
			e.log.WithError(err).Warn("order book cache write failed")
		}
	}
	return book, nil
}

func (e *Engine) loadBook(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	bids, asks, err := e.repo.LoadOpenLevels(ctx, symbol)
	if err != nil {
		return nil, err
	}
	book := &domain.OrderBook{Symbol: symbol, Bids: bids, Asks: asks}
	if len(bids) > 0 && len(asks) > 0 {
		book.Spread = asks[0].Price.Sub(bids[0].Price)
	}
	return book, nil
}

// refreshBookCache rebuilds the cached book after a matching pass or a
// cancellation (write-through; failures only cost freshness).
func (e *Engine) refreshBookCache(ctx context.Context, symbol string) {
	if e.cache == nil {
		return
	}
	book, err := e.loadBook(ctx, symbol)
	if err != nil {
		if ierr := e.cache.Invalidate(ctx, symbol); ierr != nil {
			e.log.WithError(ierr).Warn("order book cache invalidate failed")
		}
		return
	}
	if err := e.cache.SetOrderBook(ctx, symbol, book); err != nil {
		e.log.WithError(err).Warn("order book cache write failed")
	}
}

// RecentTrades returns the newest ledger slice for a symbol, capped.
func (e *Engine) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	trades, err := e.repo.LoadRecentTrades(ctx, symbol, limit)
	if err != nil {
		e.log.WithError(err).WithField("symbol", symbol).Warn("recent trades read degraded")
		return []*domain.Trade{}, nil
	}
	return trades, nil
}

// Candles returns bucketed OHLCV rows ascending by bucket.
func (e *Engine) Candles(ctx context.Context, symbol string, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit > defaultCandleLimit {
		limit = defaultCandleLimit
	}
	candles, err := e.repo.LoadCandles(ctx, symbol, domain.CandleInterval, limit)
	if err != nil {
		e.log.WithError(err).WithField("symbol", symbol).Warn("candles read degraded")
		return []domain.Candle{}, nil
	}
	return candles, nil
}

// Balance derives an account's holding of one symbol from the trade ledger.
// Recomputed on demand; eventually consistent with the ledger.
func (e *Engine) Balance(ctx context.Context, account, symbol string) (decimal.Decimal, error) {
	balance, err := e.repo.AccountBalance(ctx, account, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Portfolio folds the full visible ledger into per-symbol holdings valued
// against the market feed.
func (e *Engine) Portfolio(ctx context.Context, account string) (*domain.Portfolio, error) {
	balances, err := e.repo.AccountBalances(ctx, account)
	if err != nil {
		e.log.WithError(err).WithField("account", account).Warn("portfolio read degraded")
		return &domain.Portfolio{Account: account, Holdings: []domain.Holding{}}, nil
	}

	assets, err := e.Markets(ctx, domain.CategoryAll)
	if err != nil {
		e.log.WithError(err).Warn("market feed unavailable for portfolio valuation")
		assets = nil
	}
	bySymbol := make(map[string]domain.MarketAsset, len(assets))
	for _, a := range assets {
		bySymbol[a.Symbol] = a
	}

	p := &domain.Portfolio{Account: account, Holdings: []domain.Holding{}}
	for symbol, balance := range balances {
		if balance.LessThanOrEqual(dustThreshold) {
			continue
		}
		h := domain.Holding{Symbol: symbol, Balance: balance}
		if a, ok := bySymbol[symbol]; ok {
			h.Name = a.Name
			h.Price = a.Price
			h.Category = a.Category
		} else {
			h.Name = "Verified Carbon Credit"
			h.Price = fallbackCreditPrice
			h.Category = domain.CategoryCarbon
		}
		h.Value = balance.Mul(h.Price)
		p.Holdings = append(p.Holdings, h)
		p.TotalValue = p.TotalValue.Add(h.Value)
	}

	sort.Slice(p.Holdings, func(i, j int) bool {
		return p.Holdings[i].Symbol < p.Holdings[j].Symbol
	})
	return p, nil
}

// Markets returns feed assets for a category through a short-lived cache.
// Clients that cannot subscribe to the notifier poll this instead.
func (e *Engine) Markets(ctx context.Context, category domain.AssetCategory) ([]domain.MarketAsset, error) {
	if category == "" {
		category = domain.CategoryAll
	}
	if e.cache != nil {
		if assets, err := e.cache.GetAssets(ctx, category); err == nil && assets != nil {
			return assets, nil
		}
	}
	assets, err := e.feed.Assets(ctx, category)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.SetAssets(ctx, category, assets); err != nil {
			e.log.WithError(err).Warn("asset cache write failed")
		}
	}
	return assets, nil
}

// SubscribeTrades exposes the notifier subscription for realtime consumers.
func (e *Engine) SubscribeTrades(ctx context.Context) (<-chan *domain.Trade, func(), error) {
	if e.notifier == nil {
		ch := make(chan *domain.Trade)
		close(ch)
		return ch, func() {}, nil
	}
	return e.notifier.SubscribeTrades(ctx)
}
