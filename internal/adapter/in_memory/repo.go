package in_memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

// Repo is an in-process implementation of port.Repository. Used by tests and
// by the dev profile; semantics mirror the Postgres adapter, including the
// conditional fill update.
type Repo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	trades []*domain.Trade
}

var _ port.Repository = (*Repo)(nil)

func NewRepo() *Repo {
	return &Repo{orders: make(map[string]*domain.Order)}
}

// Seed appends trades to the ledger directly. Dev and test fixtures only;
// the engine always writes trades through ExecuteFill.
func (r *Repo) Seed(trades ...*domain.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range trades {
		cp := *t
		r.trades = append(r.trades, &cp)
	}
}

func (r *Repo) SaveOrder(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *Repo) LoadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *Repo) LoadCandidates(ctx context.Context, symbol string, side domain.Side, limitPrice *decimal.Decimal) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*domain.Order
	for _, o := range r.orders {
		if o.Symbol != symbol || o.Side != side || !o.Resting() {
			continue
		}
		if limitPrice != nil {
			if side == domain.Sell && o.Price.GreaterThan(*limitPrice) {
				continue
			}
			if side == domain.Buy && o.Price.LessThan(*limitPrice) {
				continue
			}
		}
		cp := *o
		res = append(res, &cp)
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].Price.Equal(res[j].Price) {
			if side == domain.Sell {
				return res[i].Price.LessThan(res[j].Price)
			}
			return res[i].Price.GreaterThan(res[j].Price)
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (r *Repo) ExecuteFill(ctx context.Context, orderID string, expectedFilled, newFilled decimal.Decimal, status domain.OrderStatus, trades []*domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.applyFillLocked(orderID, expectedFilled, newFilled, status); err != nil {
		return err
	}
	for _, t := range trades {
		cp := *t
		r.trades = append(r.trades, &cp)
	}
	return nil
}

func (r *Repo) ApplyFill(ctx context.Context, orderID string, expectedFilled, newFilled decimal.Decimal, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyFillLocked(orderID, expectedFilled, newFilled, status)
}

func (r *Repo) applyFillLocked(orderID string, expectedFilled, newFilled decimal.Decimal, status domain.OrderStatus) error {
	o, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if !o.Filled.Equal(expectedFilled) {
		return domain.ErrFillConflict
	}
	if newFilled.GreaterThan(o.Quantity) {
		return domain.ErrFillConflict
	}
	o.Filled = newFilled
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repo) CancelOrder(ctx context.Context, orderID, account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Account != account {
		return domain.ErrOrderNotFound
	}
	if !o.Resting() {
		return domain.ErrNotCancelable
	}
	o.Status = domain.Cancelled
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repo) LoadOpenLevels(ctx context.Context, symbol string) ([]domain.BookLevel, []domain.BookLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bidQty := make(map[string]decimal.Decimal)
	askQty := make(map[string]decimal.Decimal)
	prices := make(map[string]decimal.Decimal)

	for _, o := range r.orders {
		if o.Symbol != symbol || !o.Resting() {
			continue
		}
		remaining := o.Remaining()
		if !remaining.GreaterThan(decimal.Zero) {
			continue
		}
		key := o.Price.String()
		prices[key] = o.Price
		if o.Side == domain.Buy {
			bidQty[key] = bidQty[key].Add(remaining)
		} else {
			askQty[key] = askQty[key].Add(remaining)
		}
	}

	toLevels := func(q map[string]decimal.Decimal, desc bool) []domain.BookLevel {
		levels := make([]domain.BookLevel, 0, len(q))
		for key, qty := range q {
			levels = append(levels, domain.BookLevel{Price: prices[key], Quantity: qty})
		}
		sort.Slice(levels, func(i, j int) bool {
			if desc {
				return levels[i].Price.GreaterThan(levels[j].Price)
			}
			return levels[i].Price.LessThan(levels[j].Price)
		})
		return levels
	}
	return toLevels(bidQty, true), toLevels(askQty, false), nil
}

func (r *Repo) LoadRecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*domain.Trade
	for i := len(r.trades) - 1; i >= 0 && len(res) < limit; i-- {
		if r.trades[i].Symbol != symbol {
			continue
		}
		cp := *r.trades[i]
		res = append(res, &cp)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (r *Repo) LoadCandles(ctx context.Context, symbol string, interval time.Duration, limit int) ([]domain.Candle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buckets := make(map[int64]*domain.Candle)
	for _, t := range r.trades {
		if t.Symbol != symbol {
			continue
		}
		bucket := t.CreatedAt.Truncate(interval)
		key := bucket.Unix()
		c, ok := buckets[key]
		if !ok {
			buckets[key] = &domain.Candle{
				Symbol: symbol,
				Bucket: bucket,
				Open:   t.Price,
				High:   t.Price,
				Low:    t.Price,
				Close:  t.Price,
				Volume: t.Quantity,
			}
			continue
		}
		// the ledger slice is append-ordered, so first seen is open and
		// last seen is close
		if t.Price.GreaterThan(c.High) {
			c.High = t.Price
		}
		if t.Price.LessThan(c.Low) {
			c.Low = t.Price
		}
		c.Close = t.Price
		c.Volume = c.Volume.Add(t.Quantity)
	}

	candles := make([]domain.Candle, 0, len(buckets))
	for _, c := range buckets {
		candles = append(candles, *c)
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Bucket.Before(candles[j].Bucket)
	})
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (r *Repo) AccountBalance(ctx context.Context, account, symbol string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	balance := decimal.Zero
	for _, t := range r.trades {
		if t.Account != account || t.Symbol != symbol {
			continue
		}
		if t.Side == domain.Buy {
			balance = balance.Add(t.Quantity)
		} else {
			balance = balance.Sub(t.Quantity)
		}
	}
	return balance, nil
}

func (r *Repo) AccountBalances(ctx context.Context, account string) (map[string]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	balances := make(map[string]decimal.Decimal)
	for _, t := range r.trades {
		if t.Account != account {
			continue
		}
		if t.Side == domain.Buy {
			balances[t.Symbol] = balances[t.Symbol].Add(t.Quantity)
		} else {
			balances[t.Symbol] = balances[t.Symbol].Sub(t.Quantity)
		}
	}
	for symbol, b := range balances {
		if b.IsZero() {
			delete(balances, symbol)
		}
	}
	return balances, nil
}
