package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

// Engine implements order intake, matching and settlement bookkeeping.
// Correctness under concurrent submissions for the same symbol rests on the
// repository's conditional fill updates; the in-process mutex only serializes
// passes issued through this instance.
type Engine struct {
	repo     port.Repository
	cache    port.Cache
	feed     port.MarketFeed
	notifier port.Notifier
	log      *logrus.Logger

	mu sync.Mutex
}

func NewEngine(repo port.Repository, cache port.Cache, feed port.MarketFeed, notifier port.Notifier, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		repo:     repo,
		cache:    cache,
		feed:     feed,
		notifier: notifier,
		log:      log,
	}
}

// SubmitRequest is a proposed order before intake validation.
type SubmitRequest struct {
	Account  string
	Symbol   string
	Side     domain.Side
	Kind     domain.OrderKind
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// SubmitResult reports the outcome of one submission. Degraded is set when
// the order was durably recorded but a store failure cut the matching pass
// short; already-committed fills stand.
type SubmitResult struct {
	Order    *domain.Order
	Trades   []*domain.Trade
	Degraded bool
}

// SubmitOrder validates the request, records the order and runs one matching
// pass. Intake failures happen before any state change; no partial order is
// created.
func (e *Engine) SubmitOrder(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	const op = "Engine.SubmitOrder"

	o, err := e.intake(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.repo.SaveOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrStoreWrite, err)
	}

	trades, degraded := e.match(ctx, o)

	e.refreshBookCache(ctx, o.Symbol)

	return &SubmitResult{Order: o, Trades: trades, Degraded: degraded}, nil
}

// intake validates a proposed order and resolves the execution price for
// market orders. Nothing is persisted here.
func (e *Engine) intake(ctx context.Context, req SubmitRequest) (*domain.Order, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if req.Side != domain.Buy && req.Side != domain.Sell {
		return nil, fmt.Errorf("%w: side must be buy or sell", domain.ErrInvalidInput)
	}
	if req.Kind != domain.Limit && req.Kind != domain.Market {
		return nil, fmt.Errorf("%w: kind must be limit or market", domain.ErrInvalidInput)
	}
	if !req.Quantity.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: quantity must be > 0", domain.ErrInvalidInput)
	}

	asset, err := e.feed.Asset(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, req.Symbol)
		}
		return nil, fmt.Errorf("market feed: %w", err)
	}

	price := req.Price
	switch req.Kind {
	case domain.Limit:
		if !price.GreaterThan(decimal.Zero) {
			return nil, fmt.Errorf("%w: price must be > 0 for limit orders", domain.ErrInvalidInput)
		}
	case domain.Market:
		// the current market price is substituted; the order itself matches
		// unconstrained.
		if asset == nil || !asset.Price.GreaterThan(decimal.Zero) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPrice, req.Symbol)
		}
		price = asset.Price
	}

	if req.Side == domain.Sell {
		// Advisory check against the visible ledger; the store's own
		// consistency guarantees still apply underneath.
		balance, err := e.repo.AccountBalance(ctx, req.Account, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreRead, err)
		}
		if balance.LessThan(req.Quantity) {
			return nil, fmt.Errorf("%w: have %s %s, want to sell %s",
				domain.ErrInsufficientBalance, balance, req.Symbol, req.Quantity)
		}
	}

	now := time.Now().UTC()
	return &domain.Order{
		ID:        uuid.NewString(),
		Account:   req.Account,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Kind:      req.Kind,
		Price:     price,
		Quantity:  req.Quantity,
		Filled:    decimal.Zero,
		Status:    domain.Open,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CancelOrder freezes the remaining quantity of an open or partial order.
// Filled orders are terminal and cannot be cancelled.
func (e *Engine) CancelOrder(ctx context.Context, orderID, account string) error {
	const op = "Engine.CancelOrder"

	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.repo.LoadOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return fmt.Errorf("%s: %w", op, domain.ErrOrderNotFound)
		}
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreRead, err)
	}
	if o.Account != account {
		return fmt.Errorf("%s: %w", op, domain.ErrOrderNotFound)
	}
	if !o.Resting() {
		return fmt.Errorf("%s: %w: status %s", op, domain.ErrNotCancelable, o.Status)
	}

	if err := e.repo.CancelOrder(ctx, orderID, account); err != nil {
		if errors.Is(err, domain.ErrNotCancelable) || errors.Is(err, domain.ErrOrderNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreWrite, err)
	}

	e.refreshBookCache(ctx, o.Symbol)
	return nil
}

// GetOrder fetches one order by id.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := e.repo.LoadOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreRead, err)
	}
	return o, nil
}
