package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/verdantx/carbon-exchange/internal/domain"
)

// Repository is the persistent order/trade store. It is the single shared
// mutable resource; the matching engine is the only writer of trades and the
// only mutator of order fill state outside of cancellation.
type Repository interface {
	SaveOrder(ctx context.Context, o *domain.Order) error

	LoadOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// LoadCandidates returns resting counter-orders for a matching pass:
	// same symbol, given side, status open or partial, price-compatible with
	// limitPrice (nil means unconstrained, as for market orders). Sorted
	// best price first for the incoming side (ascending for sell candidates,
	// descending for buy candidates), then created_at ascending at equal
	// price.
	LoadCandidates(ctx context.Context, symbol string, side domain.Side, limitPrice *decimal.Decimal) ([]*domain.Order, error)

	// ExecuteFill settles one match step against a counter-order as a single
	// atomic unit: the conditional fill update plus the trade pair insert.
	// The fill only applies if the stored filled quantity still equals
	// expectedFilled; otherwise domain.ErrFillConflict is returned, nothing
	// is written, and the caller re-reads the order.
	ExecuteFill(ctx context.Context, orderID string, expectedFilled, newFilled decimal.Decimal, status domain.OrderStatus, trades []*domain.Trade) error

	// ApplyFill conditionally updates fill state without writing trades.
	// Used for the incoming order's bookkeeping at the end of a pass.
	ApplyFill(ctx context.Context, orderID string, expectedFilled, newFilled decimal.Decimal, status domain.OrderStatus) error

	// CancelOrder freezes the remaining quantity of an open or partial order
	// owned by account. domain.ErrNotCancelable if the order is terminal,
	// domain.ErrOrderNotFound if it does not exist or belongs to another
	// account.
	CancelOrder(ctx context.Context, orderID, account string) error

	LoadOpenLevels(ctx context.Context, symbol string) (bids, asks []domain.BookLevel, err error)
	LoadRecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	LoadCandles(ctx context.Context, symbol string, interval time.Duration, limit int) ([]domain.Candle, error)

	// AccountBalance folds the trade ledger for account+symbol:
	// sum(buy quantity) - sum(sell quantity).
	AccountBalance(ctx context.Context, account, symbol string) (decimal.Decimal, error)

	// AccountBalances returns every non-zero balance for an account.
	AccountBalances(ctx context.Context, account string) (map[string]decimal.Decimal, error)
}
