package port

import (
	"context"

	"github.com/verdantx/carbon-exchange/internal/domain"
)

// Notifier pushes new-trade events to subscribers so derived views (candles,
// recent trades) can refresh without polling. Delivery is fire-and-forget:
// no acknowledgement, no replay.
type Notifier interface {
	PublishTrade(ctx context.Context, t *domain.Trade) error

	// SubscribeTrades returns a channel of new trades and a stop function.
	// The channel is closed when the context ends or stop is called.
	SubscribeTrades(ctx context.Context) (<-chan *domain.Trade, func(), error)
}
