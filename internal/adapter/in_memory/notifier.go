package in_memory

import (
	"context"
	"sync"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

// Notifier is a channel-based pubsub for single-process deployments and
// tests. Slow subscribers drop events rather than blocking the publisher.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan *domain.Trade
	next int
}

var _ port.Notifier = (*Notifier)(nil)

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan *domain.Trade)}
}

func (n *Notifier) PublishTrade(ctx context.Context, t *domain.Trade) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		cp := *t
		select {
		case ch <- &cp:
		default:
		}
	}
	return nil
}

func (n *Notifier) SubscribeTrades(ctx context.Context) (<-chan *domain.Trade, func(), error) {
	n.mu.Lock()
	id := n.next
	n.next++
	ch := make(chan *domain.Trade, 64)
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			close(ch)
			n.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	return ch, stop, nil
}
