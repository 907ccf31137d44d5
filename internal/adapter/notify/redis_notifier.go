package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

const tradeChannel = "trades.new"

var _ port.Notifier = (*RedisNotifier)(nil)

// RedisNotifier fans trade events out over redis pub/sub so every process
// serving clients sees inserts made by any matching pass. Fire-and-forget:
// no acknowledgement, no replay.
type RedisNotifier struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisNotifier(client *redis.Client, log *logrus.Logger) *RedisNotifier {
	if log == nil {
		log = logrus.New()
	}
	return &RedisNotifier{client: client, log: log}
}

func (n *RedisNotifier) PublishTrade(ctx context.Context, t *domain.Trade) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, tradeChannel, b).Err()
}

func (n *RedisNotifier) SubscribeTrades(ctx context.Context) (<-chan *domain.Trade, func(), error) {
	sub := n.client.Subscribe(ctx, tradeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan *domain.Trade, 64)
	var once sync.Once
	stop := func() {
		once.Do(func() { _ = sub.Close() })
	}

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var t domain.Trade
			if err := json.Unmarshal([]byte(msg.Payload), &t); err != nil {
				n.log.WithError(err).Warn("dropping malformed trade event")
				continue
			}
			select {
			case out <- &t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		stop()
	}()

	return out, stop, nil
}
