package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantx/carbon-exchange/internal/adapter/in_memory"
	"github.com/verdantx/carbon-exchange/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func newTestTrade(symbol string) *domain.Trade {
	return &domain.Trade{
		ID:        uuid.NewString(),
		Account:   "0xalice",
		Symbol:    symbol,
		Side:      domain.Buy,
		Price:     decimal.NewFromInt(100),
		Quantity:  decimal.NewFromInt(2),
		CreatedAt: time.Now().UTC(),
	}
}

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	router := gin.New()
	router.GET("/ws", hub.HandleConnection)
	srv := httptest.NewServer(router)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestSubscribedClientReceivesTrades(t *testing.T) {
	notifier := in_memory.NewNotifier()
	hub := NewHub(notifier, quietLog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "subscribe", Channel: TradeChannel("CCX")}))

	// the subscription travels through the read pump asynchronously
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.IsSubscribed(TradeChannel("CCX")) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, notifier.PublishTrade(context.Background(), newTestTrade("CCX")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Channel string `json:"channel"`
		Trade   struct {
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			Price    string `json:"price"`
			Quantity string `json:"quantity"`
		} `json:"trade"`
	}
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "trades:CCX", event.Channel)
	assert.Equal(t, "CCX", event.Trade.Symbol)
	assert.Equal(t, "buy", event.Trade.Side)
	assert.Equal(t, "100", event.Trade.Price)
	assert.Equal(t, "2", event.Trade.Quantity)
}

func TestUnsubscribedChannelsAreFiltered(t *testing.T) {
	notifier := in_memory.NewNotifier()
	hub := NewHub(notifier, quietLog())

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "subscribe", Channel: TradeChannel("BTC")}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.IsSubscribed(TradeChannel("BTC")) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastTrade(newTestTrade("CCX"))
	hub.BroadcastTrade(newTestTrade("BTC"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event tradeEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "trades:BTC", event.Channel)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	notifier := in_memory.NewNotifier()
	hub := NewHub(notifier, quietLog())

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "subscribe", Channel: TradeChannel("CCX")}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.IsSubscribed(TradeChannel("CCX")) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "unsubscribe", Channel: TradeChannel("CCX")}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.IsSubscribed(TradeChannel("CCX")) {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastTrade(newTestTrade("CCX"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no event should arrive after unsubscribing")
}

func TestDisconnectUnregistersClient(t *testing.T) {
	notifier := in_memory.NewNotifier()
	hub := NewHub(notifier, quietLog())

	conn, cleanup := dialHub(t, hub)

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cleanup()

	// broadcasting with no clients is a no-op
	hub.BroadcastTrade(newTestTrade("CCX"))
}
