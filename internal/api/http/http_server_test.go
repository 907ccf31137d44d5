package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantx/carbon-exchange/internal/adapter/in_memory"
	"github.com/verdantx/carbon-exchange/internal/api/dto"
	"github.com/verdantx/carbon-exchange/internal/core"
	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	server   *Server
	repo     *in_memory.Repo
	sessions *session.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo := in_memory.NewRepo()
	feed := in_memory.NewFeed(
		domain.MarketAsset{Symbol: "CCX", Name: "Carbon Credit Exchange Token", Price: decimal.NewFromInt(100), Category: domain.CategoryCarbon},
	)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	engine := core.NewEngine(repo, in_memory.NewCache(), feed, in_memory.NewNotifier(), log)
	sessions := session.NewManager(in_memory.NewKV(), time.Hour)
	return &env{
		server:   NewServer(engine, sessions, nil, log),
		repo:     repo,
		sessions: sessions,
	}
}

func (e *env) do(method, path, account string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if account != "" {
		req.Header.Set("X-Account-Address", account)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func submitBody(side, kind, price, qty string) dto.SubmitOrderRequest {
	req := dto.SubmitOrderRequest{Symbol: "CCX", Side: side, Kind: kind}
	if price != "" {
		req.Price, _ = decimal.NewFromString(price)
	}
	req.Quantity, _ = decimal.NewFromString(qty)
	return req
}

func TestSubmitOrderEndpoint(t *testing.T) {
	t.Run("limit order accepted", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "limit", "95", "2"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp dto.SubmitOrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "open", resp.Order.Status)
		assert.Equal(t, "0xalice", resp.Order.Account)
		assert.Empty(t, resp.Trades)
		assert.Empty(t, resp.Message)
	})

	t.Run("missing account", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(http.MethodPost, "/api/v1/orders", "", submitBody("buy", "limit", "95", "2"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		e := newEnv(t)
		body := submitBody("buy", "limit", "95", "2")
		body.Symbol = "NOPE"
		w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		e := newEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{"))
		req.Header.Set("X-Account-Address", "0xalice")
		w := httptest.NewRecorder()
		e.server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversell rejected", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("sell", "limit", "95", "2"))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("market order executes against resting sell", func(t *testing.T) {
		e := newEnv(t)
		seedSell(t, e.repo, "0xbob", "100", "10")

		w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "market", "", "4"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp dto.SubmitOrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "filled", resp.Order.Status)
		require.Len(t, resp.Trades, 1)
		assert.True(t, resp.Trades[0].Price.Equal(decimal.NewFromInt(100)))
	})
}

func TestRateLimitOnOrders(t *testing.T) {
	e := newEnv(t)
	first := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "limit", "95", "1"))
	require.Equal(t, http.StatusOK, first.Code)

	second := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "limit", "95", "1"))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// another account is not throttled by the first one
	other := e.do(http.MethodPost, "/api/v1/orders", "0xbob", submitBody("buy", "limit", "95", "1"))
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestCancelOrderEndpoint(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "limit", "95", "2"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.SubmitOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	time.Sleep(110 * time.Millisecond) // outlast the per-account order window

	t.Run("owner cancels", func(t *testing.T) {
		w := e.do(http.MethodPost, "/api/v1/orders/cancel", "0xalice", dto.CancelOrderRequest{OrderID: resp.Order.ID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var cr dto.CancelOrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cr))
		assert.True(t, cr.Cancelled)
	})

	t.Run("cancelled order conflicts on repeat", func(t *testing.T) {
		time.Sleep(110 * time.Millisecond)
		w := e.do(http.MethodPost, "/api/v1/orders/cancel", "0xalice", dto.CancelOrderRequest{OrderID: resp.Order.ID})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("foreign order not found", func(t *testing.T) {
		w := e.do(http.MethodPost, "/api/v1/orders/cancel", "0xeve", dto.CancelOrderRequest{OrderID: resp.Order.ID})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown id not found", func(t *testing.T) {
		w := e.do(http.MethodPost, "/api/v1/orders/cancel", "0xcarol", dto.CancelOrderRequest{OrderID: uuid.NewString()})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetOrderEndpoint(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "limit", "95", "2"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.SubmitOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	got := e.do(http.MethodGet, "/api/v1/orders/"+resp.Order.ID, "", nil)
	require.Equal(t, http.StatusOK, got.Code)
	var or dto.GetOrderResponse
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &or))
	assert.Equal(t, resp.Order.ID, or.Order.ID)

	missing := e.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestOrderBookEndpoint(t *testing.T) {
	e := newEnv(t)
	seedSell(t, e.repo, "0xbob", "101", "3")
	w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "limit", "99", "2"))
	require.Equal(t, http.StatusOK, w.Code)

	book := e.do(http.MethodGet, "/api/v1/orderbook?symbol=CCX", "", nil)
	require.Equal(t, http.StatusOK, book.Code)
	var br dto.OrderBookResponse
	require.NoError(t, json.Unmarshal(book.Body.Bytes(), &br))
	require.Len(t, br.Bids, 1)
	require.Len(t, br.Asks, 1)
	assert.True(t, br.Spread.Equal(decimal.NewFromInt(2)))

	noSymbol := e.do(http.MethodGet, "/api/v1/orderbook", "", nil)
	assert.Equal(t, http.StatusBadRequest, noSymbol.Code)
}

func TestTradesAndCandlesEndpoints(t *testing.T) {
	e := newEnv(t)
	seedSell(t, e.repo, "0xbob", "100", "10")
	w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "market", "", "4"))
	require.Equal(t, http.StatusOK, w.Code)

	trades := e.do(http.MethodGet, "/api/v1/trades?symbol=CCX", "", nil)
	require.Equal(t, http.StatusOK, trades.Code)
	var tr dto.TradesResponse
	require.NoError(t, json.Unmarshal(trades.Body.Bytes(), &tr))
	assert.Len(t, tr.Trades, 2)

	candles := e.do(http.MethodGet, "/api/v1/candles?symbol=CCX", "", nil)
	require.Equal(t, http.StatusOK, candles.Code)
	var cr dto.CandlesResponse
	require.NoError(t, json.Unmarshal(candles.Body.Bytes(), &cr))
	require.Len(t, cr.Candles, 1)
	assert.True(t, cr.Candles[0].Volume.Equal(decimal.NewFromInt(8)))

	// a numeric limit is honoured, a malformed one is rejected
	limited := e.do(http.MethodGet, "/api/v1/trades?symbol=CCX&limit=1", "", nil)
	require.Equal(t, http.StatusOK, limited.Code)
	var lr dto.TradesResponse
	require.NoError(t, json.Unmarshal(limited.Body.Bytes(), &lr))
	assert.Len(t, lr.Trades, 1)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/trades?symbol=CCX&limit=abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/candles?symbol=CCX&limit=abc", "", nil).Code)
}

func TestMarketsEndpoint(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/v1/markets", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mr dto.MarketsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mr))
	require.Len(t, mr.Assets, 1)
	assert.Equal(t, "CCX", mr.Assets[0].Symbol)
}

func TestPortfolioEndpoint(t *testing.T) {
	e := newEnv(t)
	seedSell(t, e.repo, "0xbob", "100", "10")
	w := e.do(http.MethodPost, "/api/v1/orders", "0xalice", submitBody("buy", "market", "", "4"))
	require.Equal(t, http.StatusOK, w.Code)

	p := e.do(http.MethodGet, "/api/v1/portfolio", "0xalice", nil)
	require.Equal(t, http.StatusOK, p.Code)
	var pr dto.PortfolioResponse
	require.NoError(t, json.Unmarshal(p.Body.Bytes(), &pr))
	require.Len(t, pr.Holdings, 1)
	assert.Equal(t, "CCX", pr.Holdings[0].Symbol)
	assert.True(t, pr.Holdings[0].Balance.Equal(decimal.NewFromInt(4)))
	assert.True(t, pr.TotalValue.Equal(decimal.NewFromInt(400)))

	anonymous := e.do(http.MethodGet, "/api/v1/portfolio", "", nil)
	assert.Equal(t, http.StatusBadRequest, anonymous.Code)
}

func TestSessionFlow(t *testing.T) {
	e := newEnv(t)

	opened := e.do(http.MethodPost, "/api/v1/sessions", "", dto.OpenSessionRequest{Account: "0xalice"})
	require.Equal(t, http.StatusOK, opened.Code)
	var sr dto.OpenSessionResponse
	require.NoError(t, json.Unmarshal(opened.Body.Bytes(), &sr))
	require.NotEmpty(t, sr.SessionID)

	// a session header resolves the account without X-Account-Address
	body := submitBody("buy", "limit", "95", "1")
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", &buf)
	req.Header.Set("X-Session-ID", sr.SessionID)
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.SubmitOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "0xalice", resp.Order.Account)

	closed := e.do(http.MethodDelete, "/api/v1/sessions/"+sr.SessionID, "", nil)
	assert.Equal(t, http.StatusNoContent, closed.Code)

	// the closed session no longer resolves; the order endpoint wants an account
	buf.Reset()
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders", &buf)
	req.Header.Set("X-Session-ID", sr.SessionID)
	w = httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func seedSell(t *testing.T, repo *in_memory.Repo, account, price, qty string) {
	t.Helper()
	p, err := decimal.NewFromString(price)
	require.NoError(t, err)
	q, err := decimal.NewFromString(qty)
	require.NoError(t, err)
	now := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, repo.SaveOrder(context.Background(), &domain.Order{
		ID:        uuid.NewString(),
		Account:   account,
		Symbol:    "CCX",
		Side:      domain.Sell,
		Kind:      domain.Limit,
		Price:     p,
		Quantity:  q,
		Filled:    decimal.Zero,
		Status:    domain.Open,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}
