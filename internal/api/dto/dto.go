package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubmitOrderRequest struct {
	Symbol   string          `json:"symbol" binding:"required"`
	Side     string          `json:"side" binding:"required"`
	Kind     string          `json:"kind" binding:"required"`
	Price    decimal.Decimal `json:"price,omitempty"` // limit orders only
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
}

type SubmitOrderResponse struct {
	Order   Order   `json:"order"`
	Trades  []Trade `json:"trades"`
	Message string  `json:"message,omitempty"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type CancelOrderResponse struct {
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
}

type GetOrderResponse struct {
	Order Order `json:"order"`
}

type OrderBookResponse struct {
	Symbol string          `json:"symbol"`
	Bids   []BookLevel     `json:"bids"`
	Asks   []BookLevel     `json:"asks"`
	Spread decimal.Decimal `json:"spread"`
}

type TradesResponse struct {
	Trades []Trade `json:"trades"`
}

type CandlesResponse struct {
	Candles []Candle `json:"candles"`
}

type MarketsResponse struct {
	Assets []MarketAsset `json:"assets"`
}

type PortfolioResponse struct {
	Account    string          `json:"account"`
	TotalValue decimal.Decimal `json:"total_value"`
	Holdings   []Holding       `json:"holdings"`
}

type OpenSessionRequest struct {
	Account string `json:"account" binding:"required"`
}

type OpenSessionResponse struct {
	SessionID string `json:"session_id"`
	Account   string `json:"account"`
}

type Order struct {
	ID        string          `json:"id"`
	Account   string          `json:"account"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Kind      string          `json:"kind"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Filled    decimal.Decimal `json:"filled"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type Trade struct {
	ID        string          `json:"id"`
	Account   string          `json:"account"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
}

type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type Candle struct {
	Symbol string          `json:"symbol"`
	Bucket time.Time       `json:"bucket"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

type MarketAsset struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24h"`
	Volume24h decimal.Decimal `json:"volume24h"`
	MarketCap decimal.Decimal `json:"marketCap"`
	Category  string          `json:"category"`
}

type Holding struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
	Category string          `json:"category"`
}
