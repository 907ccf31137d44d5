package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderKind string
type OrderStatus string

const (
	Buy  Side = "buy"
	Sell Side = "sell"

	Limit  OrderKind = "limit"
	Market OrderKind = "market"

	Open      OrderStatus = "open"
	Partial   OrderStatus = "partial"
	Filled    OrderStatus = "filled"
	Cancelled OrderStatus = "cancelled"
)

type Order struct {
	ID        string
	Account   string
	Symbol    string
	Side      Side
	Kind      OrderKind
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Filled    decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining is the quantity still eligible for matching.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// Resting reports whether the order can still be matched against.
func (o *Order) Resting() bool {
	return o.Status == Open || o.Status == Partial
}

// StatusForFill derives order status from the filled quantity: filled iff
// filled == quantity, partial iff 0 < filled < quantity, open otherwise.
func StatusForFill(filled, quantity decimal.Decimal) OrderStatus {
	switch {
	case filled.GreaterThanOrEqual(quantity):
		return Filled
	case filled.GreaterThan(decimal.Zero):
		return Partial
	default:
		return Open
	}
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}
