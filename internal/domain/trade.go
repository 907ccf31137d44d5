package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one side of an executed match. A trade is a fact: once written to
// the ledger it is never mutated or deleted. Every match produces exactly two
// trades with identical price and quantity, one per counterparty.
type Trade struct {
	ID        string
	Account   string
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	CreatedAt time.Time
}
