package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an OHLCV aggregate of the trade ledger over a fixed time bucket.
// It is a read-only view recomputed from trades, never written directly.
type Candle struct {
	Symbol string
	Bucket time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// CandleInterval is the bucket width for derived candles.
const CandleInterval = time.Minute
