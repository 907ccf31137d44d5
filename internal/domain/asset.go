package domain

import "github.com/shopspring/decimal"

type AssetCategory string

const (
	CategoryAll    AssetCategory = "all"
	CategoryCrypto AssetCategory = "crypto"
	CategoryCarbon AssetCategory = "carbon"
	CategoryToken  AssetCategory = "token"
)

// MarketAsset is external reference data from the market data feed.
// Read-only; the engine never writes it.
type MarketAsset struct {
	Symbol    string
	Name      string
	Price     decimal.Decimal
	Change24h decimal.Decimal
	Volume24h decimal.Decimal
	MarketCap decimal.Decimal
	Category  AssetCategory
}

// BookLevel is aggregated open interest at one price.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is the aggregated view of resting orders for a symbol: bids
// sorted by price descending, asks ascending.
type OrderBook struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
	Spread decimal.Decimal
}

// Holding is one account position derived from the trade ledger.
type Holding struct {
	Symbol   string
	Name     string
	Balance  decimal.Decimal
	Price    decimal.Decimal
	Value    decimal.Decimal
	Category AssetCategory
}

// Portfolio is the full derived position of one account, valued against the
// market feed.
type Portfolio struct {
	Account    string
	TotalValue decimal.Decimal
	Holdings   []Holding
}
