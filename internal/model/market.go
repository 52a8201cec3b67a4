package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickKind tags which feed message a tick was decoded from.
type TickKind string

const (
	TickTradeMatch  TickKind = "match"
	TickTickerQuote TickKind = "ticker"
)

// Tick is one normalized feed event. Ticks are ephemeral and never persisted.
type Tick struct {
	Kind   TickKind        `json:"kind"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Time   time.Time       `json:"ts"`
}

// Bar is a one-minute OHLCV aggregate. It is mutable while it is the current
// bar and becomes immutable once appended to the rolling window.
type Bar struct {
	Symbol string          `json:"symbol"`
	Minute time.Time       `json:"t"`
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
}

// Ticker is a best bid/ask snapshot from the exchange.
type Ticker struct {
	BestBid decimal.Decimal `json:"bestBid"`
	BestAsk decimal.Decimal `json:"bestAsk"`
	Price   decimal.Decimal `json:"price"`
}

// SymbolMeta holds the exchange trading constraints for one symbol. Submitted
// quantities and prices must be floor-quantized to these increments or the
// exchange rejects the order.
type SymbolMeta struct {
	Symbol         string          `json:"symbol"`
	BaseCurrency   string          `json:"baseCurrency"`
	QuoteCurrency  string          `json:"quoteCurrency"`
	BaseMinSize    decimal.Decimal `json:"baseMinSize"`
	BaseIncrement  decimal.Decimal `json:"baseIncrement"`
	PriceIncrement decimal.Decimal `json:"priceIncrement"`
}

// AccountTypeTrade marks the spendable account bucket; only these entries
// count toward available balance.
const AccountTypeTrade = "trade"

// Account is one currency account on the exchange.
type Account struct {
	Currency  string          `json:"currency"`
	Type      string          `json:"type"`
	Available decimal.Decimal `json:"available"`
}
