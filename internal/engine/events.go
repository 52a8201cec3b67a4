package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pmanos1/TestBot/internal/model"
)

// EventSink receives engine events for downstream consumers (the dashboard
// push gateway). Publishing is fire-and-forget; a slow or absent sink must
// never stall trading.
type EventSink interface {
	Publish(subject string, v any)
}

type nopSink struct{}

func (nopSink) Publish(string, any) {}

// TradeEvent is emitted on every confirmed fill.
type TradeEvent struct {
	Side   model.OrderSide  `json:"side"`
	Symbol string           `json:"symbol"`
	Price  decimal.Decimal  `json:"price"`
	Size   decimal.Decimal  `json:"size"`
	PnL    *decimal.Decimal `json:"pnl,omitempty"`
	Time   time.Time        `json:"ts"`
}

// SignalEvent mirrors the per-bar signal for the dashboard.
type SignalEvent struct {
	Symbol        string          `json:"symbol"`
	PredictedHigh float64         `json:"predicted_high"`
	PredictedLow  float64         `json:"predicted_low"`
	HLDiff        decimal.Decimal `json:"hl_diff"`
	Time          time.Time       `json:"ts"`
}
