package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the canonical order state vocabulary. Exchange responses use
// a wider vocabulary ("done", "cancelled", ...) which is normalized at the
// boundary; filled and canceled are terminal.
type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderFilled   OrderStatus = "filled"
	OrderCanceled OrderStatus = "canceled"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCanceled
}

// NormalizeStatus maps the exchange's status vocabulary onto the canonical
// three states. Anything unrecognized counts as still open.
func NormalizeStatus(raw string) OrderStatus {
	switch strings.ToLower(raw) {
	case "done", "filled":
		return OrderFilled
	case "canceled", "cancelled":
		return OrderCanceled
	default:
		return OrderOpen
	}
}

// StatusFromOpType maps the operation-type field the exchange reports for
// inactive orders onto a terminal status. A "deal" operation means the order
// traded; a "cancel" operation means it was pulled.
func StatusFromOpType(opType string) OrderStatus {
	switch strings.ToLower(opType) {
	case "deal":
		return OrderFilled
	case "cancel":
		return OrderCanceled
	default:
		return OrderOpen
	}
}

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// SyntheticOrderID marks internal sell records that carry realized PnL and
// never went through the execution pipeline under their own exchange id.
const SyntheticOrderID = "N/A"

// OrderRecord is the persisted ledger row for one order submission. Rows are
// append-only on creation; only Status is mutated afterwards, keyed by
// OrderID, and never again once terminal.
type OrderRecord struct {
	ID        int64            `json:"id" db:"id"`
	OrderID   string           `json:"order_id" db:"order_id"`
	Status    OrderStatus      `json:"status" db:"status"`
	Side      OrderSide        `json:"side" db:"side"`
	Symbol    string           `json:"symbol" db:"symbol"`
	Price     decimal.Decimal  `json:"price" db:"price"`
	Quantity  decimal.Decimal  `json:"quantity" db:"quantity"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	PnL       *decimal.Decimal `json:"pnl,omitempty" db:"pnl"`
}

// ExchangeOrder is the exchange's own view of an order, as returned by the
// submission and status endpoints.
type ExchangeOrder struct {
	ID        string          `json:"orderId"`
	Status    string          `json:"status"`
	IsActive  bool            `json:"isActive"`
	OpType    string          `json:"opType"`
	DealPrice decimal.Decimal `json:"dealPrice"`
	DealSize  decimal.Decimal `json:"dealSize"`
}
