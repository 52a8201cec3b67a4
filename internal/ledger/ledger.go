// Package ledger persists order lifecycle records. The engine only depends on
// the Ledger interface; Postgres backs it in production.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Pmanos1/TestBot/internal/model"
)

// Ledger is the order-record repository contract.
type Ledger interface {
	// CreateOrder appends a new record. Called immediately after submission,
	// before confirmation, so every attempt that reached the exchange is on
	// record even if confirmation later fails.
	CreateOrder(ctx context.Context, rec model.OrderRecord) error
	// UpdateOrderStatus mutates the status of the record keyed by orderID.
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	// PendingOrders returns records whose status is not terminal.
	PendingOrders(ctx context.Context, symbol string) ([]model.OrderRecord, error)
	// LatestOrder returns the most recent record for the symbol, or nil.
	LatestOrder(ctx context.Context, symbol string) (*model.OrderRecord, error)
	// OrdersBySymbol returns up to limit records for the symbol, oldest first.
	OrdersBySymbol(ctx context.Context, symbol string, limit int) ([]model.OrderRecord, error)
	// RealizedPnL sums the PnL carried by every sell record for the symbol,
	// over the whole table rather than any bounded page.
	RealizedPnL(ctx context.Context, symbol string) (decimal.Decimal, error)
}
