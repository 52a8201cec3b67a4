// Package exchange talks to the spot exchange's REST API. The engine core
// only depends on the Gateway interface; the KuCoin client implements it.
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Pmanos1/TestBot/internal/model"
)

// ErrOrderNotFound is returned when the exchange has not indexed an order yet.
// Right after submission this is a known race and callers treat it as
// transient.
var ErrOrderNotFound = errors.New("exchange: order does not exist")

// Gateway is the exchange collaborator contract the core depends on.
type Gateway interface {
	Symbols(ctx context.Context) ([]model.SymbolMeta, error)
	Ticker(ctx context.Context, symbol string) (model.Ticker, error)
	Accounts(ctx context.Context) ([]model.Account, error)
	CreateMarketOrder(ctx context.Context, clientOid string, side model.OrderSide, symbol string, size decimal.Decimal) (model.ExchangeOrder, error)
	CreateLimitOrder(ctx context.Context, clientOid string, side model.OrderSide, symbol string, price, size decimal.Decimal, timeInForce string) (model.ExchangeOrder, error)
	Order(ctx context.Context, orderID string) (model.ExchangeOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
}
