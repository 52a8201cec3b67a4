package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/exchange"
	"github.com/Pmanos1/TestBot/internal/ledger"
	"github.com/Pmanos1/TestBot/internal/model"
)

// Restore carries the entry details of a buy the exchange filled while we
// were not looking; the engine uses it to rebuild a LONG position after a
// restart or crash.
type Restore struct {
	Price decimal.Decimal
	At    time.Time
}

// Reconciler resyncs persisted non-terminal orders against exchange truth.
// It runs at startup and on every minute boundary.
type Reconciler struct {
	gw     exchange.Gateway
	ledger ledger.Ledger
	logger *zap.Logger
	symbol string
	fetch  retryPolicy
}

func NewReconciler(gw exchange.Gateway, led ledger.Ledger, logger *zap.Logger, symbol string) *Reconciler {
	return &Reconciler{
		gw:     gw,
		ledger: led,
		logger: logger,
		symbol: symbol,
		fetch:  retryPolicy{maxAttempts: 3, baseDelay: 500 * time.Millisecond},
	}
}

// Sync walks every pending ledger record, fetches the exchange's view with
// bounded retry, and persists any terminal transition. When a buy record
// turns out filled it returns a Restore so the caller can rebuild the
// position. Orders still active on the exchange are left alone.
func (r *Reconciler) Sync(ctx context.Context) (*Restore, error) {
	pending, err := r.ledger.PendingOrders(ctx, r.symbol)
	if err != nil {
		return nil, err
	}
	r.logger.Info("reconciling pending orders", zap.Int("count", len(pending)))

	var restored *Restore
	updated := 0

	for _, rec := range pending {
		ord, err := r.fetchOrder(ctx, rec.OrderID)
		if err != nil {
			r.logger.Warn("could not fetch order, skipping",
				zap.String("order_id", rec.OrderID), zap.Error(err))
			continue
		}

		if ord.IsActive {
			r.logger.Debug("order still active on exchange", zap.String("order_id", rec.OrderID))
			continue
		}

		real := model.StatusFromOpType(ord.OpType)
		if real == rec.Status {
			continue
		}

		r.logger.Info("reconciling order status",
			zap.String("order_id", rec.OrderID),
			zap.String("from", string(rec.Status)),
			zap.String("to", string(real)),
		)
		if err := r.ledger.UpdateOrderStatus(ctx, rec.OrderID, real); err != nil {
			r.logger.Error("failed to persist reconciled status",
				zap.String("order_id", rec.OrderID), zap.Error(err))
			continue
		}
		updated++

		if rec.Side == model.SideBuy && real == model.OrderFilled {
			restored = &Restore{Price: rec.Price, At: rec.CreatedAt}
		}
	}

	r.logger.Info("reconciliation complete",
		zap.Int("updated", updated), zap.Int("total", len(pending)))
	return restored, nil
}

func (r *Reconciler) fetchOrder(ctx context.Context, orderID string) (model.ExchangeOrder, error) {
	var ord model.ExchangeOrder
	err := r.fetch.run(ctx, func() error {
		var ferr error
		ord, ferr = r.gw.Order(ctx, orderID)
		return ferr
	})
	return ord, err
}
