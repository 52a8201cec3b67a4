package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/exchange"
	"github.com/Pmanos1/TestBot/internal/infrastructure"
	"github.com/Pmanos1/TestBot/internal/ledger"
	"github.com/Pmanos1/TestBot/internal/model"
)

var (
	// ErrOrderCanceled reports that the exchange ended the order without a
	// fill. Recoverable: the caller skips the cycle.
	ErrOrderCanceled = errors.New("order canceled")
	// ErrConfirmTimeout reports that confirmation did not reach a terminal
	// state in time and the order was force-canceled.
	ErrConfirmTimeout = errors.New("order confirmation timed out")
)

// OrderModeMarket and OrderModeLimit select how orders are submitted.
const (
	OrderModeMarket = "market"
	OrderModeLimit  = "limit"
)

// Executor is the order execution pipeline: quantize, submit with bounded
// retry, persist, poll for the terminal state, and force-cancel on timeout.
type Executor struct {
	gw     exchange.Gateway
	ledger ledger.Ledger
	logger *zap.Logger

	symbol    string
	orderMode string
	slippage  decimal.Decimal
	meta      model.SymbolMeta

	submitRetry    retryPolicy
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

func NewExecutor(gw exchange.Gateway, led ledger.Ledger, logger *zap.Logger, symbol, orderMode string, slippage decimal.Decimal, confirmTimeout time.Duration) *Executor {
	return &Executor{
		gw:             gw,
		ledger:         led,
		logger:         logger,
		symbol:         symbol,
		orderMode:      orderMode,
		slippage:       slippage,
		submitRetry:    retryPolicy{maxAttempts: 5, baseDelay: time.Second},
		pollInterval:   500 * time.Millisecond,
		confirmTimeout: confirmTimeout,
	}
}

// SetMeta installs the exchange quantization constraints, fetched once at
// startup from symbol metadata.
func (x *Executor) SetMeta(meta model.SymbolMeta) {
	x.meta = meta
}

// FloorToPriceTick floors a price to the exchange price increment. Flooring,
// never rounding up, keeps a limit price inside its slippage bound.
func (x *Executor) FloorToPriceTick(p decimal.Decimal) decimal.Decimal {
	return floorToIncrement(p, x.meta.PriceIncrement)
}

// FloorToBaseLot floors a quantity to the base increment so an order never
// oversells or overspends the available balance.
func (x *Executor) FloorToBaseLot(q decimal.Decimal) decimal.Decimal {
	return floorToIncrement(q, x.meta.BaseIncrement)
}

func floorToIncrement(v, inc decimal.Decimal) decimal.Decimal {
	if inc.IsZero() {
		return v
	}
	return v.Div(inc).Floor().Mul(inc)
}

// Execute submits an order and waits for its terminal outcome, returning the
// authoritative fill price and size. refPrice is the caller's reference price,
// used for the persisted record and as the limit-price fallback when a live
// quote cannot be fetched.
func (x *Executor) Execute(ctx context.Context, side model.OrderSide, refPrice, qty decimal.Decimal) (fillPrice, fillSize decimal.Decimal, err error) {
	ord, err := x.Submit(ctx, side, refPrice, qty)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return x.confirm(ctx, ord.ID)
}

// Submit places the order with bounded retry and records it in the ledger
// before confirmation. The client order id is generated once per logical
// order and reused on every retry, so an attempt the exchange already
// accepted is rejected as a duplicate instead of opening a second order.
func (x *Executor) Submit(ctx context.Context, side model.OrderSide, refPrice, qty decimal.Decimal) (model.ExchangeOrder, error) {
	clientOid := uuid.NewString()
	attempt := 0

	var placed model.ExchangeOrder
	err := x.submitRetry.run(ctx, func() error {
		attempt++
		ord, err := x.submitOnce(ctx, clientOid, side, refPrice, qty)
		if err != nil {
			x.logger.Error("order attempt failed",
				zap.String("side", string(side)),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		placed = ord
		return nil
	})
	if err != nil {
		infrastructure.OrderFailures.WithLabelValues("submit").Inc()
		return model.ExchangeOrder{}, fmt.Errorf("%s order permanently failed: %w", side, err)
	}
	infrastructure.OrdersSubmitted.WithLabelValues(string(side)).Inc()
	return placed, nil
}

func (x *Executor) submitOnce(ctx context.Context, clientOid string, side model.OrderSide, refPrice, qty decimal.Decimal) (model.ExchangeOrder, error) {
	var (
		ord model.ExchangeOrder
		err error
	)

	if x.orderMode == OrderModeLimit {
		price := x.limitPrice(ctx, side, refPrice)
		ord, err = x.gw.CreateLimitOrder(ctx, clientOid, side, x.symbol, price, qty, "GTC")
	} else {
		ord, err = x.gw.CreateMarketOrder(ctx, clientOid, side, x.symbol, qty)
	}
	if err != nil {
		return model.ExchangeOrder{}, err
	}

	status := model.NormalizeStatus(ord.Status)
	rec := model.OrderRecord{
		OrderID:   ord.ID,
		Status:    status,
		Side:      side,
		Symbol:    x.symbol,
		Price:     refPrice,
		Quantity:  qty,
		CreatedAt: time.Now().UTC(),
	}
	if err := x.ledger.CreateOrder(ctx, rec); err != nil {
		return model.ExchangeOrder{}, fmt.Errorf("failed to record order %s: %w", ord.ID, err)
	}

	x.logger.Info("order placed",
		zap.String("side", string(side)),
		zap.String("order_id", ord.ID),
		zap.String("status", string(status)),
	)
	return ord, nil
}

// limitPrice computes bid×(1+slippage) for buys and ask×(1−slippage) for
// sells from a live quote, falling back to the caller's reference price when
// the quote fetch fails. The result is floored to the price tick.
func (x *Executor) limitPrice(ctx context.Context, side model.OrderSide, refPrice decimal.Decimal) decimal.Decimal {
	raw := refPrice
	tk, err := x.gw.Ticker(ctx, x.symbol)
	if err != nil {
		x.logger.Warn("failed to fetch ticker for slippage, using reference price",
			zap.Error(err), zap.String("price", refPrice.String()))
	} else if side == model.SideBuy {
		raw = tk.BestBid.Mul(decimal.NewFromInt(1).Add(x.slippage))
	} else {
		raw = tk.BestAsk.Mul(decimal.NewFromInt(1).Sub(x.slippage))
	}
	return x.FloorToPriceTick(raw)
}

// confirm polls the order until it reaches a terminal state. An order the
// exchange has not indexed yet is a known race and polls again. After
// confirmTimeout the order is explicitly canceled: the unconditional safety
// valve against indefinitely stuck capital.
func (x *Executor) confirm(ctx context.Context, orderID string) (decimal.Decimal, decimal.Decimal, error) {
	start := time.Now()

	for {
		ord, err := x.gw.Order(ctx, orderID)
		switch {
		case errors.Is(err, exchange.ErrOrderNotFound):
			x.logger.Debug("order not yet indexed, retrying", zap.String("order_id", orderID))
		case err != nil:
			return decimal.Zero, decimal.Zero, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
		default:
			mapped := model.NormalizeStatus(ord.Status)
			if !ord.IsActive {
				if uerr := x.ledger.UpdateOrderStatus(ctx, orderID, mapped); uerr != nil {
					x.logger.Error("failed to persist terminal status", zap.String("order_id", orderID), zap.Error(uerr))
				}
				if mapped == model.OrderFilled {
					x.logger.Info("order confirmed filled",
						zap.String("order_id", orderID),
						zap.String("deal_price", ord.DealPrice.String()),
						zap.String("deal_size", ord.DealSize.String()),
					)
					return ord.DealPrice, ord.DealSize, nil
				}
				infrastructure.OrderFailures.WithLabelValues("canceled").Inc()
				return decimal.Zero, decimal.Zero, fmt.Errorf("order %s ended as %s: %w", orderID, mapped, ErrOrderCanceled)
			}
		}

		if time.Since(start) > x.confirmTimeout {
			x.logger.Warn("order confirmation timed out, canceling", zap.String("order_id", orderID))
			if cerr := x.gw.CancelOrder(ctx, orderID); cerr != nil {
				x.logger.Error("cancel request failed", zap.String("order_id", orderID), zap.Error(cerr))
			}
			if uerr := x.ledger.UpdateOrderStatus(ctx, orderID, model.OrderCanceled); uerr != nil {
				x.logger.Error("failed to persist canceled status", zap.String("order_id", orderID), zap.Error(uerr))
			}
			infrastructure.OrderFailures.WithLabelValues("timeout").Inc()
			return decimal.Zero, decimal.Zero, fmt.Errorf("order %s: %w", orderID, ErrConfirmTimeout)
		}

		select {
		case <-ctx.Done():
			return decimal.Zero, decimal.Zero, ctx.Err()
		case <-time.After(x.pollInterval):
		}
	}
}
