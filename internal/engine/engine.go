// Package engine implements the single-symbol spot execution engine: bar
// aggregation, signal gating, the long-only position state machine, the
// order execution pipeline and ledger reconciliation.
//
// All trading state is owned by one goroutine. Feed ticks and the minute
// timer are funneled through the same select loop, and every exchange call
// inside a handler is awaited before the next event is taken, so no locking
// is needed around Position, bars or the balance cache.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/exchange"
	"github.com/Pmanos1/TestBot/internal/infrastructure"
	"github.com/Pmanos1/TestBot/internal/ledger"
	"github.com/Pmanos1/TestBot/internal/model"
)

// balanceEpsilon is the negligible quote amount below which an entry is not
// worth attempting.
var balanceEpsilon = decimal.New(1, -8)

// Config holds the strategy parameters for one engine run.
type Config struct {
	Symbol           string
	HLDiffThreshold  decimal.Decimal
	ProfitTargetMult decimal.Decimal
	StopLossMult     decimal.Decimal
	LimitSlippage    decimal.Decimal
	TimeStop         time.Duration
	WindowSize       int
}

// Feed produces normalized ticks until its context is canceled.
type Feed interface {
	Run(ctx context.Context, ticks chan<- model.Tick)
}

// Engine owns the trading state for one symbol and drives the full decision
// loop from tick to order.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	gw       exchange.Gateway
	ledger   ledger.Ledger
	feed     Feed
	eval     *Evaluator
	bars     *BarAggregator
	balances *BalanceCache
	exec     *Executor
	rec      *Reconciler
	sink     EventSink

	meta  model.SymbolMeta
	pos   *Position
	stats Stats

	running       atomic.Bool
	stopRequested atomic.Bool
	isLong        atomic.Bool

	// mu guards the snapshots read by the control plane.
	mu         sync.RWMutex
	lastSignal *Signal
}

func New(cfg Config, gw exchange.Gateway, led ledger.Ledger, feed Feed, eval *Evaluator, balances *BalanceCache, exec *Executor, rec *Reconciler, sink EventSink, logger *zap.Logger) *Engine {
	if sink == nil {
		sink = nopSink{}
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		gw:       gw,
		ledger:   led,
		feed:     feed,
		eval:     eval,
		bars:     NewBarAggregator(cfg.Symbol, cfg.WindowSize),
		balances: balances,
		exec:     exec,
		rec:      rec,
		sink:     sink,
		pos:      NewPosition(),
	}
}

// Run drives the engine until the context is canceled or a requested stop
// has drained the open position. It blocks for the lifetime of the run.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)

	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()

	ticks := make(chan model.Tick, 1000)
	go e.feed.Run(feedCtx, ticks)

	minuteCh := make(chan time.Time, 1)
	go e.minuteTimer(feedCtx, minuteCh)

	stopPoll := time.NewTicker(200 * time.Millisecond)
	defer stopPoll.Stop()

	e.logger.Info("engine running", zap.String("symbol", e.cfg.Symbol))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticks:
			e.handleTick(ctx, t)
		case now := <-minuteCh:
			e.handleMinute(ctx, now)
		case <-stopPoll.C:
			if e.stopRequested.Load() && e.pos.State == Flat {
				e.logger.Info("sell-only drain complete, shutting down")
				return nil
			}
		}
	}
}

// bootstrap fetches the symbol constraints, reconciles persisted orders
// against the exchange, and restores a LONG position left over from a
// previous run.
func (e *Engine) bootstrap(ctx context.Context) error {
	metas, err := e.gw.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch symbol metadata: %w", err)
	}
	found := false
	for _, m := range metas {
		if m.Symbol == e.cfg.Symbol {
			e.meta = m
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("symbol %s not found on exchange", e.cfg.Symbol)
	}
	e.exec.SetMeta(e.meta)
	e.logger.Info("symbol constraints loaded",
		zap.String("base_min_size", e.meta.BaseMinSize.String()),
		zap.String("base_increment", e.meta.BaseIncrement.String()),
		zap.String("price_increment", e.meta.PriceIncrement.String()),
	)

	restored, err := e.rec.Sync(ctx)
	if err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}
	e.applyRestore(ctx, restored)

	// A buy that was already confirmed filled in a previous run is resumed
	// directly from the ledger.
	if e.pos.State == Flat {
		last, err := e.ledger.LatestOrder(ctx, e.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("failed to load latest order: %w", err)
		}
		if last != nil && last.Side == model.SideBuy && last.Status == model.OrderFilled {
			quoteBefore := e.balances.Available(ctx, e.meta.QuoteCurrency)
			e.pos.OpenLong(last.Price, last.CreatedAt, e.cfg.ProfitTargetMult, quoteBefore)
			e.isLong.Store(true)
			e.logger.Info("resumed long position",
				zap.String("entry_price", last.Price.String()),
				zap.Time("entry_time", last.CreatedAt),
			)
		}
	}
	return nil
}

// minuteTimer fires shortly after each minute boundary so quiet markets
// still get a bar evaluation and a reconciliation pass.
func (e *Engine) minuteTimer(ctx context.Context, out chan<- time.Time) {
	for {
		now := time.Now().UTC()
		target := now.Truncate(time.Minute).Add(time.Minute + 500*time.Millisecond)
		select {
		case <-ctx.Done():
			return
		case <-time.After(target.Sub(now)):
		}
		select {
		case out <- time.Now().UTC():
		default:
		}
	}
}

// handleMinute reconciles pending orders and injects a synthetic ticker tick
// carrying the current bar's close, forcing a rollover even without trades.
func (e *Engine) handleMinute(ctx context.Context, now time.Time) {
	restored, err := e.rec.Sync(ctx)
	if err != nil {
		e.logger.Warn("minute reconciliation failed", zap.Error(err))
	} else {
		e.applyRestore(ctx, restored)
	}

	cur := e.bars.Current()
	if cur == nil {
		return
	}
	e.handleTick(ctx, model.Tick{
		Kind:   model.TickTickerQuote,
		Symbol: e.cfg.Symbol,
		Price:  cur.Close,
		Time:   now,
	})
}

// handleTick is the single-threaded event-processing entry point. A failure
// inside one cycle is logged and swallowed: one bad trade attempt must never
// halt market-data ingestion.
func (e *Engine) handleTick(ctx context.Context, t model.Tick) {
	if t.Symbol != e.cfg.Symbol || t.Price.IsZero() {
		return
	}
	infrastructure.TicksProcessed.WithLabelValues(t.Symbol).Inc()
	e.sink.Publish("algo.ticks."+t.Symbol, t)

	quote := e.balances.Available(ctx, e.meta.QuoteCurrency)
	base := e.balances.Available(ctx, e.meta.BaseCurrency)

	closed := e.bars.Apply(t)
	if closed == nil {
		return
	}
	infrastructure.BarsClosed.WithLabelValues(t.Symbol).Inc()
	e.sink.Publish("algo.bars."+t.Symbol, closed)

	sig, err := e.eval.Evaluate(ctx, e.bars.Window())
	if err != nil {
		e.logger.Warn("no signal this cycle", zap.Error(err))
		return
	}
	if sig == nil {
		return
	}

	e.mu.Lock()
	e.lastSignal = sig
	e.mu.Unlock()
	e.sink.Publish("algo.signals."+t.Symbol, SignalEvent{
		Symbol:        t.Symbol,
		PredictedHigh: sig.PredictedHigh,
		PredictedLow:  sig.PredictedLow,
		HLDiff:        sig.HLDiff,
		Time:          t.Time,
	})

	e.decide(ctx, sig, t, quote, base)
}

// decide runs one entry/exit evaluation cycle.
func (e *Engine) decide(ctx context.Context, sig *Signal, t model.Tick, quote, base decimal.Decimal) {
	if e.pos.State == Flat {
		if e.stopRequested.Load() {
			return
		}
		if !e.entryGatesPass(sig) {
			return
		}
		if quote.LessThanOrEqual(balanceEpsilon) {
			e.logger.Error("no quote balance to buy",
				zap.String("currency", e.meta.QuoteCurrency),
				zap.String("available", quote.String()),
			)
			return
		}
		e.enter(ctx, t, quote)
		return
	}

	e.pos.Touch(t.Price)
	reason := exitReason(e.pos, t.Price, sig, t.Time, e.cfg.StopLossMult, e.cfg.TimeStop)
	if reason == "" {
		return
	}
	e.exit(ctx, t, base, reason)
}

// entryGatesPass checks the signal thresholds for a new entry.
func (e *Engine) entryGatesPass(sig *Signal) bool {
	return sig.HLDiff.GreaterThanOrEqual(e.cfg.HLDiffThreshold) &&
		sig.PredictedHigh >= 0 &&
		sig.PredictedLow > 0
}

// enter sizes a buy to spend up to the entire cached quote balance and runs
// it through the pipeline. Failures skip the cycle, never crash the run.
func (e *Engine) enter(ctx context.Context, t model.Tick, quote decimal.Decimal) {
	refPrice := t.Price
	if tk, err := e.gw.Ticker(ctx, e.cfg.Symbol); err == nil {
		refPrice = tk.BestBid.Mul(decimal.NewFromInt(1).Add(e.cfg.LimitSlippage))
	} else {
		e.logger.Warn("ticker fetch failed, using tick price for entry", zap.Error(err))
	}
	refPrice = e.exec.FloorToPriceTick(refPrice)
	if refPrice.IsZero() {
		return
	}

	qty := e.exec.FloorToBaseLot(quote.Div(refPrice))
	if qty.LessThan(e.meta.BaseMinSize) {
		e.logger.Warn("buy quantity below exchange minimum, skipping",
			zap.String("qty", qty.String()),
			zap.String("base_min_size", e.meta.BaseMinSize.String()),
		)
		return
	}

	quoteBefore := quote
	e.logger.Info("buy request",
		zap.String("qty", qty.String()),
		zap.String("price", refPrice.String()),
		zap.String("quote_balance", quote.String()),
	)

	fillPrice, fillSize, err := e.exec.Execute(ctx, model.SideBuy, refPrice, qty)
	if err != nil {
		e.logger.Warn("buy failed, continuing", zap.Error(err))
		return
	}

	e.balances.Invalidate()
	e.pos.OpenLong(fillPrice, t.Time, e.cfg.ProfitTargetMult, quoteBefore)
	e.isLong.Store(true)
	e.logger.Info("buy filled",
		zap.String("qty", fillSize.String()),
		zap.String("price", fillPrice.String()),
	)
	e.sink.Publish("algo.trades."+e.cfg.Symbol, TradeEvent{
		Side: model.SideBuy, Symbol: e.cfg.Symbol,
		Price: fillPrice, Size: fillSize, Time: t.Time,
	})
}

// exit sells the whole cached base balance, floored to the lot size, and
// books realized PnL against the pre-entry quote snapshot.
func (e *Engine) exit(ctx context.Context, t model.Tick, base decimal.Decimal, reason ExitReason) {
	qty := e.exec.FloorToBaseLot(base)
	if qty.LessThanOrEqual(e.meta.BaseMinSize) {
		// Degraded state: position open but nothing sellable above the
		// exchange minimum. Needs operator attention.
		e.logger.Error("not enough base balance to sell",
			zap.String("currency", e.meta.BaseCurrency),
			zap.String("qty", qty.String()),
		)
		return
	}

	e.logger.Info("sell request",
		zap.String("reason", string(reason)),
		zap.String("qty", qty.String()),
		zap.String("price", t.Price.String()),
	)

	fillPrice, fillSize, err := e.exec.Execute(ctx, model.SideSell, t.Price, qty)
	if err != nil {
		e.logger.Warn("sell failed, continuing", zap.Error(err))
		return
	}

	e.balances.Invalidate()
	quoteAfter := e.balances.Available(ctx, e.meta.QuoteCurrency)
	pnl := quoteAfter.Sub(e.pos.QuoteBefore)

	e.mu.Lock()
	e.stats.record(pnl)
	total := e.stats.TotalPnL
	e.mu.Unlock()

	outcome := "win"
	if pnl.IsNegative() {
		outcome = "loss"
	}
	infrastructure.TradesClosed.WithLabelValues(outcome).Inc()
	infrastructure.RealizedPnL.Set(total.InexactFloat64())

	// The pipeline recorded the sell under its exchange id; this synthetic
	// record carries the realized PnL for reporting.
	rec := model.OrderRecord{
		OrderID:   model.SyntheticOrderID,
		Status:    model.OrderFilled,
		Side:      model.SideSell,
		Symbol:    e.cfg.Symbol,
		Price:     fillPrice,
		Quantity:  fillSize,
		CreatedAt: t.Time,
		PnL:       &pnl,
	}
	if err := e.ledger.CreateOrder(ctx, rec); err != nil {
		e.logger.Error("failed to record sell pnl", zap.Error(err))
	}

	e.pos.Close()
	e.isLong.Store(false)
	e.logger.Info("sell filled",
		zap.String("qty", fillSize.String()),
		zap.String("price", fillPrice.String()),
		zap.String("pnl", pnl.String()),
	)
	e.sink.Publish("algo.trades."+e.cfg.Symbol, TradeEvent{
		Side: model.SideSell, Symbol: e.cfg.Symbol,
		Price: fillPrice, Size: fillSize, PnL: &pnl, Time: t.Time,
	})
}

// applyRestore rebuilds a LONG position from a reconciled buy fill.
func (e *Engine) applyRestore(ctx context.Context, res *Restore) {
	if res == nil {
		return
	}
	quoteBefore := e.balances.Available(ctx, e.meta.QuoteCurrency)
	e.pos.OpenLong(res.Price, res.At, e.cfg.ProfitTargetMult, quoteBefore)
	e.isLong.Store(true)
	e.logger.Info("restored long position from ledger",
		zap.String("entry_price", res.Price.String()),
		zap.Time("entry_time", res.At),
	)
}

// Running reports whether Run is currently active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// RequestStop enters sell-only mode: no new entries, exits keep evaluating,
// and the run loop terminates once the position is flat.
func (e *Engine) RequestStop() {
	e.stopRequested.Store(true)
}

// ResetStop clears a previous sell-only request before a fresh start.
func (e *Engine) ResetStop() {
	e.stopRequested.Store(false)
}

// Prediction returns the most recent model forecast, if any bar produced one.
func (e *Engine) Prediction() (high, low float64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastSignal == nil {
		return 0, 0, false
	}
	return e.lastSignal.PredictedHigh, e.lastSignal.PredictedLow, true
}

// Snapshot returns the cumulative trade counters.
func (e *Engine) Snapshot() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// PositionState returns the current position state.
func (e *Engine) PositionState() PositionState {
	if e.isLong.Load() {
		return Long
	}
	return Flat
}
