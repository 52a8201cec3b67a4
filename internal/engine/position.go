package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is FLAT or LONG; the engine is long-only.
type PositionState string

const (
	Flat PositionState = "FLAT"
	Long PositionState = "LONG"
)

// Position is the in-memory position lifecycle state. It is reconstructed
// from the ledger on restart.
type Position struct {
	State      PositionState
	EntryPrice decimal.Decimal
	EntryTime  time.Time
	// HighWater never decreases for the lifetime of a LONG position.
	HighWater  decimal.Decimal
	TargetExit decimal.Decimal
	// QuoteBefore snapshots the quote balance before entry for PnL.
	QuoteBefore decimal.Decimal
}

func NewPosition() *Position {
	return &Position{State: Flat}
}

// OpenLong transitions FLAT → LONG at the given fill price.
func (p *Position) OpenLong(price decimal.Decimal, at time.Time, profitTargetMult, quoteBefore decimal.Decimal) {
	p.State = Long
	p.EntryPrice = price
	p.EntryTime = at
	p.HighWater = price
	p.TargetExit = price.Mul(profitTargetMult)
	p.QuoteBefore = quoteBefore
}

// Touch raises the high-water mark if price exceeds it.
func (p *Position) Touch(price decimal.Decimal) {
	if p.State == Long && price.GreaterThan(p.HighWater) {
		p.HighWater = price
	}
}

// Close transitions back to FLAT.
func (p *Position) Close() {
	*p = Position{State: Flat}
}

// ExitReason names which exit rule fired, or "" when none did.
type ExitReason string

const (
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitModelSignal  ExitReason = "model_reversal"
	ExitTimeStop     ExitReason = "time_stop"
)

// exitReason evaluates the exit rules for a LONG position against the
// current price and signal. Any single rule firing is enough.
func exitReason(p *Position, price decimal.Decimal, sig *Signal, now time.Time, stopLossMult decimal.Decimal, timeStop time.Duration) ExitReason {
	if price.LessThanOrEqual(p.HighWater.Mul(stopLossMult)) {
		return ExitTrailingStop
	}
	if sig.PredictedHigh < 0 {
		return ExitModelSignal
	}
	if now.After(p.EntryTime.Add(timeStop)) {
		return ExitTimeStop
	}
	return ""
}

// Stats tracks cumulative trade outcomes for the control plane.
type Stats struct {
	Wins     int
	Losses   int
	TotalPnL decimal.Decimal
}

func (s *Stats) record(pnl decimal.Decimal) {
	if pnl.IsNegative() {
		s.Losses++
	} else {
		s.Wins++
	}
	s.TotalPnL = s.TotalPnL.Add(pnl)
}
