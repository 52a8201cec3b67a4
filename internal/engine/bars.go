package engine

import (
	"time"

	"github.com/Pmanos1/TestBot/internal/model"
)

// BarAggregator folds normalized ticks into the in-progress one-minute bar
// and keeps a bounded window of closed bars for feature derivation. Ticks
// whose minute precedes the current bar are dropped: a closed bar is never
// reopened.
type BarAggregator struct {
	symbol  string
	size    int
	current *model.Bar
	window  []model.Bar
}

func NewBarAggregator(symbol string, size int) *BarAggregator {
	return &BarAggregator{
		symbol: symbol,
		size:   size,
		window: make([]model.Bar, 0, size),
	}
}

// Apply folds one tick. When the tick opens a new minute the previous bar is
// closed into the window and returned; otherwise Apply returns nil. The very
// first tick only starts a bar.
func (a *BarAggregator) Apply(t model.Tick) *model.Bar {
	minute := t.Time.Truncate(time.Minute)

	if a.current == nil {
		a.current = a.newBar(minute, t)
		return nil
	}

	switch {
	case minute.Equal(a.current.Minute):
		if t.Price.GreaterThan(a.current.High) {
			a.current.High = t.Price
		}
		if t.Price.LessThan(a.current.Low) {
			a.current.Low = t.Price
		}
		a.current.Close = t.Price
		a.current.Volume = a.current.Volume.Add(t.Size)
		return nil

	case minute.After(a.current.Minute):
		closed := *a.current
		a.window = append(a.window, closed)
		if len(a.window) > a.size {
			a.window = a.window[1:]
		}
		a.current = a.newBar(minute, t)
		return &closed

	default:
		// Late or duplicate tick from an already-closed minute.
		return nil
	}
}

func (a *BarAggregator) newBar(minute time.Time, t model.Tick) *model.Bar {
	return &model.Bar{
		Symbol: a.symbol,
		Minute: minute,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: t.Size,
	}
}

// Window returns the closed bars, oldest first.
func (a *BarAggregator) Window() []model.Bar {
	return a.window
}

// Current returns the in-progress bar, or nil before the first tick.
func (a *BarAggregator) Current() *model.Bar {
	return a.current
}
