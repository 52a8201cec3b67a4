package engine

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Pmanos1/TestBot/internal/model"
)

// fakeGateway is an in-memory exchange for tests. Behavior is scripted per
// call site with fail counters and canned responses.
type fakeGateway struct {
	mu sync.Mutex

	symbols     []model.SymbolMeta
	symbolsErr  error
	ticker      model.Ticker
	tickerErr   error
	accounts    []model.Account
	accountsErr error

	// createFails makes the first N order creations fail.
	createFails  int
	createErr    error
	createCalls  int
	clientOids   []string
	createdSides []model.OrderSide
	createdSizes []decimal.Decimal
	nextOrderID  string

	// orderResponses are consumed one per Order call; the last one repeats.
	orderResponses []orderResponse
	orderCalls     int

	canceled []string
}

type orderResponse struct {
	ord model.ExchangeOrder
	err error
}

func (g *fakeGateway) Symbols(ctx context.Context) ([]model.SymbolMeta, error) {
	return g.symbols, g.symbolsErr
}

func (g *fakeGateway) Ticker(ctx context.Context, symbol string) (model.Ticker, error) {
	return g.ticker, g.tickerErr
}

func (g *fakeGateway) Accounts(ctx context.Context) ([]model.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accounts, g.accountsErr
}

func (g *fakeGateway) create(clientOid string, side model.OrderSide, size decimal.Decimal) (model.ExchangeOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls++
	g.clientOids = append(g.clientOids, clientOid)
	if g.createCalls <= g.createFails {
		return model.ExchangeOrder{}, g.createErr
	}
	g.createdSides = append(g.createdSides, side)
	g.createdSizes = append(g.createdSizes, size)

	id := g.nextOrderID
	if id == "" {
		id = "ord-1"
	}
	return model.ExchangeOrder{ID: id, Status: "open", IsActive: true}, nil
}

func (g *fakeGateway) CreateMarketOrder(ctx context.Context, clientOid string, side model.OrderSide, symbol string, size decimal.Decimal) (model.ExchangeOrder, error) {
	return g.create(clientOid, side, size)
}

func (g *fakeGateway) CreateLimitOrder(ctx context.Context, clientOid string, side model.OrderSide, symbol string, price, size decimal.Decimal, timeInForce string) (model.ExchangeOrder, error) {
	return g.create(clientOid, side, size)
}

func (g *fakeGateway) Order(ctx context.Context, orderID string) (model.ExchangeOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.orderResponses) == 0 {
		return model.ExchangeOrder{ID: orderID, IsActive: true}, nil
	}
	idx := g.orderCalls
	if idx >= len(g.orderResponses) {
		idx = len(g.orderResponses) - 1
	}
	g.orderCalls++
	resp := g.orderResponses[idx]
	return resp.ord, resp.err
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceled = append(g.canceled, orderID)
	return nil
}

// fakeLedger keeps order records in memory.
type fakeLedger struct {
	mu      sync.Mutex
	records []model.OrderRecord

	createErr error
}

func (l *fakeLedger) CreateOrder(ctx context.Context, rec model.OrderRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return l.createErr
	}
	rec.ID = int64(len(l.records) + 1)
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].OrderID == orderID {
			l.records[i].Status = status
		}
	}
	return nil
}

func (l *fakeLedger) PendingOrders(ctx context.Context, symbol string) ([]model.OrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.OrderRecord
	for _, rec := range l.records {
		if rec.Symbol == symbol && !rec.Status.Terminal() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *fakeLedger) LatestOrder(ctx context.Context, symbol string) (*model.OrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Symbol == symbol {
			rec := l.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) OrdersBySymbol(ctx context.Context, symbol string, limit int) ([]model.OrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.OrderRecord
	for _, rec := range l.records {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (l *fakeLedger) RealizedPnL(ctx context.Context, symbol string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, rec := range l.records {
		if rec.Symbol == symbol && rec.Side == model.SideSell && rec.PnL != nil {
			total = total.Add(*rec.PnL)
		}
	}
	return total, nil
}

func (l *fakeLedger) byOrderID(orderID string) *model.OrderRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].OrderID == orderID {
			rec := l.records[i]
			return &rec
		}
	}
	return nil
}

// fakePredictor returns canned forecasts.
type fakePredictor struct {
	high, low float64
	err       error
	ready     bool
	features  [][5]float64
}

func (p *fakePredictor) Predict(ctx context.Context, features [5]float64) (float64, float64, error) {
	p.features = append(p.features, features)
	return p.high, p.low, p.err
}

func (p *fakePredictor) Ready(ctx context.Context) bool {
	return p.ready
}

// fakeFeed produces nothing; engine tests drive handleTick directly.
type fakeFeed struct{}

func (fakeFeed) Run(ctx context.Context, ticks chan<- model.Tick) {
	<-ctx.Done()
}
