package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/exchange"
	"github.com/Pmanos1/TestBot/internal/model"
)

func testMeta() model.SymbolMeta {
	return model.SymbolMeta{
		Symbol:         "KCS-USDT",
		BaseCurrency:   "KCS",
		QuoteCurrency:  "USDT",
		BaseMinSize:    decimal.RequireFromString("0.1"),
		BaseIncrement:  decimal.RequireFromString("0.0001"),
		PriceIncrement: decimal.RequireFromString("0.01"),
	}
}

func newTestExecutor(gw *fakeGateway, led *fakeLedger) *Executor {
	x := NewExecutor(gw, led, zap.NewNop(), "KCS-USDT", OrderModeMarket,
		decimal.RequireFromString("0.001"), 50*time.Millisecond)
	x.SetMeta(testMeta())
	x.submitRetry = retryPolicy{maxAttempts: 5, baseDelay: time.Millisecond}
	x.pollInterval = time.Millisecond
	return x
}

func TestFloorToIncrement(t *testing.T) {
	x := newTestExecutor(&fakeGateway{}, &fakeLedger{})

	p := x.FloorToPriceTick(decimal.RequireFromString("10.2599"))
	assert.True(t, p.Equal(decimal.RequireFromString("10.25")), p.String())

	q := x.FloorToBaseLot(decimal.RequireFromString("3.141592"))
	assert.True(t, q.Equal(decimal.RequireFromString("3.1415")), q.String())

	// Flooring is idempotent.
	assert.True(t, x.FloorToBaseLot(q).Equal(q))

	// A zero increment passes the value through untouched.
	x.SetMeta(model.SymbolMeta{})
	v := decimal.RequireFromString("1.23456789")
	assert.True(t, x.FloorToPriceTick(v).Equal(v))
}

func TestSubmit_RetryReusesClientOid(t *testing.T) {
	gw := &fakeGateway{
		createFails: 2,
		createErr:   errors.New("gateway timeout"),
	}
	led := &fakeLedger{}
	x := newTestExecutor(gw, led)

	ord, err := x.Submit(context.Background(), model.SideBuy,
		decimal.NewFromInt(10), decimal.NewFromInt(1))
	assert.NoError(t, err)
	assert.Equal(t, "ord-1", ord.ID)

	// Three attempts, all carrying the same idempotency key.
	assert.Equal(t, 3, gw.createCalls)
	assert.Equal(t, gw.clientOids[0], gw.clientOids[1])
	assert.Equal(t, gw.clientOids[1], gw.clientOids[2])

	// The record is persisted before any confirmation happens.
	rec := led.byOrderID("ord-1")
	assert.NotNil(t, rec)
	assert.Equal(t, model.OrderOpen, rec.Status)
	assert.Equal(t, model.SideBuy, rec.Side)
}

func TestSubmit_PermanentFailure(t *testing.T) {
	gw := &fakeGateway{
		createFails: 100,
		createErr:   errors.New("rejected"),
	}
	x := newTestExecutor(gw, &fakeLedger{})

	_, err := x.Submit(context.Background(), model.SideBuy,
		decimal.NewFromInt(10), decimal.NewFromInt(1))
	assert.Error(t, err)
	assert.Equal(t, 5, gw.createCalls)
}

func TestExecute_FilledAfterIndexingLag(t *testing.T) {
	filled := model.ExchangeOrder{
		ID:        "ord-1",
		Status:    "done",
		IsActive:  false,
		DealPrice: decimal.RequireFromString("10.02"),
		DealSize:  decimal.RequireFromString("0.9985"),
	}
	gw := &fakeGateway{
		orderResponses: []orderResponse{
			{err: exchange.ErrOrderNotFound},
			{ord: filled},
		},
	}
	led := &fakeLedger{}
	x := newTestExecutor(gw, led)

	price, size, err := x.Execute(context.Background(), model.SideBuy,
		decimal.NewFromInt(10), decimal.NewFromInt(1))
	assert.NoError(t, err)
	assert.True(t, price.Equal(filled.DealPrice))
	assert.True(t, size.Equal(filled.DealSize))

	rec := led.byOrderID("ord-1")
	assert.NotNil(t, rec)
	assert.Equal(t, model.OrderFilled, rec.Status)
}

func TestExecute_CanceledByExchange(t *testing.T) {
	gw := &fakeGateway{
		orderResponses: []orderResponse{
			{ord: model.ExchangeOrder{ID: "ord-1", Status: "cancelled", IsActive: false}},
		},
	}
	led := &fakeLedger{}
	x := newTestExecutor(gw, led)

	_, _, err := x.Execute(context.Background(), model.SideBuy,
		decimal.NewFromInt(10), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrOrderCanceled)

	rec := led.byOrderID("ord-1")
	assert.NotNil(t, rec)
	assert.Equal(t, model.OrderCanceled, rec.Status)
}

func TestExecute_ConfirmTimeoutForcesCancel(t *testing.T) {
	// The exchange keeps reporting the order active forever.
	gw := &fakeGateway{
		orderResponses: []orderResponse{
			{ord: model.ExchangeOrder{ID: "ord-1", Status: "open", IsActive: true}},
		},
	}
	led := &fakeLedger{}
	x := newTestExecutor(gw, led)
	x.confirmTimeout = 10 * time.Millisecond

	_, _, err := x.Execute(context.Background(), model.SideBuy,
		decimal.NewFromInt(10), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrConfirmTimeout)

	assert.Equal(t, []string{"ord-1"}, gw.canceled)
	rec := led.byOrderID("ord-1")
	assert.NotNil(t, rec)
	assert.Equal(t, model.OrderCanceled, rec.Status)
}

func TestSubmit_LedgerFailureRetries(t *testing.T) {
	led := &fakeLedger{createErr: errors.New("db down")}
	gw := &fakeGateway{}
	x := newTestExecutor(gw, led)

	_, err := x.Submit(context.Background(), model.SideBuy,
		decimal.NewFromInt(10), decimal.NewFromInt(1))
	assert.Error(t, err)
	// Every retry reused the same client oid, so the duplicates the retries
	// caused are rejected by the exchange rather than stacking positions.
	for _, oid := range gw.clientOids {
		assert.Equal(t, gw.clientOids[0], oid)
	}
}
