package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/model"
)

func newTestReconciler(gw *fakeGateway, led *fakeLedger) *Reconciler {
	r := NewReconciler(gw, led, zap.NewNop(), "KCS-USDT")
	r.fetch = retryPolicy{maxAttempts: 3, baseDelay: time.Millisecond}
	return r
}

func pendingBuy(led *fakeLedger, orderID string, price string, at time.Time) {
	led.CreateOrder(context.Background(), model.OrderRecord{
		OrderID:   orderID,
		Status:    model.OrderOpen,
		Side:      model.SideBuy,
		Symbol:    "KCS-USDT",
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.NewFromInt(1),
		CreatedAt: at,
	})
}

func TestReconciler_BuyFilledWhileDown(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	led := &fakeLedger{}
	pendingBuy(led, "ord-1", "10.5", at)

	gw := &fakeGateway{
		orderResponses: []orderResponse{
			{ord: model.ExchangeOrder{ID: "ord-1", IsActive: false, OpType: "DEAL"}},
		},
	}

	restored, err := newTestReconciler(gw, led).Sync(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, restored)
	assert.True(t, restored.Price.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, restored.At.Equal(at))

	rec := led.byOrderID("ord-1")
	assert.Equal(t, model.OrderFilled, rec.Status)
}

func TestReconciler_CanceledOrder(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	led := &fakeLedger{}
	pendingBuy(led, "ord-1", "10.5", at)

	gw := &fakeGateway{
		orderResponses: []orderResponse{
			{ord: model.ExchangeOrder{ID: "ord-1", IsActive: false, OpType: "CANCEL"}},
		},
	}

	restored, err := newTestReconciler(gw, led).Sync(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, restored)
	assert.Equal(t, model.OrderCanceled, led.byOrderID("ord-1").Status)
}

func TestReconciler_ActiveOrderLeftAlone(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	led := &fakeLedger{}
	pendingBuy(led, "ord-1", "10.5", at)

	gw := &fakeGateway{
		orderResponses: []orderResponse{
			{ord: model.ExchangeOrder{ID: "ord-1", IsActive: true}},
		},
	}

	restored, err := newTestReconciler(gw, led).Sync(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, restored)
	assert.Equal(t, model.OrderOpen, led.byOrderID("ord-1").Status)
}

func TestReconciler_TerminalRecordsNotTouched(t *testing.T) {
	led := &fakeLedger{}
	led.CreateOrder(context.Background(), model.OrderRecord{
		OrderID: "ord-1",
		Status:  model.OrderFilled,
		Side:    model.SideBuy,
		Symbol:  "KCS-USDT",
		Price:   decimal.NewFromInt(10),
	})

	gw := &fakeGateway{}
	restored, err := newTestReconciler(gw, led).Sync(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, restored)
	assert.Equal(t, 0, gw.orderCalls)
}
