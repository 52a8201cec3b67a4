package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/model"
)

func tradeAccount(currency string, avail string) model.Account {
	return model.Account{
		Currency:  currency,
		Type:      model.AccountTypeTrade,
		Available: decimal.RequireFromString(avail),
	}
}

func TestBalanceCache_TTL(t *testing.T) {
	gw := &fakeGateway{accounts: []model.Account{tradeAccount("USDT", "100")}}
	c := NewBalanceCache(gw, time.Minute, zap.NewNop())

	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	ctx := context.Background()
	assert.True(t, c.Available(ctx, "USDT").Equal(decimal.NewFromInt(100)))

	// A fresher exchange value is not visible until the TTL lapses.
	gw.accounts = []model.Account{tradeAccount("USDT", "50")}
	clock = clock.Add(30 * time.Second)
	assert.True(t, c.Available(ctx, "USDT").Equal(decimal.NewFromInt(100)))

	clock = clock.Add(31 * time.Second)
	assert.True(t, c.Available(ctx, "USDT").Equal(decimal.NewFromInt(50)))
}

func TestBalanceCache_KeepsLastGoodOnError(t *testing.T) {
	gw := &fakeGateway{accounts: []model.Account{tradeAccount("USDT", "100")}}
	c := NewBalanceCache(gw, time.Minute, zap.NewNop())

	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	ctx := context.Background()
	assert.True(t, c.Available(ctx, "USDT").Equal(decimal.NewFromInt(100)))

	gw.accountsErr = errors.New("exchange down")
	clock = clock.Add(2 * time.Minute)
	assert.True(t, c.Available(ctx, "USDT").Equal(decimal.NewFromInt(100)))
}

func TestBalanceCache_InvalidateForcesRefresh(t *testing.T) {
	gw := &fakeGateway{accounts: []model.Account{tradeAccount("USDT", "100")}}
	c := NewBalanceCache(gw, time.Hour, zap.NewNop())

	ctx := context.Background()
	assert.True(t, c.Available(ctx, "USDT").Equal(decimal.NewFromInt(100)))

	gw.accounts = []model.Account{tradeAccount("USDT", "42")}
	c.Invalidate()
	assert.True(t, c.Available(ctx, "USDT").Equal(decimal.NewFromInt(42)))
}

func TestBalanceCache_OnlyTradeAccountsCount(t *testing.T) {
	gw := &fakeGateway{accounts: []model.Account{
		tradeAccount("USDT", "100"),
		{Currency: "USDT", Type: "main", Available: decimal.NewFromInt(999)},
	}}
	c := NewBalanceCache(gw, time.Minute, zap.NewNop())

	assert.True(t, c.Available(context.Background(), "USDT").Equal(decimal.NewFromInt(100)))
}
