package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/exchange"
	"github.com/Pmanos1/TestBot/internal/model"
)

// BalanceCache is a time-bounded view of per-currency spendable balance.
// It refreshes lazily once the TTL expires and keeps serving the last good
// snapshot when a refresh fails, trading a little staleness for not
// hammering the exchange on every tick.
type BalanceCache struct {
	gw     exchange.Gateway
	logger *zap.Logger
	ttl    time.Duration

	balances  map[string]decimal.Decimal
	lastFetch time.Time

	now func() time.Time
}

func NewBalanceCache(gw exchange.Gateway, ttl time.Duration, logger *zap.Logger) *BalanceCache {
	return &BalanceCache{
		gw:       gw,
		logger:   logger,
		ttl:      ttl,
		balances: make(map[string]decimal.Decimal),
		now:      time.Now,
	}
}

// Available returns the spendable ("trade" account) balance for currency,
// refreshing from the exchange only when the cache is stale.
func (c *BalanceCache) Available(ctx context.Context, currency string) decimal.Decimal {
	if c.lastFetch.IsZero() || c.now().Sub(c.lastFetch) > c.ttl {
		c.refresh(ctx)
	}
	return c.balances[currency]
}

// Invalidate forces the next Available call to fetch fresh balances. Called
// after a confirmed fill so realized PnL is computed from post-fill funds.
func (c *BalanceCache) Invalidate() {
	c.lastFetch = time.Time{}
}

func (c *BalanceCache) refresh(ctx context.Context) {
	accounts, err := c.gw.Accounts(ctx)
	if err != nil {
		c.logger.Warn("balance fetch failed, using cached values", zap.Error(err))
		return
	}

	fresh := make(map[string]decimal.Decimal, len(accounts))
	for _, acct := range accounts {
		if acct.Type == model.AccountTypeTrade && acct.Currency != "" {
			fresh[acct.Currency] = acct.Available
		}
	}
	c.balances = fresh
	c.lastFetch = c.now()
	c.logger.Debug("balance cache refreshed", zap.Int("currencies", len(fresh)))
}
