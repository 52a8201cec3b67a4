package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id         BIGSERIAL PRIMARY KEY,
    order_id   TEXT        NOT NULL,
    status     TEXT        NOT NULL,
    side       TEXT        NOT NULL,
    symbol     TEXT        NOT NULL,
    price      NUMERIC     NOT NULL,
    quantity   NUMERIC     NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    pnl        NUMERIC
);
CREATE INDEX IF NOT EXISTS orders_symbol_idx ON orders (symbol, created_at);
CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status);
`

// PostgresLedger stores order records in Postgres via pgx.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// InitSchema creates the orders table if it does not exist.
func (l *PostgresLedger) InitSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	l.logger.Info("ledger schema initialized")
	return nil
}

func (l *PostgresLedger) CreateOrder(ctx context.Context, rec model.OrderRecord) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO orders (order_id, status, side, symbol, price, quantity, created_at, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.OrderID, rec.Status, rec.Side, rec.Symbol, rec.Price, rec.Quantity, rec.CreatedAt, rec.PnL)
	if err != nil {
		return fmt.Errorf("failed to insert order record: %w", err)
	}
	l.logger.Info("recorded order",
		zap.String("order_id", rec.OrderID),
		zap.String("status", string(rec.Status)),
		zap.String("side", string(rec.Side)),
	)
	return nil
}

func (l *PostgresLedger) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	tag, err := l.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE order_id = $1`,
		orderID, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		l.logger.Warn("no order record found for status update", zap.String("order_id", orderID))
	}
	return nil
}

func (l *PostgresLedger) PendingOrders(ctx context.Context, symbol string) ([]model.OrderRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, order_id, status, side, symbol, price, quantity, created_at, pnl
		FROM orders
		WHERE symbol = $1 AND status NOT IN ('filled', 'canceled')
		ORDER BY created_at ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (l *PostgresLedger) LatestOrder(ctx context.Context, symbol string) (*model.OrderRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, order_id, status, side, symbol, price, quantity, created_at, pnl
		FROM orders
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT 1`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (l *PostgresLedger) OrdersBySymbol(ctx context.Context, symbol string, limit int) ([]model.OrderRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, order_id, status, side, symbol, price, quantity, created_at, pnl
		FROM orders
		WHERE symbol = $1
		ORDER BY created_at ASC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (l *PostgresLedger) RealizedPnL(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := l.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0)
		FROM orders
		WHERE symbol = $1 AND side = 'sell' AND pnl IS NOT NULL`, symbol).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return total, nil
}

func scanRecords(rows pgx.Rows) ([]model.OrderRecord, error) {
	var recs []model.OrderRecord
	for rows.Next() {
		var (
			r            model.OrderRecord
			status, side string
		)
		if err := rows.Scan(&r.ID, &r.OrderID, &status, &side, &r.Symbol, &r.Price, &r.Quantity, &r.CreatedAt, &r.PnL); err != nil {
			return nil, err
		}
		r.Status = model.OrderStatus(status)
		r.Side = model.OrderSide(side)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
