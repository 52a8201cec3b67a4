package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticks_processed_total",
		Help: "Total number of feed ticks processed",
	}, []string{"symbol"})

	BarsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bars_closed_total",
		Help: "Total number of one-minute bars closed",
	}, []string{"symbol"})

	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Total number of orders submitted to the exchange",
	}, []string{"side"})

	OrderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_failures_total",
		Help: "Total number of order attempts that ended in failure",
	}, []string{"reason"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realized_pnl",
		Help: "Cumulative realized PnL in quote currency",
	})

	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trades_closed_total",
		Help: "Total number of closed round-trip trades",
	}, []string{"outcome"})
)
