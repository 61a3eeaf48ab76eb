// Package telemetry registers the Prometheus metrics the engine emits on
// its hot paths (spread observation, order execution, orderbook
// reconciliation, WS reconnects).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Spread & opportunity metrics ============

var SpreadObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arb",
		Subsystem: "spread",
		Name:      "observed_percent",
		Help:      "Observed raw spread values in percent",
		Buckets:   []float64{-1, -0.5, 0, 0.1, 0.2, 0.3, 0.5, 1, 2, 5},
	},
	[]string{"symbol"},
)

var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arb",
		Subsystem: "spread",
		Name:      "opportunities_detected_total",
		Help:      "Number of times the entry threshold gate was evaluated",
	},
	[]string{"symbol", "triggered"}, // triggered: yes, no
)

// ============ Position lifecycle metrics ============

var ActivePositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "arb",
		Subsystem: "position",
		Name:      "active",
		Help:      "Current number of open arbitrage positions",
	},
)

var PositionsOpened = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arb",
		Subsystem: "position",
		Name:      "opened_total",
		Help:      "Number of two-leg opens by outcome",
	},
	[]string{"symbol", "outcome"}, // outcome: both_filled, compensated, both_failed
)

var PositionsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arb",
		Subsystem: "position",
		Name:      "closed_total",
		Help:      "Number of two-leg closes by reason",
	},
	[]string{"symbol", "reason"}, // reason: take_profit, stop_loss, timeout, manual
)

var RealizedPnlUSD = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arb",
		Subsystem: "position",
		Name:      "realized_pnl_usd_total",
		Help:      "Sum of realized PnL across all closed positions, in USD",
	},
)

var CompensationFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arb",
		Subsystem: "position",
		Name:      "compensation_failures_total",
		Help:      "Number of CRITICAL_UNRECONCILED events (a failed close of either leg on an exit, or a failed single-leg compensation)",
	},
	[]string{"symbol"},
)

// ============ Venue connectivity metrics ============

var VenueConnectionStatus = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "arb",
		Subsystem: "venue",
		Name:      "connection_status",
		Help:      "Venue WS connection status (1=connected, 0=disconnected)",
	},
	[]string{"venue", "channel"},
)

var VenueBalanceUSD = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "arb",
		Subsystem: "venue",
		Name:      "balance_available_usd",
		Help:      "Venue available balance snapshot, in USD",
	},
	[]string{"venue"},
)

var WSReconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arb",
		Subsystem: "venue",
		Name:      "ws_reconnects_total",
		Help:      "Number of WebSocket reconnect attempts",
	},
	[]string{"venue", "channel"},
)

var OrderbookGaps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arb",
		Subsystem: "venue",
		Name:      "orderbook_gap_detected_total",
		Help:      "Number of orderbook sequence gaps triggering a resync",
	},
	[]string{"venue", "symbol"},
)

// ============ Latency metrics ============

var OrderExecutionLatencyMs = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arb",
		Subsystem: "order",
		Name:      "execution_latency_ms",
		Help:      "Time to execute a market order on a venue, in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"venue", "side"},
)

var TickToOrderLatencyMs = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arb",
		Subsystem: "trading",
		Name:      "tick_to_order_latency_ms",
		Help:      "Latency from price tick to order submission, in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
	[]string{"symbol", "stage"},
)
