package pricemonitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/telemetry"
	"deltaneutral/internal/venueio"
	"deltaneutral/pkg/utils"
)

const hyperliquidWsURL = "wss://api.hyperliquid.xyz/ws"

// HyperliquidMonitor streams venue B's single allMids channel, which
// carries every tradable symbol's mid price in one frame; one
// subscribe covers the whole universe.
type HyperliquidMonitor struct {
	conn   *venueio.ConnManager
	log    *utils.Logger
	prices *priceMap
	ready  *readyLatch
}

func NewHyperliquidMonitor(cfg venueio.ReconnectConfig, log *utils.Logger) *HyperliquidMonitor {
	m := &HyperliquidMonitor{
		log:    log,
		prices: newPriceMap(),
		ready:  newReadyLatch(),
	}
	m.conn = venueio.New("venue_b_allmids", hyperliquidWsURL, cfg, log)
	m.conn.SetOnMessage(m.handleMessage)
	m.conn.SetReconnectCounter(func() {
		telemetry.WSReconnects.WithLabelValues("venue_b", "allMids").Inc()
	})
	m.conn.SetOnConnect(func() {
		telemetry.VenueConnectionStatus.WithLabelValues("venue_b", "allMids").Set(1)
	})
	m.conn.SetOnDisconnect(func(error) {
		telemetry.VenueConnectionStatus.WithLabelValues("venue_b", "allMids").Set(0)
	})
	m.conn.AddSubscription(map[string]interface{}{
		"method": "subscribe",
		"subscription": map[string]interface{}{
			"type": "allMids",
		},
	})
	return m
}

// Start connects and blocks until the first allMids frame is applied or
// readyTimeout elapses. symbols is accepted for interface symmetry with
// GateioMonitor but unused: venue B pushes every symbol regardless of
// what this engine trades.
func (m *HyperliquidMonitor) Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error {
	if err := m.conn.Connect(ctx); err != nil {
		return fmt.Errorf("pricemonitor: venue_b connect: %w", err)
	}
	if err := m.ready.wait(ctx, readyTimeout); err != nil {
		return fmt.Errorf("pricemonitor: venue_b: %w", err)
	}
	if m.log != nil {
		m.log.Info("monitor_ready", zap.String("venue", "venue_b"), zap.Int("symbols", len(symbols)))
	}
	return nil
}

func (m *HyperliquidMonitor) Stop() error {
	return m.conn.Close()
}

type hyperliquidAllMidsFrame struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

func (m *HyperliquidMonitor) handleMessage(raw []byte) {
	var frame hyperliquidAllMidsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		if m.log != nil {
			m.log.Warn("pricemonitor_parse_error", zap.String("venue", "venue_b"), zap.Error(err))
		}
		return
	}
	if frame.Channel != "allMids" || len(frame.Data.Mids) == 0 {
		return
	}

	updates := make(map[string]decimal.Decimal, len(frame.Data.Mids))
	for symbol, priceStr := range frame.Data.Mids {
		price := decimal.NewFromStringZeroOnEmpty(priceStr)
		if price.IsZero() {
			continue
		}
		updates[symbol] = price
	}
	if len(updates) == 0 {
		return
	}
	m.prices.applyBatch(updates)
	m.ready.fire()
}

func (m *HyperliquidMonitor) GetPrice(symbol string) (decimal.Decimal, bool) {
	return m.prices.get(symbol)
}

func (m *HyperliquidMonitor) HasPrice(symbol string) bool {
	return m.prices.has(symbol)
}
