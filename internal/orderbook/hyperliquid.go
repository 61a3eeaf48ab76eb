package orderbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/telemetry"
	"deltaneutral/internal/venue"
	"deltaneutral/internal/venueio"
	"deltaneutral/pkg/utils"
)

const hyperliquidWsURL = "wss://api.hyperliquid.xyz/ws"

// HyperliquidMonitor implements venue B's snapshot-push orderbook
// model: each WS frame carries the full top-N book, which is replaced
// wholesale with no gap logic needed.
type HyperliquidMonitor struct {
	conn *venueio.ConnManager
	log  *utils.Logger

	mu      sync.RWMutex
	symbols map[string]*book
}

func NewHyperliquidMonitor(cfg venueio.ReconnectConfig, log *utils.Logger) *HyperliquidMonitor {
	m := &HyperliquidMonitor{
		log:     log,
		symbols: make(map[string]*book),
	}
	m.conn = venueio.New("venue_b_l2book", hyperliquidWsURL, cfg, log)
	m.conn.SetOnMessage(m.handleMessage)
	m.conn.SetReconnectCounter(func() {
		telemetry.WSReconnects.WithLabelValues("venue_b", "l2Book").Inc()
	})
	m.conn.SetOnConnect(func() {
		telemetry.VenueConnectionStatus.WithLabelValues("venue_b", "l2Book").Set(1)
	})
	m.conn.SetOnDisconnect(func(error) {
		telemetry.VenueConnectionStatus.WithLabelValues("venue_b", "l2Book").Set(0)
	})
	return m
}

func (m *HyperliquidMonitor) Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error {
	m.mu.Lock()
	for _, s := range symbols {
		m.symbols[s] = newBook(s)
		m.conn.AddSubscription(map[string]interface{}{
			"method": "subscribe",
			"subscription": map[string]interface{}{
				"type": "l2Book",
				"coin": s,
			},
		})
	}
	m.mu.Unlock()

	if err := m.conn.Connect(ctx); err != nil {
		return fmt.Errorf("orderbook: venue_b connect: %w", err)
	}
	return nil
}

func (m *HyperliquidMonitor) Stop() error {
	return m.conn.Close()
}

type hyperliquidLevelWire struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
}

type hyperliquidL2BookPush struct {
	Channel string `json:"channel"`
	Data    struct {
		Coin   string                    `json:"coin"`
		Time   int64                     `json:"time"`
		Levels [][]hyperliquidLevelWire `json:"levels"`
	} `json:"data"`
}

func (m *HyperliquidMonitor) handleMessage(raw []byte) {
	var push hyperliquidL2BookPush
	if err := json.Unmarshal(raw, &push); err != nil {
		if m.log != nil {
			m.log.Warn("orderbook_parse_error", zap.String("venue", "venue_b"), zap.Error(err))
		}
		return
	}
	if push.Channel != "l2Book" {
		return
	}

	m.mu.RLock()
	b, ok := m.symbols[push.Data.Coin]
	m.mu.RUnlock()
	if !ok {
		return
	}

	ob := &venue.Orderbook{
		Symbol:    push.Data.Coin,
		Timestamp: time.UnixMilli(push.Data.Time),
	}
	if len(push.Data.Levels) >= 1 {
		ob.Bids = levelsFromWire(push.Data.Levels[0])
	}
	if len(push.Data.Levels) >= 2 {
		ob.Asks = levelsFromWire(push.Data.Levels[1])
	}
	b.replace(ob)
}

func levelsFromWire(raw []hyperliquidLevelWire) []venue.OrderbookLevel {
	out := make([]venue.OrderbookLevel, 0, len(raw))
	for _, l := range raw {
		size := decimal.NewFromStringZeroOnEmpty(l.Sz)
		if size.IsZero() {
			continue
		}
		out = append(out, venue.OrderbookLevel{Price: decimal.NewFromStringZeroOnEmpty(l.Px), Size: size})
	}
	return out
}

func (m *HyperliquidMonitor) Get(symbol string) (venue.Orderbook, bool) {
	m.mu.RLock()
	b, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		return venue.Orderbook{}, false
	}
	return b.snapshot(), true
}
