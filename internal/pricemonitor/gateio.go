package pricemonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/telemetry"
	"deltaneutral/internal/venue/gateio"
	"deltaneutral/internal/venueio"
	"deltaneutral/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const gateioTickersURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

// gateioSubscribeBatchSize caps how many contracts ride one
// futures.tickers subscribe frame. The venue rate-limits subscribe
// frame size, so a large symbol universe is batched rather than sent
// as one frame per symbol or one giant frame.
const gateioSubscribeBatchSize = 50

// GateioMonitor streams venue A's futures.tickers channel and maintains
// a symbol -> best-mid price map.
type GateioMonitor struct {
	conn  *venueio.ConnManager
	log   *utils.Logger
	cfg   venueio.ReconnectConfig
	prices *priceMap
	ready  *readyLatch

	mu      sync.Mutex
	symbols []string
}

// NewGateioMonitor builds a price monitor for venue A. cfg tunes
// reconnect/ping behavior.
func NewGateioMonitor(cfg venueio.ReconnectConfig, log *utils.Logger) *GateioMonitor {
	m := &GateioMonitor{
		cfg:    cfg,
		log:    log,
		prices: newPriceMap(),
		ready:  newReadyLatch(),
	}
	m.conn = venueio.New("venue_a_tickers", gateioTickersURL, cfg, log)
	m.conn.SetOnMessage(m.handleMessage)
	m.conn.SetReconnectCounter(func() {
		telemetry.WSReconnects.WithLabelValues("venue_a", "tickers").Inc()
	})
	m.conn.SetOnConnect(func() {
		telemetry.VenueConnectionStatus.WithLabelValues("venue_a", "tickers").Set(1)
	})
	m.conn.SetOnDisconnect(func(error) {
		telemetry.VenueConnectionStatus.WithLabelValues("venue_a", "tickers").Set(0)
	})
	return m
}

// Start connects and subscribes to symbols (canonical, e.g. "BTC"),
// blocking until the first ticker batch has been applied or
// readyTimeout elapses.
func (m *GateioMonitor) Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error {
	m.mu.Lock()
	m.symbols = append([]string(nil), symbols...)
	m.mu.Unlock()

	contracts := make([]string, len(symbols))
	for i, s := range symbols {
		contracts[i] = gateio.ToContractSymbol(s)
	}
	for i := 0; i < len(contracts); i += gateioSubscribeBatchSize {
		end := i + gateioSubscribeBatchSize
		if end > len(contracts) {
			end = len(contracts)
		}
		m.conn.AddSubscription(map[string]interface{}{
			"time":    time.Now().Unix(),
			"channel": "futures.tickers",
			"event":   "subscribe",
			"payload": contracts[i:end],
		})
	}

	if err := m.conn.Connect(ctx); err != nil {
		return fmt.Errorf("pricemonitor: venue_a connect: %w", err)
	}
	if err := m.ready.wait(ctx, readyTimeout); err != nil {
		return fmt.Errorf("pricemonitor: venue_a: %w", err)
	}
	if m.log != nil {
		m.log.Info("monitor_ready", zap.String("venue", "venue_a"), zap.Int("symbols", len(symbols)))
	}
	return nil
}

func (m *GateioMonitor) Stop() error {
	return m.conn.Close()
}

// gateioTickerFrame is one futures.tickers push; snapshot and
// incremental updates carry the same per-contract fields.
type gateioTickerFrame struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Result  []struct {
		Contract   string `json:"contract"`
		Last       string `json:"last"`
		LowestAsk  string `json:"lowest_ask"`
		HighestBid string `json:"highest_bid"`
	} `json:"result"`
}

// handleMessage parses one WS frame and, if it carries ticker data,
// applies it in one batch. Parse errors are logged and swallowed; only
// transport errors escalate to the reconnect loop.
func (m *GateioMonitor) handleMessage(raw []byte) {
	var frame gateioTickerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		if m.log != nil {
			m.log.Warn("pricemonitor_parse_error", zap.String("venue", "venue_a"), zap.Error(err))
		}
		return
	}
	if frame.Channel != "futures.tickers" || len(frame.Result) == 0 {
		return
	}

	updates := make(map[string]decimal.Decimal, len(frame.Result))
	for _, r := range frame.Result {
		symbol := gateio.FromContractSymbol(r.Contract)
		mid := bestMid(r.HighestBid, r.LowestAsk, r.Last)
		if mid.IsZero() {
			continue
		}
		updates[symbol] = mid
	}
	if len(updates) == 0 {
		return
	}
	m.prices.applyBatch(updates)
	m.ready.fire()
}

// bestMid prefers (bid+ask)/2; falls back to last trade price if either
// side of the book is momentarily empty.
func bestMid(bidStr, askStr, lastStr string) decimal.Decimal {
	bid := decimal.NewFromStringZeroOnEmpty(bidStr)
	ask := decimal.NewFromStringZeroOnEmpty(askStr)
	if !bid.IsZero() && !ask.IsZero() {
		return bid.Add(ask).Div(decimal.New(2, 0))
	}
	return decimal.NewFromStringZeroOnEmpty(lastStr)
}

func (m *GateioMonitor) GetPrice(symbol string) (decimal.Decimal, bool) {
	return m.prices.get(symbol)
}

func (m *GateioMonitor) HasPrice(symbol string) bool {
	return m.prices.has(symbol)
}
