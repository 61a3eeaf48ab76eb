package orderbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/telemetry"
	"deltaneutral/internal/venue"
	"deltaneutral/internal/venue/gateio"
	"deltaneutral/internal/venueio"
	"deltaneutral/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const gateioOrderbookURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

// SnapshotFetcher is the REST call a GateioMonitor uses to (re)sync a
// symbol's book. Implemented by internal/venue/gateio.Client; declared
// here as a narrow interface so this package never imports an HTTP
// client directly (snapshot is a pure data dependency).
type SnapshotFetcher interface {
	GetOrderbookSnapshot(ctx context.Context, symbol string, depth int) (*venue.Orderbook, int64, error)
}

// symbolState tracks one symbol's reconciliation progress.
type symbolState struct {
	mu      sync.Mutex
	state   State
	baseID  int64
	buffer  []gateioDeltaFrame
	book    *book
}

// GateioMonitor implements venue A's snapshot+delta orderbook
// reconciliation. One symbolState per symbol; REST snapshot
// fetches are dispatched through a bounded worker pool so a slow resync
// never blocks the WS read pump.
type GateioMonitor struct {
	conn    *venueio.ConnManager
	fetcher SnapshotFetcher
	log     *utils.Logger

	restMaxAttempts int

	mu      sync.RWMutex
	symbols map[string]*symbolState
}

func NewGateioMonitor(fetcher SnapshotFetcher, cfg venueio.ReconnectConfig, restMaxAttempts int, log *utils.Logger) *GateioMonitor {
	m := &GateioMonitor{
		fetcher:         fetcher,
		log:             log,
		restMaxAttempts: restMaxAttempts,
		symbols:         make(map[string]*symbolState),
	}
	m.conn = venueio.New("venue_a_orderbook", gateioOrderbookURL, cfg, log)
	m.conn.SetOnMessage(m.handleMessage)
	m.conn.SetReconnectCounter(func() {
		telemetry.WSReconnects.WithLabelValues("venue_a", "order_book_update").Inc()
	})
	m.conn.SetOnConnect(func() {
		telemetry.VenueConnectionStatus.WithLabelValues("venue_a", "order_book_update").Set(1)
	})
	m.conn.SetOnDisconnect(func(error) {
		telemetry.VenueConnectionStatus.WithLabelValues("venue_a", "order_book_update").Set(0)
	})
	return m
}

// Start subscribes to futures.order_book_update for each symbol and
// fetches the initial REST snapshot for each: WaitingSnapshot on
// subscribe-ack, then the first snapshot moves a symbol to Syncing.
func (m *GateioMonitor) Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error {
	m.mu.Lock()
	for _, s := range symbols {
		m.symbols[s] = &symbolState{state: StateWaitingSnapshot, book: newBook(s)}
	}
	m.mu.Unlock()

	for _, s := range symbols {
		m.conn.AddSubscription(map[string]interface{}{
			"time":    time.Now().Unix(),
			"channel": "futures.order_book_update",
			"event":   "subscribe",
			"payload": []string{gateio.ToContractSymbol(s), "100ms", "100"},
		})
	}

	if err := m.conn.Connect(ctx); err != nil {
		return fmt.Errorf("orderbook: venue_a connect: %w", err)
	}

	for _, s := range symbols {
		if err := m.resync(ctx, s); err != nil {
			if m.log != nil {
				m.log.Warn("orderbook_initial_snapshot_failed", zap.String("venue", "venue_a"), zap.String("symbol", s), zap.Error(err))
			}
		}
	}
	return nil
}

func (m *GateioMonitor) Stop() error {
	return m.conn.Close()
}

// resync fetches a fresh REST snapshot for symbol and transitions its
// state to Syncing, applying any WS deltas buffered during the fetch.
// Honors Retry-After via the fetcher's own rate limiter; this layer
// retries up to restMaxAttempts times with 2^attempt backoff on
// transport failure.
func (m *GateioMonitor) resync(ctx context.Context, symbol string) error {
	m.mu.RLock()
	st, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("orderbook: unknown symbol %s", symbol)
	}

	var lastErr error
	for attempt := 0; attempt < m.restMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		ob, baseID, err := m.fetcher.GetOrderbookSnapshot(ctx, symbol, 100)
		if err != nil {
			lastErr = err
			continue
		}

		st.mu.Lock()
		st.book.replace(ob)
		st.baseID = baseID
		st.state = StateSyncing
		buffered := st.buffer
		st.buffer = nil
		st.mu.Unlock()

		for _, d := range buffered {
			m.applyDeltaFrame(st, d)
		}
		return nil
	}
	return fmt.Errorf("orderbook: venue_a snapshot resync for %s: %w", symbol, lastErr)
}

// gateioDeltaFrame is one futures.order_book_update WS push: [U,u]
// sequence range plus the bid/ask deltas to apply.
type gateioDeltaFrame struct {
	Contract string `json:"s"`
	U        int64  `json:"U"`
	Ue       int64  `json:"u"`
	Bids     []struct {
		P string `json:"p"`
		S int64  `json:"s"`
	} `json:"b"`
	Asks []struct {
		P string `json:"p"`
		S int64  `json:"s"`
	} `json:"a"`
}

type gateioOrderbookPush struct {
	Channel string             `json:"channel"`
	Event   string             `json:"event"`
	Result  gateioDeltaFrame   `json:"result"`
}

func (m *GateioMonitor) handleMessage(raw []byte) {
	var push gateioOrderbookPush
	if err := json.Unmarshal(raw, &push); err != nil {
		if m.log != nil {
			m.log.Warn("orderbook_parse_error", zap.String("venue", "venue_a"), zap.Error(err))
		}
		return
	}
	if push.Channel != "futures.order_book_update" || push.Event != "update" {
		return
	}
	symbol := gateio.FromContractSymbol(push.Result.Contract)

	m.mu.RLock()
	st, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.applyDeltaFrame(st, push.Result)
}

// applyDeltaFrame runs the update-application rule:
//   - u < base_id+1: discard (already applied).
//   - U > base_id+1: gap detected, discard, resync.
//   - else: apply, set base_id = u, move to Ready.
func (m *GateioMonitor) applyDeltaFrame(st *symbolState, d gateioDeltaFrame) {
	st.mu.Lock()
	if st.state == StateWaitingSnapshot {
		// Snapshot not fetched yet: buffer until resync drains this queue.
		st.buffer = append(st.buffer, d)
		st.mu.Unlock()
		return
	}

	baseID := st.baseID
	if d.Ue < baseID+1 {
		st.mu.Unlock()
		return
	}
	if d.U > baseID+1 {
		symbol := st.book.ob.Symbol
		st.state = StateWaitingSnapshot
		st.buffer = nil
		st.mu.Unlock()
		telemetry.OrderbookGaps.WithLabelValues("venue_a", symbol).Inc()
		if m.log != nil {
			m.log.Warn("orderbook_gap_detected", zap.String("venue", "venue_a"), zap.String("symbol", symbol),
				zap.Int64("base_id", baseID), zap.Int64("delta_u", d.U))
		}
		go func() {
			if err := m.resync(context.Background(), symbol); err != nil && m.log != nil {
				m.log.Warn("orderbook_resync_failed", zap.String("venue", "venue_a"), zap.String("symbol", symbol), zap.Error(err))
			}
		}()
		return
	}

	st.baseID = d.Ue
	st.state = StateReady
	st.mu.Unlock()

	bids := convertLevels(d.Bids)
	asks := convertLevels(d.Asks)
	st.book.applyDelta(bids, asks, time.Now())
}

func convertLevels(raw []struct {
	P string `json:"p"`
	S int64  `json:"s"`
}) []venue.OrderbookLevel {
	out := make([]venue.OrderbookLevel, 0, len(raw))
	for _, r := range raw {
		out = append(out, venue.OrderbookLevel{
			Price: decimal.NewFromStringZeroOnEmpty(r.P),
			Size:  decimal.New(r.S, 0).Abs(),
		})
	}
	return out
}

// Get returns the current reconciled book for symbol, or false if the
// symbol is unknown.
func (m *GateioMonitor) Get(symbol string) (venue.Orderbook, bool) {
	m.mu.RLock()
	st, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		return venue.Orderbook{}, false
	}
	return st.book.snapshot(), true
}

// State returns symbol's reconciliation state, for tests and telemetry.
func (m *GateioMonitor) State(symbol string) State {
	m.mu.RLock()
	st, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		return StateWaitingSnapshot
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}
