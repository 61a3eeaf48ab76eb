package orderbook

import (
	"context"
	"strconv"
	"testing"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
)

func mustDec(s string) decimal.Decimal { return decimal.MustFromString(s) }

type fakeFetcher struct {
	obs     map[string]*venue.Orderbook
	baseIDs map[string]int64
	calls   int
}

func (f *fakeFetcher) GetOrderbookSnapshot(ctx context.Context, symbol string, depth int) (*venue.Orderbook, int64, error) {
	f.calls++
	return f.obs[symbol], f.baseIDs[symbol], nil
}

func newTestMonitor(f *fakeFetcher) *GateioMonitor {
	return &GateioMonitor{fetcher: f, restMaxAttempts: 5, symbols: make(map[string]*symbolState)}
}

func level(price, size string) struct {
	P string `json:"p"`
	S int64  `json:"s"`
} {
	n, _ := strconv.ParseInt(size, 10, 64)
	return struct {
		P string `json:"p"`
		S int64  `json:"s"`
	}{P: price, S: n}
}

// Snapshot base_id=50; delta [52,54] is a gap
// (U=52 > base_id+1=51) and must be discarded with a resync triggered;
// the next snapshot (base_id=54) plus delta [55,55] applies cleanly.
func TestGateioMonitor_GapDetectionTriggersResync(t *testing.T) {
	f := &fakeFetcher{
		obs:     map[string]*venue.Orderbook{"BTC": {Symbol: "BTC"}},
		baseIDs: map[string]int64{"BTC": 50},
	}
	m := newTestMonitor(f)
	m.symbols["BTC"] = &symbolState{state: StateWaitingSnapshot, book: newBook("BTC")}

	if err := m.resync(context.Background(), "BTC"); err != nil {
		t.Fatalf("initial resync: %v", err)
	}
	if got := m.State("BTC"); got != StateSyncing {
		t.Fatalf("state after initial snapshot = %s, want syncing", got)
	}

	gapFrame := gateioDeltaFrame{Contract: "BTC_USDT", U: 52, Ue: 54, Bids: []struct {
		P string `json:"p"`
		S int64  `json:"s"`
	}{level("100", "5")}}
	st := m.symbols["BTC"]
	m.applyDeltaFrame(st, gapFrame)

	if m.State("BTC") != StateWaitingSnapshot {
		t.Fatalf("expected gap to reset state to waiting_snapshot")
	}

	// second resync lands base_id=54
	f.baseIDs["BTC"] = 54
	if err := m.resync(context.Background(), "BTC"); err != nil {
		t.Fatalf("post-gap resync: %v", err)
	}

	cleanFrame := gateioDeltaFrame{Contract: "BTC_USDT", U: 55, Ue: 55, Bids: []struct {
		P string `json:"p"`
		S int64  `json:"s"`
	}{level("101", "3")}}
	m.applyDeltaFrame(m.symbols["BTC"], cleanFrame)

	if m.symbols["BTC"].baseID != 55 {
		t.Errorf("base_id = %d, want 55", m.symbols["BTC"].baseID)
	}
	if m.State("BTC") != StateReady {
		t.Errorf("state = %s, want ready", m.State("BTC"))
	}
	ob, ok := m.Get("BTC")
	if !ok || len(ob.Bids) != 1 || !ob.Bids[0].Price.Equal(mustDec("101")) {
		t.Errorf("expected reconciled book with single 101 bid, got ok=%v bids=%+v", ok, ob.Bids)
	}
}

func TestGateioMonitor_StaleDeltaDiscarded(t *testing.T) {
	f := &fakeFetcher{obs: map[string]*venue.Orderbook{"BTC": {Symbol: "BTC"}}, baseIDs: map[string]int64{"BTC": 50}}
	m := newTestMonitor(f)
	m.symbols["BTC"] = &symbolState{state: StateWaitingSnapshot, book: newBook("BTC")}
	if err := m.resync(context.Background(), "BTC"); err != nil {
		t.Fatalf("resync: %v", err)
	}

	staleFrame := gateioDeltaFrame{Contract: "BTC_USDT", U: 10, Ue: 40}
	m.applyDeltaFrame(m.symbols["BTC"], staleFrame)
	if m.symbols["BTC"].baseID != 50 {
		t.Errorf("stale delta should not move base_id, got %d", m.symbols["BTC"].baseID)
	}
}

func TestUpsertLevels_RemovesZeroSizeLevel(t *testing.T) {
	existing := []venue.OrderbookLevel{
		{Price: mustDec("100"), Size: mustDec("5")},
		{Price: mustDec("99"), Size: mustDec("3")},
	}
	deltas := []venue.OrderbookLevel{{Price: mustDec("100"), Size: mustDec("0")}}
	out := upsertLevels(existing, deltas, true)
	if len(out) != 1 || !out[0].Price.Equal(mustDec("99")) {
		t.Errorf("expected only the 99 level to remain, got %+v", out)
	}
}
