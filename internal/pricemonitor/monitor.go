// Package pricemonitor maintains a streaming symbol->mid-price map per
// venue. Both venue-specific monitors share the price-map
// storage and ready-latch machinery here; the wire-format subscription
// and decode logic lives in gateio.go / hyperliquid.go.
package pricemonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deltaneutral/internal/decimal"
)

// priceMap is the symbol->price store shared by both venue monitors.
// It is never cleared on disconnect: consumers tolerate stale
// reads during outages and must check Has before trusting a value.
type priceMap struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func newPriceMap() *priceMap {
	return &priceMap{prices: make(map[string]decimal.Decimal)}
}

// applyBatch overwrites every entry in updates in one pass under the
// lock, so readers never observe a torn partial update.
func (m *priceMap) applyBatch(updates map[string]decimal.Decimal) {
	m.mu.Lock()
	for symbol, price := range updates {
		m.prices[symbol] = price
	}
	m.mu.Unlock()
}

func (m *priceMap) get(symbol string) (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prices[symbol]
	return p, ok
}

func (m *priceMap) has(symbol string) bool {
	_, ok := m.get(symbol)
	return ok
}

// readyLatch fires exactly once, when the first price batch lands.
type readyLatch struct {
	once sync.Once
	ch   chan struct{}
}

func newReadyLatch() *readyLatch {
	return &readyLatch{ch: make(chan struct{})}
}

func (r *readyLatch) fire() {
	r.once.Do(func() { close(r.ch) })
}

// wait blocks until the latch fires or timeout elapses, so a monitor
// whose feed never delivers fails loudly at startup instead of leaving
// the engine scanning against an empty price map.
func (r *readyLatch) wait(ctx context.Context, timeout time.Duration) error {
	select {
	case <-r.ch:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pricemonitor: not ready after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
