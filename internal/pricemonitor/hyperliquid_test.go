package pricemonitor

import (
	"testing"

	"deltaneutral/internal/decimal"
)

func TestHyperliquidMonitor_HandleMessage_AppliesAllMids(t *testing.T) {
	m := NewHyperliquidMonitor(testReconnectConfig(), nil)
	frame := `{"channel":"allMids","data":{"mids":{"BTC":"101.5","ETH":"0","SOL":"20"}}}`
	m.handleMessage([]byte(frame))

	price, ok := m.GetPrice("BTC")
	if !ok || !price.Equal(decimal.MustFromString("101.5")) {
		t.Errorf("BTC price = %s, ok=%v, want 101.5", price, ok)
	}
	if m.HasPrice("ETH") {
		t.Error("zero mid should not be applied")
	}
	if !m.HasPrice("SOL") {
		t.Error("expected SOL price to be applied")
	}
}

func TestHyperliquidMonitor_HandleMessage_IgnoresOtherChannels(t *testing.T) {
	m := NewHyperliquidMonitor(testReconnectConfig(), nil)
	m.handleMessage([]byte(`{"channel":"l2Book","data":{}}`))
	if m.HasPrice("BTC") {
		t.Error("expected no price from non-allMids channel")
	}
}
