package exchangeclient

import (
	"testing"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
)

func mustDec(s string) decimal.Decimal { return decimal.MustFromString(s) }

func testBook() venue.Orderbook {
	return venue.Orderbook{
		Symbol: "BTC",
		Bids: []venue.OrderbookLevel{
			{Price: mustDec("100"), Size: mustDec("5")},
			{Price: mustDec("99"), Size: mustDec("5")},
		},
		Asks: []venue.OrderbookLevel{
			{Price: mustDec("101"), Size: mustDec("5")},
			{Price: mustDec("102"), Size: mustDec("5")},
		},
	}
}

var slippage = mustDec("0.005")

func TestEstimateFillPrice_SingleLevel(t *testing.T) {
	got, err := estimateFillPrice(testBook(), mustDec("3"), venue.SideLong, slippage)
	if err != nil {
		t.Fatalf("estimateFillPrice: %v", err)
	}
	if !got.Equal(mustDec("101")) {
		t.Errorf("buy VWAP = %s, want 101", got)
	}
}

func TestEstimateFillPrice_WalksLevels(t *testing.T) {
	// Buy 8: 5 at 101 + 3 at 102 = 811 over 8 = 101.375.
	got, err := estimateFillPrice(testBook(), mustDec("8"), venue.SideLong, slippage)
	if err != nil {
		t.Fatalf("estimateFillPrice: %v", err)
	}
	if !got.Equal(mustDec("101.375")) {
		t.Errorf("buy VWAP = %s, want 101.375", got)
	}

	// Sell 8 walks the bids: 5 at 100 + 3 at 99 = 797 over 8 = 99.625.
	got, err = estimateFillPrice(testBook(), mustDec("8"), venue.SideShort, slippage)
	if err != nil {
		t.Fatalf("estimateFillPrice: %v", err)
	}
	if !got.Equal(mustDec("99.625")) {
		t.Errorf("sell VWAP = %s, want 99.625", got)
	}
}

// A size beyond visible depth extrapolates the tail at the last
// level ±0.5%.
func TestEstimateFillPrice_ExtrapolatesBeyondDepth(t *testing.T) {
	// Buy 12 against 10 visible: 5·101 + 5·102 + 2·(102·1.005) = 1220.02; /12.
	got, err := estimateFillPrice(testBook(), mustDec("12"), venue.SideLong, slippage)
	if err != nil {
		t.Fatalf("estimateFillPrice: %v", err)
	}
	want := mustDec("1220.02").Div(mustDec("12"))
	if !got.Equal(want) {
		t.Errorf("buy VWAP = %s, want %s", got, want)
	}

	// Sell 12: 5·100 + 5·99 + 2·(99·0.995) = 1192.01; /12.
	got, err = estimateFillPrice(testBook(), mustDec("12"), venue.SideShort, slippage)
	if err != nil {
		t.Fatalf("estimateFillPrice: %v", err)
	}
	want = mustDec("1192.01").Div(mustDec("12"))
	if !got.Equal(want) {
		t.Errorf("sell VWAP = %s, want %s", got, want)
	}
}

func TestEstimateFillPrice_EmptyBook(t *testing.T) {
	ob := venue.Orderbook{Symbol: "BTC"}
	if _, err := estimateFillPrice(ob, mustDec("1"), venue.SideLong, slippage); err == nil {
		t.Error("expected an error on an empty book")
	}
}
