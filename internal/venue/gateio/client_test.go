package gateio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient("key", "secret", srv.Client()).WithBaseURL(srv.URL)
	return c, srv.Close
}

func TestSign_Deterministic(t *testing.T) {
	c := &Client{apiSecret: "secret"}
	sig1 := c.sign(http.MethodGet, "/futures/usdt/accounts", "", "", 1700000000)
	sig2 := c.sign(http.MethodGet, "/futures/usdt/accounts", "", "", 1700000000)
	if sig1 != sig2 {
		t.Error("expected deterministic signature for identical inputs")
	}
	sig3 := c.sign(http.MethodGet, "/futures/usdt/accounts", "", "", 1700000001)
	if sig1 == sig3 {
		t.Error("expected signature to change with timestamp")
	}
}

func TestToFromContractSymbol(t *testing.T) {
	if got := ToContractSymbol("BTC"); got != "BTC_USDT" {
		t.Errorf("ToContractSymbol(BTC) = %q, want BTC_USDT", got)
	}
	if got := FromContractSymbol("BTC_USDT"); got != "BTC" {
		t.Errorf("FromContractSymbol(BTC_USDT) = %q, want BTC", got)
	}
}

func TestAdaptBalance(t *testing.T) {
	b := adaptBalance(accountWire{Total: "1000", Available: "700"})
	if !b.Used().Equal(decimal.MustFromString("300")) {
		t.Errorf("Used() = %s, want 300", b.Used().String())
	}
}

func TestAdaptBalanceEmptyStringsAreZero(t *testing.T) {
	b := adaptBalance(accountWire{Total: "", Available: ""})
	if !b.Total.IsZero() || !b.Available.IsZero() {
		t.Error("expected empty numeric strings to adapt to zero, not error/panic")
	}
}

func TestAdaptPositionDerivesSideFromSignedSize(t *testing.T) {
	long := adaptPosition(positionWire{Contract: "BTC_USDT", Size: 10, EntryPrice: "100"})
	if long.Side != venue.SideLong {
		t.Errorf("expected positive size to adapt to SideLong, got %s", long.Side)
	}
	short := adaptPosition(positionWire{Contract: "BTC_USDT", Size: -10, EntryPrice: "100"})
	if short.Side != venue.SideShort {
		t.Errorf("expected negative size to adapt to SideShort, got %s", short.Side)
	}
	if !short.Size.Equal(decimal.MustFromString("10")) {
		t.Errorf("expected size to be reported as a positive magnitude, got %s", short.Size.String())
	}
}

func TestSignedSizeForOrderRoundTrip(t *testing.T) {
	if got := signedSizeForOrder(decimal.MustFromString("5"), venue.SideLong); got != 5 {
		t.Errorf("long signed size = %d, want 5", got)
	}
	if got := signedSizeForOrder(decimal.MustFromString("5"), venue.SideShort); got != -5 {
		t.Errorf("short signed size = %d, want -5", got)
	}
}

func TestAdaptOrderStatus(t *testing.T) {
	filled := adaptOrder("BTC", decimal.MustFromString("10"), venue.SideLong, orderWire{Left: 0, FillPrice: "100"})
	if filled.Status != venue.OrderStatusFilled {
		t.Errorf("expected OrderStatusFilled, got %s", filled.Status)
	}
	partial := adaptOrder("BTC", decimal.MustFromString("10"), venue.SideLong, orderWire{Left: 4, FillPrice: "100"})
	if partial.Status != venue.OrderStatusPartial {
		t.Errorf("expected OrderStatusPartial, got %s", partial.Status)
	}
	rejected := adaptOrder("BTC", decimal.MustFromString("10"), venue.SideLong, orderWire{Left: 10, FillPrice: "0"})
	if rejected.Status != venue.OrderStatusRejected {
		t.Errorf("expected OrderStatusRejected, got %s", rejected.Status)
	}
}

func TestAdaptSnapshotDropsZeroSizeLevelsAndSorts(t *testing.T) {
	ob := adaptSnapshot("BTC", orderbookSnapshotWire{
		Bids: []orderbookLevelWire{{P: "99", S: 5}, {P: "0", S: 0}},
		Asks: []orderbookLevelWire{{P: "101", S: 3}},
	})
	sortBook(ob)
	if len(ob.Bids) != 1 {
		t.Fatalf("expected zero-size bid level to be dropped, got %d levels", len(ob.Bids))
	}
	if !ob.Valid() {
		t.Error("expected adapted book to satisfy bid < ask invariant")
	}
}

func TestGetAvailableSymbolsDropsDelisted(t *testing.T) {
	c, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"name":"BTC_USDT","leverage_max":"100"},
			{"name":"OLD_USDT","leverage_max":"50","in_delisting":true}
		]`))
	})
	defer closeFn()

	infos, err := c.GetAvailableSymbols(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected delisted contract to be dropped, got %d symbols", len(infos))
	}
	if infos[0].Symbol != "BTC" {
		t.Errorf("Symbol = %q, want BTC", infos[0].Symbol)
	}
}
