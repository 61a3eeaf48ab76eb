package hyperliquid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
)

// test key: any valid secp256k1 scalar works, the tests never verify
// the signature against a live venue.
const testSigningKey = "0000000000000000000000000000000000000000000000000000000000000001"

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c, err := NewClient(testSigningKey, "0x1234", true, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c.WithBaseURL(srv.URL), srv.Close
}

func TestGetUniverseDropsDelisted(t *testing.T) {
	c, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"universe":[
			{"name":"BTC","szDecimals":5,"maxLeverage":50},
			{"name":"OLD","szDecimals":2,"maxLeverage":10,"isDelisted":true}
		]}`))
	})
	defer closeFn()

	infos, err := c.GetUniverse(context.Background())
	if err != nil {
		t.Fatalf("GetUniverse: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected delisted asset to be dropped, got %d", len(infos))
	}
	if infos[0].Symbol != "BTC" || infos[0].SzDecimals != 5 || infos[0].MaxLeverage != 50 {
		t.Errorf("unexpected info: %+v", infos[0])
	}
}

func TestGetBalance(t *testing.T) {
	c, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"marginSummary":{"accountValue":"1000.5"},"withdrawable":"700.25","assetPositions":[]}`))
	})
	defer closeFn()

	b, err := c.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !b.Total.Equal(decimal.MustFromString("1000.5")) {
		t.Errorf("Total = %s, want 1000.5", b.Total)
	}
	if !b.Used().Equal(decimal.MustFromString("300.25")) {
		t.Errorf("Used() = %s, want 300.25", b.Used())
	}
}

func TestGetPositionsSkipsZeroSize(t *testing.T) {
	c, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"marginSummary":{"accountValue":"1000"},"withdrawable":"900","assetPositions":[
			{"position":{"coin":"BTC","szi":"-0.5","entryPx":"50000","unrealizedPnl":"10","marginUsed":"250","leverage":{"type":"cross","value":10}}},
			{"position":{"coin":"ETH","szi":"0","entryPx":"0"}}
		]}`))
	})
	defer closeFn()

	positions, err := c.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected the zero-size position to be skipped, got %d", len(positions))
	}
	p := positions[0]
	if p.Side != venue.SideShort {
		t.Errorf("szi=-0.5 must adapt to short, got %s", p.Side)
	}
	if !p.Size.Equal(decimal.MustFromString("0.5")) {
		t.Errorf("Size = %s, want positive magnitude 0.5", p.Size)
	}
}

func TestAdaptOrderFilled(t *testing.T) {
	o := adaptOrder("BTC", decimal.MustFromString("0.5"), venue.SideLong, exchangeResponseWire{
		Status: "ok",
		Response: orderResponseInnerWire{
			Type: "order",
			Data: orderDataWire{Statuses: []orderStatusWire{{
				Filled: &filledWire{TotalSz: "0.5", AvgPx: "50001.5", Oid: 77},
			}}},
		},
	})
	if o.Status != venue.OrderStatusFilled {
		t.Fatalf("Status = %s, want filled", o.Status)
	}
	if o.OrderID != "77" || !o.FillPrice.Equal(decimal.MustFromString("50001.5")) {
		t.Errorf("unexpected fill report: %+v", o)
	}
}

func TestAdaptOrderRejected(t *testing.T) {
	o := adaptOrder("BTC", decimal.MustFromString("0.5"), venue.SideShort, exchangeResponseWire{Status: "err"})
	if o.Status != venue.OrderStatusRejected {
		t.Errorf("Status = %s, want rejected", o.Status)
	}
	if o.Side != venue.SideShort || !o.Size.Equal(decimal.MustFromString("0.5")) {
		t.Errorf("rejected order must echo the request: %+v", o)
	}
}

func TestGetOrderbookSnapshot(t *testing.T) {
	c, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"coin":"BTC","time":1700000000000,"levels":[
			[{"px":"100","sz":"5"},{"px":"99","sz":"3"}],
			[{"px":"101","sz":"4"}]
		]}`))
	})
	defer closeFn()

	ob, err := c.GetOrderbookSnapshot(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetOrderbookSnapshot: %v", err)
	}
	if len(ob.Bids) != 2 || len(ob.Asks) != 1 {
		t.Fatalf("levels = %d/%d, want 2/1", len(ob.Bids), len(ob.Asks))
	}
	if !ob.Valid() {
		t.Error("snapshot must satisfy bid < ask invariant")
	}
}

func TestRoundToSzDecimalsTruncates(t *testing.T) {
	got := roundToSzDecimals(decimal.MustFromString("1.23456"), 3)
	if !got.Equal(decimal.MustFromString("1.234")) {
		t.Errorf("roundToSzDecimals = %s, want 1.234 (truncate, never round up)", got)
	}
}
