package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deltaneutral/internal/bot"
	"deltaneutral/internal/decimal"
	"deltaneutral/internal/position"
	"deltaneutral/internal/spread"
	"deltaneutral/internal/venue"
	"deltaneutral/pkg/utils"
)

type fakeClient struct {
	name   venue.Name
	prices map[string]decimal.Decimal
}

func (f *fakeClient) Name() venue.Name                      { return f.name }
func (f *fakeClient) LoadMarkets(ctx context.Context) error { return nil }
func (f *fakeClient) Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error {
	return nil
}
func (f *fakeClient) Stop() error { return nil }
func (f *fakeClient) GetAvailableSymbols(ctx context.Context) ([]string, error) {
	return nil, nil
}
func (f *fakeClient) GetSymbolInfo(symbol string) (venue.SymbolInfo, bool) {
	return venue.SymbolInfo{}, false
}
func (f *fakeClient) GetBalance(ctx context.Context) (venue.Balance, error) {
	return venue.Balance{}, nil
}
func (f *fakeClient) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return nil, nil
}
func (f *fakeClient) GetFundingRate(ctx context.Context, symbol string) (venue.FundingRate, error) {
	return venue.FundingRate{}, nil
}
func (f *fakeClient) Get24hVolume(ctx context.Context, symbol string) (venue.Volume24h, error) {
	return venue.Volume24h{}, nil
}
func (f *fakeClient) GetOrderbook(ctx context.Context, symbol string, depth int) (venue.Orderbook, error) {
	return venue.Orderbook{}, nil
}
func (f *fakeClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (f *fakeClient) SetLeverages(ctx context.Context, m map[string]int) error { return nil }
func (f *fakeClient) BuyMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	return venue.Order{}, nil
}
func (f *fakeClient) SellMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	return venue.Order{}, nil
}
func (f *fakeClient) EstimateFillPrice(symbol string, size decimal.Decimal, side venue.Side) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakeClient) GetPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}
func (f *fakeClient) HasPrice(symbol string) bool {
	_, ok := f.prices[symbol]
	return ok
}
func (f *fakeClient) RoundSize(symbol string, size decimal.Decimal) decimal.Decimal {
	return size
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := utils.InitLogger(utils.LogConfig{Level: "fatal"})
	a := &fakeClient{name: venue.VenueA, prices: map[string]decimal.Decimal{"BTC": decimal.MustFromString("100")}}
	b := &fakeClient{name: venue.VenueB, prices: map[string]decimal.Decimal{"BTC": decimal.MustFromString("101")}}
	finder := spread.NewFinder(a, b, decimal.Zero, decimal.Zero)
	pm := position.NewManager(a, b, position.MinSpread{}, time.Second, log)
	engine := bot.New(a, b, finder, pm, bot.Config{}, log)

	s := New(engine, "127.0.0.1:0", log)
	srv := httptest.NewServer(s.http.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleSpread(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/spreads/BTC")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out spreadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Direction != "venue_b_short" {
		t.Errorf("direction = %q, want venue_b_short", out.Direction)
	}
	if out.PriceA != "100" || out.PriceB != "101" {
		t.Errorf("prices = %s/%s, want 100/101", out.PriceA, out.PriceB)
	}
}

func TestHandleSpread_UnknownSymbol(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/spreads/NOPE")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.OpenPositions != 0 {
		t.Errorf("open_positions = %d, want 0", out.OpenPositions)
	}
}
