package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
	"deltaneutral/pkg/utils"
)

func mustDec(s string) decimal.Decimal { return decimal.MustFromString(s) }

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "fatal"})
}

// submission records one market order sent to a fake venue.
type submission struct {
	symbol string
	size   decimal.Decimal
	side   venue.Side
}

// fakeClient satisfies exchangeclient.Client with scripted fills and
// failures. buyErrs/sellErrs are consumed in submission order so a test
// can fail the first call and succeed the retry.
type fakeClient struct {
	name venue.Name

	mu          sync.Mutex
	submissions []submission
	buyErrs     []error
	sellErrs    []error
	buyFill     decimal.Decimal
	sellFill    decimal.Decimal
	fee         decimal.Decimal
	prices      map[string]decimal.Decimal
}

func newFakeClient(name venue.Name) *fakeClient {
	return &fakeClient{
		name:     name,
		buyFill:  mustDec("100"),
		sellFill: mustDec("100"),
		prices:   make(map[string]decimal.Decimal),
	}
}

func (f *fakeClient) setPrice(symbol, price string) {
	f.mu.Lock()
	f.prices[symbol] = mustDec(price)
	f.mu.Unlock()
}

func (f *fakeClient) recorded() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.submissions...)
}

func (f *fakeClient) Name() venue.Name                     { return f.name }
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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, submission{symbol: symbol, size: size, side: venue.SideLong})
	if len(f.buyErrs) > 0 {
		err := f.buyErrs[0]
		f.buyErrs = f.buyErrs[1:]
		if err != nil {
			return venue.Order{}, err
		}
	}
	return venue.Order{
		OrderID:   "buy-1",
		Symbol:    symbol,
		Size:      size,
		Side:      venue.SideLong,
		FillPrice: f.buyFill,
		Status:    venue.OrderStatusFilled,
		Fee:       f.fee,
	}, nil
}

func (f *fakeClient) SellMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, submission{symbol: symbol, size: size, side: venue.SideShort})
	if len(f.sellErrs) > 0 {
		err := f.sellErrs[0]
		f.sellErrs = f.sellErrs[1:]
		if err != nil {
			return venue.Order{}, err
		}
	}
	return venue.Order{
		OrderID:   "sell-1",
		Symbol:    symbol,
		Size:      size,
		Side:      venue.SideShort,
		FillPrice: f.sellFill,
		Status:    venue.OrderStatusFilled,
		Fee:       f.fee,
	}, nil
}

func (f *fakeClient) EstimateFillPrice(symbol string, size decimal.Decimal, side venue.Side) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("not used")
}
func (f *fakeClient) GetPrice(symbol string) (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	return p, ok
}
func (f *fakeClient) HasPrice(symbol string) bool {
	_, ok := f.GetPrice(symbol)
	return ok
}
func (f *fakeClient) RoundSize(symbol string, size decimal.Decimal) decimal.Decimal {
	return size
}

func testMode() MinSpread {
	return MinSpread{
		EntryThresholdPct:   mustDec("0.5"),
		USDSizePerPosition:  mustDec("1000"),
		TakeProfitSpreadPct: mustDec("0.20"),
		StopLossWideningPct: mustDec("0.5"),
		Timeout:             4 * time.Hour,
	}
}

func TestOpen_BothFilledCreatesPosition(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	pos, err := m.Open(context.Background(), OpenRequest{
		Symbol:         "BTC",
		Direction:      venue.VenueAShort,
		SizeA:          mustDec("10"),
		SizeB:          mustDec("10"),
		EntrySpreadPct: mustDec("1.2"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if pos == nil {
		t.Fatal("expected a position")
	}
	if pos.LegA.Side != venue.SideShort || pos.LegB.Side != venue.SideLong {
		t.Errorf("leg sides = %s/%s, want short/long for VENUE_A_SHORT", pos.LegA.Side, pos.LegB.Side)
	}
	if !m.HasPosition("BTC") {
		t.Error("HasPosition(BTC) = false after open")
	}
	if subs := a.recorded(); len(subs) != 1 || subs[0].side != venue.SideShort {
		t.Errorf("venue A submissions = %+v, want one sell", subs)
	}
	if subs := b.recorded(); len(subs) != 1 || subs[0].side != venue.SideLong {
		t.Errorf("venue B submissions = %+v, want one buy", subs)
	}
}

// Leg A fills LONG size 100, leg B fails; the
// engine must sell 100 on A and return no position.
func TestOpen_PartialFailureCompensates(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	b.sellErrs = []error{errors.New("venue_b rejected")}
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	pos, err := m.Open(context.Background(), OpenRequest{
		Symbol:         "BTC",
		Direction:      venue.VenueBShort, // buy on A, sell on B
		SizeA:          mustDec("100"),
		SizeB:          mustDec("100"),
		EntrySpreadPct: mustDec("1.0"),
	})
	if pos != nil {
		t.Fatal("expected no position on partial failure")
	}
	if err == nil {
		t.Fatal("expected an error reporting the failed leg")
	}
	subs := a.recorded()
	if len(subs) != 2 {
		t.Fatalf("venue A submissions = %d, want buy then compensating sell", len(subs))
	}
	if subs[0].side != venue.SideLong || subs[1].side != venue.SideShort {
		t.Errorf("venue A sides = %s,%s, want long,short", subs[0].side, subs[1].side)
	}
	if !subs[1].size.Equal(mustDec("100")) {
		t.Errorf("compensation size = %s, want 100", subs[1].size)
	}
	if m.HasPosition("BTC") {
		t.Error("position map must stay empty after compensation")
	}
}

func TestOpen_BothFailed(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	a.sellErrs = []error{errors.New("a down")}
	b.buyErrs = []error{errors.New("b down")}
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	pos, err := m.Open(context.Background(), OpenRequest{
		Symbol:    "BTC",
		Direction: venue.VenueAShort,
		SizeA:     mustDec("1"),
		SizeB:     mustDec("1"),
	})
	if pos != nil || err == nil {
		t.Fatal("expected nil position and a combined error")
	}
	if len(a.recorded()) != 1 || len(b.recorded()) != 1 {
		t.Error("no compensation order may be issued when both legs fail")
	}
}

// Open then close leaves the map empty and delivers
// exactly one close report.
func TestOpenClose_RoundTrip(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	pos, err := m.Open(context.Background(), OpenRequest{
		Symbol:         "BTC",
		Direction:      venue.VenueAShort,
		SizeA:          mustDec("10"),
		SizeB:          mustDec("10"),
		EntrySpreadPct: mustDec("1.2"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	report, err := m.Close(context.Background(), pos.ID, CloseReasonManual)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if report.Reason != CloseReasonManual {
		t.Errorf("reason = %s, want manual", report.Reason)
	}
	if len(m.Positions()) != 0 {
		t.Error("position map must be empty after close")
	}

	select {
	case got := <-m.Closed():
		if got.Position.ID != pos.ID {
			t.Errorf("closed report for %s, want %s", got.Position.ID, pos.ID)
		}
	default:
		t.Fatal("expected exactly one close report on the channel")
	}
	select {
	case <-m.Closed():
		t.Fatal("second close report must not exist")
	default:
	}

	// Closing an unknown id is a no-op.
	if _, err := m.Close(context.Background(), pos.ID, CloseReasonManual); err != nil {
		t.Errorf("double close: %v", err)
	}
}

// PnL formula for VENUE_A_SHORT:
// (entry_a − exit_a)·S + (exit_b − entry_b)·S − Σfees.
func TestClose_RealizedPnl(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	a.sellFill = mustDec("101")  // entry: sell A at 101
	b.buyFill = mustDec("100")   // entry: buy B at 100
	a.fee = mustDec("0.1")
	b.fee = mustDec("0.1")
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	pos, err := m.Open(context.Background(), OpenRequest{
		Symbol:         "BTC",
		Direction:      venue.VenueAShort,
		SizeA:          mustDec("10"),
		SizeB:          mustDec("10"),
		EntrySpreadPct: mustDec("1.0"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a.buyFill = mustDec("100.5") // exit: buy back A at 100.5
	b.sellFill = mustDec("100.4") // exit: sell B at 100.4
	report, err := m.Close(context.Background(), pos.ID, CloseReasonTakeProfit)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	// (101−100.5)·10 + (100.4−100)·10 − 4·0.1 = 5 + 4 − 0.4 = 8.6
	if !report.RealizedPnl.Equal(mustDec("8.6")) {
		t.Errorf("realized pnl = %s, want 8.6", report.RealizedPnl)
	}
}

func TestClose_LegFailureSurfacesAndRemoves(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	pos, err := m.Open(context.Background(), OpenRequest{
		Symbol:    "BTC",
		Direction: venue.VenueAShort,
		SizeA:     mustDec("10"),
		SizeB:     mustDec("10"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	b.sellErrs = []error{errors.New("venue_b close rejected")}
	if _, err := m.Close(context.Background(), pos.ID, CloseReasonStopLoss); err == nil {
		t.Fatal("expected the failed close leg to surface")
	}
	// The position is removed regardless of close outcome.
	if len(m.Positions()) != 0 {
		t.Error("position must be removed even when a close leg fails")
	}
}

// Entry spread 1.20%, take-profit 0.20%; a tick at
// 0.18% closes with reason TAKE_PROFIT.
func TestCheckOnce_TakeProfit(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	a.setPrice("BTC", "100")
	b.setPrice("BTC", "101.2")
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	pos, err := m.Open(context.Background(), OpenRequest{
		Symbol:         "BTC",
		Direction:      venue.VenueBShort,
		SizeA:          mustDec("10"),
		SizeB:          mustDec("10"),
		EntrySpreadPct: mustDec("1.2"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Spread converges to ≈0.18%.
	b.setPrice("BTC", "100.18")
	m.CheckOnce(context.Background())

	if len(m.Positions()) != 0 {
		t.Fatal("expected the position to close on take-profit")
	}
	select {
	case report := <-m.Closed():
		if report.Reason != CloseReasonTakeProfit {
			t.Errorf("reason = %s, want take_profit", report.Reason)
		}
		if report.Position.ID != pos.ID {
			t.Errorf("closed %s, want %s", report.Position.ID, pos.ID)
		}
	default:
		t.Fatal("expected a close report")
	}
}

func TestCheckOnce_StopLossOnWidening(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	a.setPrice("BTC", "100")
	b.setPrice("BTC", "101.2")
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	if _, err := m.Open(context.Background(), OpenRequest{
		Symbol:         "BTC",
		Direction:      venue.VenueBShort,
		SizeA:          mustDec("10"),
		SizeB:          mustDec("10"),
		EntrySpreadPct: mustDec("1.2"),
	}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Widens past entry 1.2 + 0.5 = 1.7.
	b.setPrice("BTC", "101.8")
	m.CheckOnce(context.Background())

	select {
	case report := <-m.Closed():
		if report.Reason != CloseReasonStopLoss {
			t.Errorf("reason = %s, want stop_loss", report.Reason)
		}
	default:
		t.Fatal("expected a stop-loss close")
	}
}

// Spread never converges; at open_time + timeout
// the monitor closes with reason TIMEOUT.
func TestCheckOnce_Timeout(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	a.setPrice("BTC", "100")
	b.setPrice("BTC", "100.5")
	mode := testMode()
	mode.Timeout = 30 * time.Minute
	m := NewManager(a, b, mode, time.Second, testLogger())

	t0 := time.Now()
	m.nowFn = func() time.Time { return t0 }

	if _, err := m.Open(context.Background(), OpenRequest{
		Symbol:         "BTC",
		Direction:      venue.VenueBShort,
		SizeA:          mustDec("10"),
		SizeB:          mustDec("10"),
		EntrySpreadPct: mustDec("0.5"),
	}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Still inside the window: nothing closes.
	m.nowFn = func() time.Time { return t0.Add(29 * time.Minute) }
	m.CheckOnce(context.Background())
	if len(m.Positions()) != 1 {
		t.Fatal("position closed before its timeout")
	}

	m.nowFn = func() time.Time { return t0.Add(30 * time.Minute) }
	m.CheckOnce(context.Background())
	select {
	case report := <-m.Closed():
		if report.Reason != CloseReasonTimeout {
			t.Errorf("reason = %s, want timeout", report.Reason)
		}
	default:
		t.Fatal("expected a timeout close")
	}
}

// A symbol with a missing price on either venue is skipped, never
// closed blind.
func TestCheckOnce_MissingPriceSkips(t *testing.T) {
	a, b := newFakeClient(venue.VenueA), newFakeClient(venue.VenueB)
	a.setPrice("BTC", "100")
	b.setPrice("BTC", "101.2")
	m := NewManager(a, b, testMode(), time.Second, testLogger())

	if _, err := m.Open(context.Background(), OpenRequest{
		Symbol:         "BTC",
		Direction:      venue.VenueBShort,
		SizeA:          mustDec("10"),
		SizeB:          mustDec("10"),
		EntrySpreadPct: mustDec("1.2"),
	}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	b.mu.Lock()
	delete(b.prices, "BTC")
	b.mu.Unlock()
	m.CheckOnce(context.Background())
	if len(m.Positions()) != 1 {
		t.Error("position must survive a price-feed outage")
	}
}
