package exchangeclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/orderbook"
	"deltaneutral/internal/pricemonitor"
	"deltaneutral/internal/telemetry"
	"deltaneutral/internal/venue"
	"deltaneutral/internal/venue/gateio"
	"deltaneutral/internal/venueio"
	"deltaneutral/internal/workerpool"
	"deltaneutral/pkg/utils"
)

// GateioClient is the venue A Client implementation: wraps the REST
// client plus its two monitors.
type GateioClient struct {
	rest  *gateio.Client
	price *pricemonitor.GateioMonitor
	book  *orderbook.GateioMonitor
	pool  *workerpool.Pool
	meta  *metadataCache
	lev   *leverageCache
	log   *utils.Logger

	slippageFactor decimal.Decimal

	mu       sync.Mutex
	dualMode bool
}

// GateioConfig tunes a GateioClient's background intervals and caches.
type GateioConfig struct {
	MetadataRefreshInterval time.Duration
	LeverageCacheTTL        time.Duration
	RESTSnapshotMaxAttempts int
	WorkerPoolSize          int
	SlippageFactor          decimal.Decimal
	ReconnectConfig         venueio.ReconnectConfig
	RequireDualMode         bool
}

func NewGateioClient(rest *gateio.Client, cfg GateioConfig, log *utils.Logger) *GateioClient {
	pool := workerpool.New(cfg.WorkerPoolSize)
	c := &GateioClient{
		rest:           rest,
		pool:           pool,
		lev:            newLeverageCache(cfg.LeverageCacheTTL),
		log:            log,
		slippageFactor: cfg.SlippageFactor,
	}
	c.price = pricemonitor.NewGateioMonitor(cfg.ReconnectConfig, log)
	c.book = orderbook.NewGateioMonitor(rest, cfg.ReconnectConfig, cfg.RESTSnapshotMaxAttempts, log)
	c.meta = newMetadataCache(venue.VenueA, cfg.MetadataRefreshInterval, func(ctx context.Context) ([]venue.SymbolInfo, error) {
		return workerpool.Submit(ctx, pool, func() ([]venue.SymbolInfo, error) {
			return rest.GetAvailableSymbols(ctx)
		})
	}, log)
	return c
}

func (c *GateioClient) Name() venue.Name { return venue.VenueA }

// LoadMarkets loads the instrument universe and starts its periodic
// refresher.
func (c *GateioClient) LoadMarkets(ctx context.Context) error {
	if err := c.meta.refreshOnce(ctx); err != nil {
		return fmt.Errorf("exchangeclient: venue_a metadata: %w", err)
	}
	go c.meta.runRefreshLoop(ctx)
	return nil
}

// Start starts both monitors, blocking until each reports ready.
func (c *GateioClient) Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error {
	if err := c.price.Start(ctx, symbols, readyTimeout); err != nil {
		return err
	}
	if err := c.book.Start(ctx, symbols, readyTimeout); err != nil {
		return err
	}
	return nil
}

func (c *GateioClient) Stop() error {
	err1 := c.price.Stop()
	err2 := c.book.Stop()
	if err1 != nil {
		return err1
	}
	return err2
}

// EnsureDualMode verifies (and if needed sets) the configured
// dual-position mode, refusing to switch if positions are already open
// (the steady-state mode is operator configuration, not something the
// engine decides).
func (c *GateioClient) EnsureDualMode(ctx context.Context, want bool) error {
	current, err := c.rest.DualMode(ctx)
	if err != nil {
		return err
	}
	if current == want {
		c.mu.Lock()
		c.dualMode = want
		c.mu.Unlock()
		return nil
	}
	positions, err := c.rest.GetPositions(ctx)
	if err != nil {
		return err
	}
	if len(positions) > 0 {
		return fmt.Errorf("exchangeclient: venue_a refuses to switch dual-mode to %v with %d open position(s)", want, len(positions))
	}
	if err := c.rest.SetDualMode(ctx, want); err != nil {
		return err
	}
	c.mu.Lock()
	c.dualMode = want
	c.mu.Unlock()
	return nil
}

func (c *GateioClient) GetAvailableSymbols(ctx context.Context) ([]string, error) {
	return c.meta.all(), nil
}

func (c *GateioClient) GetSymbolInfo(symbol string) (venue.SymbolInfo, bool) {
	return c.meta.get(symbol)
}

func (c *GateioClient) GetBalance(ctx context.Context) (venue.Balance, error) {
	return workerpool.Submit(ctx, c.pool, func() (venue.Balance, error) {
		b, err := c.rest.GetBalance(ctx)
		if err == nil {
			telemetry.VenueBalanceUSD.WithLabelValues(string(venue.VenueA)).Set(b.Available.Float64())
		}
		return b, err
	})
}

func (c *GateioClient) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return workerpool.Submit(ctx, c.pool, func() ([]venue.Position, error) {
		return c.rest.GetPositions(ctx)
	})
}

func (c *GateioClient) GetFundingRate(ctx context.Context, symbol string) (venue.FundingRate, error) {
	return workerpool.Submit(ctx, c.pool, func() (venue.FundingRate, error) {
		return c.rest.GetFundingRate(ctx, symbol)
	})
}

func (c *GateioClient) Get24hVolume(ctx context.Context, symbol string) (venue.Volume24h, error) {
	return workerpool.Submit(ctx, c.pool, func() (venue.Volume24h, error) {
		return c.rest.Get24hVolume(ctx, symbol)
	})
}

func (c *GateioClient) GetOrderbook(ctx context.Context, symbol string, depth int) (venue.Orderbook, error) {
	return workerpool.Submit(ctx, c.pool, func() (venue.Orderbook, error) {
		ob, _, err := c.rest.GetOrderbookSnapshot(ctx, symbol, depth)
		if err != nil {
			return venue.Orderbook{}, err
		}
		return *ob, nil
	})
}

func (c *GateioClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if c.lev.shouldSkip(symbol, leverage) {
		return nil
	}
	_, err := workerpool.Submit(ctx, c.pool, func() (struct{}, error) {
		return struct{}{}, c.rest.SetLeverage(ctx, symbol, leverage)
	})
	return err
}

// SetLeverages applies leverage for every symbol concurrently,
// returning the first error encountered.
func (c *GateioClient) SetLeverages(ctx context.Context, leverageBySymbol map[string]int) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(leverageBySymbol))
	for symbol, lev := range leverageBySymbol {
		wg.Add(1)
		go func(symbol string, lev int) {
			defer wg.Done()
			if err := c.SetLeverage(ctx, symbol, lev); err != nil {
				errCh <- fmt.Errorf("venue_a %s: %w", symbol, err)
			}
		}(symbol, lev)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		return err
	}
	return nil
}

func (c *GateioClient) BuyMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	rounded := c.RoundSize(symbol, size)
	return workerpool.Submit(ctx, c.pool, func() (venue.Order, error) {
		defer observeOrderLatency(venue.VenueA, venue.SideLong, time.Now())
		return c.rest.BuyMarket(ctx, symbol, rounded)
	})
}

func (c *GateioClient) SellMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	rounded := c.RoundSize(symbol, size)
	return workerpool.Submit(ctx, c.pool, func() (venue.Order, error) {
		defer observeOrderLatency(venue.VenueA, venue.SideShort, time.Now())
		return c.rest.SellMarket(ctx, symbol, rounded)
	})
}

func (c *GateioClient) EstimateFillPrice(symbol string, size decimal.Decimal, side venue.Side) (decimal.Decimal, error) {
	ob, ok := c.book.Get(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("exchangeclient: venue_a no book for %s", symbol)
	}
	return estimateFillPrice(ob, size, side, c.slippageFactor)
}

func (c *GateioClient) GetPrice(symbol string) (decimal.Decimal, bool) {
	return c.price.GetPrice(symbol)
}

func (c *GateioClient) HasPrice(symbol string) bool {
	return c.price.HasPrice(symbol)
}

// RoundSize truncates to whole contracts: venue A's sizing rule is
// integer contract counts.
func (c *GateioClient) RoundSize(symbol string, size decimal.Decimal) decimal.Decimal {
	return size.Truncate(0)
}
