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
	"deltaneutral/internal/venue/hyperliquid"
	"deltaneutral/internal/venueio"
	"deltaneutral/internal/workerpool"
	"deltaneutral/pkg/utils"
)

// HyperliquidClient is the venue B Client implementation: the
// on-chain perps venue with decimal, asset-indexed sizing. Unlike venue
// A there is no dual-mode machinery and no snapshot+delta
// reconciliation; the book monitor replaces wholesale.
type HyperliquidClient struct {
	rest  *hyperliquid.Client
	price *pricemonitor.HyperliquidMonitor
	book  *orderbook.HyperliquidMonitor
	pool  *workerpool.Pool
	meta  *metadataCache
	lev   *leverageCache
	log   *utils.Logger

	slippageFactor decimal.Decimal
}

// HyperliquidConfig tunes a HyperliquidClient's background intervals
// and caches. Mirrors GateioConfig minus the CLOB-only knobs.
type HyperliquidConfig struct {
	MetadataRefreshInterval time.Duration
	LeverageCacheTTL        time.Duration
	WorkerPoolSize          int
	SlippageFactor          decimal.Decimal
	ReconnectConfig         venueio.ReconnectConfig
}

func NewHyperliquidClient(rest *hyperliquid.Client, cfg HyperliquidConfig, log *utils.Logger) *HyperliquidClient {
	pool := workerpool.New(cfg.WorkerPoolSize)
	c := &HyperliquidClient{
		rest:           rest,
		pool:           pool,
		lev:            newLeverageCache(cfg.LeverageCacheTTL),
		log:            log,
		slippageFactor: cfg.SlippageFactor,
	}
	c.price = pricemonitor.NewHyperliquidMonitor(cfg.ReconnectConfig, log)
	c.book = orderbook.NewHyperliquidMonitor(cfg.ReconnectConfig, log)
	c.meta = newMetadataCache(venue.VenueB, cfg.MetadataRefreshInterval, func(ctx context.Context) ([]venue.SymbolInfo, error) {
		return workerpool.Submit(ctx, pool, func() ([]venue.SymbolInfo, error) {
			return rest.GetUniverse(ctx)
		})
	}, log)
	return c
}

func (c *HyperliquidClient) Name() venue.Name { return venue.VenueB }

func (c *HyperliquidClient) LoadMarkets(ctx context.Context) error {
	if err := c.meta.refreshOnce(ctx); err != nil {
		return fmt.Errorf("exchangeclient: venue_b metadata: %w", err)
	}
	go c.meta.runRefreshLoop(ctx)
	return nil
}

func (c *HyperliquidClient) Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error {
	if err := c.price.Start(ctx, symbols, readyTimeout); err != nil {
		return err
	}
	if err := c.book.Start(ctx, symbols, readyTimeout); err != nil {
		return err
	}
	return nil
}

func (c *HyperliquidClient) Stop() error {
	err1 := c.price.Stop()
	err2 := c.book.Stop()
	if err1 != nil {
		return err1
	}
	return err2
}

func (c *HyperliquidClient) GetAvailableSymbols(ctx context.Context) ([]string, error) {
	return c.meta.all(), nil
}

func (c *HyperliquidClient) GetSymbolInfo(symbol string) (venue.SymbolInfo, bool) {
	return c.meta.get(symbol)
}

func (c *HyperliquidClient) GetBalance(ctx context.Context) (venue.Balance, error) {
	return workerpool.Submit(ctx, c.pool, func() (venue.Balance, error) {
		b, err := c.rest.GetBalance(ctx)
		if err == nil {
			telemetry.VenueBalanceUSD.WithLabelValues(string(venue.VenueB)).Set(b.Available.Float64())
		}
		return b, err
	})
}

func (c *HyperliquidClient) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return workerpool.Submit(ctx, c.pool, func() ([]venue.Position, error) {
		return c.rest.GetPositions(ctx)
	})
}

func (c *HyperliquidClient) GetFundingRate(ctx context.Context, symbol string) (venue.FundingRate, error) {
	return workerpool.Submit(ctx, c.pool, func() (venue.FundingRate, error) {
		return c.rest.GetFundingRate(ctx, symbol)
	})
}

func (c *HyperliquidClient) Get24hVolume(ctx context.Context, symbol string) (venue.Volume24h, error) {
	return workerpool.Submit(ctx, c.pool, func() (venue.Volume24h, error) {
		return c.rest.Get24hVolume(ctx, symbol)
	})
}

func (c *HyperliquidClient) GetOrderbook(ctx context.Context, symbol string, depth int) (venue.Orderbook, error) {
	return workerpool.Submit(ctx, c.pool, func() (venue.Orderbook, error) {
		ob, err := c.rest.GetOrderbookSnapshot(ctx, symbol)
		if err != nil {
			return venue.Orderbook{}, err
		}
		if depth > 0 {
			if len(ob.Bids) > depth {
				ob.Bids = ob.Bids[:depth]
			}
			if len(ob.Asks) > depth {
				ob.Asks = ob.Asks[:depth]
			}
		}
		return *ob, nil
	})
}

func (c *HyperliquidClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if c.lev.shouldSkip(symbol, leverage) {
		return nil
	}
	_, err := workerpool.Submit(ctx, c.pool, func() (struct{}, error) {
		return struct{}{}, c.rest.SetLeverage(ctx, symbol, leverage)
	})
	return err
}

func (c *HyperliquidClient) SetLeverages(ctx context.Context, leverageBySymbol map[string]int) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(leverageBySymbol))
	for symbol, lev := range leverageBySymbol {
		wg.Add(1)
		go func(symbol string, lev int) {
			defer wg.Done()
			if err := c.SetLeverage(ctx, symbol, lev); err != nil {
				errCh <- fmt.Errorf("venue_b %s: %w", symbol, err)
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

func (c *HyperliquidClient) BuyMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	return c.marketOrder(ctx, symbol, size, venue.SideLong)
}

func (c *HyperliquidClient) SellMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	return c.marketOrder(ctx, symbol, size, venue.SideShort)
}

// marketOrder resolves the reference price (live mid from the price
// monitor, falling back to a REST book snapshot when the feed is down)
// that the venue's marketable-limit IOC emulation needs, then submits.
func (c *HyperliquidClient) marketOrder(ctx context.Context, symbol string, size decimal.Decimal, side venue.Side) (venue.Order, error) {
	info, ok := c.meta.get(symbol)
	if !ok {
		return venue.Order{}, venue.NewOrderError(venue.VenueB, "unknown symbol "+symbol, venue.ErrInvalidSymbol)
	}
	rounded := size.Truncate(int32(info.SzDecimals))

	refPrice, ok := c.price.GetPrice(symbol)
	if !ok {
		ob, err := c.rest.GetOrderbookSnapshot(ctx, symbol)
		if err != nil {
			return venue.Order{}, err
		}
		bid, hasBid := ob.BestBid()
		ask, hasAsk := ob.BestAsk()
		if !hasBid || !hasAsk {
			return venue.Order{}, venue.NewOrderError(venue.VenueB, "no reference price for "+symbol, nil)
		}
		refPrice = bid.Price.Add(ask.Price).Div(decimal.New(2, 0))
	}

	return workerpool.Submit(ctx, c.pool, func() (venue.Order, error) {
		defer observeOrderLatency(venue.VenueB, side, time.Now())
		if side == venue.SideLong {
			return c.rest.BuyMarket(ctx, symbol, rounded, refPrice, info.SzDecimals)
		}
		return c.rest.SellMarket(ctx, symbol, rounded, refPrice, info.SzDecimals)
	})
}

func (c *HyperliquidClient) EstimateFillPrice(symbol string, size decimal.Decimal, side venue.Side) (decimal.Decimal, error) {
	ob, ok := c.book.Get(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("exchangeclient: venue_b no book for %s", symbol)
	}
	return estimateFillPrice(ob, size, side, c.slippageFactor)
}

func (c *HyperliquidClient) GetPrice(symbol string) (decimal.Decimal, bool) {
	return c.price.GetPrice(symbol)
}

func (c *HyperliquidClient) HasPrice(symbol string) bool {
	return c.price.HasPrice(symbol)
}

// RoundSize truncates to the symbol's szDecimals. Unknown
// symbols pass through untouched; the order path rejects them anyway.
func (c *HyperliquidClient) RoundSize(symbol string, size decimal.Decimal) decimal.Decimal {
	info, ok := c.meta.get(symbol)
	if !ok {
		return size
	}
	return size.Truncate(int32(info.SzDecimals))
}
