// Package exchangeclient composes each venue's REST client with its two
// monitors (price, orderbook) behind one capability surface: an
// explicit Go interface with two concrete implementations.
package exchangeclient

import (
	"context"
	"time"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
)

// Client is the uniform per-venue capability surface consumed by the
// spread finder, position manager, and bot.
type Client interface {
	Name() venue.Name

	// LoadMarkets performs the initial instrument-universe fetch and
	// starts the 5-minute background metadata refresher. Must run
	// before Start so the bot can intersect both venues' symbol sets
	// to decide what the monitors subscribe to.
	LoadMarkets(ctx context.Context) error
	Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error
	Stop() error

	GetAvailableSymbols(ctx context.Context) ([]string, error)
	GetSymbolInfo(symbol string) (venue.SymbolInfo, bool)

	GetBalance(ctx context.Context) (venue.Balance, error)
	GetPositions(ctx context.Context) ([]venue.Position, error)
	GetFundingRate(ctx context.Context, symbol string) (venue.FundingRate, error)
	Get24hVolume(ctx context.Context, symbol string) (venue.Volume24h, error)
	GetOrderbook(ctx context.Context, symbol string, depth int) (venue.Orderbook, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetLeverages(ctx context.Context, leverageBySymbol map[string]int) error

	BuyMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error)
	SellMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error)

	// EstimateFillPrice volume-weight-averages a fill of size on side
	// across the locally maintained book, extrapolating past visible
	// depth.
	EstimateFillPrice(symbol string, size decimal.Decimal, side venue.Side) (decimal.Decimal, error)

	// GetPrice / HasPrice read the price monitor directly, used
	// by the spread finder's O(1) raw-spread path.
	GetPrice(symbol string) (decimal.Decimal, bool)
	HasPrice(symbol string) bool

	// RoundSize applies the venue's sizing rule (integer contracts for
	// venue A, sz_decimals truncation for venue B) to a raw coin
	// quantity.
	RoundSize(symbol string, size decimal.Decimal) decimal.Decimal
}
