// Package spread computes the raw mid-vs-mid price dislocation between
// the two venues and the fee/liquidity-adjusted net spread for a given
// USD position size.
package spread

import (
	"context"
	"fmt"
	"sync"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/exchangeclient"
	"deltaneutral/internal/telemetry"
	"deltaneutral/internal/venue"
)

var (
	two     = decimal.New(2, 0)
	hundred = decimal.New(100, 0)
	one     = decimal.New(1, 0)
)

// RawSpread is the no-fee, no-depth mid-to-mid dislocation.
type RawSpread struct {
	SpreadPct decimal.Decimal
	Direction venue.SpreadDirection
	PriceA    decimal.Decimal
	PriceB    decimal.Decimal
}

// DirectionSpread is one direction's outcome inside a NetSpread.
type DirectionSpread struct {
	SpreadPct decimal.Decimal
	Profit    decimal.Decimal
}

// NetSpread is the fee- and liquidity-aware spread for a concrete
// position size: per-direction profit after walking both books and
// applying taker fees, plus the better of the two directions.
type NetSpread struct {
	Symbol        string
	SizeA         decimal.Decimal // venue A size, whole contracts
	SizeB         decimal.Decimal // venue B size, sz_decimals-truncated coins
	VenueAShort   DirectionSpread
	VenueBShort   DirectionSpread
	BestDirection venue.SpreadDirection
	BestProfit    decimal.Decimal
	BestSpreadPct decimal.Decimal
}

// Finder reads two exchange clients' local market state. It never
// mutates either client and issues no I/O of its own: fill-price
// estimation walks the locally maintained books.
type Finder struct {
	clientA exchangeclient.Client
	clientB exchangeclient.Client
	feeA    decimal.Decimal // venue A taker rate, e.g. 0.0005
	feeB    decimal.Decimal // venue B taker rate
}

func NewFinder(clientA, clientB exchangeclient.Client, feeA, feeB decimal.Decimal) *Finder {
	return &Finder{clientA: clientA, clientB: clientB, feeA: feeA, feeB: feeB}
}

// RawSpread reads both price monitors and returns the mid-vs-mid
// spread, or false if either venue lacks a price for symbol. O(1),
// purely local, non-blocking.
func (f *Finder) RawSpread(symbol string) (RawSpread, bool) {
	priceA, okA := f.clientA.GetPrice(symbol)
	priceB, okB := f.clientB.GetPrice(symbol)
	if !okA || !okB {
		return RawSpread{}, false
	}
	return computeRawSpread(symbol, priceA, priceB), true
}

// computeRawSpread is the shared raw-spread formula; the position
// manager's close-condition monitor computes its current spread the
// same way so entry and exit compare like with like.
func computeRawSpread(symbol string, priceA, priceB decimal.Decimal) RawSpread {
	mid := priceA.Add(priceB).Div(two)
	spreadPct := priceA.Sub(priceB).Abs().Div(mid).Mul(hundred)
	direction := venue.VenueBShort
	if priceA.GreaterThan(priceB) {
		direction = venue.VenueAShort
	}
	telemetry.SpreadObserved.WithLabelValues(symbol).Observe(spreadPct.Float64())
	return RawSpread{SpreadPct: spreadPct, Direction: direction, PriceA: priceA, PriceB: priceB}
}

// fillEstimate is one of the four concurrent fill-price walks.
type fillEstimate struct {
	price decimal.Decimal
	err   error
}

// NetSpread converts usdSize into per-venue coin quantities, estimates
// the four relevant fill prices in parallel, applies taker fees
// multiplicatively, and returns per-direction profit plus the better
// direction.
func (f *Finder) NetSpread(ctx context.Context, symbol string, usdSize decimal.Decimal) (NetSpread, error) {
	raw, ok := f.RawSpread(symbol)
	if !ok {
		return NetSpread{}, fmt.Errorf("spread: no price pair for %s", symbol)
	}

	mid := raw.PriceA.Add(raw.PriceB).Div(two)
	if mid.IsZero() {
		return NetSpread{}, fmt.Errorf("spread: zero mid price for %s", symbol)
	}
	coins := usdSize.Div(mid)
	sizeA := f.clientA.RoundSize(symbol, coins)
	sizeB := f.clientB.RoundSize(symbol, coins)
	if sizeA.IsZero() || sizeB.IsZero() {
		return NetSpread{}, fmt.Errorf("spread: %s size rounds to zero at usd_size %s", symbol, usdSize)
	}

	var wg sync.WaitGroup
	var buyA, sellA, buyB, sellB fillEstimate
	estimates := []struct {
		dst    *fillEstimate
		client exchangeclient.Client
		size   decimal.Decimal
		side   venue.Side
	}{
		{&buyA, f.clientA, sizeA, venue.SideLong},
		{&sellA, f.clientA, sizeA, venue.SideShort},
		{&buyB, f.clientB, sizeB, venue.SideLong},
		{&sellB, f.clientB, sizeB, venue.SideShort},
	}
	for _, e := range estimates {
		wg.Add(1)
		go func(dst *fillEstimate, client exchangeclient.Client, size decimal.Decimal, side venue.Side) {
			defer wg.Done()
			dst.price, dst.err = client.EstimateFillPrice(symbol, size, side)
		}(e.dst, e.client, e.size, e.side)
	}
	wg.Wait()
	for _, e := range []fillEstimate{buyA, sellA, buyB, sellB} {
		if e.err != nil {
			return NetSpread{}, e.err
		}
	}

	// Effective per-unit prices after taker fees: a buy pays fee on top,
	// a sell gives fee away: buy×(1+fee), sell×(1−fee).
	buyCostA := buyA.price.Mul(one.Add(f.feeA))
	sellRevA := sellA.price.Mul(one.Sub(f.feeA))
	buyCostB := buyB.price.Mul(one.Add(f.feeB))
	sellRevB := sellB.price.Mul(one.Sub(f.feeB))

	aShort := directionOutcome(sellRevA.Mul(sizeA), buyCostB.Mul(sizeB))
	bShort := directionOutcome(sellRevB.Mul(sizeB), buyCostA.Mul(sizeA))

	ns := NetSpread{
		Symbol:      symbol,
		SizeA:       sizeA,
		SizeB:       sizeB,
		VenueAShort: aShort,
		VenueBShort: bShort,
	}
	if aShort.Profit.GreaterThanOrEqual(bShort.Profit) {
		ns.BestDirection = venue.VenueAShort
		ns.BestProfit = aShort.Profit
		ns.BestSpreadPct = aShort.SpreadPct
	} else {
		ns.BestDirection = venue.VenueBShort
		ns.BestProfit = bShort.Profit
		ns.BestSpreadPct = bShort.SpreadPct
	}
	return ns, nil
}

// directionOutcome computes profit = revenue − cost and
// spread_pct = profit/cost × 100 (NetSpread invariant).
func directionOutcome(revenue, cost decimal.Decimal) DirectionSpread {
	profit := revenue.Sub(cost)
	var pct decimal.Decimal
	if !cost.IsZero() {
		pct = profit.Div(cost).Mul(hundred)
	}
	return DirectionSpread{SpreadPct: pct, Profit: profit}
}
