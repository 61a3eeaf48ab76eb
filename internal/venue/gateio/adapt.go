package gateio

import (
	"strconv"
	"strings"
	"time"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
)

// These are pure translation functions: no I/O, no error that a caller
// must check beyond what's listed. Missing/empty/"0" numeric
// strings become zero, never an error.

// ToContractSymbol converts a canonical symbol (BTC) to the venue's
// contract name (BTC_USDT).
func ToContractSymbol(symbol string) string {
	return symbol + "_USDT"
}

// FromContractSymbol converts a venue contract name (BTC_USDT) back to
// the canonical symbol (BTC).
func FromContractSymbol(contract string) string {
	return strings.TrimSuffix(contract, "_USDT")
}

func adaptSymbolInfo(c contractWire) venue.SymbolInfo {
	maxLev, _ := strconv.Atoi(c.LeverageMax)
	return venue.SymbolInfo{
		Symbol:       FromContractSymbol(c.Name),
		MaxLeverage:  maxLev,
		SzDecimals:   0, // venue A sizes in whole contracts
		ContractSize: decimal.NewFromStringZeroOnEmpty(c.QuantoMultiplier),
		Delisted:     c.InDelisting,
	}
}

func adaptBalance(a accountWire) venue.Balance {
	total := decimal.NewFromStringZeroOnEmpty(a.Total)
	available := decimal.NewFromStringZeroOnEmpty(a.Available)
	return venue.Balance{Total: total, Available: available}
}

// adaptPosition derives side from the signed contract count: a
// positive size is LONG, negative is SHORT.
func adaptPosition(p positionWire) venue.Position {
	size := decimal.New(p.Size, 0).Abs()
	side := venue.SideLong
	if p.Size < 0 {
		side = venue.SideShort
	}
	leverage, _ := strconv.Atoi(p.Leverage)
	liqPrice := decimal.NewFromStringZeroOnEmpty(p.LiqPrice)
	return venue.Position{
		Symbol:           FromContractSymbol(p.Contract),
		Size:             size,
		Side:             side,
		EntryPrice:       decimal.NewFromStringZeroOnEmpty(p.EntryPrice),
		MarkPrice:        decimal.NewFromStringZeroOnEmpty(p.MarkPrice),
		UnrealizedPnl:    decimal.NewFromStringZeroOnEmpty(p.UnrealisedPnl),
		LiquidationPrice: liqPrice,
		HasLiquidation:   !liqPrice.IsZero(),
		MarginUsed:       decimal.NewFromStringZeroOnEmpty(p.Margin),
		Leverage:         leverage,
		HasLeverage:      leverage != 0,
	}
}

// signedSizeForOrder encodes side back into a signed contract count for
// order placement (the inverse of adaptPosition's derivation).
func signedSizeForOrder(size decimal.Decimal, side venue.Side) int64 {
	n := size.Truncate(0)
	raw, _ := strconv.ParseInt(n.StringFixed(0), 10, 64)
	if side == venue.SideShort {
		return -raw
	}
	return raw
}

func adaptOrder(symbol string, requestedSize decimal.Decimal, side venue.Side, o orderWire) venue.Order {
	filled := requestedSize.Sub(decimal.New(o.Left, 0).Abs())
	status := venue.OrderStatusRejected
	if filled.GreaterThan(decimal.Zero) {
		if filled.GreaterThanOrEqual(requestedSize) {
			status = venue.OrderStatusFilled
		} else {
			status = venue.OrderStatusPartial
		}
	}
	fee := decimal.NewFromStringZeroOnEmpty(o.Tkfr)
	return venue.Order{
		OrderID:   strconv.FormatInt(o.ID, 10),
		Symbol:    symbol,
		Size:      filled.Abs(),
		Side:      side,
		FillPrice: decimal.NewFromStringZeroOnEmpty(o.FillPrice),
		Status:    status,
		Fee:       fee,
	}
}

func adaptFundingRate(f fundingRateWire) venue.FundingRate {
	return venue.FundingRate{
		Symbol:      FromContractSymbol(f.Contract),
		Rate:        decimal.NewFromStringZeroOnEmpty(f.Rate),
		NextApplyAt: time.Unix(f.NextApply, 0),
	}
}

func adaptVolume24h(v volume24hWire) venue.Volume24h {
	return venue.Volume24h{
		Symbol:     FromContractSymbol(v.Contract),
		BaseVolume: decimal.NewFromStringZeroOnEmpty(v.Volume24hBase),
		QuoteVolume: decimal.NewFromStringZeroOnEmpty(v.Volume24hQuote),
	}
}

func adaptOrderbookLevel(l orderbookLevelWire) (venue.OrderbookLevel, bool) {
	size := decimal.New(l.S, 0).Abs()
	if size.IsZero() {
		return venue.OrderbookLevel{}, false
	}
	return venue.OrderbookLevel{Price: decimal.NewFromStringZeroOnEmpty(l.P), Size: size}, true
}

func adaptSnapshot(symbol string, snap orderbookSnapshotWire) *venue.Orderbook {
	ob := &venue.Orderbook{Symbol: symbol, Timestamp: time.Now()}
	for _, b := range snap.Bids {
		if lvl, ok := adaptOrderbookLevel(b); ok {
			ob.Bids = append(ob.Bids, lvl)
		}
	}
	for _, a := range snap.Asks {
		if lvl, ok := adaptOrderbookLevel(a); ok {
			ob.Asks = append(ob.Asks, lvl)
		}
	}
	return ob
}
