package hyperliquid

import (
	"time"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
)

// These are pure translation functions: no I/O. Missing/empty numeric
// strings adapt to zero, never an error.

func adaptSymbolInfo(a universeAssetWire) venue.SymbolInfo {
	return venue.SymbolInfo{
		Symbol:       a.Name,
		MaxLeverage:  a.MaxLeverage,
		SzDecimals:   a.SzDecimals,
		ContractSize: decimal.New(1, 0),
		Delisted:     a.IsDelisted,
	}
}

// adaptPosition derives side from the signed size field: szi>0 is LONG.
func adaptPosition(symbol string, p positionWire) venue.Position {
	szi := decimal.NewFromStringZeroOnEmpty(p.Szi)
	side := venue.SideLong
	if szi.LessThan(decimal.Zero) {
		side = venue.SideShort
	}
	liqPrice := decimal.NewFromStringZeroOnEmpty(p.LiquidationPx)
	return venue.Position{
		Symbol:           symbol,
		Size:             szi.Abs(),
		Side:             side,
		EntryPrice:       decimal.NewFromStringZeroOnEmpty(p.EntryPx),
		MarkPrice:        decimal.NewFromStringZeroOnEmpty(p.EntryPx), // venue B's user-state snapshot carries no separate mark price
		UnrealizedPnl:    decimal.NewFromStringZeroOnEmpty(p.UnrealizedPnl),
		LiquidationPrice: liqPrice,
		HasLiquidation:   !liqPrice.IsZero(),
		MarginUsed:       decimal.NewFromStringZeroOnEmpty(p.MarginUsed),
		Leverage:         p.Leverage.Value,
		HasLeverage:      p.Leverage.Value != 0,
	}
}

func adaptBalance(u userStateWire) venue.Balance {
	total := decimal.NewFromStringZeroOnEmpty(u.MarginSummary.AccountValue)
	available := decimal.NewFromStringZeroOnEmpty(u.Withdrawable)
	return venue.Balance{Total: total, Available: available}
}

// adaptOrder translates an /exchange order-placement response. Any
// non-"ok" status, wrong response type, or empty statuses is reported
// as rejected; a still-resting status as partial. Venue B's IOC market
// orders either fill immediately or don't, there is no separate
// polling step.
func adaptOrder(symbol string, requestedSize decimal.Decimal, side venue.Side, raw exchangeResponseWire) venue.Order {
	rejected := venue.Order{
		Symbol: symbol,
		Size:   requestedSize,
		Side:   side,
		Status: venue.OrderStatusRejected,
	}
	if raw.Status != "ok" || raw.Response.Type != "order" {
		return rejected
	}
	if len(raw.Response.Data.Statuses) == 0 {
		return rejected
	}
	st := raw.Response.Data.Statuses[0]
	if st.Filled == nil {
		partial := rejected
		partial.Status = venue.OrderStatusPartial
		return partial
	}
	return venue.Order{
		OrderID:   itoa64(st.Filled.Oid),
		Symbol:    symbol,
		Size:      decimal.NewFromStringZeroOnEmpty(st.Filled.TotalSz),
		Side:      side,
		FillPrice: decimal.NewFromStringZeroOnEmpty(st.Filled.AvgPx),
		Status:    venue.OrderStatusFilled,
	}
}

func adaptFundingRate(symbol string, ctx assetCtxWire) venue.FundingRate {
	// Hyperliquid applies funding hourly on the hour, unlike venue
	// A's server-reported next-apply timestamp.
	now := time.Now()
	nextHour := now.Truncate(time.Hour).Add(time.Hour)
	return venue.FundingRate{
		Symbol:      symbol,
		Rate:        decimal.NewFromStringZeroOnEmpty(ctx.Funding),
		NextApplyAt: nextHour,
	}
}

func adaptVolume24h(symbol string, ctx assetCtxWire) venue.Volume24h {
	return venue.Volume24h{
		Symbol:      symbol,
		BaseVolume:  decimal.NewFromStringZeroOnEmpty(ctx.DayBaseVlm),
		QuoteVolume: decimal.NewFromStringZeroOnEmpty(ctx.DayNtlVlm),
	}
}

func adaptOrderbook(symbol string, raw l2BookWire) *venue.Orderbook {
	ob := &venue.Orderbook{Symbol: symbol, Timestamp: time.UnixMilli(raw.Time)}
	if len(raw.Levels) >= 1 {
		for _, l := range raw.Levels[0] {
			ob.Bids = append(ob.Bids, venue.OrderbookLevel{
				Price: decimal.NewFromStringZeroOnEmpty(l.Px),
				Size:  decimal.NewFromStringZeroOnEmpty(l.Sz),
			})
		}
	}
	if len(raw.Levels) >= 2 {
		for _, l := range raw.Levels[1] {
			ob.Asks = append(ob.Asks, venue.OrderbookLevel{
				Price: decimal.NewFromStringZeroOnEmpty(l.Px),
				Size:  decimal.NewFromStringZeroOnEmpty(l.Sz),
			})
		}
	}
	return ob
}

// roundToSzDecimals truncates size to the symbol's allowed precision
// (venue B sizes in decimal units of the underlying asset, not
// whole contracts, so it needs per-symbol rounding unlike venue A).
func roundToSzDecimals(size decimal.Decimal, szDecimals int) decimal.Decimal {
	return size.Truncate(int32(szDecimals))
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
