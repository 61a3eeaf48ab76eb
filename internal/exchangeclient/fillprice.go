package exchangeclient

import (
	"fmt"
	"time"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/telemetry"
	"deltaneutral/internal/venue"
)

// observeOrderLatency records how long a venue REST order submission
// took, from the moment a worker-pool permit was granted.
func observeOrderLatency(v venue.Name, side venue.Side, start time.Time) {
	telemetry.OrderExecutionLatencyMs.WithLabelValues(string(v), side.String()).
		Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

// estimateFillPrice volume-weight-averages a market order of size,
// walking the relevant side of ob: buying walks the asks, selling walks
// the bids. If size exceeds total visible depth, the remainder
// is filled at the last level's price extrapolated by
// (1 +/- slippageFactor), a named configuration constant rather than a
// magic number at the call site.
func estimateFillPrice(ob venue.Orderbook, size decimal.Decimal, side venue.Side, slippageFactor decimal.Decimal) (decimal.Decimal, error) {
	levels := ob.Asks
	if side == venue.SideShort {
		levels = ob.Bids
	}
	if len(levels) == 0 {
		return decimal.Zero, fmt.Errorf("exchangeclient: empty book for %s, cannot estimate fill price", ob.Symbol)
	}

	remaining := size
	var notional decimal.Decimal
	var lastPrice decimal.Decimal
	for _, lvl := range levels {
		lastPrice = lvl.Price
		if remaining.LessThanOrEqual(lvl.Size) {
			notional = notional.Add(remaining.Mul(lvl.Price))
			remaining = decimal.Zero
			break
		}
		notional = notional.Add(lvl.Size.Mul(lvl.Price))
		remaining = remaining.Sub(lvl.Size)
	}

	if remaining.IsPositive() {
		one := decimal.MustFromString("1")
		var extrapolated decimal.Decimal
		if side == venue.SideLong {
			extrapolated = lastPrice.Mul(one.Add(slippageFactor))
		} else {
			extrapolated = lastPrice.Mul(one.Sub(slippageFactor))
		}
		notional = notional.Add(remaining.Mul(extrapolated))
	}

	return notional.Div(size), nil
}
