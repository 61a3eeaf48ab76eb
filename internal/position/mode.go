package position

import (
	"time"

	"deltaneutral/internal/decimal"
)

// Mode is the arbitrage-mode sum type; today MinSpread is the only
// member. Manager and ArbitragePosition hold a MinSpread value, not a
// Mode.
type Mode interface {
	isArbitrageMode()
}

// MinSpread opens when the net spread clears a fixed entry threshold and
// closes on take-profit convergence, stop-loss widening, or timeout
// (ArbitrageMode). Immutable for the life of the bot.
type MinSpread struct {
	EntryThresholdPct    decimal.Decimal
	USDSizePerPosition   decimal.Decimal
	TakeProfitSpreadPct  decimal.Decimal
	StopLossWideningPct  decimal.Decimal
	Timeout              time.Duration
	Min24hQuoteVolumeUSD decimal.Decimal
}

func (MinSpread) isArbitrageMode() {}

// CloseReason names why the close-condition monitor (or an operator)
// exited a position.
type CloseReason int

const (
	CloseReasonUnspecified CloseReason = iota
	CloseReasonTakeProfit
	CloseReasonStopLoss
	CloseReasonTimeout
	CloseReasonManual
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonTakeProfit:
		return "take_profit"
	case CloseReasonStopLoss:
		return "stop_loss"
	case CloseReasonTimeout:
		return "timeout"
	case CloseReasonManual:
		return "manual"
	default:
		return "unspecified"
	}
}
