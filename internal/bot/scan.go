package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/position"
	"deltaneutral/internal/telemetry"
)

// runScanLoop is the main loop: every ScanInterval, evaluate all
// symbols in parallel, draining the position manager's close-report
// channel between iterations.
func (b *Bot) runScanLoop(ctx context.Context) {
	defer close(b.scanDone)
	ticker := time.NewTicker(b.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case report := <-b.pm.Closed():
			b.onClosed(ctx, report)
		case <-ticker.C:
			b.scanAll(ctx)
		}
	}
}

func (b *Bot) scanAll(ctx context.Context) {
	symbols := b.Symbols()
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			b.scanSymbol(ctx, symbol)
		}(symbol)
	}
	wg.Wait()
}

// scanSymbol runs the fast gate and, when it passes, the guarded slow
// path: semaphore, prechecks, net spread, open.
func (b *Bot) scanSymbol(ctx context.Context, symbol string) {
	raw, ok := b.finder.RawSpread(symbol)
	if !ok {
		return
	}
	if raw.SpreadPct.LessThan(b.cfg.Mode.EntryThresholdPct) {
		telemetry.OpportunitiesDetected.WithLabelValues(symbol, "no").Inc()
		return
	}
	telemetry.OpportunitiesDetected.WithLabelValues(symbol, "yes").Inc()

	sem := b.openSem(symbol)
	select {
	case sem <- struct{}{}:
	default:
		// An open for this symbol is already in flight; the 10ms loop
		// will see the spread again if it survives.
		return
	}
	b.inflight.Add(1)
	defer func() {
		<-sem
		b.inflight.Done()
	}()

	if b.pm.HasPosition(symbol) {
		return
	}
	if !b.reserveBalance(b.cfg.Mode.USDSizePerPosition) {
		return
	}

	tickStart := time.Now()
	ns, err := b.finder.NetSpread(ctx, symbol, b.cfg.Mode.USDSizePerPosition)
	if err != nil {
		b.recordError(symbol, err)
		return
	}
	if ns.BestSpreadPct.LessThan(b.cfg.Mode.EntryThresholdPct) {
		return
	}
	// Re-read the raw spread under the semaphore: the close monitor
	// compares against the spread at the actual moment of entry, not at
	// the fast-gate read a net-spread estimate ago.
	raw, ok = b.finder.RawSpread(symbol)
	if !ok {
		return
	}
	telemetry.TickToOrderLatencyMs.WithLabelValues(symbol, "net_spread").
		Observe(float64(time.Since(tickStart).Microseconds()) / 1000.0)

	pos, err := b.pm.Open(ctx, position.OpenRequest{
		Symbol:         symbol,
		Direction:      ns.BestDirection,
		SizeA:          ns.SizeA,
		SizeB:          ns.SizeB,
		EntrySpreadPct: raw.SpreadPct,
	})
	if err != nil {
		b.recordError(symbol, err)
		// Partial fills or compensations leave the venue balances in an
		// unknown local state; resync from the source of truth.
		if rerr := b.RefreshBalances(ctx); rerr != nil {
			b.log.Warn("balance_refresh_failed", zap.Error(rerr))
		}
		return
	}
	b.debitBalances(pos)
}

// reserveBalance checks that both local balance counters cover one
// position's USD size; the actual debit happens after the fill with
// real notionals.
func (b *Bot) reserveBalance(usd decimal.Decimal) bool {
	b.balMu.Lock()
	defer b.balMu.Unlock()
	return b.balanceA.GreaterThanOrEqual(usd) && b.balanceB.GreaterThanOrEqual(usd)
}

// debitBalances subtracts each leg's actual filled notional plus fee
// from the local counters.
func (b *Bot) debitBalances(pos *position.ArbitragePosition) {
	notionalA := pos.LegA.FillPrice.Mul(pos.LegA.Size).Add(pos.LegA.Fee)
	notionalB := pos.LegB.FillPrice.Mul(pos.LegB.Size).Add(pos.LegB.Fee)
	b.balMu.Lock()
	b.balanceA = b.balanceA.Sub(notionalA)
	b.balanceB = b.balanceB.Sub(notionalB)
	b.balMu.Unlock()
}

// onClosed handles one close report: authoritative balance refresh from
// the venues.
func (b *Bot) onClosed(ctx context.Context, report position.ClosedPosition) {
	b.log.Info("position_completed",
		zap.String("position_id", report.Position.ID),
		zap.String("symbol", report.Position.Symbol),
		zap.String("reason", report.Reason.String()),
		zap.String("realized_pnl", report.RealizedPnl.String()))
	if err := b.RefreshBalances(ctx); err != nil {
		b.log.Warn("balance_refresh_failed", zap.Error(err))
	}
}

// RefreshBalances re-reads both venues' balances concurrently and
// resets the local counters to the authoritative values.
func (b *Bot) RefreshBalances(ctx context.Context) error {
	var balA, balB decimal.Decimal
	err := concurrently(
		func() error {
			bal, err := b.clientA.GetBalance(ctx)
			if err != nil {
				return err
			}
			balA = bal.Available
			return nil
		},
		func() error {
			bal, err := b.clientB.GetBalance(ctx)
			if err != nil {
				return err
			}
			balB = bal.Available
			return nil
		},
	)
	if err != nil {
		return err
	}
	b.balMu.Lock()
	b.balanceA = balA
	b.balanceB = balB
	b.balMu.Unlock()
	return nil
}

// Balances returns the local balance counters for the admin API.
func (b *Bot) Balances() (decimal.Decimal, decimal.Decimal) {
	b.balMu.Lock()
	defer b.balMu.Unlock()
	return b.balanceA, b.balanceB
}
