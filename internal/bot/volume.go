package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"deltaneutral/internal/decimal"
)

// filterByVolume drops symbols whose 24h quote volume on either venue
// falls below the mode threshold. A zero threshold leaves
// the set unchanged without issuing any volume requests (boundary:
// "filter_by_volume with threshold 0 leaves the symbol set unchanged").
func (b *Bot) filterByVolume(ctx context.Context, symbols []string) ([]string, error) {
	threshold := b.cfg.Mode.Min24hQuoteVolumeUSD
	if !threshold.IsPositive() {
		return symbols, nil
	}

	type result struct {
		symbol string
		keep   bool
	}
	var wg sync.WaitGroup
	results := make(chan result, len(symbols))
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			results <- result{symbol: symbol, keep: b.volumeAboveThreshold(ctx, symbol, threshold)}
		}(symbol)
	}
	wg.Wait()
	close(results)

	keep := make(map[string]bool, len(symbols))
	for r := range results {
		keep[r.symbol] = r.keep
	}
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if keep[s] {
			out = append(out, s)
		}
	}
	b.log.Info("volume_filter_applied",
		zap.String("threshold_usd", threshold.String()),
		zap.Int("before", len(symbols)),
		zap.Int("after", len(out)))
	return out, nil
}

// volumeAboveThreshold requires BOTH venues to clear the threshold: a
// spread against an illiquid side is a fill-price trap, not an
// opportunity. A fetch failure counts as below-threshold.
func (b *Bot) volumeAboveThreshold(ctx context.Context, symbol string, threshold decimal.Decimal) bool {
	volA, errA := b.clientA.Get24hVolume(ctx, symbol)
	if errA != nil {
		b.recordError(symbol, errA)
		return false
	}
	volB, errB := b.clientB.Get24hVolume(ctx, symbol)
	if errB != nil {
		b.recordError(symbol, errB)
		return false
	}
	return volA.QuoteVolume.GreaterThanOrEqual(threshold) &&
		volB.QuoteVolume.GreaterThanOrEqual(threshold)
}

// runVolumeRefreshLoop re-applies the volume filter over the full
// common-symbol universe every VolumeRefreshInterval, so symbols that
// dry up stop being scanned and recovering ones come back.
func (b *Bot) runVolumeRefreshLoop(ctx context.Context, universe []string) {
	ticker := time.NewTicker(b.cfg.VolumeRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			filtered, err := b.filterByVolume(ctx, universe)
			if err != nil {
				b.log.Warn("volume_refresh_failed", zap.Error(err))
				continue
			}
			b.setSymbols(filtered)
		}
	}
}
