// Package bot is the orchestrator: it owns the startup sequence
// (symbol intersection, monitor startup, leverage setting, volume
// filtering), the main scan loop, and the local balance bookkeeping
// that lets the hot loop run without per-iteration REST calls.
package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/exchangeclient"
	"deltaneutral/internal/position"
	"deltaneutral/internal/spread"
	"deltaneutral/internal/venue"
	"deltaneutral/pkg/utils"
)

// Config carries the bot's loop cadences and the immutable mode
// parameters (ArbitrageMode snapshot).
type Config struct {
	Mode                  position.MinSpread
	ScanInterval          time.Duration
	VolumeRefreshInterval time.Duration
	VerifyInterval        time.Duration
	MonitorReadyTimeout   time.Duration
}

// Bot wires the two exchange clients, the spread finder, and the
// position manager together (ownership rule: the bot shares its
// clients read-only with the finder and exclusively drives order
// placement through the position manager).
type Bot struct {
	clientA exchangeclient.Client
	clientB exchangeclient.Client
	finder  *spread.Finder
	pm      *position.Manager
	cfg     Config
	log     *utils.Logger

	symbolsMu sync.RWMutex
	symbols   []string

	balMu    sync.Mutex
	balanceA decimal.Decimal // local available-balance counter, venue A
	balanceB decimal.Decimal // local available-balance counter, venue B

	semMu    sync.Mutex
	openSems map[string]chan struct{} // per-symbol single-permit open semaphore

	errMu    sync.RWMutex
	lastErrs map[string]string // per-symbol last error, surfaced by the admin API

	bgCancel  context.CancelFunc
	scanDone  chan struct{}
	inflight  sync.WaitGroup
	stopOnce  sync.Once
}

func New(clientA, clientB exchangeclient.Client, finder *spread.Finder, pm *position.Manager, cfg Config, log *utils.Logger) *Bot {
	return &Bot{
		clientA:  clientA,
		clientB:  clientB,
		finder:   finder,
		pm:       pm,
		cfg:      cfg,
		log:      log.WithComponent("bot"),
		openSems: make(map[string]chan struct{}),
		lastErrs: make(map[string]string),
		scanDone: make(chan struct{}),
	}
}

// Start runs the startup sequence and launches the background
// loops. It returns once the bot is scanning; Stop tears everything
// down in the reverse order.
func (b *Bot) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	b.bgCancel = cancel

	// 1. Load both universes concurrently, then intersect.
	if err := concurrently(
		func() error { return b.clientA.LoadMarkets(ctx) },
		func() error { return b.clientB.LoadMarkets(ctx) },
	); err != nil {
		return fmt.Errorf("bot: load markets: %w", err)
	}
	symbolsA, err := b.clientA.GetAvailableSymbols(ctx)
	if err != nil {
		return err
	}
	symbolsB, err := b.clientB.GetAvailableSymbols(ctx)
	if err != nil {
		return err
	}
	symbols := intersectSymbols(symbolsA, symbolsB)
	if len(symbols) == 0 {
		return fmt.Errorf("bot: no common symbols between venues")
	}
	b.log.Info("symbols_intersected",
		zap.Int("venue_a", len(symbolsA)),
		zap.Int("venue_b", len(symbolsB)),
		zap.Int("common", len(symbols)))

	// 2. Start all four monitors concurrently.
	if err := concurrently(
		func() error { return b.clientA.Start(bgCtx, symbols, b.cfg.MonitorReadyTimeout) },
		func() error { return b.clientB.Start(bgCtx, symbols, b.cfg.MonitorReadyTimeout) },
	); err != nil {
		return fmt.Errorf("bot: start monitors: %w", err)
	}

	// 3. Fetch both balances concurrently.
	if err := b.RefreshBalances(ctx); err != nil {
		return fmt.Errorf("bot: initial balances: %w", err)
	}

	// 4. leverage = min(max_leverage_a, max_leverage_b) per symbol,
	// applied on both venues concurrently.
	levs := make(map[string]int, len(symbols))
	for _, s := range symbols {
		infoA, okA := b.clientA.GetSymbolInfo(s)
		infoB, okB := b.clientB.GetSymbolInfo(s)
		if !okA || !okB {
			continue
		}
		lev := infoA.MaxLeverage
		if infoB.MaxLeverage < lev {
			lev = infoB.MaxLeverage
		}
		if lev > 0 {
			levs[s] = lev
		}
	}
	if err := concurrently(
		func() error { return b.clientA.SetLeverages(ctx, levs) },
		func() error { return b.clientB.SetLeverages(ctx, levs) },
	); err != nil {
		return fmt.Errorf("bot: set leverages: %w", err)
	}

	// 5. Volume filter plus its background refresh.
	filtered, err := b.filterByVolume(ctx, symbols)
	if err != nil {
		return fmt.Errorf("bot: volume filter: %w", err)
	}
	b.setSymbols(filtered)
	if b.cfg.Mode.Min24hQuoteVolumeUSD.IsPositive() && b.cfg.VolumeRefreshInterval > 0 {
		go b.runVolumeRefreshLoop(bgCtx, symbols)
	}

	// 6. Close-condition monitor, plus the periodic position-map
	// verification pass.
	go b.pm.RunCloseMonitor(bgCtx)
	if b.cfg.VerifyInterval > 0 {
		go b.runVerifyLoop(bgCtx)
	}

	go b.runScanLoop(bgCtx)

	b.log.Info("bot_started", zap.Int("symbols", len(filtered)))
	return nil
}

// Stop shuts the engine down: a single cancel of the background
// context stops the scan loop, the close monitor and the refresh loops
// together, and in-flight opens see a cancelled context. Stop then
// waits for the scan loop and in-flight work to return before stopping
// the venue clients, so no open races a half-closed client.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		if b.bgCancel != nil {
			b.bgCancel()
		}
		<-b.scanDone
		b.inflight.Wait()
		if err := b.clientA.Stop(); err != nil {
			b.log.Warn("venue_a_stop_failed", zap.Error(err))
		}
		if err := b.clientB.Stop(); err != nil {
			b.log.Warn("venue_b_stop_failed", zap.Error(err))
		}
		b.log.Info("bot_stopped")
	})
}

// concurrently runs the given thunks in parallel and returns the first
// error, the "all-or-first-error" shape used at every startup step.
func concurrently(fns ...func() error) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(fns))
	for _, fn := range fns {
		wg.Add(1)
		go func(fn func() error) {
			defer wg.Done()
			if err := fn(); err != nil {
				errCh <- err
			}
		}(fn)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		return err
	}
	return nil
}

// intersectSymbols returns the sorted intersection of two symbol sets.
func intersectSymbols(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
	}
	var out []string
	for _, s := range b {
		if inA[s] {
			out = append(out, s)
			inA[s] = false // dedupe
		}
	}
	sort.Strings(out)
	return out
}

func (b *Bot) setSymbols(symbols []string) {
	b.symbolsMu.Lock()
	b.symbols = symbols
	b.symbolsMu.Unlock()
}

// Symbols returns the currently scanned symbol list.
func (b *Bot) Symbols() []string {
	b.symbolsMu.RLock()
	defer b.symbolsMu.RUnlock()
	return append([]string(nil), b.symbols...)
}

// Positions exposes the position manager's open set to the admin API.
func (b *Bot) Positions() []position.ArbitragePosition {
	return b.pm.Positions()
}

// Spread exposes a symbol's current raw spread to the admin API.
func (b *Bot) Spread(symbol string) (spread.RawSpread, bool) {
	return b.finder.RawSpread(symbol)
}

// LastErrors returns the per-symbol last-error map surfaced by the
// admin API's /errors endpoint.
func (b *Bot) LastErrors() map[string]string {
	b.errMu.RLock()
	defer b.errMu.RUnlock()
	out := make(map[string]string, len(b.lastErrs))
	for k, v := range b.lastErrs {
		out[k] = v
	}
	return out
}

func (b *Bot) recordError(symbol string, err error) {
	b.errMu.Lock()
	b.lastErrs[symbol] = err.Error()
	b.errMu.Unlock()
}

// openSem returns symbol's single-permit semaphore, creating it on
// first use. Opens within one symbol are serialized; opens across
// symbols run concurrently.
func (b *Bot) openSem(symbol string) chan struct{} {
	b.semMu.Lock()
	defer b.semMu.Unlock()
	sem, ok := b.openSems[symbol]
	if !ok {
		sem = make(chan struct{}, 1)
		b.openSems[symbol] = sem
	}
	return sem
}

// runVerifyLoop periodically cross-checks the engine's position map
// against venue reality; a desync is a critical-log condition.
func (b *Bot) runVerifyLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.VerifyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.verifyOnce(ctx)
		}
	}
}

func (b *Bot) verifyOnce(ctx context.Context) {
	var posA, posB []venue.Position
	err := concurrently(
		func() error { var err error; posA, err = b.clientA.GetPositions(ctx); return err },
		func() error { var err error; posB, err = b.clientB.GetPositions(ctx); return err },
	)
	if err != nil {
		b.log.Warn("position_verify_fetch_failed", zap.Error(err))
		return
	}
	onVenue := make(map[string]bool, len(posA)+len(posB))
	for _, p := range posA {
		onVenue[p.Symbol] = true
	}
	for _, p := range posB {
		onVenue[p.Symbol] = true
	}
	tracked := make(map[string]bool)
	for _, p := range b.pm.Positions() {
		tracked[p.Symbol] = true
		if !onVenue[p.Symbol] {
			b.log.Error("position_map_desync",
				zap.String("symbol", p.Symbol),
				zap.String("position_id", p.ID),
				zap.String("detail", "tracked position missing on both venues"))
		}
	}
	for s := range onVenue {
		if !tracked[s] {
			b.log.Error("position_map_desync",
				zap.String("symbol", s),
				zap.String("detail", "venue position not tracked by the engine"))
		}
	}
}
