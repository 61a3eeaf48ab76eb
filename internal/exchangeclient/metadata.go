package exchangeclient

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"deltaneutral/internal/venue"
	"deltaneutral/pkg/utils"
)

// metadataCache holds the instrument universe for one venue, refreshed
// periodically in the background, dropping delisted instruments on
// each reload.
type metadataCache struct {
	mu      sync.RWMutex
	symbols map[string]venue.SymbolInfo

	fetch    func(ctx context.Context) ([]venue.SymbolInfo, error)
	interval time.Duration
	log      *utils.Logger
	venue    venue.Name
}

func newMetadataCache(v venue.Name, interval time.Duration, fetch func(ctx context.Context) ([]venue.SymbolInfo, error), log *utils.Logger) *metadataCache {
	return &metadataCache{
		symbols:  make(map[string]venue.SymbolInfo),
		fetch:    fetch,
		interval: interval,
		log:      log,
		venue:    v,
	}
}

// refreshOnce performs a synchronous fetch+swap, used at startup so the
// universe is populated before the bot's symbol-intersection step.
func (c *metadataCache) refreshOnce(ctx context.Context) error {
	infos, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]venue.SymbolInfo, len(infos))
	for _, info := range infos {
		if info.Delisted {
			continue
		}
		next[info.Symbol] = info
	}
	c.mu.Lock()
	c.symbols = next
	c.mu.Unlock()
	return nil
}

// runRefreshLoop periodically re-runs refreshOnce until ctx is done.
func (c *metadataCache) runRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refreshOnce(ctx); err != nil && c.log != nil {
				c.log.Warn("metadata_refresh_failed", zap.String("venue", string(c.venue)), zap.Error(err))
			}
		}
	}
}

func (c *metadataCache) get(symbol string) (venue.SymbolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.symbols[symbol]
	return info, ok
}

func (c *metadataCache) all() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}
