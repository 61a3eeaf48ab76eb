package exchangeclient

import (
	"sync"
	"time"
)

// leverageCache makes SetLeverage idempotent within a TTL, keyed by
// (symbol, requested leverage): a repeat call within the TTL is a
// no-op. A different requested leverage for the same symbol is a cache
// miss and issues a fresh REST call.
type leverageCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func newLeverageCache(ttl time.Duration) *leverageCache {
	return &leverageCache{ttl: ttl, entries: make(map[string]time.Time)}
}

func leverageCacheKey(symbol string, leverage int) string {
	return symbol + "|" + itoa(leverage)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
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

// shouldSkip reports whether a call for (symbol, leverage) was already
// made within the TTL, and if not, records this call as having happened
// now (set-and-check is atomic under the lock so two concurrent callers
// never both think they're first).
func (c *leverageCache) shouldSkip(symbol string, leverage int) bool {
	key := leverageCacheKey(symbol, leverage)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if at, ok := c.entries[key]; ok && now.Sub(at) < c.ttl {
		return true
	}
	c.entries[key] = now
	return false
}
