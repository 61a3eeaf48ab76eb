// Package orderbook maintains the L2 order-book state for each venue.
// Venue A (CLOB-style) reconciles a REST snapshot against a streaming
// delta feed using [U,u] sequence ranges; venue B (on-chain) simply
// replaces the book wholesale on every push. Both monitors store their
// book behind two ordered slices keyed by price (descending bids,
// ascending asks) maintained by upsert/delete per delta. Book depth is
// capped at 100 levels, so a sorted-slice upsert beats a map+heap on
// both simplicity and locality.
package orderbook

import (
	"sync"
	"time"

	"deltaneutral/internal/venue"
)

// State is a venue A orderbook monitor's reconciliation state machine
//: WaitingSnapshot -> Syncing -> Ready.
type State int32

const (
	StateWaitingSnapshot State = iota
	StateSyncing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateWaitingSnapshot:
		return "waiting_snapshot"
	case StateSyncing:
		return "syncing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// book is the shared, mutex-guarded L2 state held by both venues'
// monitors. State updates are atomic per message: every mutation below
// happens under the lock, and readers take a full
// copy so a caller never observes a torn snapshot.
type book struct {
	mu  sync.RWMutex
	ob  venue.Orderbook
}

func newBook(symbol string) *book {
	return &book{ob: venue.Orderbook{Symbol: symbol}}
}

// snapshot returns a defensive copy of the current book.
func (b *book) snapshot() venue.Orderbook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := venue.Orderbook{
		Symbol:    b.ob.Symbol,
		Timestamp: b.ob.Timestamp,
		Bids:      append([]venue.OrderbookLevel(nil), b.ob.Bids...),
		Asks:      append([]venue.OrderbookLevel(nil), b.ob.Asks...),
	}
	return out
}

// replace wholesale-replaces the book (venue B's snapshot-push model
// needs no gap logic).
func (b *book) replace(ob *venue.Orderbook) {
	b.mu.Lock()
	b.ob = *ob
	b.mu.Unlock()
}

// applyDelta upserts/removes bid and ask levels (venue A's delta
// application: size==0 removes the price level, anything else upserts),
// re-sorting so bids stay descending and asks ascending, and stamps ts
// as the book's new update time.
func (b *book) applyDelta(bids, asks []venue.OrderbookLevel, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ob.Bids = upsertLevels(b.ob.Bids, bids, true)
	b.ob.Asks = upsertLevels(b.ob.Asks, asks, false)
	b.ob.Timestamp = ts
}

// upsertLevels applies a set of delta levels to an existing sorted
// slice, removing zero-size levels and upserting the rest, keeping the
// result sorted (descending when desc is true, else ascending).
func upsertLevels(existing []venue.OrderbookLevel, deltas []venue.OrderbookLevel, desc bool) []venue.OrderbookLevel {
	index := make(map[string]int, len(existing))
	for i, lvl := range existing {
		index[lvl.Price.String()] = i
	}
	removed := make(map[string]bool)
	for _, d := range deltas {
		key := d.Price.String()
		if d.Size.IsZero() {
			removed[key] = true
			continue
		}
		if i, ok := index[key]; ok {
			existing[i] = d
		} else {
			existing = append(existing, d)
			index[key] = len(existing) - 1
		}
		delete(removed, key)
	}
	if len(removed) > 0 {
		out := existing[:0]
		for _, lvl := range existing {
			if !removed[lvl.Price.String()] {
				out = append(out, lvl)
			}
		}
		existing = out
	}
	sortLevels(existing, desc)
	return existing
}

func sortLevels(levels []venue.OrderbookLevel, desc bool) {
	// Insertion sort: deltas touch only a handful of levels per message
	// against a book capped at 100 entries, so this stays cheaper than a
	// full library sort call per update.
	for i := 1; i < len(levels); i++ {
		j := i
		for j > 0 {
			var swap bool
			if desc {
				swap = levels[j-1].Price.LessThan(levels[j].Price)
			} else {
				swap = levels[j-1].Price.GreaterThan(levels[j].Price)
			}
			if !swap {
				break
			}
			levels[j-1], levels[j] = levels[j], levels[j-1]
			j--
		}
	}
}
