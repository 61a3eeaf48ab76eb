// Package position owns the two-leg arbitrage position lifecycle:
// atomic concurrent entry with one-leg-failure compensation, a
// close-condition monitor (take-profit / stop-loss / timeout), atomic
// concurrent exit, and realized-PnL accounting.
package position

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/exchangeclient"
	"deltaneutral/internal/telemetry"
	"deltaneutral/internal/venue"
	"deltaneutral/pkg/utils"
)

var (
	two     = decimal.New(2, 0)
	hundred = decimal.New(100, 0)
)

// ArbitragePosition is the engine-owned record of one open two-leg
// position: created only when both legs fill, removed from the manager
// when Close is called, whatever the outcome of the close legs.
type ArbitragePosition struct {
	ID             string
	Symbol         string
	LegA           venue.Order // the venue A leg as filled
	LegB           venue.Order // the venue B leg as filled
	Direction      venue.SpreadDirection
	EntrySpreadPct decimal.Decimal
	OpenTime       time.Time
	Mode           MinSpread // mode-config snapshot at open
}

// OpenRequest carries everything Open needs: the per-venue sizes come
// pre-rounded from the spread finder's NetSpread so both layers agree
// on what was quoted.
type OpenRequest struct {
	Symbol         string
	Direction      venue.SpreadDirection
	SizeA          decimal.Decimal
	SizeB          decimal.Decimal
	EntrySpreadPct decimal.Decimal
}

// ClosedPosition is the close report delivered to the bot over the
// bounded Closed channel; the bot drains it on each loop iteration.
type ClosedPosition struct {
	Position    ArbitragePosition
	Reason      CloseReason
	ExitA       venue.Order
	ExitB       venue.Order
	RealizedPnl decimal.Decimal
	ClosedAt    time.Time
}

// legResult is one side of a concurrent two-leg submission.
type legResult struct {
	order venue.Order
	err   error
}

// Manager tracks open positions and drives their lifecycle. All map
// mutations happen under mu; the close monitor iterates on a snapshot
// of the position map, never the live map.
type Manager struct {
	clientA exchangeclient.Client
	clientB exchangeclient.Client
	mode    MinSpread
	log     *utils.Logger

	mu        sync.RWMutex
	positions map[string]*ArbitragePosition

	checkEvent chan struct{}
	closed     chan ClosedPosition
	tick       time.Duration

	seq   atomic.Int64
	nowFn func() time.Time
}

// closedChannelDepth bounds the close-report channel. The bot drains on
// every scan iteration (10ms), so this only fills if the bot is wedged.
const closedChannelDepth = 16

func NewManager(clientA, clientB exchangeclient.Client, mode MinSpread, tick time.Duration, log *utils.Logger) *Manager {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &Manager{
		clientA:    clientA,
		clientB:    clientB,
		mode:       mode,
		log:        log,
		positions:  make(map[string]*ArbitragePosition),
		checkEvent: make(chan struct{}, 1),
		closed:     make(chan ClosedPosition, closedChannelDepth),
		tick:       tick,
		nowFn:      time.Now,
	}
}

// Closed is the single-producer close-report channel the bot drains.
func (m *Manager) Closed() <-chan ClosedPosition {
	return m.closed
}

// HasPosition reports whether any open position exists for symbol,
// the bot's "no existing position" precheck.
func (m *Manager) HasPosition(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// Positions returns a snapshot of all open positions, sorted by open
// time for stable admin-API output.
func (m *Manager) Positions() []ArbitragePosition {
	m.mu.RLock()
	out := make([]ArbitragePosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

func (m *Manager) nextID() string {
	return fmt.Sprintf("pos-%d-%d", m.nowFn().UnixMilli(), m.seq.Add(1))
}

// Open launches both legs concurrently and resolves the four possible
// outcomes: both filled → position created and returned; one filled →
// compensating order on the filled venue, nil returned; both failed →
// nil returned. Compensation completes before Open returns, so the
// caller's per-symbol serialization also covers the compensating order
// and no opposing order can race it on the same venue account.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*ArbitragePosition, error) {
	log := m.log.WithSymbol(req.Symbol)

	resA := make(chan legResult, 1)
	resB := make(chan legResult, 1)
	go func() {
		var o venue.Order
		var err error
		if req.Direction == venue.VenueAShort {
			o, err = m.clientA.SellMarket(ctx, req.Symbol, req.SizeA)
		} else {
			o, err = m.clientA.BuyMarket(ctx, req.Symbol, req.SizeA)
		}
		resA <- legResult{order: o, err: err}
	}()
	go func() {
		var o venue.Order
		var err error
		if req.Direction == venue.VenueAShort {
			o, err = m.clientB.BuyMarket(ctx, req.Symbol, req.SizeB)
		} else {
			o, err = m.clientB.SellMarket(ctx, req.Symbol, req.SizeB)
		}
		resB <- legResult{order: o, err: err}
	}()
	legA := <-resA
	legB := <-resB

	switch {
	case legA.err == nil && legB.err == nil:
		pos := &ArbitragePosition{
			ID:             m.nextID(),
			Symbol:         req.Symbol,
			LegA:           legA.order,
			LegB:           legB.order,
			Direction:      req.Direction,
			EntrySpreadPct: req.EntrySpreadPct,
			OpenTime:       m.nowFn(),
			Mode:           m.mode,
		}
		m.mu.Lock()
		m.positions[pos.ID] = pos
		open := len(m.positions)
		m.mu.Unlock()
		telemetry.ActivePositions.Set(float64(open))
		telemetry.PositionsOpened.WithLabelValues(req.Symbol, "both_filled").Inc()
		log.Info("pos_open_success",
			zap.String("position_id", pos.ID),
			zap.String("direction", req.Direction.String()),
			zap.String("entry_spread_pct", req.EntrySpreadPct.String()),
			zap.String("fill_a", legA.order.FillPrice.String()),
			zap.String("fill_b", legB.order.FillPrice.String()))
		m.Signal()
		return pos, nil

	case legA.err == nil:
		m.compensate(ctx, m.clientA, legA.order, log)
		telemetry.PositionsOpened.WithLabelValues(req.Symbol, "compensated").Inc()
		return nil, fmt.Errorf("position: venue_b leg failed, venue_a leg compensated: %w", legB.err)

	case legB.err == nil:
		m.compensate(ctx, m.clientB, legB.order, log)
		telemetry.PositionsOpened.WithLabelValues(req.Symbol, "compensated").Inc()
		return nil, fmt.Errorf("position: venue_a leg failed, venue_b leg compensated: %w", legA.err)

	default:
		telemetry.PositionsOpened.WithLabelValues(req.Symbol, "both_failed").Inc()
		log.Warn("pos_open_both_legs_failed", zap.Error(legA.err), zap.Error(legB.err))
		return nil, multierr.Append(legA.err, legB.err)
	}
}

// compensate reverses a lone filled leg with an opposite-side market
// order of the same size. A failed compensation is the
// CRITICAL_UNRECONCILED condition: the operator must run cmd/emergency.
func (m *Manager) compensate(ctx context.Context, client exchangeclient.Client, filled venue.Order, log *utils.Logger) {
	var err error
	var comp venue.Order
	if filled.Side == venue.SideLong {
		comp, err = client.SellMarket(ctx, filled.Symbol, filled.Size)
	} else {
		comp, err = client.BuyMarket(ctx, filled.Symbol, filled.Size)
	}
	if err != nil {
		telemetry.CompensationFailures.WithLabelValues(filled.Symbol).Inc()
		log.Error("CRITICAL_UNRECONCILED",
			zap.String("venue", string(client.Name())),
			zap.String("leg_order_id", filled.OrderID),
			zap.String("leg_side", filled.Side.String()),
			zap.String("leg_size", filled.Size.String()),
			zap.String("leg_fill_price", filled.FillPrice.String()),
			zap.Error(err))
		return
	}
	log.Info("pos_open_compensated",
		zap.String("venue", string(client.Name())),
		zap.String("original_order_id", filled.OrderID),
		zap.String("compensation_order_id", comp.OrderID))
}

// Close reverses both legs concurrently and removes the position
// regardless of outcome. On any leg failure the combined error
// is logged critically and surfaced; otherwise the realized PnL is
// computed, reported over the Closed channel, and returned.
func (m *Manager) Close(ctx context.Context, positionID string, reason CloseReason) (ClosedPosition, error) {
	m.mu.Lock()
	pos, ok := m.positions[positionID]
	if !ok {
		m.mu.Unlock()
		return ClosedPosition{}, nil
	}
	delete(m.positions, positionID)
	open := len(m.positions)
	m.mu.Unlock()
	telemetry.ActivePositions.Set(float64(open))

	log := m.log.WithSymbol(pos.Symbol).WithPosition(positionID)

	resA := make(chan legResult, 1)
	resB := make(chan legResult, 1)
	go func() {
		var o venue.Order
		var err error
		if pos.LegA.Side == venue.SideLong {
			o, err = m.clientA.SellMarket(ctx, pos.Symbol, pos.LegA.Size)
		} else {
			o, err = m.clientA.BuyMarket(ctx, pos.Symbol, pos.LegA.Size)
		}
		resA <- legResult{order: o, err: err}
	}()
	go func() {
		var o venue.Order
		var err error
		if pos.LegB.Side == venue.SideLong {
			o, err = m.clientB.SellMarket(ctx, pos.Symbol, pos.LegB.Size)
		} else {
			o, err = m.clientB.BuyMarket(ctx, pos.Symbol, pos.LegB.Size)
		}
		resB <- legResult{order: o, err: err}
	}()
	exitA := <-resA
	exitB := <-resB

	if exitA.err != nil || exitB.err != nil {
		combined := multierr.Combine(exitA.err, exitB.err)
		telemetry.CompensationFailures.WithLabelValues(pos.Symbol).Inc()
		log.Error("pos_close_failed",
			zap.String("reason", reason.String()),
			zap.Bool("leg_a_closed", exitA.err == nil),
			zap.Bool("leg_b_closed", exitB.err == nil),
			zap.String("leg_a_size", pos.LegA.Size.String()),
			zap.String("leg_b_size", pos.LegB.Size.String()),
			zap.Error(combined))
		return ClosedPosition{}, fmt.Errorf("position: close %s: %w", positionID, combined)
	}

	pnl := realizedPnl(pos, exitA.order, exitB.order)
	report := ClosedPosition{
		Position:    *pos,
		Reason:      reason,
		ExitA:       exitA.order,
		ExitB:       exitB.order,
		RealizedPnl: pnl,
		ClosedAt:    m.nowFn(),
	}
	telemetry.PositionsClosed.WithLabelValues(pos.Symbol, reason.String()).Inc()
	telemetry.RealizedPnlUSD.Add(pnl.Float64())
	log.Info("pos_close_success",
		zap.String("reason", reason.String()),
		zap.String("realized_pnl", pnl.String()),
		zap.String("exit_a", exitA.order.FillPrice.String()),
		zap.String("exit_b", exitB.order.FillPrice.String()))

	select {
	case m.closed <- report:
	default:
		log.Warn("pos_close_report_dropped", zap.String("position_id", positionID))
	}
	return report, nil
}

// realizedPnl: for VENUE_A_SHORT,
// pnl_a = (entry_a − exit_a)·size_a and pnl_b = (exit_b − entry_b)·size_b;
// swapped for VENUE_B_SHORT. Net subtracts all four fees.
func realizedPnl(pos *ArbitragePosition, exitA, exitB venue.Order) decimal.Decimal {
	var pnlA, pnlB decimal.Decimal
	if pos.Direction == venue.VenueAShort {
		pnlA = pos.LegA.FillPrice.Sub(exitA.FillPrice).Mul(pos.LegA.Size)
		pnlB = exitB.FillPrice.Sub(pos.LegB.FillPrice).Mul(pos.LegB.Size)
	} else {
		pnlA = exitA.FillPrice.Sub(pos.LegA.FillPrice).Mul(pos.LegA.Size)
		pnlB = pos.LegB.FillPrice.Sub(exitB.FillPrice).Mul(pos.LegB.Size)
	}
	fees := pos.LegA.Fee.Add(pos.LegB.Fee).Add(exitA.Fee).Add(exitB.Fee)
	return pnlA.Add(pnlB).Sub(fees)
}

// Signal wakes the close-condition monitor ahead of its next tick.
// Non-blocking: a pending wake-up already covers this signal.
func (m *Manager) Signal() {
	select {
	case m.checkEvent <- struct{}{}:
	default:
	}
}

// RunCloseMonitor is the close-condition loop: each iteration
// awakens on the check event or on the tick timeout, snapshots the
// position map, and closes sequentially within the iteration so two
// closes never interfere on the same venue account.
func (m *Manager) RunCloseMonitor(ctx context.Context) {
	timer := time.NewTimer(m.tick)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.checkEvent:
		case <-timer.C:
		}
		m.CheckOnce(ctx)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.tick)
	}
}

// CheckOnce evaluates every open position's close conditions one time.
// Exported so tests can drive the monitor deterministically without
// the background loop.
func (m *Manager) CheckOnce(ctx context.Context) {
	for _, pos := range m.Positions() {
		reason, ok := m.closeReason(&pos)
		if !ok {
			continue
		}
		if _, err := m.Close(ctx, pos.ID, reason); err != nil {
			// Close already logged pos_close_failed; the bot stays up and
			// the operator reconciles with cmd/emergency.
			continue
		}
	}
}

// closeReason applies the condition order: take-profit on spread
// convergence, stop-loss on widening past entry + threshold, then
// timeout. Skips a position when either price monitor lacks the symbol.
func (m *Manager) closeReason(pos *ArbitragePosition) (CloseReason, bool) {
	priceA, okA := m.clientA.GetPrice(pos.Symbol)
	priceB, okB := m.clientB.GetPrice(pos.Symbol)
	if !okA || !okB {
		return CloseReasonUnspecified, false
	}
	mid := priceA.Add(priceB).Div(two)
	if mid.IsZero() {
		return CloseReasonUnspecified, false
	}
	current := priceA.Sub(priceB).Abs().Div(mid).Mul(hundred)

	switch {
	case current.LessThanOrEqual(pos.Mode.TakeProfitSpreadPct):
		return CloseReasonTakeProfit, true
	case current.GreaterThanOrEqual(pos.EntrySpreadPct.Add(pos.Mode.StopLossWideningPct)):
		return CloseReasonStopLoss, true
	case m.nowFn().Sub(pos.OpenTime) >= pos.Mode.Timeout:
		return CloseReasonTimeout, true
	default:
		return CloseReasonUnspecified, false
	}
}
