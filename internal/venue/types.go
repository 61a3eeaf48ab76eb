// Package venue holds the value records and tagged enums shared by both
// venue adapters, plus the engine's error taxonomy. It has no I/O and no
// dependency on any specific venue's SDK. Adapters translate into
// these types and every downstream component (spread finder,
// position manager, bot) speaks only this vocabulary.
package venue

import (
	"time"

	"deltaneutral/internal/decimal"
)

// Name identifies one of the two venues the bot trades. The engine is
// explicitly two-venue; this is not meant to scale past two.
type Name string

const (
	VenueA Name = "venue_a" // CLOB-style, integer-contract sizing (Gate.io-shaped)
	VenueB Name = "venue_b" // on-chain perps, asset-indexed decimal sizing (Hyperliquid-shaped)
)

// Side is the position/order direction.
type Side int

const (
	SideUnspecified Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "unspecified"
	}
}

// Opposite returns the other side of a two-sided pair, used when
// compensating or reversing a leg.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideUnspecified
	}
}

// OrderStatus is the tagged enum for a fill report's outcome.
type OrderStatus int

const (
	OrderStatusUnspecified OrderStatus = iota
	OrderStatusFilled
	OrderStatusPartial
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusFilled:
		return "filled"
	case OrderStatusPartial:
		return "partial"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unspecified"
	}
}

// SpreadDirection names which venue carries the short leg in a two-leg
// arbitrage: the venue with the short leg is selling the higher price.
type SpreadDirection int

const (
	DirectionUnspecified SpreadDirection = iota
	VenueAShort
	VenueBShort
)

func (d SpreadDirection) String() string {
	switch d {
	case VenueAShort:
		return "venue_a_short"
	case VenueBShort:
		return "venue_b_short"
	default:
		return "unspecified"
	}
}

// Opposite returns the other direction.
func (d SpreadDirection) Opposite() SpreadDirection {
	switch d {
	case VenueAShort:
		return VenueBShort
	case VenueBShort:
		return VenueAShort
	default:
		return DirectionUnspecified
	}
}

// SymbolInfo describes a venue's sizing and leverage rules for one
// canonical symbol.
type SymbolInfo struct {
	Symbol           string
	MaxLeverage      int
	SzDecimals       int           // decimal places allowed in an order size; 0 for integer-contract venues
	ContractSize     decimal.Decimal // multiplier from contracts to underlying units (1 for decimal-sized venues)
	Delisted         bool
}

// OrderbookLevel is one price/size pair on one side of a book.
type OrderbookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Orderbook is a consistency-checked L2 snapshot: max(bid.price) <
// min(ask.price), no duplicate price levels, all sizes > 0.
type Orderbook struct {
	Symbol    string
	Bids      []OrderbookLevel // descending by price
	Asks      []OrderbookLevel // ascending by price
	Timestamp time.Time
}

// BestBid returns the highest bid, or false if the book has no bids.
func (ob *Orderbook) BestBid() (OrderbookLevel, bool) {
	if len(ob.Bids) == 0 {
		return OrderbookLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the lowest ask, or false if the book has no asks.
func (ob *Orderbook) BestAsk() (OrderbookLevel, bool) {
	if len(ob.Asks) == 0 {
		return OrderbookLevel{}, false
	}
	return ob.Asks[0], true
}

// Valid checks the cross-invariant: best bid strictly below best ask.
// An empty or one-sided book is considered valid (nothing to violate).
func (ob *Orderbook) Valid() bool {
	bid, hasBid := ob.BestBid()
	ask, hasAsk := ob.BestAsk()
	if !hasBid || !hasAsk {
		return true
	}
	return bid.Price.LessThan(ask.Price)
}

// Balance is a venue account's margin balance snapshot.
type Balance struct {
	Total     decimal.Decimal
	Available decimal.Decimal
}

// Used is total minus available; venues report only the two.
func (b Balance) Used() decimal.Decimal {
	return b.Total.Sub(b.Available)
}

// Position is a venue-observed open position.
type Position struct {
	Symbol          string
	Size            decimal.Decimal
	Side            Side
	EntryPrice      decimal.Decimal
	MarkPrice       decimal.Decimal
	UnrealizedPnl   decimal.Decimal
	LiquidationPrice decimal.Decimal
	HasLiquidation  bool
	MarginUsed      decimal.Decimal
	Leverage        int
	HasLeverage     bool
}

// Order is a fill report returned by a market order submission.
type Order struct {
	OrderID   string
	Symbol    string
	Size      decimal.Decimal
	Side      Side
	FillPrice decimal.Decimal
	Status    OrderStatus
	Fee       decimal.Decimal
}

// FundingRate is a venue's latest funding figure for a symbol.
type FundingRate struct {
	Symbol       string
	Rate         decimal.Decimal
	NextApplyAt  time.Time
}

// Volume24h is a venue's latest 24h trading volume for a symbol.
type Volume24h struct {
	Symbol      string
	BaseVolume  decimal.Decimal
	QuoteVolume decimal.Decimal
}
