// Package gateio adapts the CLOB-style venue (venue A), modeled on
// Gate.io's USDT-margined futures API: integer-contract sizing,
// HMAC-SHA512 request signing, `[U,u]` sequenced order-book deltas.
package gateio

// Wire-format structs mirror the venue's JSON payloads exactly; field
// names match the API docs, not our internal vocabulary. Translation
// into internal/venue value records happens in adapt.go and must never
// fail on missing/empty numeric strings.

type contractWire struct {
	Name              string `json:"name"`
	OrderSizeMin      int64  `json:"order_size_min"`
	OrderSizeMax      int64  `json:"order_size_max"`
	QuantoMultiplier  string `json:"quanto_multiplier"`
	LeverageMin       string `json:"leverage_min"`
	LeverageMax       string `json:"leverage_max"`
	InDelisting       bool   `json:"in_delisting"`
}

type accountWire struct {
	Total     string `json:"total"`
	Available string `json:"available"`
	InDualMode bool  `json:"in_dual_mode"`
}

type positionWire struct {
	Contract      string `json:"contract"`
	Size          int64  `json:"size"`
	EntryPrice    string `json:"entry_price"`
	MarkPrice     string `json:"mark_price"`
	Leverage      string `json:"leverage"`
	UnrealisedPnl string `json:"unrealised_pnl"`
	LiqPrice      string `json:"liq_price"`
	Margin        string `json:"margin"`
}

type orderWire struct {
	ID        int64  `json:"id"`
	Contract  string `json:"contract"`
	Size      int64  `json:"size"`
	Left      int64  `json:"left"`
	FillPrice string `json:"fill_price"`
	Status    string `json:"status"`
	Tkfr      string `json:"tkfr"` // taker fee rate actually applied
}

type orderbookLevelWire struct {
	P string `json:"p"`
	S int64  `json:"s"`
}

type orderbookSnapshotWire struct {
	ID    int64                `json:"id"` // base_id, aka the server update sequence
	Asks  []orderbookLevelWire `json:"asks"`
	Bids  []orderbookLevelWire `json:"bids"`
}

// orderbookDeltaWire is one futures.order_book_update WS frame.
type orderbookDeltaWire struct {
	Contract string               `json:"s"`
	U        int64                `json:"U"`
	Ue       int64                `json:"u"`
	Asks     []orderbookLevelWire `json:"a"`
	Bids     []orderbookLevelWire `json:"b"`
}

type tickerWire struct {
	Contract   string `json:"contract"`
	Last       string `json:"last"`
	LowestAsk  string `json:"lowest_ask"`
	HighestBid string `json:"highest_bid"`
}

type fundingRateWire struct {
	Contract   string `json:"contract"`
	Rate       string `json:"r"`
	NextApply  int64  `json:"t"`
}

type volume24hWire struct {
	Contract       string `json:"contract"`
	Volume24hBase  string `json:"volume_24h_base"`
	Volume24hQuote string `json:"volume_24h_quote"`
}

type errorWire struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}
