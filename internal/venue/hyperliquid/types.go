// Package hyperliquid adapts the on-chain perps venue (venue B),
// modeled on Hyperliquid's L1/exchange API: decimal/asset-indexed sizing
// via szDecimals, EIP-712 signed exchange actions, an allMids channel
// carrying every symbol's mid price in one frame, and per-symbol l2Book
// full-snapshot pushes (no sequence-gap bookkeeping, unlike venue A).
// Exchange actions are signed with go-ethereum's apitypes.TypedData +
// crypto.Sign.
package hyperliquid

import encodingjson "encoding/json"

// Wire-format structs mirror the venue's JSON payloads. Field names match
// the API docs, not our internal vocabulary; translation into
// internal/venue happens in adapt.go.

type universeAssetWire struct {
	Name        string `json:"name"`
	SzDecimals  int    `json:"szDecimals"`
	MaxLeverage int    `json:"maxLeverage"`
	IsDelisted  bool   `json:"isDelisted"`
}

type metaWire struct {
	Universe []universeAssetWire `json:"universe"`
}

// assetCtxWire is meta_and_asset_ctxs's per-asset market data, returned
// in the same order as metaWire.Universe.
type assetCtxWire struct {
	Funding    string `json:"funding"`
	DayNtlVlm  string `json:"dayNtlVlm"`
	DayBaseVlm string `json:"dayBaseVlm"`
	MarkPx     string `json:"markPx"`
	MidPx      string `json:"midPx"`
}

type leverageWire struct {
	Type  string `json:"type"` // "cross" or "isolated"
	Value int    `json:"value"`
}

type positionWire struct {
	Coin             string       `json:"coin"`
	Szi              string       `json:"szi"`
	EntryPx          string       `json:"entryPx"`
	UnrealizedPnl    string       `json:"unrealizedPnl"`
	Leverage         leverageWire `json:"leverage"`
	LiquidationPx    string       `json:"liquidationPx"`
	MarginUsed       string       `json:"marginUsed"`
}

type assetPositionWire struct {
	Position positionWire `json:"position"`
}

type marginSummaryWire struct {
	AccountValue string `json:"accountValue"`
}

type userStateWire struct {
	MarginSummary   marginSummaryWire   `json:"marginSummary"`
	Withdrawable    string              `json:"withdrawable"`
	AssetPositions  []assetPositionWire `json:"assetPositions"`
}

type levelWire struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
}

// l2BookWire is the response to /info {"type":"l2Book"} and the payload
// of an l2Book WS push alike: Levels[0] is bids, Levels[1] is asks.
type l2BookWire struct {
	Coin   string        `json:"coin"`
	Time   int64         `json:"time"`
	Levels [][]levelWire `json:"levels"`
}

// allMidsWire is the data field of an allMids WS push: every tradable
// coin's mid price in one map, keyed by coin symbol.
type allMidsWire struct {
	Mids map[string]string `json:"mids"`
}

// wsEnvelope wraps every Hyperliquid WS push: {"channel": "...", "data": ...}.
type wsEnvelope struct {
	Channel string                `json:"channel"`
	Data    encodingjson.RawMessage `json:"data"`
}

type filledWire struct {
	TotalSz string `json:"totalSz"`
	AvgPx   string `json:"avgPx"`
	Oid     int64  `json:"oid"`
}

type orderStatusWire struct {
	Filled  *filledWire `json:"filled,omitempty"`
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Error string `json:"error,omitempty"`
}

type orderDataWire struct {
	Statuses []orderStatusWire `json:"statuses"`
}

type orderResponseInnerWire struct {
	Type string        `json:"type"`
	Data orderDataWire `json:"data"`
}

// exchangeResponseWire is the top-level /exchange response envelope.
type exchangeResponseWire struct {
	Status   string                 `json:"status"`
	Response orderResponseInnerWire `json:"response"`
}
