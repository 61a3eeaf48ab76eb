package gateio

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"deltaneutral/internal/decimal"
	"deltaneutral/internal/venue"
	"deltaneutral/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const baseURL = "https://api.gateio.ws/api/v4"

// Client is venue A's REST surface: contract metadata, account,
// positions, leverage, market orders, order book snapshots, funding,
// volume. Speaks internal/venue's vocabulary and internal/decimal
// at the boundary.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client
	limiter   *ratelimit.RateLimiter
}

// NewClient builds a REST client for venue A. httpClient is shared
// connection-pooled transport (internal/httpclient), passed in rather than
// constructed here so the caller controls its lifetime.
func NewClient(apiKey, apiSecret string, httpClient *http.Client) *Client {
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
		limiter:   ratelimit.NewRateLimiter(10, 20),
	}
}

// WithBaseURL overrides the REST endpoint root, used by tests to point
// the client at an httptest.Server instead of the live venue.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

func (c *Client) sign(method, url, queryString, body string, timestamp int64) string {
	bodyHash := sha512.Sum512([]byte(body))
	signStr := fmt.Sprintf("%s\n%s\n%s\n%s\n%d", method, url, queryString, hex.EncodeToString(bodyHash[:]), timestamp)
	h := hmac.New(sha512.New, []byte(c.apiSecret))
	h.Write([]byte(signStr))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody, queryString string
	reqURL := c.baseURL + endpoint

	if method == http.MethodGet {
		if len(params) > 0 {
			parts := make([]string, 0, len(params))
			for k, v := range params {
				parts = append(parts, k+"="+v)
			}
			sort.Strings(parts)
			queryString = strings.Join(parts, "&")
			reqURL += "?" + queryString
		}
	} else if len(params) > 0 {
		b, _ := json.Marshal(params)
		reqBody = string(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if signed {
		timestamp := time.Now().Unix()
		req.Header.Set("KEY", c.apiKey)
		req.Header.Set("SIGN", c.sign(method, endpoint, queryString, reqBody, timestamp))
		req.Header.Set("Timestamp", strconv.FormatInt(timestamp, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, venue.NewOrderError(venue.VenueA, "transport failure", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, venue.NewOrderError(venue.VenueA, "reading response body", err)
	}

	if resp.StatusCode >= 400 {
		var errResp errorWire
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return nil, venue.NewOrderError(venue.VenueA, errResp.Message, fmt.Errorf("code=%s", errResp.Label))
		}
		return nil, venue.NewOrderError(venue.VenueA, string(body), nil)
	}
	return body, nil
}

// GetAvailableSymbols lists the contract universe, dropping
// delisted contracts.
func (c *Client) GetAvailableSymbols(ctx context.Context) ([]venue.SymbolInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/futures/usdt/contracts", nil, false)
	if err != nil {
		return nil, err
	}
	var wire []contractWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, venue.NewOrderError(venue.VenueA, "decoding contracts", err)
	}
	infos := make([]venue.SymbolInfo, 0, len(wire))
	for _, w := range wire {
		if w.InDelisting {
			continue
		}
		infos = append(infos, adaptSymbolInfo(w))
	}
	return infos, nil
}

func (c *Client) GetBalance(ctx context.Context) (venue.Balance, error) {
	body, err := c.do(ctx, http.MethodGet, "/futures/usdt/accounts", nil, true)
	if err != nil {
		return venue.Balance{}, err
	}
	var wire accountWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return venue.Balance{}, venue.NewOrderError(venue.VenueA, "decoding account", err)
	}
	return adaptBalance(wire), nil
}

// DualMode reports whether the account is currently in dual-position
// mode, which the engine requires to be in a known state before
// placing orders.
func (c *Client) DualMode(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, "/futures/usdt/accounts", nil, true)
	if err != nil {
		return false, err
	}
	var wire accountWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return false, venue.NewOrderError(venue.VenueA, "decoding account", err)
	}
	return wire.InDualMode, nil
}

// SetDualMode switches the account's position mode. The
// caller must first verify there are no open positions.
func (c *Client) SetDualMode(ctx context.Context, dual bool) error {
	_, err := c.do(ctx, http.MethodPost, "/futures/usdt/dual_mode", map[string]string{
		"dual_mode": strconv.FormatBool(dual),
	}, true)
	return err
}

func (c *Client) GetPositions(ctx context.Context) ([]venue.Position, error) {
	body, err := c.do(ctx, http.MethodGet, "/futures/usdt/positions", nil, true)
	if err != nil {
		return nil, err
	}
	var wire []positionWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, venue.NewOrderError(venue.VenueA, "decoding positions", err)
	}
	positions := make([]venue.Position, 0, len(wire))
	for _, w := range wire {
		if w.Size == 0 {
			continue
		}
		positions = append(positions, adaptPosition(w))
	}
	return positions, nil
}

func (c *Client) GetFundingRate(ctx context.Context, symbol string) (venue.FundingRate, error) {
	contract := ToContractSymbol(symbol)
	body, err := c.do(ctx, http.MethodGet, "/futures/usdt/funding_rate", map[string]string{"contract": contract, "limit": "1"}, false)
	if err != nil {
		return venue.FundingRate{}, err
	}
	var wire []fundingRateWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return venue.FundingRate{}, venue.NewOrderError(venue.VenueA, "decoding funding rate", err)
	}
	if len(wire) == 0 {
		return venue.FundingRate{}, venue.NewOrderError(venue.VenueA, "no funding data for "+symbol, nil)
	}
	wire[0].Contract = contract
	return adaptFundingRate(wire[0]), nil
}

func (c *Client) Get24hVolume(ctx context.Context, symbol string) (venue.Volume24h, error) {
	contract := ToContractSymbol(symbol)
	body, err := c.do(ctx, http.MethodGet, "/futures/usdt/tickers", map[string]string{"contract": contract}, false)
	if err != nil {
		return venue.Volume24h{}, err
	}
	var wire []volume24hWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return venue.Volume24h{}, venue.NewOrderError(venue.VenueA, "decoding volume", err)
	}
	if len(wire) == 0 {
		return venue.Volume24h{}, venue.NewOrderError(venue.VenueA, "no ticker data for "+symbol, nil)
	}
	return adaptVolume24h(wire[0]), nil
}

func (c *Client) GetOrderbookSnapshot(ctx context.Context, symbol string, depth int) (*venue.Orderbook, int64, error) {
	if depth <= 0 || depth > 100 {
		depth = 100
	}
	contract := ToContractSymbol(symbol)
	body, err := c.do(ctx, http.MethodGet, "/futures/usdt/order_book", map[string]string{
		"contract": contract,
		"limit":    strconv.Itoa(depth),
		"with_id":  "true",
	}, false)
	if err != nil {
		return nil, 0, err
	}
	var wire orderbookSnapshotWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, 0, venue.NewOrderError(venue.VenueA, "decoding order book", err)
	}
	ob := adaptSnapshot(symbol, wire)
	sortBook(ob)
	return ob, wire.ID, nil
}

func sortBook(ob *venue.Orderbook) {
	sort.Slice(ob.Bids, func(i, j int) bool { return ob.Bids[i].Price.GreaterThan(ob.Bids[j].Price) })
	sort.Slice(ob.Asks, func(i, j int) bool { return ob.Asks[i].Price.LessThan(ob.Asks[j].Price) })
}

// SetLeverage sets a symbol's leverage. Caching/idempotence (TTL
// rule) lives in internal/exchangeclient, one layer up; this is the raw
// REST call.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	contract := ToContractSymbol(symbol)
	_, err := c.do(ctx, http.MethodPost, "/futures/usdt/positions/"+contract+"/leverage", map[string]string{
		"leverage": strconv.Itoa(leverage),
	}, true)
	return err
}

// BuyMarket / SellMarket submit an IOC market order for size contracts
// (integer, venue A's sizing rule). Fill reports come back synchronously
// since Gate.io's IOC orders settle before the REST call returns.
func (c *Client) BuyMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	return c.marketOrder(ctx, symbol, size, venue.SideLong)
}

func (c *Client) SellMarket(ctx context.Context, symbol string, size decimal.Decimal) (venue.Order, error) {
	return c.marketOrder(ctx, symbol, size, venue.SideShort)
}

func (c *Client) marketOrder(ctx context.Context, symbol string, size decimal.Decimal, side venue.Side) (venue.Order, error) {
	contract := ToContractSymbol(symbol)
	signedSize := signedSizeForOrder(size, side)
	body, err := c.do(ctx, http.MethodPost, "/futures/usdt/orders", map[string]string{
		"contract": contract,
		"size":     strconv.FormatInt(signedSize, 10),
		"price":    "0",
		"tif":      "ioc",
	}, true)
	if err != nil {
		return venue.Order{}, err
	}
	var wire orderWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return venue.Order{}, venue.NewOrderError(venue.VenueA, "decoding order response", err)
	}
	return adaptOrder(symbol, size, side, wire), nil
}
