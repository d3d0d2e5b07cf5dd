package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

const sourceBinance = "binance"

// Client is the REST client for the Binance public market-data API. It needs
// no API key.
type Client struct {
	baseURL    string
	quoteAsset string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a Binance client.
//
// baseURL is the API root, e.g. "https://api.binance.com". quoteAsset is the
// asset every ticker is priced in, e.g. "USDT".
func NewClient(baseURL, quoteAsset string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		quoteAsset: strings.ToUpper(quoteAsset),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// QuoteAsset returns the asset tickers are priced in.
func (c *Client) QuoteAsset() string { return c.quoteAsset }

type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// FetchQuote returns the last price and 24h percent change for ticker.
// Every failure is a *domain.TransientFetchError.
func (c *Client) FetchQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || ticker == c.quoteAsset {
		return domain.Quote{}, c.fetchErr(ticker, fmt.Errorf("%w: %q", domain.ErrInvalidInstrument, ticker))
	}

	params := url.Values{}
	params.Set("symbol", ticker+c.quoteAsset)

	body, err := c.doGet(ctx, "/api/v3/ticker/24hr?"+params.Encode())
	if err != nil {
		return domain.Quote{}, c.fetchErr(ticker, err)
	}

	var raw ticker24h
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Quote{}, c.fetchErr(ticker, fmt.Errorf("decode ticker: %w", err))
	}
	price, err := decimal.NewFromString(raw.LastPrice)
	if err != nil {
		return domain.Quote{}, c.fetchErr(ticker, fmt.Errorf("parse lastPrice %q: %w", raw.LastPrice, err))
	}
	if !price.IsPositive() {
		return domain.Quote{}, c.fetchErr(ticker, fmt.Errorf("%w: %s", domain.ErrInvalidPrice, raw.LastPrice))
	}
	pct, err := decimal.NewFromString(raw.PriceChangePercent)
	if err != nil {
		pct = decimal.Zero
	}

	return domain.Quote{
		Ticker:        ticker,
		Price:         price,
		PercentChange: pct,
		Timestamp:     c.now().UTC(),
	}, nil
}

// SymbolPrice returns the last traded price of a full market symbol such as
// "USDTRUB". It backs the wallet's exchange rate.
func (c *Client) SymbolPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doGet(ctx, "/api/v3/ticker/price?"+params.Encode())
	if err != nil {
		return decimal.Zero, c.fetchErr(symbol, err)
	}
	var raw struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, c.fetchErr(symbol, fmt.Errorf("decode price: %w", err))
	}
	price, err := decimal.NewFromString(raw.Price)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, c.fetchErr(symbol, fmt.Errorf("%w: %q", domain.ErrInvalidPrice, raw.Price))
	}
	return price, nil
}

// CandleLimit is the number of bars requested for a chart interval.
func CandleLimit(interval string) int {
	switch interval {
	case "1h", "4h":
		return 200
	case "1d":
		return 365
	default:
		return 100
	}
}

// Klines returns OHLC candles for ticker, oldest first. A limit <= 0 uses
// CandleLimit(interval).
func (c *Client) Klines(ctx context.Context, ticker, interval string, limit int) ([]domain.Candle, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if limit <= 0 {
		limit = CandleLimit(interval)
	}

	params := url.Values{}
	params.Set("symbol", ticker+c.quoteAsset)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.doGet(ctx, "/api/v3/klines?"+params.Encode())
	if err != nil {
		return nil, c.fetchErr(ticker, err)
	}

	// Each row: [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, c.fetchErr(ticker, fmt.Errorf("decode klines: %w", err))
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, c.fetchErr(ticker, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKline(row []json.RawMessage) (domain.Candle, error) {
	if len(row) < 5 {
		return domain.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return domain.Candle{}, fmt.Errorf("kline open time: %w", err)
	}
	vals := make([]decimal.Decimal, 4)
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		vals[i] = d
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
	}, nil
}

func (c *Client) fetchErr(ticker string, err error) error {
	return &domain.TransientFetchError{Source: sourceBinance, Key: ticker, Err: err}
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInstrument, bodyStr)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
