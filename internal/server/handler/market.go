package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// QuoteService is what the market handler needs from the price service.
type QuoteService interface {
	GetQuotes(ctx context.Context, tickers []string) (map[string]domain.Quote, error)
	Candles(ctx context.Context, ticker, interval string, limit int) ([]domain.Candle, error)
}

// MarketHandler serves cached quotes and chart candles.
type MarketHandler struct {
	prices   QuoteService
	defaults []string
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler. defaultTickers is used when a
// request names none.
func NewMarketHandler(prices QuoteService, defaultTickers []string, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{prices: prices, defaults: defaultTickers, logger: logger}
}

type quotesResponse struct {
	Quotes []domain.Quote `json:"quotes"`
}

// ListQuotes returns cached quotes in request order; tickers with no quote
// are left out.
// GET /api/quotes?tickers=BTC,ETH
func (h *MarketHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	tickers := h.defaults
	if raw := r.URL.Query().Get("tickers"); raw != "" {
		tickers = strings.Split(raw, ",")
	}

	quotes, err := h.prices.GetQuotes(r.Context(), tickers)
	if err != nil {
		writeServiceError(w, r, h.logger, "list quotes", err)
		return
	}

	out := make([]domain.Quote, 0, len(quotes))
	for _, t := range tickers {
		if q, ok := quotes[strings.ToUpper(strings.TrimSpace(t))]; ok {
			out = append(out, q)
		}
	}
	writeJSON(w, http.StatusOK, quotesResponse{Quotes: out})
}

type candlesResponse struct {
	Ticker   string          `json:"ticker"`
	Interval string          `json:"interval"`
	Candles  []domain.Candle `json:"candles"`
}

// Candles returns OHLC bars for a chart.
// GET /api/candles?ticker=BTC&interval=1m&limit=100
func (h *MarketHandler) Candles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ticker := q.Get("ticker")
	interval := q.Get("interval")
	if interval == "" {
		interval = "1m"
	}

	candles, err := h.prices.Candles(r.Context(), ticker, interval, queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, r, h.logger, "candles", err)
		return
	}
	if candles == nil {
		candles = []domain.Candle{}
	}
	writeJSON(w, http.StatusOK, candlesResponse{
		Ticker:   strings.ToUpper(ticker),
		Interval: interval,
		Candles:  candles,
	})
}
