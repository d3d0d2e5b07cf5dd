package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// CandleSource serves chart candles. *feed.Client satisfies it.
type CandleSource interface {
	Klines(ctx context.Context, ticker, interval string, limit int) ([]domain.Candle, error)
}

// PriceService sits between the poller and the shared quote cache: it stores
// every polled batch and fans it out on the quotes channel.
type PriceService struct {
	cache   domain.PriceCache
	bus     domain.SignalBus
	candles CandleSource
	logger  *slog.Logger
}

// NewPriceService creates a PriceService.
func NewPriceService(cache domain.PriceCache, bus domain.SignalBus, candles CandleSource, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:   cache,
		bus:     bus,
		candles: candles,
		logger:  logger.With(slog.String("component", "price_service")),
	}
}

type quotesEvent struct {
	Event     string         `json:"event"`
	Quotes    []domain.Quote `json:"quotes"`
	Timestamp string         `json:"timestamp"`
}

// HandleQuotes stores a polled batch and publishes it. It is the poller's
// QuoteHandler.
func (s *PriceService) HandleQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	if err := s.cache.SetQuotes(ctx, quotes); err != nil {
		return fmt.Errorf("price_service: set quotes: %w", err)
	}

	evt, _ := json.Marshal(quotesEvent{
		Event:     "quotes",
		Quotes:    quotes,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, domain.ChannelQuotes, evt); err != nil {
		s.logger.WarnContext(ctx, "publish quotes failed",
			slog.Int("count", len(quotes)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// GetQuotes returns cached quotes for tickers. Missing tickers are omitted.
func (s *PriceService) GetQuotes(ctx context.Context, tickers []string) (map[string]domain.Quote, error) {
	norm := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			norm = append(norm, t)
		}
	}
	quotes, err := s.cache.GetQuotes(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("price_service: get quotes: %w", err)
	}
	return quotes, nil
}

// Candles fetches chart candles straight from the upstream source. A limit
// of 0 uses the interval's default depth; larger requests are capped at 1000.
func (s *PriceService) Candles(ctx context.Context, ticker, interval string, limit int) ([]domain.Candle, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, domain.Invalid("ticker", domain.ErrInvalidInstrument, "ticker is required")
	}
	if !validInterval(interval) {
		return nil, domain.Invalid("interval", domain.ErrInvalidDuration, "unsupported interval "+interval)
	}
	limit = min(max(limit, 0), maxCandles)
	candles, err := s.candles.Klines(ctx, ticker, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("price_service: candles %s %s: %w", ticker, interval, err)
	}
	return candles, nil
}

const maxCandles = 1000

var chartIntervals = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "4h": true, "1d": true,
}

func validInterval(interval string) bool { return chartIntervals[interval] }
