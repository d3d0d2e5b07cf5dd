package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/optiondesk/internal/cache/memory"
	"github.com/alanyoungcy/optiondesk/internal/domain"
)

type stubCandles struct {
	calls []string
}

func (s *stubCandles) Klines(_ context.Context, ticker, interval string, limit int) ([]domain.Candle, error) {
	s.calls = append(s.calls, ticker+"/"+interval)
	return []domain.Candle{{Open: dec("1"), High: dec("2"), Low: dec("0.5"), Close: dec("1.5")}}, nil
}

func TestPriceServiceHandleQuotes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := cachemem.NewPriceCache()
	bus := cachemem.NewBus()
	sub, err := bus.Subscribe(ctx, domain.ChannelQuotes)
	require.NoError(t, err)

	s := NewPriceService(cache, bus, &stubCandles{}, testLogger())
	require.NoError(t, s.HandleQuotes(ctx, []domain.Quote{
		{Ticker: "BTC", Price: dec("65000.5"), PercentChange: dec("1.2"), Timestamp: t0},
	}))

	got, err := s.GetQuotes(ctx, []string{" btc", "eth"})
	require.NoError(t, err)
	require.Contains(t, got, "BTC")
	assert.Equal(t, "65000.5", got["BTC"].Price.String())
	assert.NotContains(t, got, "ETH")

	var evt quotesEvent
	require.NoError(t, json.Unmarshal(<-sub, &evt))
	assert.Equal(t, "quotes", evt.Event)
	require.Len(t, evt.Quotes, 1)
	assert.Equal(t, "BTC", evt.Quotes[0].Ticker)
}

func TestPriceServiceCandles(t *testing.T) {
	src := &stubCandles{}
	s := NewPriceService(cachemem.NewPriceCache(), cachemem.NewBus(), src, testLogger())

	candles, err := s.Candles(context.Background(), "sol", "4h", 0)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.Equal(t, []string{"SOL/4h"}, src.calls)

	_, err = s.Candles(context.Background(), "SOL", "2w", 0)
	assert.True(t, domain.IsValidation(err))
}
