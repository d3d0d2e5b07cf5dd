package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each ticker is
// stored at "quote:{TICKER}" with fields "price", "pct" and "ts" (Unix nanos).
type PriceCache struct {
	c   *Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. Entries expire after ttl; zero keeps
// them forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, ttl: ttl}
}

func (pc *PriceCache) key(ticker string) string {
	return pc.c.Key("quote", ticker)
}

// SetQuotes writes all quotes in one pipeline.
func (pc *PriceCache) SetQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	pipe := pc.c.Underlying().Pipeline()
	for _, q := range quotes {
		key := pc.key(q.Ticker)
		pipe.HSet(ctx, key, map[string]interface{}{
			"price": q.Price.String(),
			"pct":   q.PercentChange.String(),
			"ts":    strconv.FormatInt(q.Timestamp.UnixNano(), 10),
		})
		if pc.ttl > 0 {
			pipe.Expire(ctx, key, pc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quotes: %w", err)
	}
	return nil
}

// GetQuote returns domain.ErrNotFound when no quote is cached.
func (pc *PriceCache) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	vals, err := pc.c.Underlying().HGetAll(ctx, pc.key(ticker)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := decodeQuote(ticker, vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", ticker, err)
	}
	return q, nil
}

// GetQuotes reads many tickers in one pipeline. Missing or malformed entries
// are omitted.
func (pc *PriceCache) GetQuotes(ctx context.Context, tickers []string) (map[string]domain.Quote, error) {
	if len(tickers) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := pc.c.Underlying().Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tickers))
	for _, t := range tickers {
		cmds[t] = pipe.HGetAll(ctx, pc.key(t))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	out := make(map[string]domain.Quote, len(tickers))
	for t, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := decodeQuote(t, vals)
		if err != nil {
			continue
		}
		out[t] = q
	}
	return out, nil
}

func decodeQuote(ticker string, vals map[string]string) (domain.Quote, error) {
	price, err := decimal.NewFromString(vals["price"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse price: %w", err)
	}
	pct, err := decimal.NewFromString(vals["pct"])
	if err != nil {
		pct = decimal.Zero
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ts: %w", err)
	}
	return domain.Quote{
		Ticker:        ticker,
		Price:         price,
		PercentChange: pct,
		Timestamp:     time.Unix(0, tsNano).UTC(),
	}, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
