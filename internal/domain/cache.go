package domain

import (
	"context"
	"time"
)

// PriceCache is the shared quote cache written by the feed and read by the
// settlement engine and the API.
type PriceCache interface {
	SetQuotes(ctx context.Context, quotes []Quote) error
	GetQuote(ctx context.Context, ticker string) (Quote, error)
	// GetQuotes omits tickers with no cached quote.
	GetQuotes(ctx context.Context, tickers []string) (map[string]Quote, error)
}

// BalanceCache mirrors store-confirmed balances for fast reads.
type BalanceCache interface {
	// SetBalances replaces the owner's whole entry.
	SetBalances(ctx context.Context, ownerID string, balances Balances) error
	GetBalances(ctx context.Context, ownerID string) (Balances, error)
	Invalidate(ctx context.Context, ownerID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channels.
const (
	ChannelQuotes      = "quotes"
	ChannelSettlements = "settlements"
	ChannelBalances    = "balances"
)
