package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

func TestPriceCacheGetQuotesOmitsMissing(t *testing.T) {
	ctx := context.Background()
	c := NewPriceCache()
	require.NoError(t, c.SetQuotes(ctx, []domain.Quote{
		{Ticker: "BTC", Price: decimal.NewFromInt(65000)},
	}))

	got, err := c.GetQuotes(ctx, []string{"BTC", "ETH"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.True(t, got["BTC"].Price.Equal(decimal.NewFromInt(65000)))

	_, err = c.GetQuote(ctx, "ETH")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBalanceCacheReplacesEntry(t *testing.T) {
	ctx := context.Background()
	c := NewBalanceCache()
	require.NoError(t, c.SetBalances(ctx, "u1", domain.Balances{"RUB": decimal.NewFromInt(100), "BTC": decimal.NewFromInt(1)}))
	require.NoError(t, c.SetBalances(ctx, "u1", domain.Balances{"RUB": decimal.NewFromInt(280), "USDT": decimal.NewFromInt(5)}))

	got, err := c.GetBalances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "280", got["RUB"].String())
	assert.Equal(t, "5", got["USDT"].String())
	assert.NotContains(t, got, "BTC")

	require.NoError(t, c.Invalidate(ctx, "u1"))
	_, err = c.GetBalances(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	m := NewLockManager()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	unlock, err := m.Acquire(ctx, "submit:u1", 10*time.Second)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "submit:u1", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	unlock2, err := m.Acquire(ctx, "submit:u1", 10*time.Second)
	require.NoError(t, err)

	now = now.Add(11 * time.Second)
	_, err = m.Acquire(ctx, "submit:u1", 10*time.Second)
	require.NoError(t, err, "expired lock is reclaimable")

	// A stale unlock must not release the new holder.
	unlock2()
	_, err = m.Acquire(ctx, "submit:u1", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	r := NewRateLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := r.Allow(ctx, "ip", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := r.Allow(ctx, "ip", 3, time.Second)
	assert.False(t, ok)

	now = now.Add(1500 * time.Millisecond)
	ok, _ = r.Allow(ctx, "ip", 3, time.Second)
	assert.True(t, ok)
}

func TestBusFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus()
	a, err := b.Subscribe(ctx, domain.ChannelSettlements)
	require.NoError(t, err)
	c, err := b.Subscribe(ctx, domain.ChannelSettlements)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, domain.ChannelSettlements, []byte("x")))
	assert.Equal(t, []byte("x"), <-a)
	assert.Equal(t, []byte("x"), <-c)

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-a
		return !open
	}, time.Second, 5*time.Millisecond)
}

func TestSessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, domain.Session{Token: "tok", OwnerID: "u1"}, time.Minute))
	got, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)
	assert.Equal(t, now.Add(time.Minute), got.ExpiresAt)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Put(ctx, domain.Session{Token: "tok2", OwnerID: "u1"}, time.Minute))
	require.NoError(t, s.Delete(ctx, "tok2"))
	_, err = s.Get(ctx, "tok2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
