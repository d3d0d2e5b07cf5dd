package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/optiondesk/internal/cache/memory"
	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/notify"
	storemem "github.com/alanyoungcy/optiondesk/internal/store/memory"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingAlerter) Notify(_ context.Context, a notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerter) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Event
	}
	return out
}

// flakyBalances fails Credit while failCredit is set.
type flakyBalances struct {
	*storemem.Balances
	mu         sync.Mutex
	failCredit bool
	credits    int
}

func (f *flakyBalances) Credit(ctx context.Context, ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	fail := f.failCredit
	f.credits++
	f.mu.Unlock()
	if fail {
		return decimal.Zero, errors.New("connection reset")
	}
	return f.Balances.Credit(ctx, ownerID, currency, amount)
}

func (f *flakyBalances) creditCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits
}

type failingPrices struct{ domain.PriceCache }

func (failingPrices) GetQuotes(context.Context, []string) (map[string]domain.Quote, error) {
	return nil, errors.New("cache unavailable")
}

type fixture struct {
	ledger     *storemem.Ledger
	balances   *flakyBalances
	prices     *cachemem.PriceCache
	balCache   *cachemem.BalanceCache
	bus        *cachemem.Bus
	locks      *cachemem.LockManager
	audit      *storemem.AuditLog
	alerter    *recordingAlerter
	reconciler *Reconciler
	engine     *SettlementEngine
	gateway    *OptionGateway
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		balances: &flakyBalances{Balances: storemem.NewBalances()},
		prices:   cachemem.NewPriceCache(),
		balCache: cachemem.NewBalanceCache(),
		bus:      cachemem.NewBus(),
		locks:    cachemem.NewLockManager(),
		audit:    storemem.NewAuditLog(),
		alerter:  &recordingAlerter{},
		now:      t0,
	}
	f.balances.Seed("u1", domain.Balances{"RUB": dec("1000"), "USDT": dec("0")})
	f.ledger = storemem.NewLedger(f.balances.Balances)
	f.ledger.SetClock(func() time.Time { return t0 })

	clock := func() time.Time { return f.now }
	f.reconciler = NewReconciler(f.balances, f.balCache, f.bus, f.audit, f.alerter, "RUB", testLogger())
	f.engine = NewSettlementEngine(f.ledger, f.prices, f.reconciler, f.bus, f.audit,
		SettlementConfig{Interval: time.Second, Concurrency: 4, MaxQuoteAge: 15 * time.Second}, testLogger())
	f.engine.SetClock(clock)
	f.gateway = NewOptionGateway(f.ledger, f.balances, f.prices, f.locks, f.reconciler,
		GatewayConfig{
			Currency:      "RUB",
			SubmitLockTTL: 5 * time.Second,
			MaxQuoteAge:   15 * time.Second,
			Tickers:       []string{"BTC", "ETH"},
		}, testLogger())
	f.gateway.SetClock(clock)
	return f
}

// open quotes BTC at entry and opens a 60s contract against it.
func (f *fixture) open(t *testing.T, dir domain.Direction, stake, entry string) domain.OptionContract {
	t.Helper()
	f.quote(t, "BTC", entry, f.now)
	c, err := f.gateway.Create(context.Background(), CreateOptionRequest{
		OwnerID:         "u1",
		Instrument:      "BTC",
		Direction:       dir,
		Stake:           dec(stake),
		EntryPrice:      dec(entry),
		DurationSeconds: 60,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) quote(t *testing.T, ticker, price string, at time.Time) {
	t.Helper()
	require.NoError(t, f.prices.SetQuotes(context.Background(), []domain.Quote{
		{Ticker: ticker, Price: dec(price), Timestamp: at},
	}))
}

func (f *fixture) rub(t *testing.T) string {
	t.Helper()
	bal, err := f.balances.Get(context.Background(), "u1")
	require.NoError(t, err)
	return bal["RUB"].String()
}
