package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/notify"
)

func TestSweepUpWinAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	settlements, err := f.bus.Subscribe(ctx, domain.ChannelSettlements)
	require.NoError(t, err)

	c := f.open(t, domain.DirectionUp, "100", "100")
	assert.Equal(t, "900", f.rub(t), "stake debited at creation")

	f.now = t0.Add(61 * time.Second)
	f.quote(t, "BTC", "101", f.now)

	report, err := f.engine.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Won)
	assert.Equal(t, 1, report.Ticks)

	got, err := f.ledger.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OptionWon, got.Status)
	require.NotNil(t, got.Payout)
	assert.Equal(t, "180", got.Payout.String())
	assert.Equal(t, "101", got.ExitPrice.String())
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, f.now, *got.ClosedAt)

	assert.Equal(t, "1080", f.rub(t))
	cached, err := f.balCache.GetBalances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "1080", cached["RUB"].String())

	var evt map[string]any
	require.NoError(t, json.Unmarshal(<-settlements, &evt))
	assert.Equal(t, "option_settled", evt["event"])
	assert.Equal(t, "won", evt["status"])
	assert.Equal(t, "180", evt["payout"])
	assert.Contains(t, f.audit.Events(), "option_settled")
}

func TestSweepEqualPriceLosesBothDirections(t *testing.T) {
	for _, dir := range []domain.Direction{domain.DirectionUp, domain.DirectionDown} {
		t.Run(string(dir), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			c := f.open(t, dir, "100", "100")

			f.now = t0.Add(61 * time.Second)
			f.quote(t, "BTC", "100", f.now)

			report, err := f.engine.Sweep(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 1, report.Lost)

			got, _ := f.ledger.GetByID(ctx, c.ID)
			assert.Equal(t, domain.OptionLost, got.Status)
			assert.Nil(t, got.Payout)
			assert.Equal(t, "100", got.ExitPrice.String())
			assert.Equal(t, "900", f.rub(t))
		})
	}
}

func TestSweepWithoutPriceExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, domain.DirectionUp, "100", "100")

	f.now = t0.Add(61 * time.Second)
	report, err := f.engine.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Zero(t, report.Ticks)

	got, _ := f.ledger.GetByID(ctx, c.ID)
	assert.Equal(t, domain.OptionExpired, got.Status)
	assert.Nil(t, got.ExitPrice)
	assert.Nil(t, got.Payout)
	assert.Equal(t, "900", f.rub(t))
}

func TestSweepStaleQuoteCountsAsAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, domain.DirectionUp, "100", "100")

	f.now = t0.Add(61 * time.Second)
	f.quote(t, "BTC", "150", f.now.Add(-time.Minute))

	_, err := f.engine.Sweep(ctx, "u1")
	require.NoError(t, err)
	got, _ := f.ledger.GetByID(ctx, c.ID)
	assert.Equal(t, domain.OptionExpired, got.Status)
}

func TestSweepBeforeExpiryRecordsTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, domain.DirectionDown, "50", "100")

	f.now = t0.Add(30 * time.Second)
	f.quote(t, "BTC", "99", f.now)

	report, err := f.engine.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, report.Settled())
	assert.Equal(t, 1, report.Ticks)

	got, _ := f.ledger.GetByID(ctx, c.ID)
	assert.Equal(t, domain.OptionActive, got.Status)
	require.Len(t, got.PriceHistory, 1)
	assert.Equal(t, "99", got.PriceHistory[0].Price.String())
	assert.Equal(t, "99", got.CurrentPrice.String())
	assert.Equal(t, f.now, *got.LastCheckedAt)
}

func TestSweepTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.open(t, domain.DirectionUp, "100", "100")

	f.now = t0.Add(61 * time.Second)
	f.quote(t, "BTC", "101", f.now)

	first, err := f.engine.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Won)

	second, err := f.engine.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, second.Checked)
	assert.Zero(t, second.Settled())

	assert.Equal(t, "1080", f.rub(t))
	assert.Equal(t, 1, f.balances.creditCalls())
}

func TestConcurrentSweepsCreditOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.open(t, domain.DirectionUp, "100", "100")

	f.now = t0.Add(61 * time.Second)
	f.quote(t, "BTC", "101", f.now)

	const sweepers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports []SweepReport
	)
	start := make(chan struct{})
	for i := 0; i < sweepers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			r, err := f.engine.Sweep(ctx, "u1")
			assert.NoError(t, err)
			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	var total SweepReport
	for _, r := range reports {
		total.add(r)
	}
	assert.Equal(t, 1, total.Won)
	assert.Equal(t, 1, f.balances.creditCalls())
	assert.Equal(t, "1080", f.rub(t))
}

func TestSweepSkipsCycleWhenCacheUnreadable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, domain.DirectionUp, "100", "100")

	engine := NewSettlementEngine(f.ledger, failingPrices{f.prices}, f.reconciler, f.bus, f.audit,
		SettlementConfig{}, testLogger())
	engine.SetClock(func() time.Time { return t0.Add(time.Hour) })

	_, err := engine.Sweep(ctx, "u1")
	var tfe *domain.TransientFetchError
	require.True(t, errors.As(err, &tfe))

	got, _ := f.ledger.GetByID(ctx, c.ID)
	assert.Equal(t, domain.OptionActive, got.Status, "an unreadable cache must not expire contracts")
}

func TestSweepCreditFailureLeavesContractWon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, domain.DirectionUp, "100", "100")
	f.balances.failCredit = true

	f.now = t0.Add(61 * time.Second)
	f.quote(t, "BTC", "105", f.now)

	report, err := f.engine.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Won)
	assert.Equal(t, 1, report.CreditFailures)

	got, _ := f.ledger.GetByID(ctx, c.ID)
	assert.Equal(t, domain.OptionWon, got.Status)
	assert.Equal(t, "900", f.rub(t))
	assert.Contains(t, f.audit.Events(), notify.EventReconciliationFailed)
	assert.Equal(t, []string{notify.EventReconciliationFailed}, f.alerter.events())

	// A later sweep does not retry the credit: the contract is no longer active.
	f.balances.failCredit = false
	_, err = f.engine.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "900", f.rub(t))
}

func TestSweepAllCoversEveryOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.balances.Seed("u2", domain.Balances{"RUB": dec("500")})
	f.open(t, domain.DirectionUp, "100", "100")

	_, err := f.gateway.Create(ctx, CreateOptionRequest{
		OwnerID: "u2", Instrument: "BTC", Direction: domain.DirectionDown,
		Stake: dec("10"), EntryPrice: dec("100"), DurationSeconds: 60,
	})
	require.NoError(t, err)

	f.now = t0.Add(2 * time.Minute)
	f.quote(t, "BTC", "90", f.now)

	report, err := f.engine.SweepAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Owners)
	assert.Equal(t, 1, report.Won)
	assert.Equal(t, 1, report.Lost)

	bal, _ := f.balances.Get(ctx, "u2")
	assert.Equal(t, "508", bal["RUB"].String())
}
