package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

func TestReconcilerCreditRejectsNegative(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconciler.Credit(context.Background(), "u1", "c1", dec("-1"))
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, f.balances.creditCalls())
}

func TestReconcilerCreditUnknownOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconciler.Credit(context.Background(), "ghost", "c1", dec("18"))

	var rerr *domain.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "ghost", rerr.OwnerID)
}

func TestReconcilerRefreshPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	sub, err := f.bus.Subscribe(ctx, domain.ChannelBalances)
	require.NoError(t, err)

	bal, err := f.reconciler.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "1000", bal["RUB"].String())

	cached, err := f.balCache.GetBalances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "1000", cached["RUB"].String())

	var evt balanceEvent
	require.NoError(t, json.Unmarshal(<-sub, &evt))
	assert.Equal(t, "balance_updated", evt.Event)
	assert.Equal(t, "u1", evt.OwnerID)

	_, err = f.reconciler.Refresh(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcilerCreditAfterInvalidateKeepsEveryCurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.balances.Seed("u1", domain.Balances{"RUB": dec("1000"), "USDT": dec("25")})

	_, err := f.reconciler.Refresh(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, f.balCache.Invalidate(ctx, "u1"))

	_, err = f.reconciler.Credit(ctx, "u1", "c1", dec("180"))
	require.NoError(t, err)

	cached, err := f.balCache.GetBalances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "1180", cached["RUB"].String())
	assert.Equal(t, "25", cached["USDT"].String())
}

func TestReconcilerConcurrentCreditsLeaveLatestTotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reconciler.Credit(ctx, "u1", "c", dec("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cached, err := f.balCache.GetBalances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "1020", cached["RUB"].String())
	assert.Equal(t, "1020", f.rub(t))
}

func TestReconcilerRefreshFailureDropsEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.balCache.SetBalances(ctx, "ghost", domain.Balances{"RUB": dec("1")}))

	_, err := f.reconciler.Refresh(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.balCache.GetBalances(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
