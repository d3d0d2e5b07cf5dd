package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/config"
	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/service"
)

func TestWireMemory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Seed = []config.SeedAccount{
		{UserID: "demo", Balances: map[string]string{"RUB": "10000", "USDT": "25.5"}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, cleanup, err := Wire(context.Background(), &cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	bal, err := deps.Balances.Get(context.Background(), "demo")
	require.NoError(t, err)
	assert.True(t, bal["RUB"].Equal(decimal.NewFromInt(10000)))
	assert.True(t, bal["USDT"].Equal(decimal.RequireFromString("25.5")))

	assert.Nil(t, deps.Archiver, "serve mode does not archive")
	assert.Empty(t, deps.Health)
	assert.NotNil(t, deps.Sessions)
	assert.NotNil(t, deps.Notifier)
	assert.NotNil(t, deps.StakeStore)
	assert.NotNil(t, deps.Transfers)
}

func TestSeedBalancesSkipsBadAmounts(t *testing.T) {
	got := seedBalances(config.SeedAccount{UserID: "x", Balances: map[string]string{"RUB": "5", "USDT": "lots"}})
	assert.Len(t, got, 1)
	assert.True(t, got["RUB"].Equal(decimal.NewFromInt(5)))
}

func TestBuildServicesUsesConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Feed.Tickers = []string{"btc", "eth", "usdt"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, cleanup, err := Wire(context.Background(), &cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	svc := New(&cfg, logger).buildServices(deps)
	assert.Equal(t, []string{"BTC", "ETH"}, svc.poller.Tickers())

	terms := svc.staking.Terms()
	assert.Equal(t, "USDT", terms.Currency)
	require.Len(t, terms.Plans, 3)
	assert.True(t, terms.Plans[2].RatePercent.Equal(decimal.RequireFromString("15.3")))
	assert.Equal(t, []string{"RUB", "USDT"}, svc.deposits.Currencies())

	_, err = svc.gateway.Create(context.Background(), service.CreateOptionRequest{
		OwnerID: "demo", Instrument: "SOL", Direction: domain.DirectionUp,
		Stake: decimal.NewFromInt(100), DurationSeconds: 60,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInstrument, "gateway only takes watched tickers")
}
