package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "FULL"
log_level = "debug"

[store]
driver = "postgres"

[[store.seed]]
user_id = "u1"
balances = { RUB = "1000", USDT = "0" }

[postgres]
dsn = "postgres://u:p@db:5432/optiondesk"

[cache]
driver = "redis"
quote_ttl = "30s"

[redis]
addr = "redis:6379"

[feed]
tickers = ["btc", "eth"]
poll_interval = "2s"

[archive]
enabled = true
cron = "15 4 * * *"

[server]
api_key = "from-file"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "optiondesk.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	require.Len(t, cfg.Store.Seed, 1)
	assert.Equal(t, "1000", cfg.Store.Seed[0].Balances["RUB"])
	assert.Equal(t, 30*time.Second, cfg.Cache.QuoteTTL.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Cache.BalanceTTL.Duration, "default kept")
	assert.Equal(t, []string{"btc", "eth"}, cfg.Feed.Tickers)
	assert.Equal(t, 2*time.Second, cfg.Feed.PollInterval.Duration)
	assert.Equal(t, "USDT", cfg.Feed.QuoteAsset)
	assert.Equal(t, "15 4 * * *", cfg.Archive.Cron)
	assert.Equal(t, "12", cfg.Wallet.SpreadDecimal().String())
	assert.Equal(t, "60000", cfg.Wallet.MinWithdrawDecimal().String())
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPTIONDESK_SERVER_API_KEY", "from-env")
	t.Setenv("OPTIONDESK_FEED_TICKERS", "SOL, ,TON")
	t.Setenv("OPTIONDESK_SETTLEMENT_INTERVAL", "750ms")
	t.Setenv("OPTIONDESK_SERVER_PORT", "not-a-number")
	t.Setenv("DATABASE_URL", "postgres://alias")
	t.Setenv("OPTIONDESK_POSTGRES_DSN", "postgres://primary")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.APIKey)
	assert.Equal(t, []string{"SOL", "TON"}, cfg.Feed.Tickers)
	assert.Equal(t, 750*time.Millisecond, cfg.Settlement.Interval.Duration)
	assert.Equal(t, 8000, cfg.Server.Port, "unparseable value ignored")
	assert.Equal(t, "postgres://primary", cfg.Postgres.DSN)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "serve", cfg.Mode)
	require.NoError(t, cfg.Validate())
}

func TestLoadBadFile(t *testing.T) {
	_, err := Load(writeConfig(t, "mode = "))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Store.Driver = "sqlite"
	cfg.Cache.Driver = "redis"
	cfg.Redis.Addr = ""
	cfg.Wallet.Spread = "abc"
	cfg.Settlement.Concurrency = 0
	cfg.Store.Seed = []SeedAccount{{UserID: "", Balances: map[string]string{"RUB": "-5"}}}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`store: unknown driver "sqlite"`,
		"redis: addr must not be empty",
		`wallet: spread "abc"`,
		"settlement: concurrency must be >= 1",
		"store.seed[0]: user_id must not be empty",
		"store.seed[0]: balance RUB=",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateArchiveNeedsBucket(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket and region are required")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "secret"
	cfg.Postgres.Password = "pw"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "", red.S3.SecretKey)
	assert.Equal(t, "secret", cfg.Server.APIKey)

	red.Feed.Tickers[0] = "XXX"
	assert.Equal(t, "BTC", cfg.Feed.Tickers[0])
}

func TestLoadStakingPlans(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[options]
entry_price_tolerance = "0.01"

[staking]
min_amount = "50"

[[staking.plans]]
days = 30
rate_percent = "20"

[deposit]
minimums = { EUR = "10" }
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.01", cfg.Options.EntryPriceToleranceDecimal().String())
	assert.Equal(t, "50", cfg.Staking.MinAmountDecimal().String())
	assert.Equal(t, "USDT", cfg.Staking.Currency, "default kept")
	require.Len(t, cfg.Staking.Plans, 1, "file plans replace the defaults")
	assert.Equal(t, 30, cfg.Staking.Plans[0].Days)
	assert.Equal(t, "10", cfg.Deposit.Minimums["EUR"])
}

func TestValidateStakingAndTolerance(t *testing.T) {
	cfg := Defaults()
	cfg.Options.EntryPriceTolerance = "1.5"
	cfg.Staking.MinAmount = "0"
	cfg.Staking.Plans = []StakePlan{{Days: 7, RatePercent: "4.8"}, {Days: 7, RatePercent: "x"}}
	cfg.Deposit.Minimums = map[string]string{"RUB": "-1"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`options: entry_price_tolerance "1.5"`,
		`staking: min_amount "0"`,
		"staking.plans[1]: days must be >= 1 and unique",
		`staking.plans[1]: rate_percent "x"`,
		`deposit: minimum RUB="-1"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}
