// Package config defines the optiondesk configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration. Fields come from a TOML file and are then
// overridden by OPTIONDESK_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	Store      StoreConfig      `toml:"store"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Cache      CacheConfig      `toml:"cache"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Feed       FeedConfig       `toml:"feed"`
	Options    OptionsConfig    `toml:"options"`
	Wallet     WalletConfig     `toml:"wallet"`
	Staking    StakingConfig    `toml:"staking"`
	Deposit    DepositConfig    `toml:"deposit"`
	Settlement SettlementConfig `toml:"settlement"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Session    SessionConfig    `toml:"session"`
	Notify     NotifyConfig     `toml:"notify"`
}

// StoreConfig selects the ledger and balance backend.
type StoreConfig struct {
	Driver string        `toml:"driver"` // "postgres" or "memory"
	Seed   []SeedAccount `toml:"seed"`
}

// SeedAccount is an account created at startup if it does not exist.
// Amounts are decimal strings.
type SeedAccount struct {
	UserID   string            `toml:"user_id"`
	Balances map[string]string `toml:"balances"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// CacheConfig selects the quote/balance cache, lock and bus backend.
type CacheConfig struct {
	Driver     string   `toml:"driver"` // "redis" or "memory"
	QuoteTTL   duration `toml:"quote_ttl"`
	BalanceTTL duration `toml:"balance_ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig configures the Binance quote poller.
type FeedConfig struct {
	BaseURL      string   `toml:"base_url"`
	QuoteAsset   string   `toml:"quote_asset"`
	Tickers      []string `toml:"tickers"`
	PollInterval duration `toml:"poll_interval"`
	Timeout      duration `toml:"timeout"`
}

// OptionsConfig configures contract creation.
type OptionsConfig struct {
	Currency      string   `toml:"currency"`
	SubmitLockTTL duration `toml:"submit_lock_ttl"`
	MaxQuoteAge   duration `toml:"max_quote_age"`
	// EntryPriceTolerance is the largest relative distance between a
	// client's entry_price and the cached quote, as a decimal string.
	EntryPriceTolerance string `toml:"entry_price_tolerance"`
}

// EntryPriceToleranceDecimal parses EntryPriceTolerance.
func (o OptionsConfig) EntryPriceToleranceDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(o.EntryPriceTolerance)
	return d
}

// WalletConfig configures exchange and withdraw. Spread and MinWithdraw are
// decimal strings.
type WalletConfig struct {
	CryptoCurrency string `toml:"crypto_currency"`
	RateSymbol     string `toml:"rate_symbol"`
	Spread         string `toml:"spread"`
	MinWithdraw    string `toml:"min_withdraw"`
}

// SpreadDecimal parses Spread. Validate has already rejected bad input.
func (w WalletConfig) SpreadDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(w.Spread)
	return d
}

// MinWithdrawDecimal parses MinWithdraw.
func (w WalletConfig) MinWithdrawDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(w.MinWithdraw)
	return d
}

// StakingConfig configures fixed-period staking. MinAmount and plan rates
// are decimal strings.
type StakingConfig struct {
	Currency  string      `toml:"currency"`
	MinAmount string      `toml:"min_amount"`
	Plans     []StakePlan `toml:"plans"`
}

// StakePlan is one staking period and its whole-period return in percent.
type StakePlan struct {
	Days        int    `toml:"days"`
	RatePercent string `toml:"rate_percent"`
}

// MinAmountDecimal parses MinAmount.
func (s StakingConfig) MinAmountDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(s.MinAmount)
	return d
}

// DepositConfig maps each depositable currency to its minimum, as decimal
// strings.
type DepositConfig struct {
	Minimums map[string]string `toml:"minimums"`
}

// SettlementConfig configures the settlement engine.
type SettlementConfig struct {
	Interval    duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
}

// ArchiveConfig configures the S3 export of settled contracts.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters. An empty APIKey leaves
// POST /api/session open.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// SessionConfig configures login sessions.
type SessionConfig struct {
	TTL duration `toml:"ttl"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML strings like "3s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config that runs fully in memory against the public
// Binance API.
func Defaults() Config {
	return Config{
		Mode:     "serve",
		LogLevel: "info",
		Store:    StoreConfig{Driver: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "optiondesk",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			QuoteTTL:   duration{time.Minute},
			BalanceTTL: duration{10 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "optiondesk:",
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "optiondesk-archive",
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			BaseURL:      "https://api.binance.com",
			QuoteAsset:   "USDT",
			Tickers:      []string{"BTC", "ETH", "BNB", "SOL", "XRP", "ADA", "DOGE", "TON"},
			PollInterval: duration{3 * time.Second},
			Timeout:      duration{10 * time.Second},
		},
		Options: OptionsConfig{
			Currency:            "RUB",
			SubmitLockTTL:       duration{10 * time.Second},
			MaxQuoteAge:         duration{15 * time.Second},
			EntryPriceTolerance: "0.005",
		},
		Wallet: WalletConfig{
			CryptoCurrency: "USDT",
			RateSymbol:     "USDTRUB",
			Spread:         "12",
			MinWithdraw:    "60000",
		},
		Staking: StakingConfig{
			Currency:  "USDT",
			MinAmount: "200",
			Plans: []StakePlan{
				{Days: 7, RatePercent: "4.8"},
				{Days: 14, RatePercent: "10.3"},
				{Days: 21, RatePercent: "15.3"},
			},
		},
		Deposit: DepositConfig{
			Minimums: map[string]string{"RUB": "500", "USDT": "5"},
		},
		Settlement: SettlementConfig{
			Interval:    duration{5 * time.Second},
			Concurrency: 8,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Cron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Session: SessionConfig{TTL: duration{24 * time.Hour}},
		Notify: NotifyConfig{
			Events: []string{"reconciliation_failed", "withdraw_requested", "deposit_requested", "archive_failed"},
		},
	}
}

var validModes = map[string]bool{
	"serve":   true,
	"settle":  true,
	"archive": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// UsesArchive reports whether the mode runs the archiver.
func (c *Config) UsesArchive() bool {
	return c.Mode == "archive" || (c.Mode == "full" && c.Archive.Enabled)
}

// UsesServer reports whether the mode serves HTTP.
func (c *Config) UsesServer() bool {
	return c.Mode == "serve" || c.Mode == "full"
}

// Validate checks Config and returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, settle, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, memory)", c.Store.Driver))
	}
	for i, s := range c.Store.Seed {
		if strings.TrimSpace(s.UserID) == "" {
			errs = append(errs, fmt.Sprintf("store.seed[%d]: user_id must not be empty", i))
		}
		for cur, amt := range s.Balances {
			d, err := decimal.NewFromString(amt)
			if err != nil || d.IsNegative() {
				errs = append(errs, fmt.Sprintf("store.seed[%d]: balance %s=%q must be a non-negative decimal", i, cur, amt))
			}
		}
	}

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache: unknown driver %q (valid: redis, memory)", c.Cache.Driver))
	}

	if c.Feed.BaseURL == "" {
		errs = append(errs, "feed: base_url must not be empty")
	}
	if c.Feed.QuoteAsset == "" {
		errs = append(errs, "feed: quote_asset must not be empty")
	}
	if len(c.Feed.Tickers) == 0 {
		errs = append(errs, "feed: tickers must not be empty")
	}
	if c.Feed.PollInterval.Duration <= 0 {
		errs = append(errs, "feed: poll_interval must be > 0")
	}

	if c.Options.Currency == "" {
		errs = append(errs, "options: currency must not be empty")
	}
	if d, err := decimal.NewFromString(c.Options.EntryPriceTolerance); err != nil || !d.IsPositive() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("options: entry_price_tolerance %q must be a decimal in (0, 1)", c.Options.EntryPriceTolerance))
	}

	if c.Wallet.CryptoCurrency == "" || c.Wallet.RateSymbol == "" {
		errs = append(errs, "wallet: crypto_currency and rate_symbol must be set")
	}
	if c.Wallet.CryptoCurrency == c.Options.Currency {
		errs = append(errs, "wallet: crypto_currency must differ from options.currency")
	}
	if d, err := decimal.NewFromString(c.Wallet.Spread); err != nil || d.IsNegative() {
		errs = append(errs, fmt.Sprintf("wallet: spread %q must be a non-negative decimal", c.Wallet.Spread))
	}
	if d, err := decimal.NewFromString(c.Wallet.MinWithdraw); err != nil || d.IsNegative() {
		errs = append(errs, fmt.Sprintf("wallet: min_withdraw %q must be a non-negative decimal", c.Wallet.MinWithdraw))
	}

	if c.Staking.Currency == "" {
		errs = append(errs, "staking: currency must not be empty")
	}
	if d, err := decimal.NewFromString(c.Staking.MinAmount); err != nil || !d.IsPositive() {
		errs = append(errs, fmt.Sprintf("staking: min_amount %q must be a positive decimal", c.Staking.MinAmount))
	}
	if len(c.Staking.Plans) == 0 {
		errs = append(errs, "staking: at least one plan is required")
	}
	seenDays := make(map[int]bool, len(c.Staking.Plans))
	for i, p := range c.Staking.Plans {
		if p.Days < 1 || seenDays[p.Days] {
			errs = append(errs, fmt.Sprintf("staking.plans[%d]: days must be >= 1 and unique, got %d", i, p.Days))
		}
		seenDays[p.Days] = true
		if d, err := decimal.NewFromString(p.RatePercent); err != nil || d.IsNegative() {
			errs = append(errs, fmt.Sprintf("staking.plans[%d]: rate_percent %q must be a non-negative decimal", i, p.RatePercent))
		}
	}
	for cur, amt := range c.Deposit.Minimums {
		if d, err := decimal.NewFromString(amt); err != nil || !d.IsPositive() {
			errs = append(errs, fmt.Sprintf("deposit: minimum %s=%q must be a positive decimal", cur, amt))
		}
	}

	if c.Settlement.Interval.Duration <= 0 {
		errs = append(errs, "settlement: interval must be > 0")
	}
	if c.Settlement.Concurrency < 1 {
		errs = append(errs, "settlement: concurrency must be >= 1")
	}

	if c.UsesArchive() {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			errs = append(errs, "s3: bucket and region are required when archiving")
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
		if c.Mode == "full" && strings.TrimSpace(c.Archive.Cron) == "" {
			errs = append(errs, "archive: cron must be set for mode full")
		}
	}

	if c.UsesServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
