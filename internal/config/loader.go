package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the Config: defaults, then the TOML file at path (skipped when
// path is empty), then a .env file if present, then OPTIONDESK_* environment
// overrides. The result is not validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// missing .env is fine
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))

	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and deploy-time settings
// without touching the TOML file. Unset or empty variables are ignored.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "OPTIONDESK_MODE")
	setStr(&cfg.LogLevel, "OPTIONDESK_LOG_LEVEL")

	setStr(&cfg.Store.Driver, "OPTIONDESK_STORE_DRIVER")

	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.DSN, "OPTIONDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OPTIONDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OPTIONDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OPTIONDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OPTIONDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OPTIONDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OPTIONDESK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OPTIONDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OPTIONDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OPTIONDESK_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Cache.Driver, "OPTIONDESK_CACHE_DRIVER")
	setDuration(&cfg.Cache.QuoteTTL, "OPTIONDESK_CACHE_QUOTE_TTL")
	setDuration(&cfg.Cache.BalanceTTL, "OPTIONDESK_CACHE_BALANCE_TTL")

	setStr(&cfg.Redis.Addr, "OPTIONDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPTIONDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPTIONDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPTIONDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPTIONDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OPTIONDESK_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "OPTIONDESK_REDIS_KEY_PREFIX")

	setStr(&cfg.S3.Endpoint, "OPTIONDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OPTIONDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "OPTIONDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OPTIONDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OPTIONDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OPTIONDESK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OPTIONDESK_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Feed.BaseURL, "OPTIONDESK_FEED_BASE_URL")
	setStr(&cfg.Feed.QuoteAsset, "OPTIONDESK_FEED_QUOTE_ASSET")
	setStringSlice(&cfg.Feed.Tickers, "OPTIONDESK_FEED_TICKERS")
	setDuration(&cfg.Feed.PollInterval, "OPTIONDESK_FEED_POLL_INTERVAL")
	setDuration(&cfg.Feed.Timeout, "OPTIONDESK_FEED_TIMEOUT")

	setStr(&cfg.Options.Currency, "OPTIONDESK_OPTIONS_CURRENCY")
	setDuration(&cfg.Options.SubmitLockTTL, "OPTIONDESK_OPTIONS_SUBMIT_LOCK_TTL")
	setDuration(&cfg.Options.MaxQuoteAge, "OPTIONDESK_OPTIONS_MAX_QUOTE_AGE")
	setStr(&cfg.Options.EntryPriceTolerance, "OPTIONDESK_OPTIONS_ENTRY_PRICE_TOLERANCE")

	setStr(&cfg.Wallet.CryptoCurrency, "OPTIONDESK_WALLET_CRYPTO_CURRENCY")
	setStr(&cfg.Wallet.RateSymbol, "OPTIONDESK_WALLET_RATE_SYMBOL")
	setStr(&cfg.Wallet.Spread, "OPTIONDESK_WALLET_SPREAD")
	setStr(&cfg.Wallet.MinWithdraw, "OPTIONDESK_WALLET_MIN_WITHDRAW")

	setStr(&cfg.Staking.Currency, "OPTIONDESK_STAKING_CURRENCY")
	setStr(&cfg.Staking.MinAmount, "OPTIONDESK_STAKING_MIN_AMOUNT")

	setDuration(&cfg.Settlement.Interval, "OPTIONDESK_SETTLEMENT_INTERVAL")
	setInt(&cfg.Settlement.Concurrency, "OPTIONDESK_SETTLEMENT_CONCURRENCY")

	setBool(&cfg.Archive.Enabled, "OPTIONDESK_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "OPTIONDESK_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "OPTIONDESK_ARCHIVE_CRON")

	setInt(&cfg.Server.Port, "OPTIONDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OPTIONDESK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "OPTIONDESK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "OPTIONDESK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "OPTIONDESK_SERVER_RATE_WINDOW")

	setDuration(&cfg.Session.TTL, "OPTIONDESK_SESSION_TTL")

	setStr(&cfg.Notify.TelegramToken, "OPTIONDESK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OPTIONDESK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OPTIONDESK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OPTIONDESK_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
