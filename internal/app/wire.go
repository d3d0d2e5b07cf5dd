package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/optiondesk/internal/blob/s3"
	"github.com/alanyoungcy/optiondesk/internal/cache/memory"
	"github.com/alanyoungcy/optiondesk/internal/cache/redis"
	"github.com/alanyoungcy/optiondesk/internal/config"
	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/notify"
	"github.com/alanyoungcy/optiondesk/internal/server/handler"
	storemem "github.com/alanyoungcy/optiondesk/internal/store/memory"
	"github.com/alanyoungcy/optiondesk/internal/store/postgres"
)

// Dependencies bundles the storage, cache and notification backends the
// modes run on. It is built by Wire and torn down by the returned cleanup.
type Dependencies struct {
	// Stores
	OptionStore domain.OptionStore
	Balances    domain.BalanceStore
	Operator    domain.AtomicOperator
	AuditStore  domain.AuditStore
	StakeStore  domain.StakeStore
	Transfers   domain.TransferStore

	// Caches
	PriceCache   domain.PriceCache
	BalanceCache domain.BalanceCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus
	Sessions     domain.SessionStore

	// Blob storage; nil unless the mode archives.
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// Health checks by dependency name.
	Health map[string]handler.Pinger
}

// Wire builds every backend selected by cfg and returns a cleanup function
// that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: make(map[string]handler.Pinger)}

	// --- Ledger and balances ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		balances := postgres.NewBalanceStore(pool)
		for _, acct := range cfg.Store.Seed {
			if err := balances.Seed(ctx, acct.UserID, seedBalances(acct)); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: seed %s: %w", acct.UserID, err)
			}
		}
		deps.OptionStore = postgres.NewOptionStore(pool)
		deps.Balances = balances
		deps.Operator = balances
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.StakeStore = postgres.NewStakeStore(pool)
		deps.Transfers = postgres.NewTransferStore(pool)
		deps.Health["postgres"] = pgClient.Ping

	default:
		balances := storemem.NewBalances()
		for _, acct := range cfg.Store.Seed {
			balances.Seed(acct.UserID, seedBalances(acct))
		}
		deps.OptionStore = storemem.NewLedger(balances)
		deps.Balances = balances
		deps.Operator = balances
		deps.AuditStore = storemem.NewAuditLog()
		deps.StakeStore = storemem.NewStakes(balances)
		deps.Transfers = balances
		logger.WarnContext(ctx, "using in-memory store; state is lost on restart")
	}

	// --- Caches, locks and the signal bus ---
	switch cfg.Cache.Driver {
	case "redis":
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Cache.QuoteTTL.Duration)
		deps.BalanceCache = redis.NewBalanceCache(redisClient, cfg.Cache.BalanceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Sessions = redis.NewSessionStore(redisClient)
		deps.Health["redis"] = redisClient.Ping

	default:
		deps.PriceCache = memory.NewPriceCache()
		deps.BalanceCache = memory.NewBalanceCache()
		deps.RateLimiter = memory.NewRateLimiter()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewBus()
		deps.Sessions = memory.NewSessionStore()
	}

	// --- S3 archive (only for modes that archive) ---
	if cfg.UsesArchive() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.OptionStore, deps.AuditStore, logger)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// seedBalances parses a seed account. Validate has already rejected
// malformed amounts.
func seedBalances(acct config.SeedAccount) domain.Balances {
	out := make(domain.Balances, len(acct.Balances))
	for cur, amt := range acct.Balances {
		d, err := decimal.NewFromString(amt)
		if err != nil {
			continue
		}
		out[cur] = d
	}
	return out
}
