package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/feed"
	"github.com/alanyoungcy/optiondesk/internal/pipeline"
	"github.com/alanyoungcy/optiondesk/internal/server"
	"github.com/alanyoungcy/optiondesk/internal/server/handler"
	"github.com/alanyoungcy/optiondesk/internal/server/ws"
	"github.com/alanyoungcy/optiondesk/internal/service"
	"github.com/alanyoungcy/optiondesk/internal/session"
)

const shutdownTimeout = 10 * time.Second

// services are the domain services shared by every long-running mode.
type services struct {
	prices     *service.PriceService
	poller     *feed.Poller
	reconciler *service.Reconciler
	engine     *service.SettlementEngine
	gateway    *service.OptionGateway
	wallet     *service.WalletService
	staking    *service.StakingService
	deposits   *service.DepositService
}

func (a *App) buildServices(deps *Dependencies) *services {
	cfg := a.cfg
	binance := feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.QuoteAsset, cfg.Feed.Timeout.Duration)
	prices := service.NewPriceService(deps.PriceCache, deps.SignalBus, binance, a.logger)

	poller := feed.NewPoller(binance, prices.HandleQuotes, cfg.Feed.PollInterval.Duration, cfg.Feed.QuoteAsset, a.logger)
	poller.Watch(cfg.Feed.Tickers)

	reconciler := service.NewReconciler(deps.Balances, deps.BalanceCache, deps.SignalBus,
		deps.AuditStore, deps.Notifier, cfg.Options.Currency, a.logger)

	engine := service.NewSettlementEngine(deps.OptionStore, deps.PriceCache, reconciler, deps.SignalBus, deps.AuditStore,
		service.SettlementConfig{
			Interval:    cfg.Settlement.Interval.Duration,
			Concurrency: cfg.Settlement.Concurrency,
			MaxQuoteAge: cfg.Options.MaxQuoteAge.Duration,
		}, a.logger)

	gateway := service.NewOptionGateway(deps.OptionStore, deps.Balances, deps.PriceCache, deps.LockManager, reconciler,
		service.GatewayConfig{
			Currency:       cfg.Options.Currency,
			SubmitLockTTL:  cfg.Options.SubmitLockTTL.Duration,
			MaxQuoteAge:    cfg.Options.MaxQuoteAge.Duration,
			Tickers:        poller.Tickers(),
			PriceTolerance: cfg.Options.EntryPriceToleranceDecimal(),
		}, a.logger)

	wallet := service.NewWalletService(deps.Operator, binance, deps.LockManager, reconciler, deps.Notifier,
		service.WalletConfig{
			CashCurrency:   cfg.Options.Currency,
			CryptoCurrency: cfg.Wallet.CryptoCurrency,
			RateSymbol:     cfg.Wallet.RateSymbol,
			Spread:         cfg.Wallet.SpreadDecimal(),
			MinWithdraw:    cfg.Wallet.MinWithdrawDecimal(),
			SubmitLockTTL:  cfg.Options.SubmitLockTTL.Duration,
		}, a.logger)

	plans := make([]domain.StakePlan, 0, len(cfg.Staking.Plans))
	for _, p := range cfg.Staking.Plans {
		rate, _ := decimal.NewFromString(p.RatePercent)
		plans = append(plans, domain.StakePlan{Days: p.Days, RatePercent: rate})
	}
	staking := service.NewStakingService(deps.StakeStore, deps.LockManager, reconciler, deps.AuditStore,
		service.StakingConfig{
			Currency:      cfg.Staking.Currency,
			MinAmount:     cfg.Staking.MinAmountDecimal(),
			Plans:         plans,
			SubmitLockTTL: cfg.Options.SubmitLockTTL.Duration,
		}, a.logger)

	minimums := make(map[string]decimal.Decimal, len(cfg.Deposit.Minimums))
	for cur, amt := range cfg.Deposit.Minimums {
		minimums[cur], _ = decimal.NewFromString(amt)
	}
	deposits := service.NewDepositService(deps.Transfers, deps.Notifier,
		service.DepositConfig{Minimums: minimums}, a.logger)

	return &services{
		prices:     prices,
		poller:     poller,
		reconciler: reconciler,
		engine:     engine,
		gateway:    gateway,
		wallet:     wallet,
		staking:    staking,
		deposits:   deposits,
	}
}

// ServeMode runs the quote poller, the settlement engine, the websocket hub
// and the HTTP API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	a.startSettlement(ctx, g, svc)
	a.startServer(ctx, g, deps, svc)
	return g.Wait()
}

// SettleMode runs only the quote poller and the settlement engine, for a
// deployment where the API is served elsewhere.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startSettlement(ctx, g, a.buildServices(deps))
	return g.Wait()
}

// ArchiveMode runs one archive pass and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return a.newArchiver(deps).Run(ctx)
}

// FullMode is ServeMode plus the archive cron.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	a.startSettlement(ctx, g, svc)
	a.startServer(ctx, g, deps, svc)

	if deps.Archiver != nil {
		archiver := a.newArchiver(deps)
		g.Go(func() error {
			return archiver.RunCron(ctx, a.cfg.Archive.Cron)
		})
	}
	return g.Wait()
}

func (a *App) newArchiver(deps *Dependencies) *pipeline.Archiver {
	return pipeline.NewArchiver(deps.Archiver, deps.Notifier, a.cfg.Archive.RetentionDays, a.logger)
}

func (a *App) startSettlement(ctx context.Context, g *errgroup.Group, svc *services) {
	g.Go(func() error {
		return svc.poller.Run(ctx)
	})
	g.Go(func() error {
		return svc.engine.Run(ctx)
	})
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	cfg := a.cfg
	sessions := session.NewManager(deps.Sessions, svc.reconciler, cfg.Session.TTL.Duration, a.logger)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: cfg.Mode, StartedAt: time.Now().UTC()})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Health, a.logger),
		Market:  handler.NewMarketHandler(svc.prices, cfg.Feed.Tickers, a.logger),
		Session: handler.NewSessionHandler(sessions, deps.BalanceCache, svc.reconciler, a.logger),
		Options: handler.NewOptionHandler(svc.gateway, a.logger),
		Wallet:  handler.NewWalletHandler(svc.wallet, a.logger),
		Staking: handler.NewStakingHandler(svc.staking, a.logger),
		Deposit: handler.NewDepositHandler(svc.deposits, a.logger),
	}, hub, sessions, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}
