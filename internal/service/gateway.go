package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// CreateOptionRequest is a request to open a binary option. The contract is
// always struck at the current cached quote. A non-zero EntryPrice is the
// price the client saw, and Create rejects it when it is too far from the
// market.
type CreateOptionRequest struct {
	OwnerID         string
	Instrument      string
	Direction       domain.Direction
	Stake           decimal.Decimal
	EntryPrice      decimal.Decimal
	DurationSeconds int
}

// GatewayConfig configures the OptionGateway.
type GatewayConfig struct {
	Currency      string
	SubmitLockTTL time.Duration
	MaxQuoteAge   time.Duration
	// Tickers is the watched set. Contracts on anything else are refused
	// because they could never be priced.
	Tickers []string
	// PriceTolerance is the largest relative gap allowed between a
	// client-sent entry price and the cached quote, e.g. 0.005.
	PriceTolerance decimal.Decimal
}

var defaultPriceTolerance = decimal.RequireFromString("0.005")

// OptionGateway validates and records contract creation, and serves the
// active and history listings.
type OptionGateway struct {
	store      domain.OptionStore
	balances   domain.BalanceStore
	prices     domain.PriceCache
	locks      domain.LockManager
	reconciler *Reconciler
	cfg        GatewayConfig
	tickers    map[string]struct{}
	now        func() time.Time
	logger     *slog.Logger
}

// NewOptionGateway creates an OptionGateway.
func NewOptionGateway(
	store domain.OptionStore,
	balances domain.BalanceStore,
	prices domain.PriceCache,
	locks domain.LockManager,
	reconciler *Reconciler,
	cfg GatewayConfig,
	logger *slog.Logger,
) *OptionGateway {
	if cfg.SubmitLockTTL <= 0 {
		cfg.SubmitLockTTL = 10 * time.Second
	}
	if !cfg.PriceTolerance.IsPositive() {
		cfg.PriceTolerance = defaultPriceTolerance
	}
	tickers := make(map[string]struct{}, len(cfg.Tickers))
	for _, t := range cfg.Tickers {
		tickers[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	return &OptionGateway{
		store:      store,
		balances:   balances,
		prices:     prices,
		locks:      locks,
		reconciler: reconciler,
		cfg:        cfg,
		tickers:    tickers,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "option_gateway")),
	}
}

// SetClock replaces the gateway clock used for countdowns and quote age.
func (g *OptionGateway) SetClock(now func() time.Time) { g.now = now }

// Create validates req, takes the owner's submit lock and records the
// contract. The stake is debited by the store in the same transaction.
func (g *OptionGateway) Create(ctx context.Context, req CreateOptionRequest) (domain.OptionContract, error) {
	req.Instrument = strings.ToUpper(strings.TrimSpace(req.Instrument))
	if err := validateCreate(req); err != nil {
		return domain.OptionContract{}, err
	}
	if _, ok := g.tickers[req.Instrument]; !ok {
		return domain.OptionContract{}, domain.Invalid("ticker", domain.ErrInvalidInstrument, "unsupported ticker "+req.Instrument)
	}

	unlock, err := acquireSubmitLock(ctx, g.locks, req.OwnerID, g.cfg.SubmitLockTTL)
	if err != nil {
		return domain.OptionContract{}, err
	}
	defer unlock()

	entry, err := g.currentPrice(ctx, req.Instrument)
	if err != nil {
		return domain.OptionContract{}, err
	}
	if req.EntryPrice.IsPositive() && !withinTolerance(req.EntryPrice, entry, g.cfg.PriceTolerance) {
		return domain.OptionContract{}, domain.Invalid("entry_price", domain.ErrInvalidPrice,
			fmt.Sprintf("entry price %s is too far from market price %s", req.EntryPrice, entry))
	}

	bal, err := g.balances.Get(ctx, req.OwnerID)
	if err != nil {
		return domain.OptionContract{}, fmt.Errorf("option_gateway: balance %s: %w", req.OwnerID, err)
	}
	if bal[g.cfg.Currency].LessThan(req.Stake) {
		return domain.OptionContract{}, domain.Invalid("amount", domain.ErrInsufficientBalance,
			fmt.Sprintf("stake %s exceeds available %s %s", req.Stake, bal[g.cfg.Currency], g.cfg.Currency))
	}

	c, err := g.store.Create(ctx, domain.OptionContract{
		OwnerID:         req.OwnerID,
		Instrument:      req.Instrument,
		Direction:       req.Direction,
		Stake:           req.Stake,
		EntryPrice:      entry,
		DurationSeconds: req.DurationSeconds,
	}, g.cfg.Currency)
	if err != nil {
		if domain.IsValidation(err) {
			return domain.OptionContract{}, err
		}
		return domain.OptionContract{}, fmt.Errorf("option_gateway: create: %w", err)
	}

	if _, err := g.reconciler.Refresh(ctx, req.OwnerID); err != nil {
		g.logger.WarnContext(ctx, "balance refresh after create failed",
			slog.String("owner_id", req.OwnerID),
			slog.String("error", err.Error()),
		)
	}

	g.logger.InfoContext(ctx, "option created",
		slog.String("contract_id", c.ID),
		slog.String("owner_id", c.OwnerID),
		slog.String("instrument", c.Instrument),
		slog.String("direction", string(c.Direction)),
		slog.String("stake", c.Stake.String()),
		slog.String("entry_price", c.EntryPrice.String()),
		slog.Int("duration_seconds", c.DurationSeconds),
	)
	return c, nil
}

func validateCreate(req CreateOptionRequest) error {
	switch {
	case req.OwnerID == "":
		return domain.ErrUnauthorized
	case req.Instrument == "":
		return domain.Invalid("ticker", domain.ErrInvalidInstrument, "instrument is required")
	case !req.Direction.Valid():
		return domain.Invalid("direction", domain.ErrInvalidDirection, "direction must be up or down")
	case !domain.ValidDuration(req.DurationSeconds):
		return domain.Invalid("duration", domain.ErrInvalidDuration, fmt.Sprintf("unsupported duration %ds", req.DurationSeconds))
	case !req.Stake.IsPositive() || req.Stake.LessThan(decimal.NewFromInt(domain.MinStake)):
		return domain.Invalid("amount", domain.ErrStakeTooSmall, fmt.Sprintf("minimum stake is %d", domain.MinStake))
	case req.EntryPrice.IsNegative():
		return domain.Invalid("entry_price", domain.ErrInvalidPrice, "entry price must be positive")
	}
	return nil
}

// withinTolerance reports whether |sent-market|/market <= tol.
func withinTolerance(sent, market, tol decimal.Decimal) bool {
	return sent.Sub(market).Abs().LessThanOrEqual(market.Mul(tol))
}

func (g *OptionGateway) currentPrice(ctx context.Context, instrument string) (decimal.Decimal, error) {
	q, err := g.prices.GetQuote(ctx, instrument)
	if errors.Is(err, domain.ErrNotFound) {
		return decimal.Zero, domain.Invalid("ticker", domain.ErrInvalidPrice, "no price available for "+instrument)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("option_gateway: quote %s: %w", instrument, err)
	}
	if g.cfg.MaxQuoteAge > 0 && g.now().Sub(q.Timestamp) > g.cfg.MaxQuoteAge {
		return decimal.Zero, domain.Invalid("ticker", domain.ErrInvalidPrice, "price for "+instrument+" is stale")
	}
	if !q.Price.IsPositive() {
		return decimal.Zero, domain.Invalid("ticker", domain.ErrInvalidPrice, "no price available for "+instrument)
	}
	return q.Price, nil
}

// ActiveContract is an active contract with its remaining time.
type ActiveContract struct {
	domain.OptionContract
	ExpiresAt       time.Time        `json:"expires_at"`
	PotentialPayout decimal.Decimal  `json:"potential_payout"`
	Countdown       domain.Countdown `json:"countdown"`
}

// ListActive returns the owner's active contracts, newest first.
func (g *OptionGateway) ListActive(ctx context.Context, ownerID string) ([]ActiveContract, error) {
	cs, err := g.store.ListActive(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("option_gateway: list active: %w", err)
	}
	now := g.now()
	out := make([]ActiveContract, 0, len(cs))
	for _, c := range cs {
		out = append(out, ActiveContract{
			OptionContract:  c,
			ExpiresAt:       c.ExpiresAt(),
			PotentialPayout: c.PotentialPayout(),
			Countdown:       domain.Remaining(c.CreatedAt, c.DurationSeconds, now),
		})
	}
	return out, nil
}

// ListHistory returns settled contracts newest first. limit <= 0 means
// domain.DefaultHistoryLimit.
func (g *OptionGateway) ListHistory(ctx context.Context, ownerID string, limit int) ([]domain.OptionContract, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	cs, err := g.store.ListHistory(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("option_gateway: list history: %w", err)
	}
	return cs, nil
}

// Get returns one of the owner's contracts. Another owner's contract is
// reported as not found.
func (g *OptionGateway) Get(ctx context.Context, ownerID, id string) (domain.OptionContract, error) {
	c, err := g.store.GetByID(ctx, id)
	if err != nil {
		return domain.OptionContract{}, err
	}
	if c.OwnerID != ownerID {
		return domain.OptionContract{}, domain.ErrNotFound
	}
	return c, nil
}

// acquireSubmitLock guards create, exchange and withdraw against double
// submission by the same owner.
func acquireSubmitLock(ctx context.Context, locks domain.LockManager, ownerID string, ttl time.Duration) (func(), error) {
	unlock, err := locks.Acquire(ctx, "submit:"+ownerID, ttl)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil, domain.Invalid("", domain.ErrSubmitInFlight, "a previous request is still being processed")
	}
	if err != nil {
		return nil, fmt.Errorf("submit lock %s: %w", ownerID, err)
	}
	return unlock, nil
}
