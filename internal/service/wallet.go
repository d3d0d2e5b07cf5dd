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
	"github.com/alanyoungcy/optiondesk/internal/notify"
)

// RateSource returns the last price of a market symbol. *feed.Client
// satisfies it.
type RateSource interface {
	SymbolPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// WalletConfig configures exchange and withdraw.
type WalletConfig struct {
	CashCurrency   string // e.g. "RUB"
	CryptoCurrency string // e.g. "USDT"
	// RateSymbol prices one unit of CryptoCurrency in CashCurrency, e.g. "USDTRUB".
	RateSymbol    string
	Spread        decimal.Decimal
	MinWithdraw   decimal.Decimal
	SubmitLockTTL time.Duration
}

// ExchangeRate is the effective rate between the two wallet currencies.
type ExchangeRate struct {
	Symbol    string          `json:"symbol"`
	Market    decimal.Decimal `json:"market"`
	CashPer   decimal.Decimal `json:"cash_per_crypto"`
	Timestamp time.Time       `json:"timestamp"`
}

// WalletService runs exchange and withdraw through the store's atomic
// operator and mirrors the confirmed balances.
type WalletService struct {
	ops        domain.AtomicOperator
	rates      RateSource
	locks      domain.LockManager
	reconciler *Reconciler
	alerter    Alerter
	cfg        WalletConfig
	logger     *slog.Logger
}

// NewWalletService creates a WalletService.
func NewWalletService(
	ops domain.AtomicOperator,
	rates RateSource,
	locks domain.LockManager,
	reconciler *Reconciler,
	alerter Alerter,
	cfg WalletConfig,
	logger *slog.Logger,
) *WalletService {
	if cfg.SubmitLockTTL <= 0 {
		cfg.SubmitLockTTL = 10 * time.Second
	}
	return &WalletService{
		ops:        ops,
		rates:      rates,
		locks:      locks,
		reconciler: reconciler,
		alerter:    alerter,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "wallet")),
	}
}

// Rate returns the current cash-per-crypto rate after the spread.
func (w *WalletService) Rate(ctx context.Context) (ExchangeRate, error) {
	market, err := w.rates.SymbolPrice(ctx, w.cfg.RateSymbol)
	if err != nil {
		return ExchangeRate{}, fmt.Errorf("wallet: rate %s: %w", w.cfg.RateSymbol, err)
	}
	eff := market.Sub(w.cfg.Spread)
	if !eff.IsPositive() {
		return ExchangeRate{}, fmt.Errorf("wallet: rate %s: %w: %s after spread", w.cfg.RateSymbol, domain.ErrInvalidPrice, eff)
	}
	return ExchangeRate{
		Symbol:    w.cfg.RateSymbol,
		Market:    market,
		CashPer:   eff,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Exchange converts amount of from into the other wallet currency at the
// current rate.
func (w *WalletService) Exchange(ctx context.Context, ownerID, from string, amount decimal.Decimal) (domain.OperationResult, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	var to string
	switch from {
	case w.cfg.CashCurrency:
		to = w.cfg.CryptoCurrency
	case w.cfg.CryptoCurrency:
		to = w.cfg.CashCurrency
	default:
		return domain.OperationResult{}, domain.Invalid("from_currency", domain.ErrInvalidAmount, "unsupported currency "+from)
	}
	if !amount.IsPositive() {
		return domain.OperationResult{}, domain.Invalid("amount", domain.ErrInvalidAmount, "amount must be positive")
	}

	unlock, err := acquireSubmitLock(ctx, w.locks, ownerID, w.cfg.SubmitLockTTL)
	if err != nil {
		return domain.OperationResult{}, err
	}
	defer unlock()

	rate, err := w.Rate(ctx)
	if err != nil {
		return domain.OperationResult{}, err
	}
	factor := rate.CashPer
	if from == w.cfg.CashCurrency {
		factor = decimal.NewFromInt(1).DivRound(rate.CashPer, 16)
	}

	res, err := w.invoke(ctx, domain.OperationExchange, domain.OperationParams{
		OwnerID:      ownerID,
		Amount:       amount,
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         factor,
	})
	if err != nil {
		return domain.OperationResult{}, err
	}
	w.logger.InfoContext(ctx, "exchange completed",
		slog.String("owner_id", ownerID),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("amount", amount.String()),
		slog.String("rate", factor.String()),
	)
	return res, nil
}

// Withdraw records a cash withdrawal request to a card and debits the cash
// balance in one store transaction.
func (w *WalletService) Withdraw(ctx context.Context, ownerID string, amount decimal.Decimal, card, name string) (domain.OperationResult, error) {
	card = strings.ReplaceAll(strings.TrimSpace(card), " ", "")
	name = strings.TrimSpace(name)
	if !amount.IsPositive() {
		return domain.OperationResult{}, domain.Invalid("amount", domain.ErrInvalidAmount, "amount must be positive")
	}
	if amount.LessThan(w.cfg.MinWithdraw) {
		return domain.OperationResult{}, domain.Invalid("amount", domain.ErrInvalidAmount,
			fmt.Sprintf("minimum withdrawal is %s %s", w.cfg.MinWithdraw, w.cfg.CashCurrency))
	}
	if card == "" || name == "" {
		return domain.OperationResult{}, domain.Invalid("card", domain.ErrInvalidAmount, "card number and name are required")
	}

	unlock, err := acquireSubmitLock(ctx, w.locks, ownerID, w.cfg.SubmitLockTTL)
	if err != nil {
		return domain.OperationResult{}, err
	}
	defer unlock()

	res, err := w.invoke(ctx, domain.OperationWithdraw, domain.OperationParams{
		OwnerID:     ownerID,
		Amount:      amount,
		Currency:    w.cfg.CashCurrency,
		Destination: card,
		Recipient:   name,
	})
	if err != nil {
		return domain.OperationResult{}, err
	}

	w.logger.InfoContext(ctx, "withdraw requested",
		slog.String("owner_id", ownerID),
		slog.String("withdraw_id", res.WithdrawID),
		slog.String("amount", amount.String()),
	)
	if w.alerter != nil {
		if err := w.alerter.Notify(ctx, notify.Alert{
			Event: notify.EventWithdrawRequested,
			Title: "Withdrawal requested",
			Fields: map[string]string{
				"owner":  ownerID,
				"id":     res.WithdrawID,
				"amount": amount.String() + " " + w.cfg.CashCurrency,
				"card":   maskCard(card),
			},
		}); err != nil {
			w.logger.WarnContext(ctx, "withdraw alert failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

func (w *WalletService) invoke(ctx context.Context, kind domain.OperationKind, p domain.OperationParams) (domain.OperationResult, error) {
	res, err := w.ops.Invoke(ctx, kind, p)
	if err != nil {
		if domain.IsValidation(err) || errors.Is(err, domain.ErrNotFound) {
			return domain.OperationResult{}, err
		}
		return domain.OperationResult{}, fmt.Errorf("wallet: %s: %w", kind, err)
	}
	if _, err := w.reconciler.Refresh(ctx, p.OwnerID); err != nil {
		w.logger.WarnContext(ctx, "balance refresh failed",
			slog.String("owner_id", p.OwnerID),
			slog.String("error", err.Error()),
		)
	}
	return res, nil
}

// maskCard keeps the last four digits.
func maskCard(card string) string {
	if len(card) <= 4 {
		return card
	}
	return strings.Repeat("*", len(card)-4) + card[len(card)-4:]
}
