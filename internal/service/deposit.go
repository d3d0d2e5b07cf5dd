package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/notify"
)

// DepositConfig maps each depositable currency to its minimum amount.
type DepositConfig struct {
	Minimums map[string]decimal.Decimal
}

// DepositService records deposit invoices for operators to fulfil and serves
// the combined deposit and withdrawal history.
type DepositService struct {
	store   domain.TransferStore
	alerter Alerter
	cfg     DepositConfig
	logger  *slog.Logger
}

// NewDepositService creates a DepositService.
func NewDepositService(store domain.TransferStore, alerter Alerter, cfg DepositConfig, logger *slog.Logger) *DepositService {
	mins := make(map[string]decimal.Decimal, len(cfg.Minimums))
	for cur, m := range cfg.Minimums {
		mins[strings.ToUpper(cur)] = m
	}
	cfg.Minimums = mins
	return &DepositService{
		store:   store,
		alerter: alerter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "deposits")),
	}
}

// Currencies lists the depositable currencies in name order.
func (d *DepositService) Currencies() []string {
	out := make([]string, 0, len(d.cfg.Minimums))
	for cur := range d.cfg.Minimums {
		out = append(out, cur)
	}
	sort.Strings(out)
	return out
}

// CreateInvoice records a pending deposit of amount in currency and alerts
// operators.
func (d *DepositService) CreateInvoice(ctx context.Context, ownerID string, amount decimal.Decimal, currency string) (domain.Invoice, error) {
	if ownerID == "" {
		return domain.Invoice{}, domain.ErrUnauthorized
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	minimum, ok := d.cfg.Minimums[currency]
	if !ok {
		return domain.Invoice{}, domain.Invalid("currency", domain.ErrInvalidAmount, "unsupported currency "+currency)
	}
	if !amount.IsPositive() || amount.LessThan(minimum) {
		return domain.Invoice{}, domain.Invalid("amount", domain.ErrInvalidAmount,
			fmt.Sprintf("minimum deposit is %s %s", minimum, currency))
	}

	inv, err := d.store.CreateInvoice(ctx, domain.Invoice{OwnerID: ownerID, Amount: amount, Currency: currency})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invoice{}, err
		}
		return domain.Invoice{}, fmt.Errorf("deposits: create invoice: %w", err)
	}

	d.logger.InfoContext(ctx, "deposit invoice created",
		slog.String("invoice_id", inv.ID),
		slog.String("owner_id", ownerID),
		slog.String("amount", amount.String()),
		slog.String("currency", currency),
	)
	if d.alerter != nil {
		if err := d.alerter.Notify(ctx, notify.Alert{
			Event: notify.EventDepositRequested,
			Title: "Deposit requested",
			Fields: map[string]string{
				"owner":  ownerID,
				"id":     inv.ID,
				"amount": amount.String() + " " + currency,
			},
		}); err != nil {
			d.logger.WarnContext(ctx, "deposit alert failed", slog.String("error", err.Error()))
		}
	}
	return inv, nil
}

// History returns the owner's deposits and withdrawals newest first, with
// card numbers masked. limit <= 0 means domain.DefaultHistoryLimit.
func (d *DepositService) History(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	txs, err := d.store.ListTransactions(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("deposits: history: %w", err)
	}
	for i := range txs {
		if txs[i].Destination != "" {
			txs[i].Destination = maskCard(txs[i].Destination)
		}
	}
	return txs, nil
}
