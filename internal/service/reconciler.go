package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/notify"
)

// Alerter delivers operational alerts. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, a notify.Alert) error
}

// Reconciler is the only writer of the balance cache. Every entry it writes
// is the owner's full balance set as just read from the BalanceStore, and
// writes for one owner are serialized so an older read never replaces a
// newer one.
type Reconciler struct {
	balances domain.BalanceStore
	cache    domain.BalanceCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	alerter  Alerter
	currency string
	logger   *slog.Logger

	owners sync.Map // owner id -> *sync.Mutex
}

// NewReconciler creates a Reconciler that credits payouts in currency.
func NewReconciler(
	balances domain.BalanceStore,
	cache domain.BalanceCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	alerter Alerter,
	currency string,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		balances: balances,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		alerter:  alerter,
		currency: currency,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Currency is the cash currency payouts are credited in.
func (r *Reconciler) Currency() string { return r.currency }

// Credit adds amount to the owner's cash balance as a store-side increment
// and refreshes the cached balances. On failure the payout is
// owed: the error is a *domain.ReconciliationError, and it is logged,
// audited and alerted before returning.
func (r *Reconciler) Credit(ctx context.Context, ownerID, contractID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, domain.Invalid("amount", domain.ErrInvalidAmount, "credit amount must not be negative")
	}

	confirmed, err := r.balances.Credit(ctx, ownerID, r.currency, amount)
	if err != nil {
		rerr := &domain.ReconciliationError{OwnerID: ownerID, ContractID: contractID, Amount: amount, Err: err}
		r.fail(ctx, rerr)
		return decimal.Zero, rerr
	}

	if _, err := r.Refresh(ctx, ownerID); err != nil {
		r.logger.WarnContext(ctx, "balance refresh after credit failed",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}
	r.logger.InfoContext(ctx, "payout credited",
		slog.String("owner_id", ownerID),
		slog.String("contract_id", contractID),
		slog.String("amount", amount.String()),
		slog.String("balance", confirmed.String()),
	)
	return confirmed, nil
}

// Refresh reads the owner's balances from the store, replaces the cached
// entry with them and announces them on the balances channel. When the store
// read fails the cached entry is dropped so readers fall back to the store.
func (r *Reconciler) Refresh(ctx context.Context, ownerID string) (domain.Balances, error) {
	mu := r.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()

	bal, err := r.balances.Get(ctx, ownerID)
	if err != nil {
		_ = r.cache.Invalidate(ctx, ownerID)
		return nil, err
	}
	if err := r.cache.SetBalances(ctx, ownerID, bal); err != nil {
		r.logger.WarnContext(ctx, "balance cache write failed",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		_ = r.cache.Invalidate(ctx, ownerID)
	}
	r.publish(ctx, ownerID, bal)
	return bal, nil
}

func (r *Reconciler) ownerLock(ownerID string) *sync.Mutex {
	mu, _ := r.owners.LoadOrStore(ownerID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

type balanceEvent struct {
	Event     string          `json:"event"`
	OwnerID   string          `json:"owner_id"`
	Balances  domain.Balances `json:"balances"`
	Timestamp string          `json:"timestamp"`
}

func (r *Reconciler) publish(ctx context.Context, ownerID string, bal domain.Balances) {
	evt, _ := json.Marshal(balanceEvent{
		Event:     "balance_updated",
		OwnerID:   ownerID,
		Balances:  bal,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := r.bus.Publish(ctx, domain.ChannelBalances, evt); err != nil {
		r.logger.WarnContext(ctx, "publish balance update failed",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Reconciler) fail(ctx context.Context, rerr *domain.ReconciliationError) {
	r.logger.ErrorContext(ctx, "payout credit failed",
		slog.String("owner_id", rerr.OwnerID),
		slog.String("contract_id", rerr.ContractID),
		slog.String("amount", rerr.Amount.String()),
		slog.String("error", rerr.Err.Error()),
	)
	_ = r.cache.Invalidate(ctx, rerr.OwnerID)

	if err := r.audit.Log(ctx, notify.EventReconciliationFailed, map[string]any{
		"owner_id":    rerr.OwnerID,
		"contract_id": rerr.ContractID,
		"amount":      rerr.Amount.String(),
		"currency":    r.currency,
		"error":       rerr.Err.Error(),
	}); err != nil {
		r.logger.ErrorContext(ctx, "audit reconciliation failure", slog.String("error", err.Error()))
	}

	if r.alerter == nil {
		return
	}
	if err := r.alerter.Notify(ctx, notify.Alert{
		Event: notify.EventReconciliationFailed,
		Title: "Payout credit failed",
		Fields: map[string]string{
			"owner":    rerr.OwnerID,
			"contract": rerr.ContractID,
			"amount":   rerr.Amount.String() + " " + r.currency,
			"error":    rerr.Err.Error(),
		},
	}); err != nil {
		r.logger.WarnContext(ctx, "reconciliation alert failed", slog.String("error", err.Error()))
	}
}
