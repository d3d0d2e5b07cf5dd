package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OptionStore is the persistent ledger of binary option contracts.
type OptionStore interface {
	// Create debits the stake from the owner's cash balance and inserts the
	// contract in one transaction. ID and CreatedAt are assigned by the store.
	Create(ctx context.Context, c OptionContract, currency string) (OptionContract, error)
	GetByID(ctx context.Context, id string) (OptionContract, error)
	ListActive(ctx context.Context, ownerID string) ([]OptionContract, error)
	ListHistory(ctx context.Context, ownerID string, limit int) ([]OptionContract, error)
	ListActiveOwners(ctx context.Context) ([]string, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]OptionContract, error)
	RecordTick(ctx context.Context, contractID string, price decimal.Decimal, at time.Time) error
	// Settle returns *ConflictError when the contract is no longer active.
	Settle(ctx context.Context, s Settlement) error
}

// BalanceStore owns user balances. Mutations are relative deltas applied by
// the store; the confirmed value is returned.
type BalanceStore interface {
	Get(ctx context.Context, ownerID string) (Balances, error)
	Credit(ctx context.Context, ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error)
}

// AtomicOperator executes multi-row wallet operations whose consistency is
// owned by the store.
type AtomicOperator interface {
	Invoke(ctx context.Context, kind OperationKind, params OperationParams) (OperationResult, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
