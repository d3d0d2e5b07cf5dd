// Package memory provides in-process implementations of the domain stores.
// They back the "memory" store driver and are the fakes used in service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// Ledger is an in-memory domain.OptionStore. Stakes are debited from the
// attached Balances in the same critical section as the insert.
type Ledger struct {
	mu        sync.Mutex
	contracts map[string]domain.OptionContract
	balances  *Balances
	now       func() time.Time
}

// NewLedger creates a Ledger that debits stakes from balances.
func NewLedger(balances *Balances) *Ledger {
	return &Ledger{
		contracts: make(map[string]domain.OptionContract),
		balances:  balances,
		now:       time.Now,
	}
}

// SetClock overrides the ledger clock used for CreatedAt.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

func (l *Ledger) Create(_ context.Context, c domain.OptionContract, currency string) (domain.OptionContract, error) {
	if !c.Stake.IsPositive() {
		return domain.OptionContract{}, domain.Invalid("stake", domain.ErrInvalidAmount, "stake must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.balances.debit(c.OwnerID, currency, c.Stake); err != nil {
		return domain.OptionContract{}, err
	}

	c.ID = uuid.NewString()
	c.CreatedAt = l.now().UTC()
	c.Status = domain.OptionActive
	c.ExitPrice, c.Payout, c.CurrentPrice = nil, nil, nil
	c.LastCheckedAt, c.ClosedAt = nil, nil
	c.PriceHistory = []domain.PricePoint{}
	l.contracts[c.ID] = c
	return clone(c), nil
}

// Insert stores c as-is. It is used to seed fixtures.
func (l *Ledger) Insert(c domain.OptionContract) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contracts[c.ID] = clone(c)
}

func (l *Ledger) GetByID(_ context.Context, id string) (domain.OptionContract, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[id]
	if !ok {
		return domain.OptionContract{}, domain.ErrNotFound
	}
	return clone(c), nil
}

func (l *Ledger) ListActive(_ context.Context, ownerID string) ([]domain.OptionContract, error) {
	return l.list(func(c domain.OptionContract) bool {
		return c.OwnerID == ownerID && c.Status == domain.OptionActive
	}, 0), nil
}

func (l *Ledger) ListHistory(_ context.Context, ownerID string, limit int) ([]domain.OptionContract, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	return l.list(func(c domain.OptionContract) bool {
		return c.OwnerID == ownerID && c.Status.Terminal()
	}, limit), nil
}

func (l *Ledger) ListActiveOwners(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{})
	var owners []string
	for _, c := range l.contracts {
		if c.Status != domain.OptionActive {
			continue
		}
		if _, ok := seen[c.OwnerID]; ok {
			continue
		}
		seen[c.OwnerID] = struct{}{}
		owners = append(owners, c.OwnerID)
	}
	sort.Strings(owners)
	return owners, nil
}

func (l *Ledger) ListSettledBefore(_ context.Context, before time.Time) ([]domain.OptionContract, error) {
	out := l.list(func(c domain.OptionContract) bool {
		return c.Status.Terminal() && c.ClosedAt != nil && c.ClosedAt.Before(before)
	}, 0)
	// oldest first for archiving
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecordTick is a no-op for contracts that already left the active state.
func (l *Ledger) RecordTick(_ context.Context, id string, price decimal.Decimal, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status != domain.OptionActive {
		return nil
	}
	c.PriceHistory = domain.AppendPricePoint(c.PriceHistory, domain.PricePoint{Price: price, Timestamp: at})
	p := price
	t := at
	c.CurrentPrice = &p
	c.LastCheckedAt = &t
	l.contracts[id] = c
	return nil
}

func (l *Ledger) Settle(_ context.Context, s domain.Settlement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[s.ContractID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status != domain.OptionActive {
		return &domain.ConflictError{ContractID: c.ID, Status: c.Status}
	}
	closed := s.ClosedAt
	c.Status = s.Status
	c.ExitPrice = copyDecimal(s.ExitPrice)
	c.Payout = copyDecimal(s.Payout)
	c.ClosedAt = &closed
	if s.ExitPrice != nil {
		c.CurrentPrice = copyDecimal(s.ExitPrice)
		c.LastCheckedAt = &closed
	}
	l.contracts[c.ID] = c
	return nil
}

// list returns matching contracts newest first.
func (l *Ledger) list(match func(domain.OptionContract) bool, limit int) []domain.OptionContract {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.OptionContract, 0)
	for _, c := range l.contracts {
		if match(c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clone(c domain.OptionContract) domain.OptionContract {
	history := make([]domain.PricePoint, len(c.PriceHistory))
	copy(history, c.PriceHistory)
	c.PriceHistory = history
	c.ExitPrice = copyDecimal(c.ExitPrice)
	c.Payout = copyDecimal(c.Payout)
	c.CurrentPrice = copyDecimal(c.CurrentPrice)
	if c.LastCheckedAt != nil {
		t := *c.LastCheckedAt
		c.LastCheckedAt = &t
	}
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		c.ClosedAt = &t
	}
	return c
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

var _ domain.OptionStore = (*Ledger)(nil)
