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

// Withdrawal is a withdrawal request recorded by Balances.
type Withdrawal struct {
	ID          string
	OwnerID     string
	Amount      decimal.Decimal
	Currency    string
	Destination string
	Recipient   string
	CreatedAt   time.Time
}

// Balances is an in-memory domain.BalanceStore, domain.AtomicOperator and
// domain.TransferStore. Every mutation happens under one mutex, so each
// operation is atomic.
type Balances struct {
	mu          sync.Mutex
	accounts    map[string]domain.Balances
	withdrawals []Withdrawal
	invoices    []domain.Invoice
	now         func() time.Time
}

func NewBalances() *Balances {
	return &Balances{accounts: make(map[string]domain.Balances), now: time.Now}
}

// Seed creates or overwrites an owner's balances.
func (b *Balances) Seed(ownerID string, balances domain.Balances) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := make(domain.Balances, len(balances))
	for k, v := range balances {
		acct[k] = v
	}
	b.accounts[ownerID] = acct
}

// Withdrawals returns the recorded withdrawal requests.
func (b *Balances) Withdrawals() []Withdrawal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Withdrawal(nil), b.withdrawals...)
}

func (b *Balances) Get(_ context.Context, ownerID string) (domain.Balances, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make(domain.Balances, len(acct))
	for k, v := range acct {
		out[k] = v
	}
	return out, nil
}

func (b *Balances) Credit(_ context.Context, ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.creditLocked(ownerID, currency, amount)
}

func (b *Balances) Invoke(_ context.Context, kind domain.OperationKind, p domain.OperationParams) (domain.OperationResult, error) {
	if err := p.Validate(kind); err != nil {
		return domain.OperationResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	res := domain.OperationResult{Kind: kind, At: b.now().UTC()}
	switch kind {
	case domain.OperationExchange:
		from, err := b.debitLocked(p.OwnerID, p.FromCurrency, p.Amount)
		if err != nil {
			return domain.OperationResult{}, err
		}
		to, err := b.creditLocked(p.OwnerID, p.ToCurrency, p.ExchangeCredit())
		if err != nil {
			// undo the debit; the caller sees no partial effect
			b.accounts[p.OwnerID][p.FromCurrency] = from.Add(p.Amount)
			return domain.OperationResult{}, err
		}
		res.Balances = domain.Balances{p.FromCurrency: from, p.ToCurrency: to}
	case domain.OperationWithdraw:
		left, err := b.debitLocked(p.OwnerID, p.Currency, p.Amount)
		if err != nil {
			return domain.OperationResult{}, err
		}
		w := Withdrawal{
			ID:          uuid.NewString(),
			OwnerID:     p.OwnerID,
			Amount:      p.Amount,
			Currency:    p.Currency,
			Destination: p.Destination,
			Recipient:   p.Recipient,
			CreatedAt:   res.At,
		}
		b.withdrawals = append(b.withdrawals, w)
		res.Balances = domain.Balances{p.Currency: left}
		res.WithdrawID = w.ID
	}
	return res, nil
}

// CreateInvoice records a pending deposit request for a known owner.
func (b *Balances) CreateInvoice(_ context.Context, inv domain.Invoice) (domain.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[inv.OwnerID]; !ok {
		return domain.Invoice{}, domain.ErrNotFound
	}
	inv.ID = uuid.NewString()
	inv.Status = domain.TransferPending
	inv.CreatedAt = b.now().UTC()
	b.invoices = append(b.invoices, inv)
	return inv, nil
}

// ListTransactions merges the owner's invoices and withdrawals, newest
// first. limit <= 0 returns everything.
func (b *Balances) ListTransactions(_ context.Context, ownerID string, limit int) ([]domain.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Transaction, 0)
	for _, inv := range b.invoices {
		if inv.OwnerID != ownerID {
			continue
		}
		out = append(out, domain.Transaction{
			ID: inv.ID, Type: domain.TransactionDeposit, Amount: inv.Amount,
			Currency: inv.Currency, Status: inv.Status, CreatedAt: inv.CreatedAt,
		})
	}
	for _, w := range b.withdrawals {
		if w.OwnerID != ownerID {
			continue
		}
		out = append(out, domain.Transaction{
			ID: w.ID, Type: domain.TransactionWithdraw, Amount: w.Amount,
			Currency: w.Currency, Status: domain.TransferPending,
			Destination: w.Destination, CreatedAt: w.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetClock overrides the clock used for withdrawal and invoice times.
func (b *Balances) SetClock(now func() time.Time) { b.now = now }

// debit and credit are used by Ledger and Stakes.
func (b *Balances) debit(ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debitLocked(ownerID, currency, amount)
}

func (b *Balances) credit(ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.creditLocked(ownerID, currency, amount)
}

func (b *Balances) debitLocked(ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, ok := b.accounts[ownerID]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	cur := acct[currency]
	if cur.LessThan(amount) {
		return decimal.Zero, domain.Invalid("amount", domain.ErrInsufficientBalance, "insufficient "+currency+" balance")
	}
	acct[currency] = cur.Sub(amount)
	return acct[currency], nil
}

func (b *Balances) creditLocked(ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, ok := b.accounts[ownerID]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	acct[currency] = acct[currency].Add(amount)
	return acct[currency], nil
}

var (
	_ domain.BalanceStore   = (*Balances)(nil)
	_ domain.AtomicOperator = (*Balances)(nil)
	_ domain.TransferStore  = (*Balances)(nil)
)
