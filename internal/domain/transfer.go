package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes entries of the transaction history.
type TransactionType string

const (
	TransactionDeposit  TransactionType = "deposit"
	TransactionWithdraw TransactionType = "withdraw"
)

// Transfer statuses shared by invoices and withdrawals.
const (
	TransferPending   = "pending"
	TransferCompleted = "completed"
	TransferRejected  = "rejected"
)

// Invoice is a deposit request. It is paid out of band and credited by an
// operator; the service only records it.
type Invoice struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Transaction is one row of an owner's deposit and withdrawal history.
type Transaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Destination string          `json:"destination,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TransferStore records deposit invoices and lists the owner's deposits and
// withdrawals newest first.
type TransferStore interface {
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]Transaction, error)
}
