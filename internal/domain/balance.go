package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Balances maps a currency code (e.g. "RUB", "USDT") to an amount.
type Balances map[string]decimal.Decimal

// OperationKind names an atomic wallet operation executed by the backing store.
type OperationKind string

const (
	OperationExchange OperationKind = "exchange"
	OperationWithdraw OperationKind = "withdraw"
)

// OperationParams carries the inputs of an atomic operation. Fields that do
// not apply to a kind are ignored.
type OperationParams struct {
	OwnerID      string
	Amount       decimal.Decimal
	FromCurrency string
	ToCurrency   string
	Rate         decimal.Decimal
	Currency     string
	Destination  string
	Recipient    string
}

// OperationResult holds the balances confirmed by the store after the
// operation committed.
type OperationResult struct {
	Kind       OperationKind `json:"kind"`
	Balances   Balances      `json:"balances"`
	WithdrawID string        `json:"withdraw_id,omitempty"`
	At         time.Time     `json:"at"`
}

// Validate checks the parameters an operation kind requires. It does not
// look at balances.
func (p OperationParams) Validate(kind OperationKind) error {
	if p.OwnerID == "" {
		return Invalid("owner_id", ErrUnauthorized, "owner is required")
	}
	if !p.Amount.IsPositive() {
		return Invalid("amount", ErrInvalidAmount, "amount must be positive")
	}
	switch kind {
	case OperationExchange:
		if p.FromCurrency == "" || p.ToCurrency == "" {
			return Invalid("currency", ErrInvalidAmount, "both currencies are required")
		}
		if p.FromCurrency == p.ToCurrency {
			return Invalid("currency", ErrInvalidAmount, "cannot exchange a currency into itself")
		}
		if !p.Rate.IsPositive() {
			return Invalid("exchange_rate", ErrInvalidPrice, "rate must be positive")
		}
	case OperationWithdraw:
		if p.Currency == "" {
			return Invalid("currency", ErrInvalidAmount, "currency is required")
		}
		if p.Destination == "" || p.Recipient == "" {
			return Invalid("destination", ErrInvalidAmount, "card number and recipient name are required")
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperation, kind)
	}
	return nil
}

// ExchangeCredit is the amount credited to the target currency.
func (p OperationParams) ExchangeCredit() decimal.Decimal {
	return p.Amount.Mul(p.Rate)
}
