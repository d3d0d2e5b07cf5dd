package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	ErrStakeTooSmall       = errors.New("stake below minimum")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrInvalidDuration     = errors.New("invalid duration")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidInstrument   = errors.New("invalid instrument")
	ErrSubmitInFlight      = errors.New("request already in progress")
	ErrUnknownOperation    = errors.New("unknown operation")
)

// ValidationError is a malformed or out-of-policy request. It is surfaced to
// the caller and the request never reaches the ledger.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError around one of the sentinel errors above.
func Invalid(field string, err error, reason string) error {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// ConflictError is returned by a terminal write against a contract that has
// already left the active state.
type ConflictError struct {
	ContractID string
	Status     OptionStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("contract %s already settled (status %s)", e.ContractID, e.Status)
}

// TransientFetchError wraps a network failure reading a price or ledger data.
type TransientFetchError struct {
	Source string
	Key    string
	Err    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.Key, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ReconciliationError means a win was recorded but the payout could not be
// credited. The contract stays won; the money is owed.
type ReconciliationError struct {
	OwnerID    string
	ContractID string
	Amount     decimal.Decimal
	Err        error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("credit %s to %s for contract %s failed: %v", e.Amount, e.OwnerID, e.ContractID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
