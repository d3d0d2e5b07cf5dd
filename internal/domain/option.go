package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the predicted price movement of a binary option.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// OptionStatus is the lifecycle state of a binary option contract.
type OptionStatus string

const (
	OptionActive  OptionStatus = "active"
	OptionWon     OptionStatus = "won"
	OptionLost    OptionStatus = "lost"
	OptionExpired OptionStatus = "expired" // reached expiry with no settlement price
)

// Terminal reports whether the status is final.
func (s OptionStatus) Terminal() bool {
	return s == OptionWon || s == OptionLost || s == OptionExpired
}

const (
	// MinStake is the smallest stake accepted at creation.
	MinStake = 10

	// PriceHistoryCap bounds OptionContract.PriceHistory; oldest samples are dropped first.
	PriceHistoryCap = 100

	// DefaultHistoryLimit is used by history listings when no limit is given.
	DefaultHistoryLimit = 20
)

// PayoutMultiplier is applied to the stake of a winning contract (80% return).
var PayoutMultiplier = decimal.RequireFromString("1.8")

// AllowedDurations enumerates contract lengths in seconds.
var AllowedDurations = []int{60, 300, 900, 1800, 3600}

// ValidDuration reports whether seconds is one of AllowedDurations.
func ValidDuration(seconds int) bool {
	for _, d := range AllowedDurations {
		if d == seconds {
			return true
		}
	}
	return false
}

// PricePoint is a single price sample recorded while a contract is active.
type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// OptionContract is a single binary-options bet.
type OptionContract struct {
	ID              string           `json:"id"`
	OwnerID         string           `json:"owner_id"`
	Instrument      string           `json:"instrument"`
	Direction       Direction        `json:"direction"`
	Stake           decimal.Decimal  `json:"stake"`
	EntryPrice      decimal.Decimal  `json:"entry_price"`
	DurationSeconds int              `json:"duration_seconds"`
	CreatedAt       time.Time        `json:"created_at"`
	Status          OptionStatus     `json:"status"`
	ExitPrice       *decimal.Decimal `json:"exit_price,omitempty"`
	Payout          *decimal.Decimal `json:"payout,omitempty"`
	CurrentPrice    *decimal.Decimal `json:"current_price,omitempty"`
	PriceHistory    []PricePoint     `json:"price_history"`
	LastCheckedAt   *time.Time       `json:"last_checked_at,omitempty"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
}

// ExpiresAt is derived from CreatedAt and DurationSeconds; it is never stored.
func (c OptionContract) ExpiresAt() time.Time {
	return c.CreatedAt.Add(time.Duration(c.DurationSeconds) * time.Second)
}

// PotentialPayout is what the contract pays if it wins.
func (c OptionContract) PotentialPayout() decimal.Decimal {
	return c.Stake.Mul(PayoutMultiplier)
}

// AppendPricePoint returns history with p appended, trimmed to the most recent
// PriceHistoryCap entries. The input slice is not modified.
func AppendPricePoint(history []PricePoint, p PricePoint) []PricePoint {
	out := make([]PricePoint, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, p)
	if len(out) > PriceHistoryCap {
		out = out[len(out)-PriceHistoryCap:]
	}
	return out
}

// Settlement is the single terminal write for a contract.
type Settlement struct {
	ContractID string
	Status     OptionStatus
	ExitPrice  *decimal.Decimal
	Payout     *decimal.Decimal
	ClosedAt   time.Time
}
