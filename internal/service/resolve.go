package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// Resolution is the terminal outcome computed for an expired contract.
type Resolution struct {
	Status    domain.OptionStatus
	ExitPrice *decimal.Decimal
	Payout    *decimal.Decimal
}

// Resolve decides the outcome of c as seen at now with the given settlement
// price (nil when no price is available). It reports false while the
// contract has not yet expired.
//
// A contract wins only on a strict move in its direction; an unchanged price
// loses for both directions. Without a price the contract expires with no
// exit price and no payout.
func Resolve(c domain.OptionContract, price *decimal.Decimal, now time.Time) (Resolution, bool) {
	if now.Before(c.ExpiresAt()) {
		return Resolution{}, false
	}
	if price == nil {
		return Resolution{Status: domain.OptionExpired}, true
	}

	exit := *price
	won := false
	switch c.Direction {
	case domain.DirectionUp:
		won = exit.GreaterThan(c.EntryPrice)
	case domain.DirectionDown:
		won = exit.LessThan(c.EntryPrice)
	}
	if !won {
		return Resolution{Status: domain.OptionLost, ExitPrice: &exit}, true
	}
	payout := c.PotentialPayout()
	return Resolution{Status: domain.OptionWon, ExitPrice: &exit, Payout: &payout}, true
}
