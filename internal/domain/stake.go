package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrStakeLocked       = errors.New("stake has not matured")
	ErrAlreadyCompleted  = errors.New("already completed")
	ErrUnsupportedPeriod = errors.New("unsupported staking period")
)

// StakeStatus is the lifecycle state of a stake.
type StakeStatus string

const (
	StakeActive    StakeStatus = "active"
	StakeCompleted StakeStatus = "completed"
)

// StakePlan is one staking period and the return it pays for the whole
// period (not annualised).
type StakePlan struct {
	Days        int             `json:"days"`
	RatePercent decimal.Decimal `json:"rate_percent"`
}

// Stake locks an amount for a fixed period. The reward is paid with the
// principal at unstake, never before EndAt.
type Stake struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Currency    string           `json:"currency"`
	Amount      decimal.Decimal  `json:"amount"`
	RatePercent decimal.Decimal  `json:"rate_percent"`
	PeriodDays  int              `json:"period_days"`
	StartAt     time.Time        `json:"start_at"`
	EndAt       time.Time        `json:"end_at"`
	Status      StakeStatus      `json:"status"`
	Rewards     *decimal.Decimal `json:"rewards,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Reward is the full-period reward.
func (s Stake) Reward() decimal.Decimal {
	return s.Amount.Mul(s.RatePercent).Div(hundred)
}

// Matured reports whether the stake may be withdrawn at now.
func (s Stake) Matured(now time.Time) bool {
	return !now.Before(s.EndAt)
}

// StakeProgress is the accrual view of an active stake. Rewards accrue per
// whole day staked.
type StakeProgress struct {
	DaysStaked     int             `json:"days_staked"`
	Percent        decimal.Decimal `json:"progress_percent"`
	AccruedRewards decimal.Decimal `json:"accrued_rewards"`
	TotalRewards   decimal.Decimal `json:"total_rewards"`
	CanUnstake     bool            `json:"can_unstake"`
}

// Progress computes the accrual of s at now.
func (s Stake) Progress(now time.Time) StakeProgress {
	days := 0
	if now.After(s.StartAt) {
		days = int(now.Sub(s.StartAt) / (24 * time.Hour))
	}
	pct := hundred
	if s.PeriodDays > 0 && days < s.PeriodDays {
		pct = decimal.NewFromInt(int64(days)).Mul(hundred).Div(decimal.NewFromInt(int64(s.PeriodDays)))
	}
	total := s.Reward()
	return StakeProgress{
		DaysStaked:     days,
		Percent:        pct.Round(2),
		AccruedRewards: total.Mul(pct).Div(hundred).Round(8),
		TotalRewards:   total,
		CanUnstake:     s.Matured(now),
	}
}

// StakeStore persists stakes. Principal moves between the balance and the
// stake in the same transaction as the stake row changes.
type StakeStore interface {
	// CreateStake debits Amount from the owner's Currency balance and
	// inserts the stake. ID is assigned by the store.
	CreateStake(ctx context.Context, s Stake) (Stake, error)
	GetStake(ctx context.Context, id string) (Stake, error)
	ListStakes(ctx context.Context, ownerID string) ([]Stake, error)
	// CompleteStake marks an active stake completed and credits principal
	// plus rewards. It returns ErrAlreadyCompleted when the stake is no
	// longer active.
	CompleteStake(ctx context.Context, id string, rewards decimal.Decimal, at time.Time) (Stake, error)
}
