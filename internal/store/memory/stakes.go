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

// Stakes is an in-memory domain.StakeStore. Principal moves through the
// attached Balances inside the same critical section as the stake change.
type Stakes struct {
	mu       sync.Mutex
	stakes   map[string]domain.Stake
	balances *Balances
	now      func() time.Time
}

// NewStakes creates a Stakes store on balances.
func NewStakes(balances *Balances) *Stakes {
	return &Stakes{stakes: make(map[string]domain.Stake), balances: balances, now: time.Now}
}

// SetClock overrides the clock used for StartAt.
func (s *Stakes) SetClock(now func() time.Time) { s.now = now }

func (s *Stakes) CreateStake(_ context.Context, st domain.Stake) (domain.Stake, error) {
	if !st.Amount.IsPositive() {
		return domain.Stake{}, domain.Invalid("amount", domain.ErrInvalidAmount, "amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.balances.debit(st.OwnerID, st.Currency, st.Amount); err != nil {
		return domain.Stake{}, err
	}
	st.ID = uuid.NewString()
	st.StartAt = s.now().UTC()
	st.EndAt = st.StartAt.Add(time.Duration(st.PeriodDays) * 24 * time.Hour)
	st.Status = domain.StakeActive
	st.Rewards, st.CompletedAt = nil, nil
	s.stakes[st.ID] = st
	return cloneStake(st), nil
}

func (s *Stakes) GetStake(_ context.Context, id string) (domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stakes[id]
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}
	return cloneStake(st), nil
}

// ListStakes returns the owner's stakes, newest first.
func (s *Stakes) ListStakes(_ context.Context, ownerID string) ([]domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Stake, 0)
	for _, st := range s.stakes {
		if st.OwnerID == ownerID {
			out = append(out, cloneStake(st))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartAt.After(out[j].StartAt)
	})
	return out, nil
}

func (s *Stakes) CompleteStake(_ context.Context, id string, rewards decimal.Decimal, at time.Time) (domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stakes[id]
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}
	if st.Status != domain.StakeActive {
		return domain.Stake{}, domain.ErrAlreadyCompleted
	}
	if _, err := s.balances.credit(st.OwnerID, st.Currency, st.Amount.Add(rewards)); err != nil {
		return domain.Stake{}, err
	}
	r := rewards
	done := at.UTC()
	st.Status = domain.StakeCompleted
	st.Rewards = &r
	st.CompletedAt = &done
	s.stakes[id] = st
	return cloneStake(st), nil
}

func cloneStake(st domain.Stake) domain.Stake {
	st.Rewards = copyDecimal(st.Rewards)
	if st.CompletedAt != nil {
		t := *st.CompletedAt
		st.CompletedAt = &t
	}
	return st
}

var _ domain.StakeStore = (*Stakes)(nil)
