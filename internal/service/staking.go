package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// StakingConfig configures the StakingService.
type StakingConfig struct {
	Currency      string
	MinAmount     decimal.Decimal
	Plans         []domain.StakePlan
	SubmitLockTTL time.Duration
}

// StakeView is a stake with its accrual at read time.
type StakeView struct {
	domain.Stake
	Progress domain.StakeProgress `json:"progress"`
}

// StakingService locks balance into fixed-period stakes and pays principal
// plus the period reward back once the stake matures.
type StakingService struct {
	store      domain.StakeStore
	locks      domain.LockManager
	reconciler *Reconciler
	audit      domain.AuditStore
	cfg        StakingConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewStakingService creates a StakingService. Plans are served sorted by
// period length.
func NewStakingService(
	store domain.StakeStore,
	locks domain.LockManager,
	reconciler *Reconciler,
	audit domain.AuditStore,
	cfg StakingConfig,
	logger *slog.Logger,
) *StakingService {
	if cfg.SubmitLockTTL <= 0 {
		cfg.SubmitLockTTL = 10 * time.Second
	}
	plans := append([]domain.StakePlan(nil), cfg.Plans...)
	sort.Slice(plans, func(i, j int) bool { return plans[i].Days < plans[j].Days })
	cfg.Plans = plans
	return &StakingService{
		store:      store,
		locks:      locks,
		reconciler: reconciler,
		audit:      audit,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "staking")),
	}
}

// SetClock replaces the clock used for maturity and progress.
func (s *StakingService) SetClock(now func() time.Time) { s.now = now }

// StakingTerms is what a client needs to offer a stake.
type StakingTerms struct {
	Currency  string             `json:"currency"`
	MinAmount decimal.Decimal    `json:"min_amount"`
	Plans     []domain.StakePlan `json:"plans"`
}

// Terms returns the configured plans and minimum.
func (s *StakingService) Terms() StakingTerms {
	return StakingTerms{
		Currency:  s.cfg.Currency,
		MinAmount: s.cfg.MinAmount,
		Plans:     append([]domain.StakePlan(nil), s.cfg.Plans...),
	}
}

func (s *StakingService) plan(days int) (domain.StakePlan, bool) {
	for _, p := range s.cfg.Plans {
		if p.Days == days {
			return p, true
		}
	}
	return domain.StakePlan{}, false
}

// Stake debits amount and opens a stake on the plan with the given period.
func (s *StakingService) Stake(ctx context.Context, ownerID string, amount decimal.Decimal, days int) (StakeView, error) {
	if ownerID == "" {
		return StakeView{}, domain.ErrUnauthorized
	}
	if !amount.IsPositive() || amount.LessThan(s.cfg.MinAmount) {
		return StakeView{}, domain.Invalid("amount", domain.ErrStakeTooSmall,
			fmt.Sprintf("minimum stake is %s %s", s.cfg.MinAmount, s.cfg.Currency))
	}
	plan, ok := s.plan(days)
	if !ok {
		return StakeView{}, domain.Invalid("period_days", domain.ErrUnsupportedPeriod, fmt.Sprintf("no plan for %d days", days))
	}

	unlock, err := acquireSubmitLock(ctx, s.locks, ownerID, s.cfg.SubmitLockTTL)
	if err != nil {
		return StakeView{}, err
	}
	defer unlock()

	st, err := s.store.CreateStake(ctx, domain.Stake{
		OwnerID:     ownerID,
		Currency:    s.cfg.Currency,
		Amount:      amount,
		RatePercent: plan.RatePercent,
		PeriodDays:  plan.Days,
	})
	if err != nil {
		if domain.IsValidation(err) || errors.Is(err, domain.ErrNotFound) {
			return StakeView{}, err
		}
		return StakeView{}, fmt.Errorf("staking: create: %w", err)
	}
	s.refresh(ctx, ownerID)

	s.logger.InfoContext(ctx, "stake opened",
		slog.String("stake_id", st.ID),
		slog.String("owner_id", ownerID),
		slog.String("amount", amount.String()),
		slog.Int("period_days", st.PeriodDays),
	)
	return s.view(st), nil
}

// List returns the owner's stakes, newest first, with their accrual.
func (s *StakingService) List(ctx context.Context, ownerID string) ([]StakeView, error) {
	sts, err := s.store.ListStakes(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("staking: list: %w", err)
	}
	out := make([]StakeView, 0, len(sts))
	for _, st := range sts {
		out = append(out, s.view(st))
	}
	return out, nil
}

// Unstake pays principal and the full-period reward of a matured stake.
// Another owner's stake is not found; an immature stake is a validation
// error; a completed one is domain.ErrAlreadyCompleted.
func (s *StakingService) Unstake(ctx context.Context, ownerID, id string) (StakeView, error) {
	st, err := s.store.GetStake(ctx, id)
	if err != nil {
		return StakeView{}, err
	}
	if st.OwnerID != ownerID {
		return StakeView{}, domain.ErrNotFound
	}
	if st.Status != domain.StakeActive {
		return StakeView{}, domain.ErrAlreadyCompleted
	}
	now := s.now()
	if !st.Matured(now) {
		return StakeView{}, domain.Invalid("id", domain.ErrStakeLocked,
			"stake can be withdrawn from "+st.EndAt.UTC().Format(time.RFC3339))
	}

	unlock, err := acquireSubmitLock(ctx, s.locks, ownerID, s.cfg.SubmitLockTTL)
	if err != nil {
		return StakeView{}, err
	}
	defer unlock()

	rewards := st.Reward()
	done, err := s.store.CompleteStake(ctx, id, rewards, now)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyCompleted) || errors.Is(err, domain.ErrNotFound) {
			return StakeView{}, err
		}
		return StakeView{}, fmt.Errorf("staking: complete %s: %w", id, err)
	}
	s.refresh(ctx, ownerID)

	if err := s.audit.Log(ctx, "stake_completed", map[string]any{
		"stake_id": done.ID,
		"owner_id": ownerID,
		"amount":   done.Amount.String(),
		"rewards":  rewards.String(),
		"currency": done.Currency,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit stake completion failed", slog.String("error", err.Error()))
	}
	s.logger.InfoContext(ctx, "stake completed",
		slog.String("stake_id", done.ID),
		slog.String("owner_id", ownerID),
		slog.String("rewards", rewards.String()),
	)
	return s.view(done), nil
}

func (s *StakingService) view(st domain.Stake) StakeView {
	return StakeView{Stake: st, Progress: st.Progress(s.now())}
}

func (s *StakingService) refresh(ctx context.Context, ownerID string) {
	if _, err := s.reconciler.Refresh(ctx, ownerID); err != nil {
		s.logger.WarnContext(ctx, "balance refresh failed",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}
}
