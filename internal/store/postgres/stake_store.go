package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// StakeStore implements domain.StakeStore on the stakes table. Principal is
// moved with debitTx/creditTx inside the same transaction as the stake row.
type StakeStore struct {
	pool *pgxpool.Pool
}

// NewStakeStore creates a StakeStore backed by the given pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

const stakeSelectCols = `id::text, user_id, currency, amount::text, rate_percent::text, period_days,
	start_at, end_at, status, rewards::text, completed_at`

func scanStake(row pgx.Row) (domain.Stake, error) {
	var (
		st           domain.Stake
		amount, rate string
		status       string
		rewards      *string
	)
	if err := row.Scan(
		&st.ID, &st.OwnerID, &st.Currency, &amount, &rate, &st.PeriodDays,
		&st.StartAt, &st.EndAt, &status, &rewards, &st.CompletedAt,
	); err != nil {
		return domain.Stake{}, err
	}
	st.Status = domain.StakeStatus(status)
	var err error
	if st.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Stake{}, fmt.Errorf("parse amount: %w", err)
	}
	if st.RatePercent, err = decimal.NewFromString(rate); err != nil {
		return domain.Stake{}, fmt.Errorf("parse rate_percent: %w", err)
	}
	if st.Rewards, err = parseNullDecimal(rewards); err != nil {
		return domain.Stake{}, fmt.Errorf("parse rewards: %w", err)
	}
	return st, nil
}

// CreateStake debits the principal and inserts the stake in one transaction.
func (s *StakeStore) CreateStake(ctx context.Context, st domain.Stake) (domain.Stake, error) {
	if !st.Amount.IsPositive() {
		return domain.Stake{}, domain.Invalid("amount", domain.ErrInvalidAmount, "amount must be positive")
	}
	st.ID = uuid.NewString()
	st.Status = domain.StakeActive

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := debitTx(ctx, tx, st.OwnerID, st.Currency, st.Amount); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO stakes (id, user_id, currency, amount, rate_percent, period_days, end_at)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, NOW() + make_interval(days => $6))
			RETURNING start_at, end_at`,
			st.ID, st.OwnerID, st.Currency, st.Amount.String(), st.RatePercent.String(), st.PeriodDays,
		).Scan(&st.StartAt, &st.EndAt)
	})
	if err != nil {
		if domain.IsValidation(err) || errors.Is(err, domain.ErrNotFound) {
			return domain.Stake{}, err
		}
		return domain.Stake{}, fmt.Errorf("postgres: create stake: %w", err)
	}
	st.StartAt, st.EndAt = st.StartAt.UTC(), st.EndAt.UTC()
	return st, nil
}

func (s *StakeStore) GetStake(ctx context.Context, id string) (domain.Stake, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Stake{}, domain.ErrNotFound
	}
	st, err := scanStake(s.pool.QueryRow(ctx, `SELECT `+stakeSelectCols+` FROM stakes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stake{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Stake{}, fmt.Errorf("postgres: get stake %s: %w", id, err)
	}
	return st, nil
}

func (s *StakeStore) ListStakes(ctx context.Context, ownerID string) ([]domain.Stake, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+stakeSelectCols+` FROM stakes
		WHERE user_id = $1
		ORDER BY start_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Stake, 0)
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// completeStakeQuery flips an active stake exactly once.
const completeStakeQuery = `
	UPDATE stakes SET status = 'completed', rewards = $2::numeric, completed_at = $3
	WHERE id = $1 AND status = 'active'
	RETURNING ` + stakeSelectCols

// CompleteStake flips the stake and credits principal plus rewards in one
// transaction. A stake that is not active is domain.ErrAlreadyCompleted.
func (s *StakeStore) CompleteStake(ctx context.Context, id string, rewards decimal.Decimal, at time.Time) (domain.Stake, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Stake{}, domain.ErrNotFound
	}
	var st domain.Stake
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		st, err = scanStake(tx.QueryRow(ctx, completeStakeQuery, id, rewards.String(), at))
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stakes WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("check stake: %w", err)
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrAlreadyCompleted
		}
		if err != nil {
			return err
		}
		_, err = creditTx(ctx, tx, st.OwnerID, st.Currency, st.Amount.Add(rewards))
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadyCompleted) {
			return domain.Stake{}, err
		}
		return domain.Stake{}, fmt.Errorf("postgres: complete stake %s: %w", id, err)
	}
	return st, nil
}

var _ domain.StakeStore = (*StakeStore)(nil)
