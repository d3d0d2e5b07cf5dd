package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// BalanceStore implements domain.BalanceStore and domain.AtomicOperator on
// the balances table. Every mutation is a relative delta applied in SQL.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a BalanceStore backed by the given pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Get returns every currency row of the owner, or domain.ErrNotFound.
func (s *BalanceStore) Get(ctx context.Context, ownerID string) (domain.Balances, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT currency, amount::text FROM balances WHERE user_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get balances %s: %w", ownerID, err)
	}
	defer rows.Close()

	out := make(domain.Balances)
	for rows.Next() {
		var cur, amt string
		if err := rows.Scan(&cur, &amt); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		d, err := decimal.NewFromString(amt)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse balance %s/%s: %w", ownerID, cur, err)
		}
		out[cur] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get balances rows: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

// Credit increments the owner's balance and returns the committed value.
func (s *BalanceStore) Credit(ctx context.Context, ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	var confirmed decimal.Decimal
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		confirmed, err = creditTx(ctx, tx, ownerID, currency, amount)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("postgres: credit %s %s: %w", ownerID, currency, err)
	}
	return confirmed, nil
}

// Seed inserts opening balances for an owner, leaving existing rows alone.
func (s *BalanceStore) Seed(ctx context.Context, ownerID string, balances domain.Balances) error {
	batch := &pgx.Batch{}
	for cur, amt := range balances {
		batch.Queue(`
			INSERT INTO balances (user_id, currency, amount) VALUES ($1, $2, $3::numeric)
			ON CONFLICT (user_id, currency) DO NOTHING`, ownerID, cur, amt.String())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: seed balances %s: %w", ownerID, err)
	}
	return nil
}

// debitTx subtracts amount if the row holds at least that much. A missing
// owner is domain.ErrNotFound; a short balance is a ValidationError.
func debitTx(ctx context.Context, tx pgx.Tx, ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	var left string
	err := tx.QueryRow(ctx, `
		UPDATE balances SET amount = amount - $3::numeric, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2 AND amount >= $3::numeric
		RETURNING amount::text`, ownerID, currency, amount.String()).Scan(&left)
	if errors.Is(err, pgx.ErrNoRows) {
		exists, existsErr := ownerExists(ctx, tx, ownerID)
		if existsErr != nil {
			return decimal.Zero, existsErr
		}
		if !exists {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, domain.Invalid("amount", domain.ErrInsufficientBalance, "insufficient "+currency+" balance")
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("debit: %w", err)
	}
	return decimal.NewFromString(left)
}

// creditTx adds amount, creating the currency row for a known owner.
func creditTx(ctx context.Context, tx pgx.Tx, ownerID, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	var total string
	err := tx.QueryRow(ctx, `
		UPDATE balances SET amount = amount + $3::numeric, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2
		RETURNING amount::text`, ownerID, currency, amount.String()).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		exists, existsErr := ownerExists(ctx, tx, ownerID)
		if existsErr != nil {
			return decimal.Zero, existsErr
		}
		if !exists {
			return decimal.Zero, domain.ErrNotFound
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO balances (user_id, currency, amount) VALUES ($1, $2, $3::numeric)
			ON CONFLICT (user_id, currency)
			DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()
			RETURNING amount::text`, ownerID, currency, amount.String()).Scan(&total)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit: %w", err)
	}
	return decimal.NewFromString(total)
}

func ownerExists(ctx context.Context, tx pgx.Tx, ownerID string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM balances WHERE user_id = $1)`, ownerID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check owner %s: %w", ownerID, err)
	}
	return exists, nil
}

var _ domain.BalanceStore = (*BalanceStore)(nil)
