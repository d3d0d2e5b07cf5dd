package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// Invoke runs an exchange or withdraw as one transaction. Either every row
// changes or none does.
func (s *BalanceStore) Invoke(ctx context.Context, kind domain.OperationKind, p domain.OperationParams) (domain.OperationResult, error) {
	if err := p.Validate(kind); err != nil {
		return domain.OperationResult{}, err
	}

	res := domain.OperationResult{Kind: kind}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		switch kind {
		case domain.OperationExchange:
			return s.exchangeTx(ctx, tx, p, &res)
		case domain.OperationWithdraw:
			return s.withdrawTx(ctx, tx, p, &res)
		}
		return fmt.Errorf("%w: %s", domain.ErrUnknownOperation, kind)
	})
	if err != nil {
		if domain.IsValidation(err) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnknownOperation) {
			return domain.OperationResult{}, err
		}
		return domain.OperationResult{}, fmt.Errorf("postgres: %s: %w", kind, err)
	}
	if res.At.IsZero() {
		res.At = time.Now().UTC()
	}
	return res, nil
}

func (s *BalanceStore) exchangeTx(ctx context.Context, tx pgx.Tx, p domain.OperationParams, res *domain.OperationResult) error {
	from, err := debitTx(ctx, tx, p.OwnerID, p.FromCurrency, p.Amount)
	if err != nil {
		return err
	}
	to, err := creditTx(ctx, tx, p.OwnerID, p.ToCurrency, p.ExchangeCredit())
	if err != nil {
		return err
	}
	res.Balances = domain.Balances{p.FromCurrency: from, p.ToCurrency: to}
	return nil
}

func (s *BalanceStore) withdrawTx(ctx context.Context, tx pgx.Tx, p domain.OperationParams, res *domain.OperationResult) error {
	left, err := debitTx(ctx, tx, p.OwnerID, p.Currency, p.Amount)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	if err := tx.QueryRow(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, currency, card_number, name)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING created_at`,
		id, p.OwnerID, p.Amount.String(), p.Currency, p.Destination, p.Recipient,
	).Scan(&res.At); err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	res.At = res.At.UTC()
	res.Balances = domain.Balances{p.Currency: left}
	res.WithdrawID = id
	return nil
}

var _ domain.AtomicOperator = (*BalanceStore)(nil)
