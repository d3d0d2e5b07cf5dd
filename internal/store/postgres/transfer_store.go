package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// TransferStore implements domain.TransferStore on the invoices and
// withdrawals tables.
type TransferStore struct {
	pool *pgxpool.Pool
}

// NewTransferStore creates a TransferStore backed by the given pool.
func NewTransferStore(pool *pgxpool.Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// CreateInvoice inserts a pending invoice for a known owner.
func (s *TransferStore) CreateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error) {
	inv.ID = uuid.NewString()
	inv.Status = domain.TransferPending
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		exists, err := ownerExists(ctx, tx, inv.OwnerID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return tx.QueryRow(ctx, `
			INSERT INTO invoices (id, user_id, amount, currency)
			VALUES ($1, $2, $3::numeric, $4)
			RETURNING created_at`,
			inv.ID, inv.OwnerID, inv.Amount.String(), inv.Currency,
		).Scan(&inv.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invoice{}, err
		}
		return domain.Invoice{}, fmt.Errorf("postgres: create invoice: %w", err)
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

// transactionsQuery unions deposits and withdrawals; withdrawals report
// is_done as completed.
const transactionsQuery = `
	SELECT id::text, 'deposit' AS type, amount::text, currency, status, '' AS destination, created_at
	FROM invoices WHERE user_id = $1
	UNION ALL
	SELECT id::text, 'withdraw', amount::text, currency,
		CASE WHEN is_done THEN 'completed' ELSE 'pending' END, card_number, created_at
	FROM withdrawals WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2`

func (s *TransferStore) ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	rows, err := s.pool.Query(ctx, transactionsQuery, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			tx       domain.Transaction
			typ, amt string
		)
		if err := rows.Scan(&tx.ID, &typ, &amt, &tx.Currency, &tx.Status, &tx.Destination, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		tx.Type = domain.TransactionType(typ)
		if tx.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("postgres: parse transaction amount: %w", err)
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list transactions rows: %w", err)
	}
	return out, nil
}

var _ domain.TransferStore = (*TransferStore)(nil)
