package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// OptionStore implements domain.OptionStore on the binary_options table.
// Numeric columns travel as text to keep decimal precision.
type OptionStore struct {
	pool *pgxpool.Pool
}

// NewOptionStore creates an OptionStore backed by the given pool.
func NewOptionStore(pool *pgxpool.Pool) *OptionStore {
	return &OptionStore{pool: pool}
}

const optionSelectCols = `id::text, user_id, ticker, direction, amount::text, entry_price::text,
	duration_seconds, status, exit_price::text, payout::text, current_price::text,
	price_history, last_checked_at, created_at, closed_at`

func scanOption(row pgx.Row) (domain.OptionContract, error) {
	var (
		c                     domain.OptionContract
		direction, status     string
		stake, entry          string
		exit, payout, current *string
		history               []byte
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Instrument, &direction, &stake, &entry,
		&c.DurationSeconds, &status, &exit, &payout, &current,
		&history, &c.LastCheckedAt, &c.CreatedAt, &c.ClosedAt,
	)
	if err != nil {
		return domain.OptionContract{}, err
	}
	c.Direction = domain.Direction(direction)
	c.Status = domain.OptionStatus(status)
	if c.Stake, err = decimal.NewFromString(stake); err != nil {
		return domain.OptionContract{}, fmt.Errorf("parse amount: %w", err)
	}
	if c.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return domain.OptionContract{}, fmt.Errorf("parse entry_price: %w", err)
	}
	if c.ExitPrice, err = parseNullDecimal(exit); err != nil {
		return domain.OptionContract{}, fmt.Errorf("parse exit_price: %w", err)
	}
	if c.Payout, err = parseNullDecimal(payout); err != nil {
		return domain.OptionContract{}, fmt.Errorf("parse payout: %w", err)
	}
	if c.CurrentPrice, err = parseNullDecimal(current); err != nil {
		return domain.OptionContract{}, fmt.Errorf("parse current_price: %w", err)
	}
	c.PriceHistory = []domain.PricePoint{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.PriceHistory); err != nil {
			return domain.OptionContract{}, fmt.Errorf("parse price_history: %w", err)
		}
	}
	return c, nil
}

func scanOptions(rows pgx.Rows) ([]domain.OptionContract, error) {
	defer rows.Close()
	out := make([]domain.OptionContract, 0)
	for rows.Next() {
		c, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func parseNullDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// Create debits the stake from the owner's balance row and inserts the
// contract in one transaction. The conditional UPDATE re-checks the balance
// under the row lock.
func (s *OptionStore) Create(ctx context.Context, c domain.OptionContract, currency string) (domain.OptionContract, error) {
	if !c.Stake.IsPositive() {
		return domain.OptionContract{}, domain.Invalid("stake", domain.ErrInvalidAmount, "stake must be positive")
	}
	c.ID = uuid.NewString()
	c.Status = domain.OptionActive
	c.PriceHistory = []domain.PricePoint{}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := debitTx(ctx, tx, c.OwnerID, currency, c.Stake); err != nil {
			return err
		}
		const insert = `
			INSERT INTO binary_options (
				id, user_id, ticker, direction, amount, entry_price, duration_seconds, status
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, 'active')
			RETURNING created_at`
		return tx.QueryRow(ctx, insert,
			c.ID, c.OwnerID, c.Instrument, string(c.Direction),
			c.Stake.String(), c.EntryPrice.String(), c.DurationSeconds,
		).Scan(&c.CreatedAt)
	})
	if err != nil {
		if domain.IsValidation(err) || errors.Is(err, domain.ErrNotFound) {
			return domain.OptionContract{}, err
		}
		return domain.OptionContract{}, fmt.Errorf("postgres: create option: %w", err)
	}
	return c, nil
}

func (s *OptionStore) GetByID(ctx context.Context, id string) (domain.OptionContract, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.OptionContract{}, domain.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+optionSelectCols+` FROM binary_options WHERE id = $1`, id)
	c, err := scanOption(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OptionContract{}, domain.ErrNotFound
		}
		return domain.OptionContract{}, fmt.Errorf("postgres: get option %s: %w", id, err)
	}
	return c, nil
}

func (s *OptionStore) ListActive(ctx context.Context, ownerID string) ([]domain.OptionContract, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+optionSelectCols+` FROM binary_options
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active options: %w", err)
	}
	out, err := scanOptions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active options: %w", err)
	}
	return out, nil
}

func (s *OptionStore) ListHistory(ctx context.Context, ownerID string, limit int) ([]domain.OptionContract, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+optionSelectCols+` FROM binary_options
		WHERE user_id = $1 AND status IN ('won', 'lost', 'expired')
		ORDER BY created_at DESC
		LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list option history: %w", err)
	}
	out, err := scanOptions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan option history: %w", err)
	}
	return out, nil
}

func (s *OptionStore) ListActiveOwners(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM binary_options WHERE status = 'active' ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active owners: %w", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active owners: %w", err)
	}
	return owners, nil
}

func (s *OptionStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.OptionContract, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+optionSelectCols+` FROM binary_options
		WHERE status <> 'active' AND closed_at < $1
		ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled options: %w", err)
	}
	out, err := scanOptions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled options: %w", err)
	}
	return out, nil
}

// recordTickQuery keeps the newest $5 samples of price_history.
const recordTickQuery = `
	UPDATE binary_options SET
		price_history = (
			SELECT COALESCE(jsonb_agg(recent.e ORDER BY recent.ord), '[]'::jsonb)
			FROM (
				SELECT e, ord
				FROM jsonb_array_elements(price_history || jsonb_build_array($2::jsonb))
					WITH ORDINALITY AS h(e, ord)
				ORDER BY ord DESC
				LIMIT $5
			) AS recent
		),
		current_price   = $3::numeric,
		last_checked_at = $4,
		check_status    = 'checked'
	WHERE id = $1 AND status = 'active'`

// settleQuery stamps the exit price as the last observed price when there
// is one.
const settleQuery = `
	UPDATE binary_options SET
		status          = $2,
		exit_price      = $3::numeric,
		payout          = $4::numeric,
		closed_at       = $5,
		current_price   = COALESCE($3::numeric, current_price),
		last_checked_at = CASE WHEN $3::numeric IS NULL THEN last_checked_at ELSE $5 END
	WHERE id = $1 AND status = 'active'`

// RecordTick appends a sample to price_history, keeping the newest
// PriceHistoryCap entries, and stamps current_price and last_checked_at.
// Settled contracts are left untouched.
func (s *OptionStore) RecordTick(ctx context.Context, contractID string, price decimal.Decimal, at time.Time) error {
	point, err := json.Marshal(domain.PricePoint{Price: price, Timestamp: at.UTC()})
	if err != nil {
		return fmt.Errorf("postgres: marshal price point: %w", err)
	}
	if _, err := s.pool.Exec(ctx, recordTickQuery, contractID, string(point), price.String(), at, domain.PriceHistoryCap); err != nil {
		return fmt.Errorf("postgres: record tick %s: %w", contractID, err)
	}
	return nil
}

// Settle performs the single terminal write. The status guard in the WHERE
// clause makes concurrent settlements race-free: exactly one caller updates
// the row, the rest get a ConflictError.
func (s *OptionStore) Settle(ctx context.Context, st domain.Settlement) error {
	tag, err := s.pool.Exec(ctx, settleQuery,
		st.ContractID, string(st.Status), nullDecimal(st.ExitPrice), nullDecimal(st.Payout), st.ClosedAt)
	if err != nil {
		return fmt.Errorf("postgres: settle option %s: %w", st.ContractID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM binary_options WHERE id = $1`, st.ContractID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: settle option %s: read status: %w", st.ContractID, err)
	}
	return &domain.ConflictError{ContractID: st.ContractID, Status: domain.OptionStatus(status)}
}

var _ domain.OptionStore = (*OptionStore)(nil)
