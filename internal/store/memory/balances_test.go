package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

func TestBalancesCreditIsRelative(t *testing.T) {
	ctx := context.Background()
	b := NewBalances()
	b.Seed("u1", domain.Balances{"RUB": decimal.NewFromInt(100)})

	got, err := b.Credit(ctx, "u1", "RUB", decimal.NewFromInt(180))
	require.NoError(t, err)
	assert.Equal(t, "280", got.String())

	_, err = b.Credit(ctx, "nobody", "RUB", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBalancesExchange(t *testing.T) {
	ctx := context.Background()
	b := NewBalances()
	b.Seed("u1", domain.Balances{"RUB": decimal.NewFromInt(1000), "USDT": decimal.Zero})

	res, err := b.Invoke(ctx, domain.OperationExchange, domain.OperationParams{
		OwnerID: "u1", Amount: decimal.NewFromInt(800), FromCurrency: "RUB", ToCurrency: "USDT",
		Rate: decimal.RequireFromString("0.0125"),
	})
	require.NoError(t, err)
	assert.Equal(t, "200", res.Balances["RUB"].String())
	assert.Equal(t, "10", res.Balances["USDT"].String())

	_, err = b.Invoke(ctx, domain.OperationExchange, domain.OperationParams{
		OwnerID: "u1", Amount: decimal.NewFromInt(800), FromCurrency: "RUB", ToCurrency: "USDT",
		Rate: decimal.RequireFromString("0.0125"),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	bal, _ := b.Get(ctx, "u1")
	assert.Equal(t, "200", bal["RUB"].String())
	assert.Equal(t, "10", bal["USDT"].String())
}

func TestBalancesWithdraw(t *testing.T) {
	ctx := context.Background()
	b := NewBalances()
	b.Seed("u1", domain.Balances{"RUB": decimal.NewFromInt(100_000)})

	res, err := b.Invoke(ctx, domain.OperationWithdraw, domain.OperationParams{
		OwnerID: "u1", Amount: decimal.NewFromInt(60_000), Currency: "RUB",
		Destination: "4111111111111111", Recipient: "Ivan Petrov",
	})
	require.NoError(t, err)
	assert.Equal(t, "40000", res.Balances["RUB"].String())
	assert.NotEmpty(t, res.WithdrawID)

	ws := b.Withdrawals()
	require.Len(t, ws, 1)
	assert.Equal(t, res.WithdrawID, ws[0].ID)
	assert.Equal(t, "Ivan Petrov", ws[0].Recipient)
}

func TestBalancesInvokeValidation(t *testing.T) {
	b := NewBalances()
	b.Seed("u1", domain.Balances{"RUB": decimal.NewFromInt(100)})

	_, err := b.Invoke(context.Background(), domain.OperationWithdraw, domain.OperationParams{
		OwnerID: "u1", Amount: decimal.NewFromInt(-1), Currency: "RUB", Destination: "x", Recipient: "y",
	})
	assert.True(t, domain.IsValidation(err))

	_, err = b.Invoke(context.Background(), domain.OperationKind("mint"), domain.OperationParams{
		OwnerID: "u1", Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrUnknownOperation)
}

func TestBalancesTransactionsMergeNewestFirst(t *testing.T) {
	ctx := context.Background()
	b := NewBalances()
	b.Seed("u1", domain.Balances{"RUB": decimal.NewFromInt(100_000)})
	b.Seed("u2", domain.Balances{"RUB": decimal.NewFromInt(10)})
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return at })

	inv, err := b.CreateInvoice(ctx, domain.Invoice{OwnerID: "u1", Amount: decimal.NewFromInt(5000), Currency: "RUB"})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPending, inv.Status)

	at = at.Add(time.Hour)
	res, err := b.Invoke(ctx, domain.OperationWithdraw, domain.OperationParams{
		OwnerID: "u1", Amount: decimal.NewFromInt(60_000), Currency: "RUB",
		Destination: "4111111111111111", Recipient: "Ivan",
	})
	require.NoError(t, err)

	_, err = b.CreateInvoice(ctx, domain.Invoice{OwnerID: "u2", Amount: decimal.NewFromInt(50), Currency: "USDT"})
	require.NoError(t, err)

	txs, err := b.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, res.WithdrawID, txs[0].ID)
	assert.Equal(t, domain.TransactionWithdraw, txs[0].Type)
	assert.Equal(t, inv.ID, txs[1].ID)
	assert.Equal(t, domain.TransactionDeposit, txs[1].Type)

	txs, err = b.ListTransactions(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	_, err = b.CreateInvoice(ctx, domain.Invoice{OwnerID: "ghost", Amount: decimal.NewFromInt(1), Currency: "RUB"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
