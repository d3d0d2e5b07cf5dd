package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendPricePointCapsHistory(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var history []PricePoint
	for i := 0; i < PriceHistoryCap+25; i++ {
		history = AppendPricePoint(history, PricePoint{
			Price:     decimal.NewFromInt(int64(i)),
			Timestamp: start.Add(time.Duration(i) * time.Second),
		})
		require.LessOrEqual(t, len(history), PriceHistoryCap)
	}

	require.Len(t, history, PriceHistoryCap)
	assert.True(t, history[0].Price.Equal(decimal.NewFromInt(25)), "oldest entries are dropped first")
	assert.True(t, history[len(history)-1].Price.Equal(decimal.NewFromInt(PriceHistoryCap+24)))
}

func TestAppendPricePointDoesNotAliasInput(t *testing.T) {
	in := []PricePoint{{Price: decimal.NewFromInt(1)}}
	out := AppendPricePoint(in, PricePoint{Price: decimal.NewFromInt(2)})
	out[0].Price = decimal.NewFromInt(99)
	assert.True(t, in[0].Price.Equal(decimal.NewFromInt(1)))
}

func TestExpiresAtIsDerived(t *testing.T) {
	c := OptionContract{
		CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationSeconds: 900,
	}
	assert.Equal(t, c.CreatedAt.Add(15*time.Minute), c.ExpiresAt())
}

func TestPotentialPayout(t *testing.T) {
	c := OptionContract{Stake: decimal.NewFromInt(100)}
	assert.True(t, c.PotentialPayout().Equal(decimal.NewFromInt(180)))

	c.Stake = decimal.RequireFromString("12.35")
	assert.Equal(t, "22.23", c.PotentialPayout().String())
}

func TestValidDuration(t *testing.T) {
	for _, d := range []int{60, 300, 900, 1800, 3600} {
		assert.True(t, ValidDuration(d), d)
	}
	for _, d := range []int{0, 30, 61, 7200} {
		assert.False(t, ValidDuration(d), d)
	}
}

func TestErrorClassification(t *testing.T) {
	verr := Invalid("stake", ErrStakeTooSmall, "minimum stake is 10")
	assert.True(t, IsValidation(verr))
	assert.ErrorIs(t, verr, ErrStakeTooSmall)
	assert.False(t, IsConflict(verr))

	cerr := &ConflictError{ContractID: "c1", Status: OptionWon}
	assert.True(t, IsConflict(cerr))
	assert.Contains(t, cerr.Error(), "c1")

	rerr := &ReconciliationError{OwnerID: "u1", ContractID: "c1", Amount: decimal.NewFromInt(180), Err: ErrNotFound}
	assert.ErrorIs(t, rerr, ErrNotFound)
}
