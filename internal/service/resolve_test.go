package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

func TestResolve(t *testing.T) {
	contract := func(dir domain.Direction) domain.OptionContract {
		return domain.OptionContract{
			Direction:       dir,
			Stake:           dec("100"),
			EntryPrice:      dec("100"),
			DurationSeconds: 60,
			CreatedAt:       t0,
		}
	}
	p := func(s string) *decimal.Decimal { d := dec(s); return &d }
	expiry := t0.Add(61 * time.Second)

	tests := []struct {
		name       string
		dir        domain.Direction
		price      *decimal.Decimal
		now        time.Time
		due        bool
		wantStatus domain.OptionStatus
		wantPayout string
	}{
		{name: "not yet expired", dir: domain.DirectionUp, price: p("150"), now: t0.Add(59 * time.Second)},
		{name: "expires exactly at duration", dir: domain.DirectionUp, price: p("101"), now: t0.Add(60 * time.Second), due: true, wantStatus: domain.OptionWon, wantPayout: "180"},
		{name: "up wins on rise", dir: domain.DirectionUp, price: p("101"), now: expiry, due: true, wantStatus: domain.OptionWon, wantPayout: "180"},
		{name: "up loses on fall", dir: domain.DirectionUp, price: p("99"), now: expiry, due: true, wantStatus: domain.OptionLost},
		{name: "up loses on equal", dir: domain.DirectionUp, price: p("100"), now: expiry, due: true, wantStatus: domain.OptionLost},
		{name: "down wins on fall", dir: domain.DirectionDown, price: p("99.99"), now: expiry, due: true, wantStatus: domain.OptionWon, wantPayout: "180"},
		{name: "down loses on rise", dir: domain.DirectionDown, price: p("100.01"), now: expiry, due: true, wantStatus: domain.OptionLost},
		{name: "down loses on equal", dir: domain.DirectionDown, price: p("100.00"), now: expiry, due: true, wantStatus: domain.OptionLost},
		{name: "no price expires", dir: domain.DirectionUp, price: nil, now: expiry, due: true, wantStatus: domain.OptionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, due := Resolve(contract(tt.dir), tt.price, tt.now)
			require.Equal(t, tt.due, due)
			if !due {
				return
			}
			assert.Equal(t, tt.wantStatus, res.Status)
			switch tt.wantStatus {
			case domain.OptionWon:
				require.NotNil(t, res.Payout)
				assert.Equal(t, tt.wantPayout, res.Payout.String())
				require.NotNil(t, res.ExitPrice)
			case domain.OptionLost:
				assert.Nil(t, res.Payout)
				require.NotNil(t, res.ExitPrice)
				assert.True(t, res.ExitPrice.Equal(*tt.price))
			case domain.OptionExpired:
				assert.Nil(t, res.Payout)
				assert.Nil(t, res.ExitPrice)
			}
		})
	}
}
