package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStakeProgress(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Stake{
		Amount:      decimal.NewFromInt(200),
		RatePercent: decimal.RequireFromString("4.8"),
		PeriodDays:  7,
		StartAt:     start,
		EndAt:       start.Add(7 * 24 * time.Hour),
	}
	assert.Equal(t, "9.6", s.Reward().String())

	tests := []struct {
		name    string
		now     time.Time
		days    int
		percent string
		accrued string
		unstake bool
	}{
		{name: "at start", now: start, days: 0, percent: "0", accrued: "0", unstake: false},
		{name: "partial day floors", now: start.Add(47 * time.Hour), days: 1, percent: "14.29", accrued: "1.37", unstake: false},
		{name: "halfway-ish", now: start.Add(84 * time.Hour), days: 3, percent: "42.86", accrued: "4.11", unstake: false},
		{name: "at maturity", now: start.Add(7 * 24 * time.Hour), days: 7, percent: "100", accrued: "9.6", unstake: true},
		{name: "after maturity caps", now: start.Add(30 * 24 * time.Hour), days: 30, percent: "100", accrued: "9.6", unstake: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := s.Progress(tt.now)
			assert.Equal(t, tt.days, p.DaysStaked)
			assert.Equal(t, tt.percent, p.Percent.String())
			assert.Equal(t, tt.accrued, p.AccruedRewards.Round(2).String())
			assert.Equal(t, tt.unstake, p.CanUnstake)
			assert.Equal(t, "9.6", p.TotalRewards.String())
		})
	}
}
