package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a normalised price snapshot for one instrument.
type Quote struct {
	Ticker        string          `json:"ticker"`
	Price         decimal.Decimal `json:"price"`
	PercentChange decimal.Decimal `json:"percent_change"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Candle is one OHLC bar used by the chart endpoint.
type Candle struct {
	OpenTime time.Time       `json:"time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
}
