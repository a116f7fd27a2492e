package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV candle. Bars are upserted by the ingest stream and read
// most-recent-first by the strategy runner.
type Bar struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Symbol string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_bar_symbol_ts"`
	TS     time.Time `gorm:"column:ts;type:timestamptz;not null;uniqueIndex:idx_bar_symbol_ts;index"`

	Open   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	High   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Low    decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Close  decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Volume int64           `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Bar) TableName() string {
	return "market_bars"
}

// FlowEvent is one options-flow print. Side is "buy" or "sell"; notional is
// the signed-by-side money amount the decision engine sums for flow bias.
type FlowEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Symbol       string `gorm:"type:varchar(20);not null;index"`
	OptionSymbol string `gorm:"type:varchar(40);not null"`
	Side         string `gorm:"type:varchar(10);not null"`

	Size     int64           `gorm:"not null"`
	Notional decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	EventTS time.Time `gorm:"column:event_ts;type:timestamptz;not null;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (FlowEvent) TableName() string {
	return "flow_events"
}
