package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyState is one row per (scope key, trading day). Rows are created
// lazily on the first admission for that key and day, counters only ever
// increase, and only the admission coordinator's commit step writes them.
// Rows are kept after the day rolls over for audit.
type DailyState struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ScopeKey   string    `gorm:"type:varchar(120);not null;uniqueIndex:idx_daily_state_day;index"`
	TradingDay time.Time `gorm:"type:date;not null;uniqueIndex:idx_daily_state_day;index"`

	TradesPlaced   int             `gorm:"not null;default:0"`
	NotionalTraded decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	LastTradeAt    *time.Time      `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DailyState) TableName() string {
	return "daily_states"
}
