package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Paper trade statuses.
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// PaperTrade is an admitted execution recorded by the paper broker. Open
// rows are what the risk gate counts as open positions; RealizedPnL is set
// when a row is closed and feeds the day-loss input.
type PaperTrade struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// ClientOrderID is assigned by the broker on placement and is unique
	// per trade.
	ClientOrderID string `gorm:"type:varchar(40);uniqueIndex;not null"`

	AccountID  string `gorm:"type:varchar(100);not null;index"`
	StrategyID string `gorm:"type:varchar(100);not null;default:'';index"`

	Symbol string `gorm:"type:varchar(20);not null;index"`
	Side   string `gorm:"type:varchar(10);not null"`

	Qty      decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Price    decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Notional decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Status      string           `gorm:"type:varchar(10);not null;default:'open';index"`
	RealizedPnL *decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10)"`

	PlacedAt time.Time  `gorm:"type:timestamptz;not null;index"`
	ClosedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PaperTrade) TableName() string {
	return "paper_trades"
}
