package models

import (
	"time"

	"gorm.io/datatypes"
)

// Decision values recorded in the decision log.
const (
	DecisionBuy  = "buy"
	DecisionSell = "sell"
	DecisionFlat = "flat"
)

// DecisionRecord is the append-only audit row for every decision the
// strategy runner makes, admitted or not. Rows are never updated.
type DecisionRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	StrategyName string `gorm:"type:varchar(50);not null;index"`
	AccountID    string `gorm:"type:varchar(100);not null;index"`
	StrategyID   string `gorm:"type:varchar(100);not null;default:''"`
	Symbol       string `gorm:"type:varchar(20);not null;index"`

	Decision string `gorm:"type:varchar(10);not null;index"`
	Reason   string `gorm:"type:text"`

	// SignalPayload is the engine's signal snapshot, stored verbatim for
	// reproducibility regardless of whether the trade was admitted.
	SignalPayload datatypes.JSON `gorm:"type:jsonb"`

	DidTrade bool    `gorm:"not null;default:false;index"`
	TradeID  *uint64 `gorm:"index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (DecisionRecord) TableName() string {
	return "decision_log"
}
