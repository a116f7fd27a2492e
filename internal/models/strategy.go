package models

import (
	"time"

	"gorm.io/datatypes"
)

// Strategy is a configured strategy: which account it trades, which symbols
// it scans, and its params blob. The runner only picks up enabled rows.
type Strategy struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Name        string `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName string `gorm:"type:varchar(100);not null"`
	AccountID   string `gorm:"type:varchar(100);not null;index"`
	// StrategyID is the external identifier used as the strategy scope key.
	StrategyID string `gorm:"type:varchar(100);not null;index"`

	Symbols datatypes.JSON `gorm:"type:jsonb;not null"`
	Enabled bool           `gorm:"default:false;index"`
	Params  datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}
