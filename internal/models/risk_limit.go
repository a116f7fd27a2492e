package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Limit scopes. A strategy-scope limit is the more specific one and is
// evaluated before the account-scope limit.
const (
	ScopeAccount  = "account"
	ScopeStrategy = "strategy"
)

// RiskLimit is one configured limit row per (scope, scope key). All
// thresholds are optional; a nil threshold never triggers. Money-like
// values are numeric so boundary comparisons stay exact.
type RiskLimit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Scope     string `gorm:"type:varchar(20);not null;uniqueIndex:idx_risk_limit_scope"`
	AccountID string `gorm:"type:varchar(100);not null;uniqueIndex:idx_risk_limit_scope;index"`
	// StrategyID is empty for account-scope rows.
	StrategyID string `gorm:"type:varchar(100);not null;default:'';uniqueIndex:idx_risk_limit_scope;index"`

	MaxNotionalPerTrade *decimal.Decimal `gorm:"type:numeric(30,10)"`
	MaxTradesPerDay     *int
	MaxOpenPositions    *int
	MaxLossPerDay       *decimal.Decimal `gorm:"type:numeric(30,10)"`
	MaxDrawdownPerDay   *decimal.Decimal `gorm:"type:numeric(30,10)"`
	MaxNotionalPerDay   *decimal.Decimal `gorm:"type:numeric(30,10)"`
	CoolDownMinutes     *int

	Enabled bool `gorm:"not null;default:true;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (RiskLimit) TableName() string {
	return "risk_limits"
}
