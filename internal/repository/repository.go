package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agenttrader/internal/models"
)

// Repository is the persistence surface shared by the risk coordinator,
// the strategy runner and the HTTP handlers.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Risk limits
	UpsertRiskLimit(ctx context.Context, item *models.RiskLimit) error
	DeleteRiskLimit(ctx context.Context, id uint64) (int64, error)
	GetEnabledRiskLimit(ctx context.Context, scope, accountID, strategyID string) (*models.RiskLimit, error)
	ListRiskLimits(ctx context.Context, params ListRiskLimitsParams) ([]models.RiskLimit, error)

	// Daily state (per scope key, per UTC trading day)
	GetDailyStateForUpdateTx(ctx context.Context, tx *gorm.DB, scopeKey string, day time.Time) (*models.DailyState, error)
	RecordTradeTx(ctx context.Context, tx *gorm.DB, scopeKey string, day time.Time, notional decimal.Decimal, at time.Time) error
	GetDailyState(ctx context.Context, scopeKey string, day time.Time) (*models.DailyState, error)
	ListDailyStates(ctx context.Context, params ListDailyStatesParams) ([]models.DailyState, error)

	// Decision log
	InsertDecisionRecord(ctx context.Context, item *models.DecisionRecord) error
	ListDecisionRecords(ctx context.Context, params ListDecisionRecordsParams) ([]models.DecisionRecord, error)
	CountDecisionRecords(ctx context.Context, params ListDecisionRecordsParams) (int64, error)

	// Market data
	UpsertBars(ctx context.Context, items []models.Bar) error
	InsertFlowEvents(ctx context.Context, items []models.FlowEvent) error
	ListRecentBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error)
	ListRecentFlowEvents(ctx context.Context, symbol string, since time.Time, limit int) ([]models.FlowEvent, error)

	// Paper trades
	InsertPaperTrade(ctx context.Context, item *models.PaperTrade) error
	ClosePaperTrade(ctx context.Context, id uint64, realized decimal.Decimal, closedAt time.Time) error
	CountOpenPositions(ctx context.Context, accountID, strategyID string) (int64, error)
	SumRealizedPnLSince(ctx context.Context, accountID, strategyID string, since time.Time) (decimal.Decimal, error)
	ListPaperTrades(ctx context.Context, params ListPaperTradesParams) ([]models.PaperTrade, error)

	// Strategies
	UpsertStrategy(ctx context.Context, item *models.Strategy) error
	GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error)
	ListStrategies(ctx context.Context, enabledOnly bool) ([]models.Strategy, error)
	SetStrategyEnabled(ctx context.Context, name string, enabled bool) (int64, error)
}

type ListRiskLimitsParams struct {
	Scope      *string
	AccountID  *string
	StrategyID *string
	Limit      int
	Offset     int
}

type ListDailyStatesParams struct {
	ScopeKey *string
	Day      *time.Time
	Limit    int
	Offset   int
}

type ListDecisionRecordsParams struct {
	StrategyName *string
	Symbol       *string
	Decision     *string
	DidTrade     *bool
	Since        *time.Time
	OrderBy      string
	Asc          bool
	Limit        int
	Offset       int
}

type ListPaperTradesParams struct {
	AccountID  *string
	StrategyID *string
	Symbol     *string
	Status     *string
	Limit      int
	Offset     int
}
