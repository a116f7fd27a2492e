package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agenttrader/internal/models"
	"agenttrader/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Runner tests only exercise the strategy, market-data and decision-log
// methods; the rest are no-ops.
type stubRepo struct {
	strategies []models.Strategy
	bars       map[string][]models.Bar
	flow       map[string][]models.FlowEvent

	decisions []models.DecisionRecord
	trades    []models.PaperTrade

	barsErr     error
	decisionErr error
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) UpsertRiskLimit(ctx context.Context, item *models.RiskLimit) error { return nil }
func (s *stubRepo) DeleteRiskLimit(ctx context.Context, id uint64) (int64, error)     { return 0, nil }

func (s *stubRepo) GetEnabledRiskLimit(ctx context.Context, scope, accountID, strategyID string) (*models.RiskLimit, error) {
	return nil, nil
}

func (s *stubRepo) ListRiskLimits(ctx context.Context, params repository.ListRiskLimitsParams) ([]models.RiskLimit, error) {
	return nil, nil
}

func (s *stubRepo) GetDailyStateForUpdateTx(ctx context.Context, tx *gorm.DB, scopeKey string, day time.Time) (*models.DailyState, error) {
	return &models.DailyState{ScopeKey: scopeKey, TradingDay: day}, nil
}

func (s *stubRepo) RecordTradeTx(ctx context.Context, tx *gorm.DB, scopeKey string, day time.Time, notional decimal.Decimal, at time.Time) error {
	return nil
}

func (s *stubRepo) GetDailyState(ctx context.Context, scopeKey string, day time.Time) (*models.DailyState, error) {
	return nil, nil
}

func (s *stubRepo) ListDailyStates(ctx context.Context, params repository.ListDailyStatesParams) ([]models.DailyState, error) {
	return nil, nil
}

func (s *stubRepo) InsertDecisionRecord(ctx context.Context, item *models.DecisionRecord) error {
	if s.decisionErr != nil {
		return s.decisionErr
	}
	s.decisions = append(s.decisions, *item)
	return nil
}

func (s *stubRepo) ListDecisionRecords(ctx context.Context, params repository.ListDecisionRecordsParams) ([]models.DecisionRecord, error) {
	return append([]models.DecisionRecord(nil), s.decisions...), nil
}

func (s *stubRepo) CountDecisionRecords(ctx context.Context, params repository.ListDecisionRecordsParams) (int64, error) {
	return int64(len(s.decisions)), nil
}

func (s *stubRepo) UpsertBars(ctx context.Context, items []models.Bar) error { return nil }

func (s *stubRepo) InsertFlowEvents(ctx context.Context, items []models.FlowEvent) error { return nil }

func (s *stubRepo) ListRecentBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	if s.barsErr != nil {
		return nil, s.barsErr
	}
	bars := s.bars[symbol]
	if limit > 0 && len(bars) > limit {
		bars = bars[:limit]
	}
	return bars, nil
}

func (s *stubRepo) ListRecentFlowEvents(ctx context.Context, symbol string, since time.Time, limit int) ([]models.FlowEvent, error) {
	return s.flow[symbol], nil
}

func (s *stubRepo) InsertPaperTrade(ctx context.Context, item *models.PaperTrade) error {
	item.ID = uint64(len(s.trades) + 1)
	s.trades = append(s.trades, *item)
	return nil
}

func (s *stubRepo) ClosePaperTrade(ctx context.Context, id uint64, realized decimal.Decimal, closedAt time.Time) error {
	return nil
}

func (s *stubRepo) CountOpenPositions(ctx context.Context, accountID, strategyID string) (int64, error) {
	return 0, nil
}

func (s *stubRepo) SumRealizedPnLSince(ctx context.Context, accountID, strategyID string, since time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubRepo) ListPaperTrades(ctx context.Context, params repository.ListPaperTradesParams) ([]models.PaperTrade, error) {
	return append([]models.PaperTrade(nil), s.trades...), nil
}

func (s *stubRepo) UpsertStrategy(ctx context.Context, item *models.Strategy) error {
	s.strategies = append(s.strategies, *item)
	return nil
}

func (s *stubRepo) GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error) {
	for i := range s.strategies {
		if s.strategies[i].Name == name {
			return &s.strategies[i], nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListStrategies(ctx context.Context, enabledOnly bool) ([]models.Strategy, error) {
	if !enabledOnly {
		return append([]models.Strategy(nil), s.strategies...), nil
	}
	var out []models.Strategy
	for _, st := range s.strategies {
		if st.Enabled {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *stubRepo) SetStrategyEnabled(ctx context.Context, name string, enabled bool) (int64, error) {
	return 0, nil
}

var _ repository.Repository = (*stubRepo)(nil)
