package risk

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agenttrader/internal/models"
	"agenttrader/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// It is safe for concurrent use so coordinator tests can race admissions
// against it.
type stubRepo struct {
	mu       sync.Mutex
	limits   []models.RiskLimit
	states   map[string]*models.DailyState
	open     map[string]int64
	realized map[string]decimal.Decimal

	decisions []models.DecisionRecord
	trades    []models.PaperTrade

	txErr    error
	limitErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		states:   map[string]*models.DailyState{},
		open:     map[string]int64{},
		realized: map[string]decimal.Decimal{},
	}
}

func stateKey(scopeKey string, day time.Time) string {
	return scopeKey + "|" + day.UTC().Format("2006-01-02")
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.txErr != nil {
		return s.txErr
	}
	return fn(nil)
}

func (s *stubRepo) UpsertRiskLimit(ctx context.Context, item *models.RiskLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, *item)
	return nil
}

func (s *stubRepo) DeleteRiskLimit(ctx context.Context, id uint64) (int64, error) { return 0, nil }

func (s *stubRepo) GetEnabledRiskLimit(ctx context.Context, scope, accountID, strategyID string) (*models.RiskLimit, error) {
	if s.limitErr != nil {
		return nil, s.limitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.limits {
		l := s.limits[i]
		if l.Scope == scope && l.AccountID == accountID && l.StrategyID == strategyID && l.Enabled {
			return &l, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListRiskLimits(ctx context.Context, params repository.ListRiskLimitsParams) ([]models.RiskLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RiskLimit(nil), s.limits...), nil
}

func (s *stubRepo) GetDailyStateForUpdateTx(ctx context.Context, tx *gorm.DB, scopeKey string, day time.Time) (*models.DailyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stateKey(scopeKey, day)
	state, ok := s.states[key]
	if !ok {
		state = &models.DailyState{
			ScopeKey:       scopeKey,
			TradingDay:     day.UTC().Truncate(24 * time.Hour),
			NotionalTraded: decimal.Zero,
		}
		s.states[key] = state
	}
	copied := *state
	return &copied, nil
}

func (s *stubRepo) RecordTradeTx(ctx context.Context, tx *gorm.DB, scopeKey string, day time.Time, notional decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[stateKey(scopeKey, day)]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	state.TradesPlaced++
	state.NotionalTraded = state.NotionalTraded.Add(notional)
	ts := at
	state.LastTradeAt = &ts
	return nil
}

func (s *stubRepo) GetDailyState(ctx context.Context, scopeKey string, day time.Time) (*models.DailyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[stateKey(scopeKey, day)]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (s *stubRepo) ListDailyStates(ctx context.Context, params repository.ListDailyStatesParams) ([]models.DailyState, error) {
	return nil, nil
}

func (s *stubRepo) InsertDecisionRecord(ctx context.Context, item *models.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, *item)
	return nil
}

func (s *stubRepo) ListDecisionRecords(ctx context.Context, params repository.ListDecisionRecordsParams) ([]models.DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DecisionRecord(nil), s.decisions...), nil
}

func (s *stubRepo) CountDecisionRecords(ctx context.Context, params repository.ListDecisionRecordsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.decisions)), nil
}

func (s *stubRepo) UpsertBars(ctx context.Context, items []models.Bar) error { return nil }

func (s *stubRepo) InsertFlowEvents(ctx context.Context, items []models.FlowEvent) error {
	return nil
}

func (s *stubRepo) ListRecentBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	return nil, nil
}

func (s *stubRepo) ListRecentFlowEvents(ctx context.Context, symbol string, since time.Time, limit int) ([]models.FlowEvent, error) {
	return nil, nil
}

func (s *stubRepo) InsertPaperTrade(ctx context.Context, item *models.PaperTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = uint64(len(s.trades) + 1)
	s.trades = append(s.trades, *item)
	return nil
}

func (s *stubRepo) ClosePaperTrade(ctx context.Context, id uint64, realized decimal.Decimal, closedAt time.Time) error {
	return nil
}

func (s *stubRepo) CountOpenPositions(ctx context.Context, accountID, strategyID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[accountID+"|"+strategyID], nil
}

func (s *stubRepo) SumRealizedPnLSince(ctx context.Context, accountID, strategyID string, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.realized[accountID+"|"+strategyID]; ok {
		return v, nil
	}
	return decimal.Zero, nil
}

func (s *stubRepo) ListPaperTrades(ctx context.Context, params repository.ListPaperTradesParams) ([]models.PaperTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PaperTrade(nil), s.trades...), nil
}

func (s *stubRepo) UpsertStrategy(ctx context.Context, item *models.Strategy) error { return nil }

func (s *stubRepo) GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error) {
	return nil, nil
}

func (s *stubRepo) ListStrategies(ctx context.Context, enabledOnly bool) ([]models.Strategy, error) {
	return nil, nil
}

func (s *stubRepo) SetStrategyEnabled(ctx context.Context, name string, enabled bool) (int64, error) {
	return 0, nil
}

var _ repository.Repository = (*stubRepo)(nil)
