package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agenttrader/internal/models"
	"agenttrader/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Risk limits ------------------------------------------------------------

func (s *Store) UpsertRiskLimit(ctx context.Context, item *models.RiskLimit) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}, {Name: "account_id"}, {Name: "strategy_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"max_notional_per_trade",
			"max_trades_per_day",
			"max_open_positions",
			"max_loss_per_day",
			"max_drawdown_per_day",
			"max_notional_per_day",
			"cool_down_minutes",
			"enabled",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeleteRiskLimit(ctx context.Context, id uint64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.RiskLimit{})
	return res.RowsAffected, res.Error
}

func (s *Store) GetEnabledRiskLimit(ctx context.Context, scope, accountID, strategyID string) (*models.RiskLimit, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.RiskLimit
	err := s.db.WithContext(ctx).
		Where("scope = ?", scope).
		Where("account_id = ?", accountID).
		Where("strategy_id = ?", strategyID).
		Where("enabled = ?", true).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRiskLimits(ctx context.Context, params repository.ListRiskLimitsParams) ([]models.RiskLimit, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.RiskLimit{})
	if params.Scope != nil && strings.TrimSpace(*params.Scope) != "" {
		query = query.Where("scope = ?", strings.TrimSpace(*params.Scope))
	}
	if params.AccountID != nil && strings.TrimSpace(*params.AccountID) != "" {
		query = query.Where("account_id = ?", strings.TrimSpace(*params.AccountID))
	}
	if params.StrategyID != nil && strings.TrimSpace(*params.StrategyID) != "" {
		query = query.Where("strategy_id = ?", strings.TrimSpace(*params.StrategyID))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.RiskLimit
	if err := query.Order("scope asc, account_id asc, strategy_id asc").
		Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Daily state ------------------------------------------------------------

// GetDailyStateForUpdateTx returns the row for (scopeKey, day), creating it
// when missing, with a row lock held for the rest of tx. The create goes
// through an ON CONFLICT DO NOTHING so two transactions racing on the first
// trade of the day converge on the same row.
func (s *Store) GetDailyStateForUpdateTx(ctx context.Context, tx *gorm.DB, scopeKey string, day time.Time) (*models.DailyState, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if tx == nil {
		tx = s.db
	}
	day = dayUTC(day)
	var item models.DailyState
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope_key = ?", scopeKey).
		Where("trading_day = ?", day).
		First(&item).Error
	if err == nil {
		return &item, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	fresh := models.DailyState{
		ScopeKey:       scopeKey,
		TradingDay:     day,
		NotionalTraded: decimal.Zero,
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope_key"}, {Name: "trading_day"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope_key = ?", scopeKey).
		Where("trading_day = ?", day).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) RecordTradeTx(ctx context.Context, tx *gorm.DB, scopeKey string, day time.Time, notional decimal.Decimal, at time.Time) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	if tx == nil {
		tx = s.db
	}
	day = dayUTC(day)
	res := tx.WithContext(ctx).Model(&models.DailyState{}).
		Where("scope_key = ?", scopeKey).
		Where("trading_day = ?", day).
		Updates(map[string]interface{}{
			"trades_placed":   gorm.Expr("trades_placed + 1"),
			"notional_traded": gorm.Expr("notional_traded + ?", notional),
			"last_trade_at":   at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) GetDailyState(ctx context.Context, scopeKey string, day time.Time) (*models.DailyState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.DailyState
	err := s.db.WithContext(ctx).
		Where("scope_key = ?", scopeKey).
		Where("trading_day = ?", dayUTC(day)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListDailyStates(ctx context.Context, params repository.ListDailyStatesParams) ([]models.DailyState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailyState{})
	if params.ScopeKey != nil && strings.TrimSpace(*params.ScopeKey) != "" {
		query = query.Where("scope_key = ?", strings.TrimSpace(*params.ScopeKey))
	}
	if params.Day != nil && !params.Day.IsZero() {
		query = query.Where("trading_day = ?", dayUTC(*params.Day))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.DailyState
	if err := query.Order("trading_day desc, scope_key asc").
		Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Decision log -----------------------------------------------------------

func (s *Store) InsertDecisionRecord(ctx context.Context, item *models.DecisionRecord) error {
	if s == nil || s.db == nil || item == nil {
		return gorm.ErrInvalidDB
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListDecisionRecords(ctx context.Context, params repository.ListDecisionRecordsParams) ([]models.DecisionRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyDecisionFilters(s.db.WithContext(ctx).Model(&models.DecisionRecord{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.DecisionRecord
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountDecisionRecords(ctx context.Context, params repository.ListDecisionRecordsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	query := applyDecisionFilters(s.db.WithContext(ctx).Model(&models.DecisionRecord{}), params)
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyDecisionFilters(query *gorm.DB, params repository.ListDecisionRecordsParams) *gorm.DB {
	if params.StrategyName != nil && strings.TrimSpace(*params.StrategyName) != "" {
		query = query.Where("strategy_name = ?", strings.TrimSpace(*params.StrategyName))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Decision != nil && strings.TrimSpace(*params.Decision) != "" {
		query = query.Where("decision = ?", strings.TrimSpace(*params.Decision))
	}
	if params.DidTrade != nil {
		query = query.Where("did_trade = ?", *params.DidTrade)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

// --- Market data ------------------------------------------------------------

func (s *Store) UpsertBars(ctx context.Context, items []models.Bar) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "ts"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open",
			"high",
			"low",
			"close",
			"volume",
		}),
	}).CreateInBatches(items, 200).Error
}

func (s *Store) InsertFlowEvents(ctx context.Context, items []models.FlowEvent) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (s *Store) ListRecentBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	limit = normalizeLimit(limit, 50)
	var items []models.Bar
	if err := s.db.WithContext(ctx).
		Model(&models.Bar{}).
		Where("symbol = ?", symbol).
		Order("ts desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListRecentFlowEvents(ctx context.Context, symbol string, since time.Time, limit int) ([]models.FlowEvent, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	limit = normalizeLimit(limit, 500)
	query := s.db.WithContext(ctx).
		Model(&models.FlowEvent{}).
		Where("symbol = ?", symbol)
	if !since.IsZero() {
		query = query.Where("event_ts >= ?", since)
	}
	var items []models.FlowEvent
	if err := query.Order("event_ts desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Paper trades -----------------------------------------------------------

func (s *Store) InsertPaperTrade(ctx context.Context, item *models.PaperTrade) error {
	if s == nil || s.db == nil || item == nil {
		return gorm.ErrInvalidDB
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ClosePaperTrade(ctx context.Context, id uint64, realized decimal.Decimal, closedAt time.Time) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	res := s.db.WithContext(ctx).Model(&models.PaperTrade{}).
		Where("id = ?", id).
		Where("status = ?", models.TradeStatusOpen).
		Updates(map[string]interface{}{
			"status":       models.TradeStatusClosed,
			"realized_pnl": realized,
			"closed_at":    closedAt,
			"updated_at":   closedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) CountOpenPositions(ctx context.Context, accountID, strategyID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, gorm.ErrInvalidDB
	}
	query := s.db.WithContext(ctx).Model(&models.PaperTrade{}).
		Where("account_id = ?", accountID).
		Where("status = ?", models.TradeStatusOpen)
	if strings.TrimSpace(strategyID) != "" {
		query = query.Where("strategy_id = ?", strategyID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) SumRealizedPnLSince(ctx context.Context, accountID, strategyID string, since time.Time) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, gorm.ErrInvalidDB
	}
	query := s.db.WithContext(ctx).Model(&models.PaperTrade{}).
		Where("account_id = ?", accountID).
		Where("status = ?", models.TradeStatusClosed).
		Where("realized_pnl IS NOT NULL")
	if strings.TrimSpace(strategyID) != "" {
		query = query.Where("strategy_id = ?", strategyID)
	}
	if !since.IsZero() {
		query = query.Where("closed_at >= ?", since)
	}
	// Scanned as text so the sum stays exact for the day-loss boundary.
	var raw string
	if err := query.Select("COALESCE(SUM(realized_pnl),0)::text").Scan(&raw).Error; err != nil {
		return decimal.Zero, err
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	return value, nil
}

func (s *Store) ListPaperTrades(ctx context.Context, params repository.ListPaperTradesParams) ([]models.PaperTrade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PaperTrade{})
	if params.AccountID != nil && strings.TrimSpace(*params.AccountID) != "" {
		query = query.Where("account_id = ?", strings.TrimSpace(*params.AccountID))
	}
	if params.StrategyID != nil && strings.TrimSpace(*params.StrategyID) != "" {
		query = query.Where("strategy_id = ?", strings.TrimSpace(*params.StrategyID))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.PaperTrade
	if err := query.Order("placed_at desc").
		Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Strategies -------------------------------------------------------------

func (s *Store) UpsertStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name",
			"account_id",
			"strategy_id",
			"symbols",
			"enabled",
			"params",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStrategies(ctx context.Context, enabledOnly bool) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Strategy{})
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	var items []models.Strategy
	if err := query.Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetStrategyEnabled(ctx context.Context, name string, enabled bool) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Strategy{}).
		Where("name = ?", strings.TrimSpace(name)).
		Updates(map[string]interface{}{
			"enabled":    enabled,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// --- helpers ----------------------------------------------------------------

func dayUTC(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func applyOrder(query *gorm.DB, orderBy string, asc bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	switch column {
	case "created_at", "symbol", "decision", "strategy_name":
	default:
		column = fallback
	}
	direction := "desc"
	if asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
