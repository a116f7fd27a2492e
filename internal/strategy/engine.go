package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"agenttrader/internal/broker"
	"agenttrader/internal/models"
	"agenttrader/internal/repository"
	"agenttrader/internal/risk"
)

// Admitter is satisfied by risk.Coordinator.
type Admitter interface {
	TryAdmit(ctx context.Context, p risk.Proposal, snap risk.Snapshot) (risk.Decision, error)
	Check(ctx context.Context, p risk.Proposal, snap risk.Snapshot) (risk.Decision, error)
}

type Config struct {
	BarLookback  int
	FlowLookback time.Duration
	SMAWindow    int
	UnitQty      decimal.Decimal
	DryRun       bool
}

// Runner drives one evaluation pass: for every enabled strategy row and
// every symbol it watches, fetch data, decide, run the admission gate and
// log the outcome. Every decision lands in the decision log whether or not
// a trade happened.
type Runner struct {
	Repo      repository.Repository
	Admission Admitter
	Broker    broker.Broker
	Logger    *zap.Logger
	Config    Config

	now func() time.Time
}

func NewRunner(repo repository.Repository, admission Admitter, b broker.Broker, logger *zap.Logger, cfg Config) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BarLookback <= 0 {
		cfg.BarLookback = 50
	}
	if cfg.FlowLookback <= 0 {
		cfg.FlowLookback = time.Hour
	}
	if cfg.SMAWindow < 2 {
		cfg.SMAWindow = defaultSMAWindow
	}
	if !cfg.UnitQty.IsPositive() {
		cfg.UnitQty = decimal.NewFromInt(1)
	}
	return &Runner{
		Repo:      repo,
		Admission: admission,
		Broker:    b,
		Logger:    logger,
		Config:    cfg,
		now:       time.Now,
	}
}

// flowTrendParams are the per-row overrides stored in strategies.params.
type flowTrendParams struct {
	SMAWindow           *int    `json:"sma_window"`
	BarLookback         *int    `json:"bar_lookback"`
	FlowLookbackMinutes *int    `json:"flow_lookback_minutes"`
	UnitQty             *string `json:"unit_qty"`
	DryRun              *bool   `json:"dry_run"`
}

func (r *Runner) RunOnce(ctx context.Context) error {
	strategies, err := r.Repo.ListStrategies(ctx, true)
	if err != nil {
		return fmt.Errorf("list strategies: %w", err)
	}
	for _, st := range strategies {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.runStrategy(ctx, st)
	}
	return nil
}

func (r *Runner) runStrategy(ctx context.Context, st models.Strategy) {
	var symbols []string
	if err := json.Unmarshal(st.Symbols, &symbols); err != nil {
		r.Logger.Error("bad symbols config",
			zap.String("strategy", st.Name), zap.Error(err))
		return
	}
	cfg := r.effectiveConfig(st)
	for _, symbol := range symbols {
		if symbol == "" {
			continue
		}
		r.evaluateSymbol(ctx, st, symbol, cfg)
	}
}

func (r *Runner) effectiveConfig(st models.Strategy) Config {
	cfg := r.Config
	if len(st.Params) == 0 {
		return cfg
	}
	var params flowTrendParams
	if err := json.Unmarshal(st.Params, &params); err != nil {
		r.Logger.Warn("bad strategy params, using defaults",
			zap.String("strategy", st.Name), zap.Error(err))
		return cfg
	}
	if params.SMAWindow != nil && *params.SMAWindow >= 2 {
		cfg.SMAWindow = *params.SMAWindow
	}
	if params.BarLookback != nil && *params.BarLookback > 0 {
		cfg.BarLookback = *params.BarLookback
	}
	if params.FlowLookbackMinutes != nil && *params.FlowLookbackMinutes > 0 {
		cfg.FlowLookback = time.Duration(*params.FlowLookbackMinutes) * time.Minute
	}
	if params.UnitQty != nil {
		if qty, err := decimal.NewFromString(*params.UnitQty); err == nil && qty.IsPositive() {
			cfg.UnitQty = qty
		}
	}
	if params.DryRun != nil {
		cfg.DryRun = *params.DryRun
	}
	return cfg
}

func (r *Runner) evaluateSymbol(ctx context.Context, st models.Strategy, symbol string, cfg Config) {
	now := r.now().UTC()
	bars, err := r.Repo.ListRecentBars(ctx, symbol, cfg.BarLookback)
	if err != nil {
		r.Logger.Error("load bars failed",
			zap.String("strategy", st.Name), zap.String("symbol", symbol), zap.Error(err))
		return
	}
	flow, err := r.Repo.ListRecentFlowEvents(ctx, symbol, now.Add(-cfg.FlowLookback), 500)
	if err != nil {
		r.Logger.Error("load flow failed",
			zap.String("strategy", st.Name), zap.String("symbol", symbol), zap.Error(err))
		return
	}

	verdict := DecideFlowTrend(bars, flow, cfg.SMAWindow)
	if verdict.Decision != models.DecisionBuy {
		r.logDecision(ctx, st, symbol, verdict, false, nil)
		return
	}

	price := bars[0].Close
	notional := price.Mul(cfg.UnitQty)
	proposal := risk.Proposal{
		AccountID:  st.AccountID,
		StrategyID: st.StrategyID,
		Symbol:     symbol,
		Side:       "buy",
		Notional:   notional,
	}

	if cfg.DryRun {
		decision, err := r.Admission.Check(ctx, proposal, risk.Snapshot{})
		if err != nil {
			verdict.Reason = "admission unavailable: " + err.Error()
		} else if decision.Allowed {
			verdict.Reason = "dry run: would buy " + cfg.UnitQty.String() + " " + symbol
		} else {
			verdict.Reason = "blocked by risk gate: " + decision.Reason
		}
		r.logDecision(ctx, st, symbol, verdict, false, nil)
		return
	}

	decision, err := r.Admission.TryAdmit(ctx, proposal, risk.Snapshot{})
	if err != nil {
		r.Logger.Error("admission failed",
			zap.String("strategy", st.Name), zap.String("symbol", symbol), zap.Error(err))
		verdict.Reason = "admission unavailable: " + err.Error()
		r.logDecision(ctx, st, symbol, verdict, false, nil)
		return
	}
	if !decision.Allowed {
		verdict.Reason = "blocked by risk gate: " + decision.Reason
		r.logDecision(ctx, st, symbol, verdict, false, nil)
		return
	}

	tradeID, err := r.Broker.PlaceOrder(ctx, broker.Order{
		AccountID:  st.AccountID,
		StrategyID: st.StrategyID,
		Symbol:     symbol,
		Side:       "buy",
		Qty:        cfg.UnitQty,
		Price:      price,
		Notional:   notional,
		PlacedAt:   now,
	})
	if err != nil {
		// Admission already charged the day's counters; the gap shows up
		// in the decision log.
		r.Logger.Error("order placement failed after admission",
			zap.String("strategy", st.Name), zap.String("symbol", symbol), zap.Error(err))
		verdict.Reason = "execution failed: " + err.Error()
		r.logDecision(ctx, st, symbol, verdict, false, nil)
		return
	}
	r.logDecision(ctx, st, symbol, verdict, true, &tradeID)
}

func (r *Runner) logDecision(ctx context.Context, st models.Strategy, symbol string, verdict Verdict, didTrade bool, tradeID *uint64) {
	payload, err := json.Marshal(verdict.Signal)
	if err != nil {
		r.Logger.Error("marshal signal payload failed",
			zap.String("strategy", st.Name), zap.Error(err))
		payload = []byte(`{}`)
	}
	record := models.DecisionRecord{
		StrategyName:  st.Name,
		AccountID:     st.AccountID,
		StrategyID:    st.StrategyID,
		Symbol:        symbol,
		Decision:      verdict.Decision,
		Reason:        verdict.Reason,
		SignalPayload: datatypes.JSON(payload),
		DidTrade:      didTrade,
		TradeID:       tradeID,
	}
	if err := r.Repo.InsertDecisionRecord(ctx, &record); err != nil {
		r.Logger.Error("decision log append failed",
			zap.String("strategy", st.Name),
			zap.String("symbol", symbol),
			zap.String("decision", verdict.Decision),
			zap.Error(err))
	}
}

// EnsureStrategy writes the config-seeded strategy row if no row with that
// name exists yet. Operator edits to an existing row win over config.
func (r *Runner) EnsureStrategy(ctx context.Context, name, displayName, accountID, strategyID string, symbols []string, enabled bool) error {
	existing, err := r.Repo.GetStrategyByName(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	raw, err := json.Marshal(symbols)
	if err != nil {
		return err
	}
	return r.Repo.UpsertStrategy(ctx, &models.Strategy{
		Name:        name,
		DisplayName: displayName,
		AccountID:   accountID,
		StrategyID:  strategyID,
		Symbols:     datatypes.JSON(raw),
		Enabled:     enabled,
	})
}
