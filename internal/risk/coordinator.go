package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"agenttrader/internal/models"
	"agenttrader/internal/repository"
)

const defaultLockTimeout = 3 * time.Second

// Snapshot carries caller-side inputs the store cannot derive. DayDrawdown
// has no persisted source, so it only ever comes from here; the other
// fields override the store-derived values when set.
type Snapshot struct {
	DayLoss     *decimal.Decimal
	DayDrawdown *decimal.Decimal
}

// Coordinator serializes admissions per scope key and makes the
// evaluate-and-charge step atomic. Concurrent proposals on disjoint scope
// keys do not contend.
type Coordinator struct {
	repo        repository.Repository
	logger      *zap.Logger
	locks       *keyedMutex
	lockTimeout time.Duration
	now         func() time.Time
}

func NewCoordinator(repo repository.Repository, logger *zap.Logger, lockTimeout time.Duration) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Coordinator{
		repo:        repo,
		logger:      logger,
		locks:       newKeyedMutex(),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// Check evaluates the proposal against current limits and state without
// locking or charging anything. The verdict is advisory: state may change
// between a Check and a later TryAdmit.
func (c *Coordinator) Check(ctx context.Context, p Proposal, snap Snapshot) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	now := c.now().UTC()
	limits, err := c.loadLimits(ctx, p)
	if err != nil {
		return Decision{}, err
	}
	inputs := map[string]GateInputs{}
	for scope, key := range scopeKeys(p) {
		state, err := c.repo.GetDailyState(ctx, key, now)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		in, err := c.buildInputs(ctx, p, scope, state, snap, now)
		if err != nil {
			return Decision{}, err
		}
		inputs[scope] = in
	}
	return Evaluate(p, limits, inputs, now), nil
}

// TryAdmit decides and, when allowed, charges the day's counters on both
// scope keys in one transaction. Exactly one of the returned decision or
// error is meaningful: on any error nothing was charged.
func (c *Coordinator) TryAdmit(ctx context.Context, p Proposal, snap Snapshot) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	keys := sortedScopeKeys(p)
	release, err := c.locks.acquire(ctx, keys, c.lockTimeout)
	if err != nil {
		return Decision{}, err
	}
	defer release()

	now := c.now().UTC()
	limits, err := c.loadLimits(ctx, p)
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	err = c.repo.InTx(ctx, func(tx *gorm.DB) error {
		inputs := map[string]GateInputs{}
		for scope, key := range scopeKeys(p) {
			state, err := c.repo.GetDailyStateForUpdateTx(ctx, tx, key, now)
			if err != nil {
				return err
			}
			in, inErr := c.buildInputs(ctx, p, scope, state, snap, now)
			if inErr != nil {
				return inErr
			}
			inputs[scope] = in
		}
		decision = Evaluate(p, limits, inputs, now)
		if !decision.Allowed {
			return nil
		}
		for _, key := range keys {
			if err := c.repo.RecordTradeTx(ctx, tx, key, now, p.Notional, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("admission transaction failed",
			zap.String("account_id", p.AccountID),
			zap.String("strategy_id", p.StrategyID),
			zap.String("symbol", p.Symbol),
			zap.Error(err))
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decision, nil
}

func (c *Coordinator) loadLimits(ctx context.Context, p Proposal) (map[string]*models.RiskLimit, error) {
	limits := map[string]*models.RiskLimit{}
	account, err := c.repo.GetEnabledRiskLimit(ctx, models.ScopeAccount, p.AccountID, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	limits[models.ScopeAccount] = account
	if p.StrategyID != "" {
		strat, err := c.repo.GetEnabledRiskLimit(ctx, models.ScopeStrategy, p.AccountID, p.StrategyID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		limits[models.ScopeStrategy] = strat
	}
	return limits, nil
}

func (c *Coordinator) buildInputs(ctx context.Context, p Proposal, scope string, state *models.DailyState, snap Snapshot, now time.Time) (GateInputs, error) {
	in := GateInputs{
		DayLoss:        decimal.Zero,
		DayDrawdown:    decimal.Zero,
		NotionalTraded: decimal.Zero,
	}
	if state != nil {
		in.TradesToday = state.TradesPlaced
		in.NotionalTraded = state.NotionalTraded
		in.LastTradeAt = state.LastTradeAt
	}
	strategyID := ""
	if scope == models.ScopeStrategy {
		strategyID = p.StrategyID
	}
	open, err := c.repo.CountOpenPositions(ctx, p.AccountID, strategyID)
	if err != nil {
		return GateInputs{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	in.OpenPositions = int(open)
	if snap.DayLoss != nil {
		in.DayLoss = *snap.DayLoss
	} else {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		pnl, err := c.repo.SumRealizedPnLSince(ctx, p.AccountID, strategyID, dayStart)
		if err != nil {
			return GateInputs{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		in.DayLoss = pnl
	}
	if snap.DayDrawdown != nil {
		in.DayDrawdown = *snap.DayDrawdown
	}
	return in, nil
}

func scopeKeys(p Proposal) map[string]string {
	keys := map[string]string{
		models.ScopeAccount: ScopeKeyAccount(p.AccountID),
	}
	if p.StrategyID != "" {
		keys[models.ScopeStrategy] = ScopeKeyStrategy(p.StrategyID)
	}
	return keys
}

func sortedScopeKeys(p Proposal) []string {
	keys := make([]string, 0, 2)
	for _, key := range scopeKeys(p) {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// keyedMutex hands out one-slot semaphores per key. Callers acquire keys in
// sorted order so overlapping key sets cannot deadlock.
type keyedMutex struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{sems: map[string]chan struct{}{}}
}

func (m *keyedMutex) sem(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		m.sems[key] = sem
	}
	return sem
}

// acquire takes every key or none. The timeout covers the whole set.
func (m *keyedMutex) acquire(ctx context.Context, keys []string, timeout time.Duration) (func(), error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	held := make([]chan struct{}, 0, len(keys))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, key := range keys {
		sem := m.sem(key)
		select {
		case sem <- struct{}{}:
			held = append(held, sem)
		case <-timer.C:
			releaseHeld()
			return nil, ErrTimeout
		case <-ctx.Done():
			releaseHeld()
			return nil, ctx.Err()
		}
	}
	return releaseHeld, nil
}
