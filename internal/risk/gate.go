package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"agenttrader/internal/models"
)

// Proposal is one trade the caller wants admitted.
type Proposal struct {
	AccountID  string
	StrategyID string
	Symbol     string
	Side       string
	Notional   decimal.Decimal
}

func (p Proposal) Validate() error {
	if strings.TrimSpace(p.AccountID) == "" {
		return fmt.Errorf("%w: account_id is required", ErrInvalidProposal)
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidProposal)
	}
	if !p.Notional.IsPositive() {
		return fmt.Errorf("%w: notional must be positive", ErrInvalidProposal)
	}
	return nil
}

// GateInputs is the snapshot one scope's rules are evaluated against.
// DayLoss is signed realized PnL since the start of the day, negative when
// losing.
type GateInputs struct {
	TradesToday    int
	OpenPositions  int
	DayLoss        decimal.Decimal
	DayDrawdown    decimal.Decimal
	NotionalTraded decimal.Decimal
	LastTradeAt    *time.Time
}

// Decision is the gate verdict. Scope names the limit scope that denied;
// it is empty when the trade is allowed.
type Decision struct {
	Allowed bool
	Reason  string
	Scope   string
}

func allow() Decision {
	return Decision{Allowed: true, Reason: "ok"}
}

func deny(scope, reason string) Decision {
	return Decision{Allowed: false, Reason: reason, Scope: scope}
}

// ScopeKeyAccount and ScopeKeyStrategy build the daily-state keys the
// coordinator locks and charges.
func ScopeKeyAccount(accountID string) string {
	return "acct:" + accountID
}

func ScopeKeyStrategy(strategyID string) string {
	return "strat:" + strategyID
}

// Evaluate runs every configured rule against the proposal without touching
// any state. The strategy-scope limit is checked before the account-scope
// limit and the first breached rule wins; rule order within a scope is
// fixed. A nil limit or a nil threshold never denies.
func Evaluate(p Proposal, limits map[string]*models.RiskLimit, inputs map[string]GateInputs, now time.Time) Decision {
	for _, scope := range []string{models.ScopeStrategy, models.ScopeAccount} {
		limit := limits[scope]
		if limit == nil || !limit.Enabled {
			continue
		}
		if d := applyLimit(scope, limit, p, inputs[scope], now); !d.Allowed {
			return d
		}
	}
	return allow()
}

func applyLimit(scope string, limit *models.RiskLimit, p Proposal, in GateInputs, now time.Time) Decision {
	if limit.MaxNotionalPerTrade != nil && p.Notional.GreaterThan(*limit.MaxNotionalPerTrade) {
		return deny(scope, fmt.Sprintf("notional %s exceeds max_notional_per_trade %s",
			p.Notional.String(), limit.MaxNotionalPerTrade.String()))
	}
	if limit.MaxTradesPerDay != nil && in.TradesToday+1 > *limit.MaxTradesPerDay {
		return deny(scope, fmt.Sprintf("trade count %d would exceed max_trades_per_day %d",
			in.TradesToday+1, *limit.MaxTradesPerDay))
	}
	if limit.MaxOpenPositions != nil && in.OpenPositions+1 > *limit.MaxOpenPositions {
		return deny(scope, fmt.Sprintf("open positions %d would exceed max_open_positions %d",
			in.OpenPositions+1, *limit.MaxOpenPositions))
	}
	if limit.MaxLossPerDay != nil && in.DayLoss.IsNegative() &&
		in.DayLoss.Neg().GreaterThanOrEqual(*limit.MaxLossPerDay) {
		return deny(scope, fmt.Sprintf("day loss %s breaches max_loss_per_day %s",
			in.DayLoss.Neg().String(), limit.MaxLossPerDay.String()))
	}
	if limit.MaxDrawdownPerDay != nil && in.DayDrawdown.GreaterThan(*limit.MaxDrawdownPerDay) {
		return deny(scope, fmt.Sprintf("day drawdown %s exceeds max_drawdown_per_day %s",
			in.DayDrawdown.String(), limit.MaxDrawdownPerDay.String()))
	}
	if limit.MaxNotionalPerDay != nil {
		planned := in.NotionalTraded.Add(p.Notional)
		if planned.GreaterThan(*limit.MaxNotionalPerDay) {
			return deny(scope, fmt.Sprintf("day notional %s would exceed max_notional_per_day %s",
				planned.String(), limit.MaxNotionalPerDay.String()))
		}
	}
	if limit.CoolDownMinutes != nil && in.LastTradeAt != nil {
		window := time.Duration(*limit.CoolDownMinutes) * time.Minute
		if elapsed := now.Sub(*in.LastTradeAt); elapsed < window {
			return deny(scope, fmt.Sprintf("cooldown active: %s since last trade, cool_down_minutes %d",
				elapsed.Truncate(time.Second).String(), *limit.CoolDownMinutes))
		}
	}
	return allow()
}
