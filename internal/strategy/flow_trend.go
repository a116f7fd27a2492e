package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"agenttrader/internal/models"
)

const FlowTrendName = "naive_flow_trend"

const defaultSMAWindow = 20

// SignalPayload is the snapshot stored with every decision so a reviewer
// can rebuild the verdict from the row alone.
type SignalPayload struct {
	SMA              decimal.Decimal `json:"sma"`
	LastClose        decimal.Decimal `json:"last_close"`
	FlowNetNotional  decimal.Decimal `json:"flow_net_notional"`
	TrendUp          bool            `json:"trend_up"`
	FlowBiasPositive bool            `json:"flow_bias_positive"`
	BarsUsed         int             `json:"bars_used"`
}

// Verdict is what the decision engine produces for one symbol. Decision is
// one of the models.Decision* values.
type Verdict struct {
	Decision string
	Reason   string
	Signal   SignalPayload
}

// DecideFlowTrend evaluates the naive flow-trend rule over bars (most
// recent first) and flow events. Trend is last close above the SMA of up to
// window closes; flow bias is the sign of net notional with buys positive
// and sells negative. Both must agree for a buy; everything else is flat.
// Fewer than two bars always yields flat.
func DecideFlowTrend(bars []models.Bar, flow []models.FlowEvent, window int) Verdict {
	if len(bars) < 2 {
		return Verdict{
			Decision: models.DecisionFlat,
			Reason:   fmt.Sprintf("insufficient data: %d bars", len(bars)),
			Signal:   SignalPayload{BarsUsed: len(bars)},
		}
	}
	if window < 2 {
		window = defaultSMAWindow
	}
	if window > len(bars) {
		window = len(bars)
	}

	sum := decimal.Zero
	for _, bar := range bars[:window] {
		sum = sum.Add(bar.Close)
	}
	sma := sum.Div(decimal.NewFromInt(int64(window)))
	lastClose := bars[0].Close

	net := decimal.Zero
	for _, ev := range flow {
		switch ev.Side {
		case "buy":
			net = net.Add(ev.Notional)
		case "sell":
			net = net.Sub(ev.Notional)
		}
	}

	signal := SignalPayload{
		SMA:              sma,
		LastClose:        lastClose,
		FlowNetNotional:  net,
		TrendUp:          lastClose.GreaterThan(sma),
		FlowBiasPositive: net.IsPositive(),
		BarsUsed:         window,
	}

	switch {
	case signal.TrendUp && signal.FlowBiasPositive:
		return Verdict{
			Decision: models.DecisionBuy,
			Reason:   "trend up with positive flow bias",
			Signal:   signal,
		}
	case !signal.TrendUp:
		return Verdict{
			Decision: models.DecisionFlat,
			Reason:   fmt.Sprintf("no trend: last close %s not above sma %s", lastClose.String(), sma.String()),
			Signal:   signal,
		}
	default:
		return Verdict{
			Decision: models.DecisionFlat,
			Reason:   fmt.Sprintf("flow bias not positive: net notional %s", net.String()),
			Signal:   signal,
		}
	}
}
