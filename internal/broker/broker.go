package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is one admitted execution request.
type Order struct {
	AccountID  string
	StrategyID string
	Symbol     string
	Side       string
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Notional   decimal.Decimal
	PlacedAt   time.Time
}

// Broker executes admitted orders. PlaceOrder returns the broker-side trade
// identifier for the decision log.
type Broker interface {
	PlaceOrder(ctx context.Context, order Order) (uint64, error)
}
