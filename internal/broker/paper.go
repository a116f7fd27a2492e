package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agenttrader/internal/models"
	"agenttrader/internal/repository"
)

// Paper fills every order instantly at the requested price and records it
// as an open paper trade. No venue is contacted.
type Paper struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewPaper(repo repository.Repository, logger *zap.Logger) *Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paper{repo: repo, logger: logger}
}

func (b *Paper) PlaceOrder(ctx context.Context, order Order) (uint64, error) {
	if strings.TrimSpace(order.Symbol) == "" {
		return 0, fmt.Errorf("paper broker: symbol is required")
	}
	if !order.Qty.IsPositive() {
		return 0, fmt.Errorf("paper broker: qty must be positive")
	}
	placedAt := order.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now().UTC()
	}
	trade := models.PaperTrade{
		ClientOrderID: uuid.NewString(),
		AccountID:     order.AccountID,
		StrategyID:    order.StrategyID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Qty:           order.Qty,
		Price:         order.Price,
		Notional:      order.Notional,
		Status:        models.TradeStatusOpen,
		PlacedAt:      placedAt,
	}
	if err := b.repo.InsertPaperTrade(ctx, &trade); err != nil {
		return 0, err
	}
	b.logger.Info("paper fill",
		zap.String("symbol", trade.Symbol),
		zap.String("side", trade.Side),
		zap.String("qty", trade.Qty.String()),
		zap.String("price", trade.Price.String()))
	return trade.ID, nil
}

// ClosePosition marks an open paper trade closed with the realized PnL for
// the given exit price.
func (b *Paper) ClosePosition(ctx context.Context, trade *models.PaperTrade, exitPrice decimal.Decimal, closedAt time.Time) error {
	if trade == nil {
		return fmt.Errorf("paper broker: nil trade")
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	diff := exitPrice.Sub(trade.Price)
	if trade.Side == "sell" {
		diff = diff.Neg()
	}
	realized := diff.Mul(trade.Qty)
	return b.repo.ClosePaperTrade(ctx, trade.ID, realized, closedAt)
}

var _ Broker = (*Paper)(nil)
