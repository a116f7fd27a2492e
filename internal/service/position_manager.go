package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"agenttrader/internal/models"
	"agenttrader/internal/repository"
)

// PositionManager sweeps open paper trades and closes any held longer than
// MaxHold at the symbol's latest close. Realized PnL from these exits is
// what the risk gate's day-loss rule reads.
type PositionManager struct {
	Repo   repository.Repository
	Logger *zap.Logger

	MaxHold time.Duration
}

func (m *PositionManager) Run(ctx context.Context, interval time.Duration) error {
	if m == nil || m.Repo == nil {
		return nil
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if err := m.RunOnce(ctx); err != nil && m.Logger != nil {
			m.Logger.Warn("position sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (m *PositionManager) RunOnce(ctx context.Context) error {
	if m == nil || m.Repo == nil {
		return nil
	}
	maxHold := m.MaxHold
	if maxHold <= 0 {
		maxHold = 24 * time.Hour
	}
	status := models.TradeStatusOpen
	items, err := m.Repo.ListPaperTrades(ctx, repository.ListPaperTradesParams{Status: &status})
	if err != nil || len(items) == 0 {
		return err
	}

	now := time.Now().UTC()
	closed := 0
	for _, trade := range items {
		if now.Sub(trade.PlacedAt) < maxHold {
			continue
		}
		bars, err := m.Repo.ListRecentBars(ctx, trade.Symbol, 1)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("load exit price failed",
					zap.String("symbol", trade.Symbol), zap.Error(err))
			}
			continue
		}
		// No price yet: keep holding rather than closing blind.
		if len(bars) == 0 {
			continue
		}
		exit := bars[0].Close
		diff := exit.Sub(trade.Price)
		if trade.Side == "sell" {
			diff = diff.Neg()
		}
		realized := diff.Mul(trade.Qty)
		if err := m.Repo.ClosePaperTrade(ctx, trade.ID, realized, now); err != nil {
			if m.Logger != nil {
				m.Logger.Warn("close position failed",
					zap.Uint64("trade_id", trade.ID), zap.Error(err))
			}
			continue
		}
		closed++
		if m.Logger != nil {
			m.Logger.Info("position closed",
				zap.Uint64("trade_id", trade.ID),
				zap.String("symbol", trade.Symbol),
				zap.String("exit", exit.String()),
				zap.String("realized_pnl", realized.String()))
		}
	}
	if closed > 0 && m.Logger != nil {
		m.Logger.Info("position sweep done", zap.Int("closed", closed))
	}
	return nil
}
