package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"agenttrader/internal/models"
	"agenttrader/internal/repository"
	"agenttrader/internal/risk"
)

type RiskHandler struct {
	Repo        repository.Repository
	Coordinator *risk.Coordinator
}

func (h *RiskHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/risk")
	group.POST("/check-trade", h.checkTrade)
	group.POST("/admit", h.admit)
	group.GET("/limits", h.listLimits)
	group.PUT("/limits", h.upsertLimit)
	group.DELETE("/limits/:id", h.deleteLimit)
}

type tradeCheckRequest struct {
	AccountID          string           `json:"account_id"`
	StrategyID         string           `json:"strategy_id"`
	Symbol             string           `json:"symbol"`
	Side               string           `json:"side"`
	Notional           decimal.Decimal  `json:"notional"`
	CurrentDayLoss     *decimal.Decimal `json:"current_day_loss"`
	CurrentDayDrawdown *decimal.Decimal `json:"current_day_drawdown"`
}

type tradeCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Scope   string `json:"scope,omitempty"`
}

func (req tradeCheckRequest) proposal() (risk.Proposal, risk.Snapshot) {
	p := risk.Proposal{
		AccountID:  strings.TrimSpace(req.AccountID),
		StrategyID: strings.TrimSpace(req.StrategyID),
		Symbol:     strings.TrimSpace(req.Symbol),
		Side:       strings.ToLower(strings.TrimSpace(req.Side)),
		Notional:   req.Notional,
	}
	snap := risk.Snapshot{
		DayLoss:     req.CurrentDayLoss,
		DayDrawdown: req.CurrentDayDrawdown,
	}
	return p, snap
}

// checkTrade is advisory: it evaluates the gate without charging counters.
func (h *RiskHandler) checkTrade(c *gin.Context) {
	if h.Coordinator == nil {
		Error(c, http.StatusInternalServerError, "coordinator unavailable", nil)
		return
	}
	var req tradeCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	p, snap := req.proposal()
	decision, err := h.Coordinator.Check(c.Request.Context(), p, snap)
	if err != nil {
		h.decisionError(c, err)
		return
	}
	Ok(c, tradeCheckResponse{Allowed: decision.Allowed, Reason: decision.Reason, Scope: decision.Scope}, nil)
}

// admit runs the full admission: on allow the day's counters are charged
// atomically before the response is written.
func (h *RiskHandler) admit(c *gin.Context) {
	if h.Coordinator == nil {
		Error(c, http.StatusInternalServerError, "coordinator unavailable", nil)
		return
	}
	var req tradeCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	p, snap := req.proposal()
	decision, err := h.Coordinator.TryAdmit(c.Request.Context(), p, snap)
	if err != nil {
		h.decisionError(c, err)
		return
	}
	Ok(c, tradeCheckResponse{Allowed: decision.Allowed, Reason: decision.Reason, Scope: decision.Scope}, nil)
}

func (h *RiskHandler) decisionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, risk.ErrInvalidProposal):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, risk.ErrTimeout):
		Error(c, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	}
}

type riskLimitRequest struct {
	Scope               string           `json:"scope"`
	AccountID           string           `json:"account_id"`
	StrategyID          string           `json:"strategy_id"`
	MaxNotionalPerTrade *decimal.Decimal `json:"max_notional_per_trade"`
	MaxTradesPerDay     *int             `json:"max_trades_per_day"`
	MaxOpenPositions    *int             `json:"max_open_positions"`
	MaxLossPerDay       *decimal.Decimal `json:"max_loss_per_day"`
	MaxDrawdownPerDay   *decimal.Decimal `json:"max_drawdown_per_day"`
	MaxNotionalPerDay   *decimal.Decimal `json:"max_notional_per_day"`
	CoolDownMinutes     *int             `json:"cool_down_minutes"`
	Enabled             *bool            `json:"enabled"`
}

func (h *RiskHandler) upsertLimit(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req riskLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	scope := strings.ToLower(strings.TrimSpace(req.Scope))
	if scope != models.ScopeAccount && scope != models.ScopeStrategy {
		Error(c, http.StatusBadRequest, "scope must be account or strategy", nil)
		return
	}
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		Error(c, http.StatusBadRequest, "account_id required", nil)
		return
	}
	strategyID := strings.TrimSpace(req.StrategyID)
	if scope == models.ScopeStrategy && strategyID == "" {
		Error(c, http.StatusBadRequest, "strategy_id required for strategy scope", nil)
		return
	}
	if scope == models.ScopeAccount {
		strategyID = ""
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	item := models.RiskLimit{
		Scope:               scope,
		AccountID:           accountID,
		StrategyID:          strategyID,
		MaxNotionalPerTrade: req.MaxNotionalPerTrade,
		MaxTradesPerDay:     req.MaxTradesPerDay,
		MaxOpenPositions:    req.MaxOpenPositions,
		MaxLossPerDay:       req.MaxLossPerDay,
		MaxDrawdownPerDay:   req.MaxDrawdownPerDay,
		MaxNotionalPerDay:   req.MaxNotionalPerDay,
		CoolDownMinutes:     req.CoolDownMinutes,
		Enabled:             enabled,
	}
	if err := h.Repo.UpsertRiskLimit(c.Request.Context(), &item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *RiskHandler) listLimits(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListRiskLimitsParams{
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("scope")); v != "" {
		params.Scope = &v
	}
	if v := strings.TrimSpace(c.Query("account_id")); v != "" {
		params.AccountID = &v
	}
	if v := strings.TrimSpace(c.Query("strategy_id")); v != "" {
		params.StrategyID = &v
	}
	items, err := h.Repo.ListRiskLimits(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *RiskHandler) deleteLimit(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "bad id", nil)
		return
	}
	affected, err := h.Repo.DeleteRiskLimit(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if affected == 0 {
		Error(c, http.StatusNotFound, "limit not found", nil)
		return
	}
	Ok(c, gin.H{"deleted": affected}, nil)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
