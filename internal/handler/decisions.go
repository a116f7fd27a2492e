package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agenttrader/internal/repository"
)

type DecisionHandler struct {
	Repo repository.Repository
}

func (h *DecisionHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/decisions", h.listDecisions)
	r.GET("/api/v1/daily-states", h.listDailyStates)
	r.GET("/api/v1/trades", h.listTrades)
}

func (h *DecisionHandler) listDecisions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListDecisionRecordsParams{
		OrderBy: strings.TrimSpace(c.Query("order_by")),
		Asc:     c.Query("asc") == "true",
		Limit:   queryInt(c, "limit", 0),
		Offset:  queryInt(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("strategy")); v != "" {
		params.StrategyName = &v
	}
	if v := strings.TrimSpace(c.Query("symbol")); v != "" {
		params.Symbol = &v
	}
	if v := strings.TrimSpace(c.Query("decision")); v != "" {
		params.Decision = &v
	}
	if v := strings.TrimSpace(c.Query("did_trade")); v != "" {
		b := v == "true"
		params.DidTrade = &b
	}
	if v := strings.TrimSpace(c.Query("since")); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			Error(c, http.StatusBadRequest, "since must be RFC3339", nil)
			return
		}
		params.Since = &ts
	}
	items, err := h.Repo.ListDecisionRecords(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountDecisionRecords(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": total})
}

func (h *DecisionHandler) listDailyStates(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListDailyStatesParams{
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("scope_key")); v != "" {
		params.ScopeKey = &v
	}
	if v := strings.TrimSpace(c.Query("day")); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			Error(c, http.StatusBadRequest, "day must be YYYY-MM-DD", nil)
			return
		}
		params.Day = &day
	}
	items, err := h.Repo.ListDailyStates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *DecisionHandler) listTrades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListPaperTradesParams{
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("account_id")); v != "" {
		params.AccountID = &v
	}
	if v := strings.TrimSpace(c.Query("strategy_id")); v != "" {
		params.StrategyID = &v
	}
	if v := strings.TrimSpace(c.Query("symbol")); v != "" {
		params.Symbol = &v
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		params.Status = &v
	}
	items, err := h.Repo.ListPaperTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}
