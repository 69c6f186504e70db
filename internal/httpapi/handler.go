package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Lekbanken/economy/pkg/errutil"
	"github.com/Lekbanken/economy/pkg/server"
	"github.com/Lekbanken/economy/services/campaign"
	"github.com/Lekbanken/economy/services/engine"
	"github.com/Lekbanken/economy/services/ledger"
	"github.com/Lekbanken/economy/services/rollup"
	"github.com/Lekbanken/economy/services/rule"
	"github.com/Lekbanken/economy/services/softcap"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Handler exposes the economy operations over the internal HTTP boundary.
// Tenancy comes from the X-TENANT-ID header on every route.
type Handler struct {
	node      *snowflake.Node
	ledgers   *ledger.Service
	engine    *engine.Service
	softcaps  *softcap.Service
	rollups   *rollup.Service
	rules     rule.Repository
	campaigns campaign.Repository
}

type HandlerParams struct {
	fx.In
	Node      *snowflake.Node
	Ledger    *ledger.Service
	Engine    *engine.Service
	Softcaps  *softcap.Service
	Rollups   *rollup.Service
	Rules     rule.Repository
	Campaigns campaign.Repository
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		node:      p.Node,
		ledgers:   p.Ledger,
		engine:    p.Engine,
		softcaps:  p.Softcaps,
		rollups:   p.Rollups,
		rules:     p.Rules,
		campaigns: p.Campaigns,
	}
}

func tenantID(c *gin.Context) string {
	return c.GetHeader(server.TenantID)
}

type transactionRequest struct {
	UserID         string         `json:"user_id" binding:"required"`
	Amount         int64          `json:"amount" binding:"required"`
	Type           string         `json:"type" binding:"required"`
	ReasonCode     string         `json:"reason_code"`
	Source         string         `json:"source"`
	IdempotencyKey string         `json:"idempotency_key" binding:"required"`
	Metadata       datatypes.JSON `json:"metadata"`
}

func (h *Handler) applyCoinTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	res, err := h.ledgers.ApplyTransaction(c.Request.Context(), ledger.ApplyParams{
		TenantID:       tenantID(c),
		UserID:         req.UserID,
		Currency:       ledger.CurrencyCoins,
		Amount:         req.Amount,
		Type:           req.Type,
		ReasonCode:     req.ReasonCode,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_id": res.Transaction.ID,
		"balance":        res.Balance,
		"duplicate":      res.Duplicate,
	})
}

func (h *Handler) applyXPTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	res, err := h.ledgers.ApplyXPTransaction(c.Request.Context(), ledger.ApplyParams{
		TenantID:       tenantID(c),
		UserID:         req.UserID,
		Amount:         req.Amount,
		Type:           req.Type,
		ReasonCode:     req.ReasonCode,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_id": res.Apply.Transaction.ID,
		"balance":        res.Apply.Balance,
		"duplicate":      res.Apply.Duplicate,
		"level":          res.Progress.Level,
		"current_xp":     res.Progress.CurrentXP,
		"next_level_xp":  res.Progress.NextLevelXP,
		"leveled_up":     res.LeveledUp,
	})
}

type burnRequest struct {
	UserID         string         `json:"user_id" binding:"required"`
	SinkID         string         `json:"sink_id" binding:"required"`
	IdempotencyKey string         `json:"idempotency_key" binding:"required"`
	Metadata       datatypes.JSON `json:"metadata"`
}

func (h *Handler) burnCoins(c *gin.Context) {
	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	res, err := h.ledgers.BurnCoins(c.Request.Context(), ledger.BurnParams{
		TenantID:       tenantID(c),
		UserID:         req.UserID,
		SinkID:         req.SinkID,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		c.Error(err)
		return
	}

	body := gin.H{
		"success":        res.Success,
		"balance":        res.Balance,
		"duplicate":      res.Duplicate,
		"transaction_id": res.TransactionID,
	}
	if !res.Success {
		body["error_code"] = res.ErrorCode
		body["error_message"] = res.ErrorMessage
	}
	c.JSON(http.StatusOK, body)
}

type awardRequest struct {
	UserIDs        []string `json:"user_ids" binding:"required"`
	Amount         int64    `json:"amount" binding:"required"`
	ReasonCode     string   `json:"reason_code"`
	IdempotencyKey string   `json:"idempotency_key" binding:"required"`
}

func (h *Handler) adminAwardCoins(c *gin.Context) {
	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	results, err := h.ledgers.AdminAwardCoins(c.Request.Context(), ledger.AwardParams{
		TenantID:       tenantID(c),
		UserIDs:        req.UserIDs,
		Amount:         req.Amount,
		ReasonCode:     req.ReasonCode,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		item := gin.H{"user_id": r.UserID}
		if r.Err != nil {
			item["error"] = r.Err.Error()
		} else {
			item["transaction_id"] = r.Result.Transaction.ID
			item["balance"] = r.Result.Balance
			item["duplicate"] = r.Result.Duplicate
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (h *Handler) refundBurn(c *gin.Context) {
	res, err := h.ledgers.RefundBurn(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        res.Success,
		"balance":        res.Balance,
		"transaction_id": res.TransactionID,
	})
}

type eventRequest struct {
	UserID         string         `json:"user_id" binding:"required"`
	EventType      string         `json:"event_type" binding:"required"`
	StreakID       string         `json:"streak_id"`
	Attributes     map[string]any `json:"attributes"`
	IdempotencyKey string         `json:"idempotency_key" binding:"required"`
	OccurredAt     *time.Time     `json:"occurred_at"`
}

func (h *Handler) evaluateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	p := engine.EventParams{
		TenantID:       tenantID(c),
		UserID:         req.UserID,
		EventType:      req.EventType,
		StreakID:       req.StreakID,
		Attributes:     req.Attributes,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.OccurredAt != nil {
		p.OccurredAt = *req.OccurredAt
	}

	grants, err := h.engine.EvaluateEvent(c.Request.Context(), p)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants})
}

func (h *Handler) getBalance(c *gin.Context) {
	currency := c.DefaultQuery("currency", ledger.CurrencyCoins)
	balance, err := h.ledgers.GetBalance(c.Request.Context(), tenantID(c), c.Query("user_id"), currency)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": currency, "balance": balance})
}

func (h *Handler) getProgress(c *gin.Context) {
	progress, err := h.ledgers.GetProgress(c.Request.Context(), tenantID(c), c.Query("user_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *Handler) listTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.ledgers.ListTransactions(c.Request.Context(), ledger.ListParams{
		TenantID: tenantID(c),
		UserID:   c.Query("user_id"),
		Currency: c.Query("currency"),
		Limit:    limit,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

func (h *Handler) getSoftcapConfig(c *gin.Context) {
	cfg, err := h.softcaps.GetConfig(c.Request.Context(), tenantID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) putSoftcapConfig(c *gin.Context) {
	var cfg softcap.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}
	cfg.TenantID = tenantID(c)

	saved, err := h.softcaps.UpsertConfig(c.Request.Context(), cfg)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *Handler) getDailySummary(c *gin.Context) {
	day := c.DefaultQuery("day", rollup.DayOf(time.Now().AddDate(0, 0, -1)))
	summary, err := h.rollups.GetSummary(c.Request.Context(), tenantID(c), day)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(errutil.NotFound("no summary for day"))
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) getDailyEarnings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.rollups.GetDailyEarnings(c.Request.Context(), tenantID(c), c.Query("user_id"), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"earnings": rows})
}

func (h *Handler) leaderboard(c *gin.Context) {
	currency := c.DefaultQuery("currency", ledger.CurrencyCoins)
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.ledgers.Leaderboard(c.Request.Context(), tenantID(c), currency, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": currency, "entries": rows})
}
