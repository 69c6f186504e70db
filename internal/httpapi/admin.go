package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/Lekbanken/economy/pkg/errutil"
	"github.com/Lekbanken/economy/services/campaign"
	"github.com/Lekbanken/economy/services/rule"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ruleRequest struct {
	Name            string  `json:"name" binding:"required"`
	EventType       string  `json:"event_type" binding:"required"`
	RewardAmount    int64   `json:"reward_amount"`
	XPAmount        int64   `json:"xp_amount"`
	Conditions      string  `json:"conditions"`
	CooldownType    string  `json:"cooldown_type"`
	CooldownSeconds int64   `json:"cooldown_seconds"`
	MaxPerDay       int64   `json:"max_per_day"`
	BaseMultiplier  float64 `json:"base_multiplier"`
	IsActive        *bool   `json:"is_active"`
}

func (r ruleRequest) toModel(tenantID, id string, now time.Time) *rule.AutomationRule {
	m := &rule.AutomationRule{
		ID:              id,
		TenantID:        tenantID,
		EventType:       r.EventType,
		Name:            r.Name,
		RewardAmount:    r.RewardAmount,
		XPAmount:        r.XPAmount,
		Conditions:      r.Conditions,
		CooldownType:    r.CooldownType,
		CooldownSeconds: r.CooldownSeconds,
		MaxPerDay:       r.MaxPerDay,
		BaseMultiplier:  r.BaseMultiplier,
		IsActive:        true,
		UpdatedAt:       now,
	}
	if m.BaseMultiplier <= 0 {
		m.BaseMultiplier = 1
	}
	if r.IsActive != nil {
		m.IsActive = *r.IsActive
	}
	return m
}

func (h *Handler) createRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	now := time.Now().UTC()
	m := req.toModel(tenantID(c), h.node.Generate().String(), now)
	m.CreatedAt = now
	if err := h.rules.Create(c.Request.Context(), m); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) listRules(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context(), tenantID(c), rule.ListParams{
		EventType:       c.Query("event_type"),
		IncludeInactive: c.Query("include_inactive") == "true",
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *Handler) updateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	m := req.toModel(tenantID(c), c.Param("id"), time.Now().UTC())
	if err := h.rules.Update(c.Request.Context(), m); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(errutil.NotFound("rule not found"))
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) deleteRule(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), tenantID(c), c.Param("id")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(errutil.NotFound("rule not found"))
			return
		}
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type campaignRequest struct {
	Name         string         `json:"name" binding:"required"`
	EventType    string         `json:"event_type" binding:"required"`
	BonusAmount  int64          `json:"bonus_amount" binding:"required"`
	BudgetAmount int64          `json:"budget_amount"`
	StartsAt     time.Time      `json:"starts_at" binding:"required"`
	EndsAt       time.Time      `json:"ends_at" binding:"required"`
	IsActive     *bool          `json:"is_active"`
	Metadata     datatypes.JSON `json:"metadata"`
}

func (h *Handler) createCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		c.Error(errutil.ValidationFailed("ends_at must be after starts_at"))
		return
	}

	now := time.Now().UTC()
	m := &campaign.Campaign{
		ID:           h.node.Generate().String(),
		TenantID:     tenantID(c),
		Name:         req.Name,
		EventType:    req.EventType,
		BonusAmount:  req.BonusAmount,
		BudgetAmount: req.BudgetAmount,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		IsActive:     true,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	if err := h.campaigns.Create(c.Request.Context(), m); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) listCampaigns(c *gin.Context) {
	campaigns, err := h.campaigns.List(c.Request.Context(), tenantID(c),
		c.Query("include_inactive") == "true")
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

type templateRequest struct {
	Name         string         `json:"name" binding:"required"`
	EventType    string         `json:"event_type" binding:"required"`
	BonusAmount  int64          `json:"bonus_amount" binding:"required"`
	BudgetAmount int64          `json:"budget_amount"`
	DurationDays int            `json:"duration_days"`
	Metadata     datatypes.JSON `json:"metadata"`
}

func (h *Handler) createTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	now := time.Now().UTC()
	m := &campaign.Template{
		ID:           h.node.Generate().String(),
		TenantID:     tenantID(c),
		Name:         req.Name,
		EventType:    req.EventType,
		BonusAmount:  req.BonusAmount,
		BudgetAmount: req.BudgetAmount,
		DurationDays: req.DurationDays,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.campaigns.CreateTemplate(c.Request.Context(), m); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) listTemplates(c *gin.Context) {
	templates, err := h.campaigns.ListTemplates(c.Request.Context(), tenantID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (h *Handler) instantiateTemplate(c *gin.Context) {
	m, err := h.campaigns.Instantiate(c.Request.Context(), tenantID(c), c.Param("id"),
		h.node.Generate().String(), time.Now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(errutil.NotFound("template not found"))
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, m)
}
