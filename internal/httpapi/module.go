package httpapi

import (
	"github.com/Lekbanken/economy/pkg/health"
	"github.com/Lekbanken/economy/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

type RegisterParams struct {
	fx.In
	Engine  *gin.Engine
	Handler *Handler
	Health  health.HealthService
}

func RegisterRoutes(p RegisterParams) {
	p.Engine.GET("/livez", p.Health.Liveness)
	p.Engine.GET("/readyz", p.Health.Readiness)

	v1 := p.Engine.Group("/v1")
	v1.Use(middleware.Error())

	v1.POST("/coins/transactions", p.Handler.applyCoinTransaction)
	v1.POST("/xp/transactions", p.Handler.applyXPTransaction)
	v1.POST("/coins/burn", p.Handler.burnCoins)
	v1.POST("/events", p.Handler.evaluateEvent)

	v1.GET("/balance", p.Handler.getBalance)
	v1.GET("/progress", p.Handler.getProgress)
	v1.GET("/transactions", p.Handler.listTransactions)
	v1.GET("/earnings/daily", p.Handler.getDailyEarnings)
	v1.GET("/leaderboard", p.Handler.leaderboard)

	v1.GET("/softcap/config", p.Handler.getSoftcapConfig)
	v1.GET("/summaries/daily", p.Handler.getDailySummary)

	admin := v1.Group("/admin")
	admin.POST("/awards", p.Handler.adminAwardCoins)
	admin.POST("/burns/:id/refund", p.Handler.refundBurn)
	admin.PUT("/softcap/config", p.Handler.putSoftcapConfig)

	admin.POST("/rules", p.Handler.createRule)
	admin.GET("/rules", p.Handler.listRules)
	admin.PUT("/rules/:id", p.Handler.updateRule)
	admin.DELETE("/rules/:id", p.Handler.deleteRule)

	admin.POST("/campaigns", p.Handler.createCampaign)
	admin.GET("/campaigns", p.Handler.listCampaigns)
	admin.POST("/campaigns/templates", p.Handler.createTemplate)
	admin.GET("/campaigns/templates", p.Handler.listTemplates)
	admin.POST("/campaigns/templates/:id/instantiate", p.Handler.instantiateTemplate)
}
