package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Lekbanken/economy/pkg/config"
	"github.com/Lekbanken/economy/pkg/health"
	"github.com/Lekbanken/economy/pkg/server"
	"github.com/Lekbanken/economy/services/campaign"
	"github.com/Lekbanken/economy/services/cooldown"
	"github.com/Lekbanken/economy/services/engine"
	"github.com/Lekbanken/economy/services/ledger"
	"github.com/Lekbanken/economy/services/rollup"
	"github.com/Lekbanken/economy/services/rule"
	"github.com/Lekbanken/economy/services/softcap"
	"github.com/Lekbanken/economy/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db := testutil.NewTestDB(t,
		&ledger.Account{}, &ledger.Transaction{}, &ledger.BurnSink{},
		&ledger.BurnLog{}, &ledger.UserProgress{},
		&cooldown.Record{}, &softcap.Config{}, &rule.AutomationRule{},
		&campaign.Campaign{}, &campaign.Template{},
		&rollup.DailyEarning{}, &rollup.TenantDailySummary{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Economy.DailyCoinThreshold = 500
	cfg.Economy.DailyXPThreshold = 1000
	cfg.Economy.DiminishFactor = 0.5
	cfg.Economy.FloorPct = 0.1
	cfg.Economy.MaxMultiplierCap = 2.0
	cfg.Economy.RefreshConcurrency = 1

	ledgers := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	cooldowns := cooldown.NewService(cooldown.ServiceParams{DB: db, Node: node})
	rollups := rollup.NewService(rollup.ServiceParams{DB: db, Node: node, Cfg: cfg})
	softcaps := softcap.NewService(softcap.ServiceParams{DB: db, Node: node, Rollups: rollups, Cfg: cfg})
	rules := rule.NewRepository(db)
	campaigns := campaign.NewRepository(db)

	engineSvc := engine.NewService(engine.ServiceParams{
		DB:        db,
		Ledger:    ledgers,
		Cooldowns: cooldowns,
		Softcaps:  softcaps,
		Rules:     rules,
		Evaluator: rule.NewEvaluator(),
		Campaigns: campaigns,
		Rollups:   rollups,
	})

	h := NewHandler(HandlerParams{
		Node:      node,
		Ledger:    ledgers,
		Engine:    engineSvc,
		Softcaps:  softcaps,
		Rollups:   rollups,
		Rules:     rules,
		Campaigns: campaigns,
	})

	r := gin.New()
	RegisterRoutes(RegisterParams{
		Engine:  r,
		Handler: h,
		Health:  health.ProvideHealth(health.HealthParams{DB: db}),
	})
	return r
}

func TestGetDailySummary_MissingDayIsNotFound(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/summaries/daily?day=2026-01-01", nil)
	req.Header.Set(server.TenantID, "t1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "NOT_FOUND")
}
