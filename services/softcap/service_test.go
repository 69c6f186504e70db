package softcap

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Lekbanken/economy/pkg/config"
	"github.com/Lekbanken/economy/pkg/errutil"
	"github.com/Lekbanken/economy/services/rollup"
	"github.com/Lekbanken/economy/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *rollup.Service) {
	t.Helper()

	db := testutil.NewTestDB(t, &Config{}, &rollup.DailyEarning{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Economy.DailyCoinThreshold = 500
	cfg.Economy.DailyXPThreshold = 1000
	cfg.Economy.DiminishFactor = 0.5
	cfg.Economy.FloorPct = 0.1
	cfg.Economy.MaxMultiplierCap = 2.0
	cfg.Economy.RefreshConcurrency = 1

	rollups := rollup.NewService(rollup.ServiceParams{DB: db, Node: node, Cfg: cfg})
	return NewService(ServiceParams{DB: db, Node: node, Rollups: rollups, Cfg: cfg}), rollups
}

func TestGetConfig_FallsBackToDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	cfg, err := svc.GetConfig(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", cfg.TenantID)
	require.Equal(t, int64(500), cfg.DailyCoinThreshold)
	require.Equal(t, int64(1000), cfg.DailyXPThreshold)
	require.Equal(t, 0.5, cfg.DiminishFactor)
}

func TestUpsertConfig_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	stored, err := svc.UpsertConfig(context.Background(), Config{
		TenantID:           "t1",
		DailyCoinThreshold: 900,
		DailyXPThreshold:   1500,
		DiminishFactor:     0.25,
		FloorPct:           0.2,
		MaxMultiplierCap:   3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	got, err := svc.GetConfig(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, int64(900), got.DailyCoinThreshold)
	require.Equal(t, 0.25, got.DiminishFactor)

	// Other tenants still see the defaults.
	other, err := svc.GetConfig(context.Background(), "t2")
	require.NoError(t, err)
	require.Equal(t, int64(500), other.DailyCoinThreshold)
}

func TestUpsertConfig_ReplacesSingleton(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.UpsertConfig(context.Background(), Config{
		TenantID: "t1", DailyCoinThreshold: 900, DailyXPThreshold: 1500,
		DiminishFactor: 0.5, FloorPct: 0.1, MaxMultiplierCap: 2,
	})
	require.NoError(t, err)

	second, err := svc.UpsertConfig(context.Background(), Config{
		TenantID: "t1", DailyCoinThreshold: 1200, DailyXPThreshold: 1500,
		DiminishFactor: 0.5, FloorPct: 0.1, MaxMultiplierCap: 2,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	got, err := svc.Fetch(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, int64(1200), got.DailyCoinThreshold)
}

func TestAdjustReward_PassthroughBelowThreshold(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.AdjustReward(context.Background(), "t1", "u1", 100, 200, 1.0)
	require.NoError(t, err)
	require.Equal(t, int64(100), res.Coins)
	require.Equal(t, int64(200), res.XP)
	require.False(t, res.CoinsCapped)
	require.False(t, res.XPCapped)
	require.Equal(t, 1.0, res.EffectiveMultiplier)
}

func TestAdjustReward_ClampsMultiplier(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.AdjustReward(context.Background(), "t1", "u1", 100, 0, 3.5)
	require.NoError(t, err)
	require.Equal(t, 2.0, res.EffectiveMultiplier)
	require.Equal(t, int64(200), res.CoinsRaw)
	require.Equal(t, int64(200), res.Coins)
}

func TestAdjustReward_ReducesAgainstDailyTotals(t *testing.T) {
	svc, rollups := newTestService(t)
	ctx := context.Background()

	require.NoError(t, rollups.RecordEarning(ctx, rollup.EarningParams{
		TenantID: "t1", UserID: "u1",
		CoinsRaw: 450, CoinsReduced: 450, Events: 1,
	}))

	// within = 50, over = 50, overage = 0.1, scaled = floor(50*0.5^1.1) = 23.
	res, err := svc.AdjustReward(ctx, "t1", "u1", 100, 0, 1.0)
	require.NoError(t, err)
	require.Equal(t, int64(73), res.Coins)
	require.Equal(t, int64(100), res.CoinsRaw)
	require.True(t, res.CoinsCapped)

	// Another user's totals are untouched.
	other, err := svc.AdjustReward(ctx, "t1", "u2", 100, 0, 1.0)
	require.NoError(t, err)
	require.Equal(t, int64(100), other.Coins)
}

func TestFetch_MissingConfig(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Fetch(context.Background(), "nobody")
	require.Error(t, err)
	require.True(t, errutil.Is(err, errutil.StatusConfigMissing))
}

func TestUpsertConfig_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []Config{
		{DiminishFactor: 0.5, FloorPct: 0.1},
		{TenantID: "t1", DiminishFactor: 0, FloorPct: 0.1},
		{TenantID: "t1", DiminishFactor: 1.5, FloorPct: 0.1},
		{TenantID: "t1", DiminishFactor: 0.5, FloorPct: -0.1},
		{TenantID: "t1", DiminishFactor: 0.5, FloorPct: 1.1},
	}
	for _, c := range cases {
		_, err := svc.UpsertConfig(context.Background(), c)
		require.Error(t, err)
	}
}
