package rollup

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Lekbanken/economy/pkg/config"
	"github.com/Lekbanken/economy/services/ledger"
	"github.com/Lekbanken/economy/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&DailyEarning{}, &TenantDailySummary{}, &ledger.Transaction{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Economy.RefreshConcurrency = 2

	return NewService(ServiceParams{DB: db, Node: node, Cfg: cfg}), db
}

var txSeq atomic.Int64

func seedTx(t *testing.T, db *gorm.DB, tenant string, amount int64, txType, source string, at time.Time) {
	t.Helper()
	n := txSeq.Add(1)
	row := &ledger.Transaction{
		ID:             fmt.Sprintf("tx-%d", n),
		TenantID:       tenant,
		UserID:         "u1",
		Currency:       ledger.CurrencyCoins,
		Amount:         amount,
		Type:           txType,
		Source:         source,
		IdempotencyKey: fmt.Sprintf("k-%d", n),
		CreatedAt:      at,
	}
	require.NoError(t, db.Create(row).Error)
}

func TestRecordEarning_AdditiveUpsert(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RecordEarning(ctx, EarningParams{
		TenantID: "t1", UserID: "u1", At: at,
		CoinsRaw: 50, CoinsReduced: 50, XPRaw: 100, XPReduced: 100, Events: 1,
	}))
	require.NoError(t, svc.RecordEarning(ctx, EarningParams{
		TenantID: "t1", UserID: "u1", At: at.Add(time.Hour),
		CoinsRaw: 30, CoinsReduced: 15, XPRaw: 60, XPReduced: 30, Events: 1,
	}))

	rows, err := svc.GetDailyEarnings(ctx, "t1", "u1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "2026-03-02", rows[0].Day)
	require.Equal(t, int64(80), rows[0].CoinsRaw)
	require.Equal(t, int64(65), rows[0].CoinsReduced)
	require.Equal(t, int64(160), rows[0].XPRaw)
	require.Equal(t, int64(130), rows[0].XPReduced)
	require.Equal(t, int64(2), rows[0].EventCount)
}

func TestRecordEarning_SplitsAcrossDays(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordEarning(ctx, EarningParams{
		TenantID: "t1", UserID: "u1",
		At:       time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC),
		CoinsRaw: 10, CoinsReduced: 10, Events: 1,
	}))
	require.NoError(t, svc.RecordEarning(ctx, EarningParams{
		TenantID: "t1", UserID: "u1",
		At:       time.Date(2026, 3, 3, 0, 1, 0, 0, time.UTC),
		CoinsRaw: 10, CoinsReduced: 10, Events: 1,
	}))

	rows, err := svc.GetDailyEarnings(ctx, "t1", "u1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Newest first.
	require.Equal(t, "2026-03-03", rows[0].Day)
	require.Equal(t, "2026-03-02", rows[1].Day)
}

func TestTodayTotals(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	coins, xp, err := svc.TodayTotals(ctx, "t1", "u1")
	require.NoError(t, err)
	require.Zero(t, coins)
	require.Zero(t, xp)

	require.NoError(t, svc.RecordEarning(ctx, EarningParams{
		TenantID: "t1", UserID: "u1", At: time.Now().UTC(),
		CoinsRaw: 120, CoinsReduced: 90, XPRaw: 200, XPReduced: 200, Events: 1,
	}))

	coins, xp, err = svc.TodayTotals(ctx, "t1", "u1")
	require.NoError(t, err)
	require.Equal(t, int64(90), coins)
	require.Equal(t, int64(200), xp)
}

func TestRefreshDailySummaries_AggregatesLedger(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	day := "2026-03-02"
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	seedTx(t, db, "t1", 100, ledger.TypeAdminAward, "", at)
	seedTx(t, db, "t1", 25, ledger.TypeEarn, SourceAutomation, at.Add(time.Minute))
	seedTx(t, db, "t1", 50, ledger.TypeEarn, SourceAutomation, at.Add(2*time.Minute))
	seedTx(t, db, "t1", 20, ledger.TypeEarn, SourceCampaign, at.Add(3*time.Minute))
	seedTx(t, db, "t1", -150, ledger.TypeBurn, "", at.Add(4*time.Minute))
	// Outside the day and tenant, must not count.
	seedTx(t, db, "t1", 500, ledger.TypeEarn, SourceAutomation, at.AddDate(0, 0, 1))
	seedTx(t, db, "t2", 500, ledger.TypeEarn, SourceAutomation, at)

	require.NoError(t, svc.RecordEarning(ctx, EarningParams{
		TenantID: "t1", UserID: "u1", At: at, CoinsRaw: 75, CoinsReduced: 75, Events: 3,
	}))

	require.NoError(t, svc.RefreshDailySummaries(ctx, "t1", day))

	sum, err := svc.GetSummary(ctx, "t1", day)
	require.NoError(t, err)
	require.Equal(t, int64(100), sum.AwardsTotal)
	require.Equal(t, int64(75), sum.AutomationTotal)
	require.Equal(t, int64(20), sum.CampaignBonusTotal)
	require.Equal(t, int64(150), sum.BurnTotal)
	require.Equal(t, int64(3), sum.EventsCount)
	require.Equal(t, int64(5), sum.TxCount)
}

func TestRefreshDailySummaries_Idempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	day := "2026-03-02"
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	seedTx(t, db, "t1", 25, ledger.TypeEarn, SourceAutomation, at)

	require.NoError(t, svc.RefreshDailySummaries(ctx, "t1", day))
	first, err := svc.GetSummary(ctx, "t1", day)
	require.NoError(t, err)

	// A rerun replaces, never accumulates.
	require.NoError(t, svc.RefreshDailySummaries(ctx, "t1", day))
	second, err := svc.GetSummary(ctx, "t1", day)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.AutomationTotal, second.AutomationTotal)
	require.Equal(t, int64(25), second.AutomationTotal)
}

func TestRefreshAll_CoversEveryTenant(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	day := "2026-03-02"
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	seedTx(t, db, "t1", 25, ledger.TypeEarn, SourceAutomation, at)
	seedTx(t, db, "t2", 40, ledger.TypeEarn, SourceAutomation, at)
	seedTx(t, db, "t3", 10, ledger.TypeEarn, SourceCampaign, at)

	require.NoError(t, svc.RefreshAll(ctx, day))

	for tenant, want := range map[string]int64{"t1": 25, "t2": 40} {
		sum, err := svc.GetSummary(ctx, tenant, day)
		require.NoError(t, err)
		require.Equal(t, want, sum.AutomationTotal)
	}

	sum, err := svc.GetSummary(ctx, "t3", day)
	require.NoError(t, err)
	require.Equal(t, int64(10), sum.CampaignBonusTotal)
}

func TestRefreshAll_BadDay(t *testing.T) {
	svc, _ := newTestService(t)
	require.Error(t, svc.RefreshAll(context.Background(), "not-a-day"))
	require.Error(t, svc.RefreshDailySummaries(context.Background(), "t1", "03/02/2026"))
}
