package rollup

import "time"

// DailyEarning is the additive per-user daily read model the soft cap
// consults. Raw totals are pre-cap, reduced totals post-cap.
type DailyEarning struct {
	ID           string    `gorm:"column:id;primaryKey"`
	TenantID     string    `gorm:"column:tenant_id;uniqueIndex:idx_daily_scope"`
	UserID       string    `gorm:"column:user_id;uniqueIndex:idx_daily_scope"`
	Day          string    `gorm:"column:day;uniqueIndex:idx_daily_scope"`
	CoinsRaw     int64     `gorm:"column:coins_raw"`
	CoinsReduced int64     `gorm:"column:coins_reduced"`
	XPRaw        int64     `gorm:"column:xp_raw"`
	XPReduced    int64     `gorm:"column:xp_reduced"`
	EventCount   int64     `gorm:"column:event_count"`
	LastEventAt  time.Time `gorm:"column:last_event_at"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TenantDailySummary is the batch-recomputed tenant-level report row.
type TenantDailySummary struct {
	ID                 string    `gorm:"column:id;primaryKey"`
	TenantID           string    `gorm:"column:tenant_id;uniqueIndex:idx_summary_scope"`
	Day                string    `gorm:"column:day;uniqueIndex:idx_summary_scope"`
	AwardsTotal        int64     `gorm:"column:awards_total"`
	CampaignBonusTotal int64     `gorm:"column:campaign_bonus_total"`
	AutomationTotal    int64     `gorm:"column:automation_total"`
	BurnTotal          int64     `gorm:"column:burn_total"`
	EventsCount        int64     `gorm:"column:events_count"`
	TxCount            int64     `gorm:"column:tx_count"`
	RefreshedAt        time.Time `gorm:"column:refreshed_at"`
	CreatedAt          time.Time `gorm:"column:created_at"`
}

// Transaction sources recognized by the summary aggregation.
const (
	SourceAutomation = "automation"
	SourceCampaign   = "campaign"
)

// DayOf formats the UTC day bucket used across the rollup tables.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
