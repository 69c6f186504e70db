package softcap

import "time"

// Config is the per-tenant soft-cap singleton. Tenants without a row fall
// back to deterministic defaults.
type Config struct {
	ID                 string    `gorm:"column:id;primaryKey"`
	TenantID           string    `gorm:"column:tenant_id;uniqueIndex:idx_softcap_tenant"`
	DailyCoinThreshold int64     `gorm:"column:daily_coin_threshold"`
	DailyXPThreshold   int64     `gorm:"column:daily_xp_threshold"`
	DiminishFactor     float64   `gorm:"column:diminish_factor"`
	FloorPct           float64   `gorm:"column:floor_pct"`
	MaxMultiplierCap   float64   `gorm:"column:max_multiplier_cap"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

// Adjustment is the outcome of applying the soft cap to a base reward.
type Adjustment struct {
	Coins       int64
	XP          int64
	CoinsCapped bool
	XPCapped    bool
}
