package campaign

import (
	"time"

	"gorm.io/datatypes"
)

// Campaign grants a flat bonus on top of rule rewards for matching events
// inside its window. A zero BudgetAmount means unlimited spend.
type Campaign struct {
	ID           string         `gorm:"column:id;primaryKey"`
	TenantID     string         `gorm:"column:tenant_id;index:idx_campaign_tenant"`
	TemplateID   string         `gorm:"column:template_id"`
	Name         string         `gorm:"column:name"`
	EventType    string         `gorm:"column:event_type"`
	BonusAmount  int64          `gorm:"column:bonus_amount"`
	BudgetAmount int64          `gorm:"column:budget_amount"`
	SpentAmount  int64          `gorm:"column:spent_amount"`
	StartsAt     time.Time      `gorm:"column:starts_at"`
	EndsAt       time.Time      `gorm:"column:ends_at"`
	IsActive     bool           `gorm:"column:is_active"`
	Metadata     datatypes.JSON `gorm:"column:metadata"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
}

// InWindow reports whether the campaign accepts events at the given time.
func (c *Campaign) InWindow(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartsAt) && now.Before(c.EndsAt)
}

// Template is a reusable campaign blueprint.
type Template struct {
	ID           string         `gorm:"column:id;primaryKey"`
	TenantID     string         `gorm:"column:tenant_id;index:idx_template_tenant"`
	Name         string         `gorm:"column:name"`
	EventType    string         `gorm:"column:event_type"`
	BonusAmount  int64          `gorm:"column:bonus_amount"`
	BudgetAmount int64          `gorm:"column:budget_amount"`
	DurationDays int            `gorm:"column:duration_days"`
	Metadata     datatypes.JSON `gorm:"column:metadata"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
}
