package rule

import (
	"time"

	"github.com/Lekbanken/economy/services/cooldown"
)

// AutomationRule decides what an event is worth. Tenant rules
// (tenant_id set) shadow global rules (tenant_id empty), which in turn
// shadow the built-in defaults.
type AutomationRule struct {
	ID              string    `gorm:"column:id;primaryKey"`
	TenantID        string    `gorm:"column:tenant_id;index:idx_rule_scope"`
	EventType       string    `gorm:"column:event_type;index:idx_rule_scope"`
	Name            string    `gorm:"column:name"`
	RewardAmount    int64     `gorm:"column:reward_amount"`
	XPAmount        int64     `gorm:"column:xp_amount"`
	Conditions      string    `gorm:"column:conditions"`
	CooldownType    string    `gorm:"column:cooldown_type"`
	CooldownSeconds int64     `gorm:"column:cooldown_seconds"`
	MaxPerDay       int64     `gorm:"column:max_per_day"`
	BaseMultiplier  float64   `gorm:"column:base_multiplier"`
	IsActive        bool      `gorm:"column:is_active"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

// BuiltinRules are the fallback defaults applied when neither a tenant nor
// a global rule covers the event type.
var BuiltinRules = map[string]AutomationRule{
	"daily_login": {
		ID:             "builtin:daily_login",
		EventType:      "daily_login",
		Name:           "Daily login",
		RewardAmount:   10,
		XPAmount:       20,
		CooldownType:   cooldown.TypeDaily,
		BaseMultiplier: 1,
		IsActive:       true,
	},
	"lesson_completed": {
		ID:             "builtin:lesson_completed",
		EventType:      "lesson_completed",
		Name:           "Lesson completed",
		RewardAmount:   25,
		XPAmount:       50,
		CooldownType:   cooldown.TypeNone,
		BaseMultiplier: 1,
		IsActive:       true,
	},
	"quiz_perfect": {
		ID:             "builtin:quiz_perfect",
		EventType:      "quiz_perfect",
		Name:           "Perfect quiz score",
		RewardAmount:   50,
		XPAmount:       100,
		CooldownType:   cooldown.TypeDaily,
		BaseMultiplier: 1,
		IsActive:       true,
	},
	"streak_milestone": {
		ID:             "builtin:streak_milestone",
		EventType:      "streak_milestone",
		Name:           "Streak milestone",
		RewardAmount:   100,
		XPAmount:       150,
		CooldownType:   cooldown.TypeOncePerStreak,
		BaseMultiplier: 1,
		IsActive:       true,
	},
	"profile_completed": {
		ID:             "builtin:profile_completed",
		EventType:      "profile_completed",
		Name:           "Profile completed",
		RewardAmount:   30,
		XPAmount:       50,
		CooldownType:   cooldown.TypeOnce,
		BaseMultiplier: 1,
		IsActive:       true,
	},
}
