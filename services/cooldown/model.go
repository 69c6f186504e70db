package cooldown

import "time"

const (
	TypeNone          = "none"
	TypeDaily         = "daily"
	TypeWeekly        = "weekly"
	TypeOnce          = "once"
	TypeOncePerStreak = "once_per_streak"
	TypeInterval      = "interval"
	TypeCountPerDay   = "count_per_day"
)

// Record tracks trigger history for one (tenant, user, event, cooldown)
// scope. Rows are updated in place and never deleted.
type Record struct {
	ID               string    `gorm:"column:id;primaryKey"`
	TenantID         string    `gorm:"column:tenant_id;uniqueIndex:idx_cooldown_scope"`
	UserID           string    `gorm:"column:user_id;uniqueIndex:idx_cooldown_scope"`
	EventType        string    `gorm:"column:event_type;uniqueIndex:idx_cooldown_scope"`
	CooldownType     string    `gorm:"column:cooldown_type;uniqueIndex:idx_cooldown_scope"`
	StreakID         string    `gorm:"column:streak_id"`
	FirstTriggeredAt time.Time `gorm:"column:first_triggered_at"`
	LastTriggeredAt  time.Time `gorm:"column:last_triggered_at"`
	TriggerCount     int64     `gorm:"column:trigger_count"`
	DayBucket        string    `gorm:"column:day_bucket"`
	DayCount         int64     `gorm:"column:day_count"`
}

// Key identifies a cooldown scope plus the parameters of its policy.
type Key struct {
	TenantID  string
	UserID    string
	EventType string
	Type      string
	StreakID  string
	Interval  time.Duration
	MaxPerDay int64
}

type Status struct {
	Eligible bool
	Reason   string
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func sameISOWeek(a, b time.Time) bool {
	ay, aw := a.UTC().ISOWeek()
	by, bw := b.UTC().ISOWeek()
	return ay == by && aw == bw
}

// evaluate decides eligibility from the stored record. A nil record means
// the scope has never triggered and is always eligible.
func evaluate(rec *Record, key Key, now time.Time) Status {
	if rec == nil || rec.TriggerCount == 0 || key.Type == TypeNone {
		return Status{Eligible: true}
	}

	switch key.Type {
	case TypeDaily:
		if dayOf(rec.LastTriggeredAt) == dayOf(now) {
			return Status{Reason: "already triggered today"}
		}
	case TypeWeekly:
		if sameISOWeek(rec.LastTriggeredAt, now) {
			return Status{Reason: "already triggered this week"}
		}
	case TypeOnce:
		return Status{Reason: "already triggered"}
	case TypeOncePerStreak:
		if rec.StreakID == key.StreakID {
			return Status{Reason: "already triggered for this streak"}
		}
	case TypeInterval:
		if key.Interval > 0 && now.Sub(rec.LastTriggeredAt) < key.Interval {
			return Status{Reason: "interval has not elapsed"}
		}
	case TypeCountPerDay:
		if key.MaxPerDay > 0 && rec.DayBucket == dayOf(now) && rec.DayCount >= key.MaxPerDay {
			return Status{Reason: "daily trigger limit reached"}
		}
	}

	return Status{Eligible: true}
}
