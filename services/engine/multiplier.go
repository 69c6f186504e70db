package engine

import "time"

// WeekendMultiplier boosts rewards on UTC Saturdays and Sundays.
const WeekendMultiplier = 1.25

// LevelBonusStart is the first level that earns a loyalty bonus.
const LevelBonusStart = 5

// stackMultipliers combines the rule's base multiplier with the weekend
// and level bonuses. Stacking is multiplicative; the caller clamps the
// result against the tenant's cap.
func stackMultipliers(base float64, at time.Time, level int64) float64 {
	m := base
	if m <= 0 {
		m = 1
	}

	switch at.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		m *= WeekendMultiplier
	}

	if level >= LevelBonusStart {
		m *= 1 + float64(level-LevelBonusStart+1)*0.1
	}

	return m
}
