package softcap

import "math"

// Calculate applies diminishing returns to a base reward given what the
// user already earned today. Per currency: amounts up to the daily
// threshold pass untouched; the portion past it is scaled down by
// diminish_factor raised with the relative overage, floored at
// ceil(floor_pct * base) and never exceeding the base.
//
// The result is monotonically non-increasing in the daily total: earning
// more first never yields a larger grant later.
func Calculate(cfg Config, dailyCoins, dailyXP, baseCoins, baseXP int64) Adjustment {
	coins, coinsCapped := diminish(baseCoins, dailyCoins, cfg.DailyCoinThreshold, cfg.DiminishFactor, cfg.FloorPct)
	xp, xpCapped := diminish(baseXP, dailyXP, cfg.DailyXPThreshold, cfg.DiminishFactor, cfg.FloorPct)
	return Adjustment{
		Coins:       coins,
		XP:          xp,
		CoinsCapped: coinsCapped,
		XPCapped:    xpCapped,
	}
}

func diminish(base, daily, threshold int64, factor, floorPct float64) (int64, bool) {
	if base <= 0 {
		return base, false
	}
	if threshold <= 0 || daily+base <= threshold {
		return base, false
	}

	within := threshold - daily
	if within < 0 {
		within = 0
	}
	over := base - within

	overage := float64(daily+base-threshold) / float64(threshold)
	scaled := int64(math.Floor(float64(over) * math.Pow(factor, 1+overage)))

	final := within + scaled

	floorAmt := int64(math.Ceil(floorPct * float64(base)))
	if final < floorAmt {
		final = floorAmt
	}
	if final > base {
		final = base
	}
	return final, final < base
}

// ClampMultiplier bounds a stacked multiplier by the tenant's cap.
func ClampMultiplier(cfg Config, multiplier float64) float64 {
	if multiplier < 1 {
		return 1
	}
	if cfg.MaxMultiplierCap > 0 && multiplier > cfg.MaxMultiplierCap {
		return cfg.MaxMultiplierCap
	}
	return multiplier
}
