package softcap

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Lekbanken/economy/pkg/config"
	"github.com/Lekbanken/economy/pkg/errutil"
	"github.com/Lekbanken/economy/services/rollup"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	rollups  *rollup.Service
	defaults Config
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Rollups *rollup.Service
	Cfg     *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		rollups: p.Rollups,
		defaults: Config{
			DailyCoinThreshold: p.Cfg.Economy.DailyCoinThreshold,
			DailyXPThreshold:   p.Cfg.Economy.DailyXPThreshold,
			DiminishFactor:     p.Cfg.Economy.DiminishFactor,
			FloorPct:           p.Cfg.Economy.FloorPct,
			MaxMultiplierCap:   p.Cfg.Economy.MaxMultiplierCap,
		},
	}
}

var Module = fx.Module("softcap.service",
	fx.Provide(NewService),
)

// AdjustResult reports the soft-cap outcome for a proposed reward. Raw
// amounts are post-multiplier, pre-cap.
type AdjustResult struct {
	Coins               int64
	XP                  int64
	CoinsRaw            int64
	XPRaw               int64
	CoinsCapped         bool
	XPCapped            bool
	EffectiveMultiplier float64
}

// AdjustReward clamps the multiplier, reads the user's current-day
// totals and runs the diminishing-returns curve over the proposed
// reward. The math itself is pure (Calculate); this wrapper only
// gathers its inputs, so callers may invoke it speculatively before
// committing.
func (s *Service) AdjustReward(ctx context.Context, tenantID, userID string, baseCoins, baseXP int64, multiplier float64) (AdjustResult, error) {
	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		return AdjustResult{}, err
	}

	m := ClampMultiplier(cfg, multiplier)
	coinsRaw := int64(math.Round(float64(baseCoins) * m))
	xpRaw := int64(math.Round(float64(baseXP) * m))

	dailyCoins, dailyXP, err := s.rollups.TodayTotals(ctx, tenantID, userID)
	if err != nil {
		return AdjustResult{}, err
	}

	adj := Calculate(cfg, dailyCoins, dailyXP, coinsRaw, xpRaw)
	return AdjustResult{
		Coins:               adj.Coins,
		XP:                  adj.XP,
		CoinsRaw:            coinsRaw,
		XPRaw:               xpRaw,
		CoinsCapped:         adj.CoinsCapped,
		XPCapped:            adj.XPCapped,
		EffectiveMultiplier: m,
	}, nil
}

// GetConfig returns the tenant's soft-cap configuration, falling back to
// the deterministic defaults when the tenant never stored one.
func (s *Service) GetConfig(ctx context.Context, tenantID string) (Config, error) {
	var cfg Config
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		d := s.defaults
		d.TenantID = tenantID
		return d, nil
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Fetch is the strict variant used by admin reads: a missing row is an
// error, not a fallback.
func (s *Service) Fetch(ctx context.Context, tenantID string) (Config, error) {
	var cfg Config
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Config{}, errutil.ConfigMissing("no soft-cap config for tenant")
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UpsertConfig stores or replaces the tenant singleton.
func (s *Service) UpsertConfig(ctx context.Context, cfg Config) (Config, error) {
	if cfg.TenantID == "" {
		return Config{}, errutil.BadRequest("tenant_id is required")
	}
	if cfg.DiminishFactor <= 0 || cfg.DiminishFactor > 1 {
		return Config{}, errutil.ValidationFailed("diminish_factor must be in (0, 1]")
	}
	if cfg.FloorPct < 0 || cfg.FloorPct > 1 {
		return Config{}, errutil.ValidationFailed("floor_pct must be in [0, 1]")
	}

	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Config
		err := tx.Where("tenant_id = ?", cfg.TenantID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cfg.ID = s.node.Generate().String()
			cfg.CreatedAt = now
			cfg.UpdatedAt = now
			return tx.Create(&cfg).Error
		}
		if err != nil {
			return err
		}

		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		cfg.UpdatedAt = now
		return tx.Save(&cfg).Error
	})
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
