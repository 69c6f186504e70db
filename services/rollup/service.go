package rollup

import (
	"context"
	"errors"
	"time"

	"github.com/Lekbanken/economy/pkg/config"
	"github.com/Lekbanken/economy/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Service maintains the earning read models: per-user daily rollups
// written on the hot path and tenant summaries recomputed in batch.
type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	concurrency int
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
	Cfg  *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		concurrency: p.Cfg.Economy.RefreshConcurrency,
	}
}

type EarningParams struct {
	TenantID     string
	UserID       string
	At           time.Time
	CoinsRaw     int64
	CoinsReduced int64
	XPRaw        int64
	XPReduced    int64
	Events       int64
}

// RecordEarning adds the grant into the user's daily bucket. The upsert
// is additive, so replays of distinct grants accumulate while the caller
// is responsible for not recording a deduplicated grant twice.
func (s *Service) RecordEarning(ctx context.Context, p EarningParams) error {
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}
	day := DayOf(p.At)

	row := &DailyEarning{
		ID:           s.node.Generate().String(),
		TenantID:     p.TenantID,
		UserID:       p.UserID,
		Day:          day,
		CoinsRaw:     p.CoinsRaw,
		CoinsReduced: p.CoinsReduced,
		XPRaw:        p.XPRaw,
		XPReduced:    p.XPReduced,
		EventCount:   p.Events,
		LastEventAt:  p.At,
		CreatedAt:    p.At,
		UpdatedAt:    p.At,
	}

	err := s.db.WithContext(ctx).Create(row).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	return s.db.WithContext(ctx).Model(&DailyEarning{}).
		Where("tenant_id = ? AND user_id = ? AND day = ?", p.TenantID, p.UserID, day).
		Updates(map[string]any{
			"coins_raw":     gorm.Expr("coins_raw + ?", p.CoinsRaw),
			"coins_reduced": gorm.Expr("coins_reduced + ?", p.CoinsReduced),
			"xp_raw":        gorm.Expr("xp_raw + ?", p.XPRaw),
			"xp_reduced":    gorm.Expr("xp_reduced + ?", p.XPReduced),
			"event_count":   gorm.Expr("event_count + ?", p.Events),
			"last_event_at": p.At,
			"updated_at":    p.At,
		}).Error
}

// TodayTotals returns the user's post-cap totals for the current UTC day.
// Feeds the soft-cap calculator.
func (s *Service) TodayTotals(ctx context.Context, tenantID, userID string) (coins, xp int64, err error) {
	var row DailyEarning
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND day = ?", tenantID, userID, DayOf(time.Now())).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return row.CoinsReduced, row.XPReduced, nil
}

// GetDailyEarnings lists a user's daily buckets, newest first.
func (s *Service) GetDailyEarnings(ctx context.Context, tenantID, userID string, limit int) ([]DailyEarning, error) {
	if limit <= 0 || limit > 90 {
		limit = 30
	}

	var rows []DailyEarning
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("day DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RefreshDailySummaries recomputes the tenant's summary for one UTC day
// from the ledger. The replace is idempotent.
func (s *Service) RefreshDailySummaries(ctx context.Context, tenantID, day string) error {
	dayStart, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return err
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	type sums struct {
		AwardsTotal        int64
		CampaignBonusTotal int64
		AutomationTotal    int64
		BurnTotal          int64
		TxCount            int64
	}
	sel := "COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS awards_total, " +
		"COALESCE(SUM(CASE WHEN source = ? AND amount > 0 THEN amount ELSE 0 END), 0) AS campaign_bonus_total, " +
		"COALESCE(SUM(CASE WHEN source = ? AND amount > 0 THEN amount ELSE 0 END), 0) AS automation_total, " +
		"COALESCE(SUM(CASE WHEN type = ? THEN -amount ELSE 0 END), 0) AS burn_total, " +
		"COUNT(*) AS tx_count"

	var agg sums
	err = s.db.WithContext(ctx).Model(&ledger.Transaction{}).
		Select(sel, ledger.TypeAdminAward, SourceCampaign, SourceAutomation, ledger.TypeBurn).
		Where("tenant_id = ? AND currency = ? AND created_at >= ? AND created_at < ?",
			tenantID, ledger.CurrencyCoins, dayStart, dayEnd).
		Scan(&agg).Error
	if err != nil {
		return err
	}

	var events int64
	err = s.db.WithContext(ctx).Model(&DailyEarning{}).
		Select("COALESCE(SUM(event_count), 0)").
		Where("tenant_id = ? AND day = ?", tenantID, day).
		Scan(&events).Error
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&TenantDailySummary{}).
			Where("tenant_id = ? AND day = ?", tenantID, day).
			Updates(map[string]any{
				"awards_total":         agg.AwardsTotal,
				"campaign_bonus_total": agg.CampaignBonusTotal,
				"automation_total":     agg.AutomationTotal,
				"burn_total":           agg.BurnTotal,
				"events_count":         events,
				"tx_count":             agg.TxCount,
				"refreshed_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		return tx.Create(&TenantDailySummary{
			ID:                 s.node.Generate().String(),
			TenantID:           tenantID,
			Day:                day,
			AwardsTotal:        agg.AwardsTotal,
			CampaignBonusTotal: agg.CampaignBonusTotal,
			AutomationTotal:    agg.AutomationTotal,
			BurnTotal:          agg.BurnTotal,
			EventsCount:        events,
			TxCount:            agg.TxCount,
			RefreshedAt:        now,
			CreatedAt:          now,
		}).Error
	})
}

// RefreshAll recomputes summaries for every tenant that transacted on the
// given day, with bounded parallelism.
func (s *Service) RefreshAll(ctx context.Context, day string) error {
	dayStart, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return err
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	var tenants []string
	err = s.db.WithContext(ctx).Model(&ledger.Transaction{}).
		Distinct("tenant_id").
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			if err := s.RefreshDailySummaries(gctx, tenantID, day); err != nil {
				zap.L().Error("summary refresh failed",
					zap.String("tenant_id", tenantID),
					zap.String("day", day),
					zap.Error(err),
				)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// GetSummary returns the tenant's stored summary for a day.
func (s *Service) GetSummary(ctx context.Context, tenantID, day string) (*TenantDailySummary, error) {
	var row TenantDailySummary
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND day = ?", tenantID, day).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
