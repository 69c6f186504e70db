package campaign

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository describes database operations available for campaigns.
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, tenantID, campaignID string) (*Campaign, error)
	List(ctx context.Context, tenantID string, includeInactive bool) ([]Campaign, error)
	Update(ctx context.Context, c *Campaign) error
	// ListActive returns campaigns whose window covers now for the event type.
	ListActive(ctx context.Context, tenantID, eventType string, now time.Time) ([]Campaign, error)
	// SpendBudget atomically reserves amount from the campaign budget.
	// The reservation fails closed: it returns false when the remaining
	// budget cannot cover the amount. Must run inside the same database
	// transaction as the ledger write it funds.
	SpendBudget(tx *gorm.DB, campaignID string, amount int64) (bool, error)

	CreateTemplate(ctx context.Context, t *Template) error
	ListTemplates(ctx context.Context, tenantID string) ([]Template, error)
	// Instantiate creates a campaign from a template starting now.
	Instantiate(ctx context.Context, tenantID, templateID, campaignID string, now time.Time) (*Campaign, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, c *Campaign) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *gormRepository) GetByID(ctx context.Context, tenantID, campaignID string) (*Campaign, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var c Campaign
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, campaignID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) List(ctx context.Context, tenantID string, includeInactive bool) ([]Campaign, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Campaign{}).
		Where("tenant_id = ?", tenantID)
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}

	var campaigns []Campaign
	if err := query.Order("starts_at DESC").Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *gormRepository) Update(ctx context.Context, c *Campaign) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&Campaign{}).
		Where("tenant_id = ? AND id = ?", c.TenantID, c.ID).
		Updates(map[string]any{
			"name":          c.Name,
			"event_type":    c.EventType,
			"bonus_amount":  c.BonusAmount,
			"budget_amount": c.BudgetAmount,
			"starts_at":     c.StartsAt,
			"ends_at":       c.EndsAt,
			"is_active":     c.IsActive,
			"updated_at":    c.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) ListActive(ctx context.Context, tenantID, eventType string, now time.Time) ([]Campaign, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var campaigns []Campaign
	err := r.db.WithContext(ctx).Model(&Campaign{}).
		Where("tenant_id = ? AND event_type = ? AND is_active = ?", tenantID, eventType, true).
		Where("starts_at <= ? AND ends_at > ?", now, now).
		Order("starts_at ASC").
		Find(&campaigns).Error
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *gormRepository) SpendBudget(tx *gorm.DB, campaignID string, amount int64) (bool, error) {
	if tx == nil {
		return false, gorm.ErrInvalidDB
	}

	res := tx.Model(&Campaign{}).
		Where("id = ?", campaignID).
		Where("budget_amount <= 0 OR spent_amount + ? <= budget_amount", amount).
		Updates(map[string]any{
			"spent_amount": gorm.Expr("spent_amount + ?", amount),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreateTemplate(ctx context.Context, t *Template) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *gormRepository) ListTemplates(ctx context.Context, tenantID string) ([]Template, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var templates []Template
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name ASC").
		Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *gormRepository) Instantiate(ctx context.Context, tenantID, templateID, campaignID string, now time.Time) (*Campaign, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var t Template
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, templateID).
		First(&t).Error; err != nil {
		return nil, err
	}

	days := t.DurationDays
	if days <= 0 {
		days = 7
	}

	c := &Campaign{
		ID:           campaignID,
		TenantID:     tenantID,
		TemplateID:   t.ID,
		Name:         t.Name,
		EventType:    t.EventType,
		BonusAmount:  t.BonusAmount,
		BudgetAmount: t.BudgetAmount,
		StartsAt:     now,
		EndsAt:       now.AddDate(0, 0, days),
		IsActive:     true,
		Metadata:     t.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}
