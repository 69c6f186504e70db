package rule

import (
	"context"

	"gorm.io/gorm"
)

// ListParams describes filters applied when listing rules from the repository.
type ListParams struct {
	EventType       string
	IncludeInactive bool
	Limit           int
}

// Repository describes database operations available for automation rules.
type Repository interface {
	Create(ctx context.Context, rule *AutomationRule) error
	GetByID(ctx context.Context, tenantID, ruleID string) (*AutomationRule, error)
	List(ctx context.Context, tenantID string, params ListParams) ([]AutomationRule, error)
	Update(ctx context.Context, rule *AutomationRule) error
	Delete(ctx context.Context, tenantID, ruleID string) error
	// Resolve returns the applicable rules for an event type: the
	// tenant's own rules when any exist, otherwise the global ones,
	// otherwise the built-in default.
	Resolve(ctx context.Context, tenantID, eventType string) ([]AutomationRule, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, rule *AutomationRule) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *gormRepository) GetByID(ctx context.Context, tenantID, ruleID string) (*AutomationRule, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var rule AutomationRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, ruleID).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *gormRepository) List(ctx context.Context, tenantID string, params ListParams) ([]AutomationRule, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&AutomationRule{}).
		Where("tenant_id = ?", tenantID)

	if params.EventType != "" {
		query = query.Where("event_type = ?", params.EventType)
	}
	if !params.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}

	var rules []AutomationRule
	if err := query.Order("event_type ASC").Order("id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *gormRepository) Update(ctx context.Context, rule *AutomationRule) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&AutomationRule{}).
		Where("tenant_id = ? AND id = ?", rule.TenantID, rule.ID).
		Updates(map[string]any{
			"name":             rule.Name,
			"event_type":       rule.EventType,
			"reward_amount":    rule.RewardAmount,
			"xp_amount":        rule.XPAmount,
			"conditions":       rule.Conditions,
			"cooldown_type":    rule.CooldownType,
			"cooldown_seconds": rule.CooldownSeconds,
			"max_per_day":      rule.MaxPerDay,
			"base_multiplier":  rule.BaseMultiplier,
			"is_active":        rule.IsActive,
			"updated_at":       rule.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) Delete(ctx context.Context, tenantID, ruleID string) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, ruleID).
		Delete(&AutomationRule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) Resolve(ctx context.Context, tenantID, eventType string) ([]AutomationRule, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var rules []AutomationRule
	err := r.db.WithContext(ctx).Model(&AutomationRule{}).
		Where("tenant_id = ? AND event_type = ? AND is_active = ?", tenantID, eventType, true).
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		return rules, nil
	}

	if tenantID != "" {
		err = r.db.WithContext(ctx).Model(&AutomationRule{}).
			Where("tenant_id = ? AND event_type = ? AND is_active = ?", "", eventType, true).
			Order("id ASC").
			Find(&rules).Error
		if err != nil {
			return nil, err
		}
		if len(rules) > 0 {
			return rules, nil
		}
	}

	if builtin, ok := BuiltinRules[eventType]; ok {
		return []AutomationRule{builtin}, nil
	}
	return nil, nil
}
