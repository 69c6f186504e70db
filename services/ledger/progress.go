package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type XPResult struct {
	Apply     *ApplyResult
	Progress  *UserProgress
	LeveledUp bool
}

// ApplyXPTransaction records an xp ledger transaction and advances the
// user's level projection in the same unit of work. Only positive amounts
// move the level curve; xp ledger debits (rare, admin corrections) leave
// the projection untouched.
func (s *Service) ApplyXPTransaction(ctx context.Context, p ApplyParams) (*XPResult, error) {
	p.Currency = CurrencyXP

	if err := p.validate(); err != nil {
		return nil, err
	}

	if res, err := s.FindCommitted(ctx, s.db, p.TenantID, p.IdempotencyKey); err != nil {
		return nil, err
	} else if res != nil {
		progress, perr := s.GetProgress(ctx, p.TenantID, p.UserID)
		if perr != nil {
			return nil, perr
		}
		return &XPResult{Apply: res, Progress: progress}, nil
	}

	var result *XPResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.ApplyTx(ctx, tx, p)
		if err != nil {
			return err
		}

		progress, err := s.lockProgress(tx, p.TenantID, p.UserID)
		if err != nil {
			return err
		}

		prevLevel := progress.Level
		if p.Amount > 0 {
			progress.AdvanceXP(p.Amount)
		}
		progress.UpdatedAt = time.Now().UTC()
		if err := tx.Save(progress).Error; err != nil {
			return err
		}

		result = &XPResult{
			Apply:     applied,
			Progress:  progress,
			LeveledUp: progress.Level > prevLevel,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			res, rerr := s.FindCommitted(ctx, s.db, p.TenantID, p.IdempotencyKey)
			if rerr != nil {
				return nil, rerr
			}
			if res != nil {
				progress, perr := s.GetProgress(ctx, p.TenantID, p.UserID)
				if perr != nil {
					return nil, perr
				}
				return &XPResult{Apply: res, Progress: progress}, nil
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) lockProgress(tx *gorm.DB, tenantID, userID string) (*UserProgress, error) {
	var progress UserProgress
	err := lockForUpdate(tx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&progress).Error
	if err == nil {
		return &progress, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	progress = UserProgress{
		ID:          s.node.Generate().String(),
		TenantID:    tenantID,
		UserID:      userID,
		Level:       1,
		NextLevelXP: XPPerLevel,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.Create(&progress).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		if err := lockForUpdate(tx).
			Where("tenant_id = ? AND user_id = ?", tenantID, userID).
			First(&progress).Error; err != nil {
			return nil, err
		}
	}
	return &progress, nil
}

// GetProgress returns the level projection, a fresh level-1 view when the
// user has never earned xp.
func (s *Service) GetProgress(ctx context.Context, tenantID, userID string) (*UserProgress, error) {
	var progress UserProgress
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &UserProgress{
			TenantID:    tenantID,
			UserID:      userID,
			Level:       1,
			NextLevelXP: XPPerLevel,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}
