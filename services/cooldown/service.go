package cooldown

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service gates repeated reward triggers. Callers check eligibility before
// granting and record the trigger only after the grant commits, so a crash
// between the two can at worst re-allow one grant (the ledger's
// idempotency key still deduplicates the actual write).
type Service struct {
	db   *gorm.DB
	node *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, node: p.Node}
}

var Module = fx.Module("cooldown.service",
	fx.Provide(NewService),
)

func (s *Service) IsEligible(ctx context.Context, key Key) (Status, error) {
	rec, err := s.find(ctx, key)
	if err != nil {
		return Status{}, err
	}
	return evaluate(rec, key, time.Now().UTC()), nil
}

// RecordTrigger upserts the scope's record: bumps the trigger count, moves
// the streak marker and maintains the per-day counter.
func (s *Service) RecordTrigger(ctx context.Context, key Key) error {
	now := time.Now().UTC()
	today := dayOf(now)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.findTx(tx, key, true)
		if err != nil {
			return err
		}

		if rec == nil {
			rec = &Record{
				ID:               s.node.Generate().String(),
				TenantID:         key.TenantID,
				UserID:           key.UserID,
				EventType:        key.EventType,
				CooldownType:     key.Type,
				StreakID:         key.StreakID,
				FirstTriggeredAt: now,
				LastTriggeredAt:  now,
				TriggerCount:     1,
				DayBucket:        today,
				DayCount:         1,
			}
			if err := tx.Create(rec).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// Lost a creation race; fold into the winner's row.
					return s.bump(tx, key, now, today)
				}
				return err
			}
			return nil
		}

		return s.bump(tx, key, now, today)
	})
}

func (s *Service) bump(tx *gorm.DB, key Key, now time.Time, today string) error {
	var existing Record
	if err := tx.
		Where("tenant_id = ? AND user_id = ? AND event_type = ? AND cooldown_type = ?",
			key.TenantID, key.UserID, key.EventType, key.Type).
		First(&existing).Error; err != nil {
		return err
	}

	dayCount := int64(1)
	if existing.DayBucket == today {
		dayCount = existing.DayCount + 1
	}

	return tx.Model(&Record{}).Where("id = ?", existing.ID).Updates(map[string]any{
		"last_triggered_at": now,
		"trigger_count":     gorm.Expr("trigger_count + 1"),
		"streak_id":         key.StreakID,
		"day_bucket":        today,
		"day_count":         dayCount,
	}).Error
}

func (s *Service) find(ctx context.Context, key Key) (*Record, error) {
	return s.findTx(s.db.WithContext(ctx), key, false)
}

func (s *Service) findTx(tx *gorm.DB, key Key, forUpdate bool) (*Record, error) {
	q := tx
	if forUpdate && tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rec Record
	err := q.
		Where("tenant_id = ? AND user_id = ? AND event_type = ? AND cooldown_type = ?",
			key.TenantID, key.UserID, key.EventType, key.Type).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
