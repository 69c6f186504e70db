package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lekbanken/economy/pkg/errutil"
	"github.com/Lekbanken/economy/services/campaign"
	"github.com/Lekbanken/economy/services/cooldown"
	"github.com/Lekbanken/economy/services/ledger"
	"github.com/Lekbanken/economy/services/rollup"
	"github.com/Lekbanken/economy/services/rule"
	"github.com/Lekbanken/economy/services/softcap"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the campaign and automation engine: it turns application
// events into ledger grants by resolving rules, gating on cooldowns,
// stacking multipliers, applying the soft cap and paying out campaign
// bonuses against their budgets.
type Service struct {
	db        *gorm.DB
	ledgers   *ledger.Service
	cooldowns *cooldown.Service
	softcaps  *softcap.Service
	rules     rule.Repository
	evaluator *rule.Evaluator
	campaigns campaign.Repository
	rollups   *rollup.Service
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Ledger    *ledger.Service
	Cooldowns *cooldown.Service
	Softcaps  *softcap.Service
	Rules     rule.Repository
	Evaluator *rule.Evaluator
	Campaigns campaign.Repository
	Rollups   *rollup.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		ledgers:   p.Ledger,
		cooldowns: p.Cooldowns,
		softcaps:  p.Softcaps,
		rules:     p.Rules,
		evaluator: p.Evaluator,
		campaigns: p.Campaigns,
		rollups:   p.Rollups,
	}
}

var Module = fx.Module("engine.service",
	fx.Provide(NewService),
)

type EventParams struct {
	TenantID       string
	UserID         string
	EventType      string
	StreakID       string
	Attributes     map[string]any
	IdempotencyKey string
	OccurredAt     time.Time
}

// Grant reports one rule or campaign outcome for an event. Skipped grants
// carry the reason; duplicate grants echo the previously committed state.
type Grant struct {
	RuleID        string  `json:"rule_id,omitempty"`
	CampaignID    string  `json:"campaign_id,omitempty"`
	Coins         int64   `json:"coins"`
	XP            int64   `json:"xp"`
	Multiplier    float64 `json:"multiplier,omitempty"`
	Capped        bool    `json:"capped,omitempty"`
	Skipped       bool    `json:"skipped,omitempty"`
	SkipReason    string  `json:"skip_reason,omitempty"`
	Duplicate     bool    `json:"duplicate,omitempty"`
	TransactionID string  `json:"transaction_id,omitempty"`
}

// EvaluateEvent processes one event end to end. Per-grant rejections
// (cooldown, budget, condition mismatch) degrade to skipped grants;
// only infrastructure failures surface as errors.
func (s *Service) EvaluateEvent(ctx context.Context, p EventParams) ([]Grant, error) {
	span := trace.SpanFromContext(ctx)
	logFields := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("tenant_id", p.TenantID),
		zap.String("event_type", p.EventType),
	}

	if p.TenantID == "" || p.UserID == "" || p.EventType == "" {
		return nil, errutil.BadRequest("tenant_id, user_id and event_type are required")
	}
	if p.IdempotencyKey == "" {
		return nil, errutil.BadRequest("idempotency_key is required")
	}
	if p.OccurredAt.IsZero() {
		p.OccurredAt = time.Now().UTC()
	}

	progress, err := s.ledgers.GetProgress(ctx, p.TenantID, p.UserID)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.Resolve(ctx, p.TenantID, p.EventType)
	if err != nil {
		return nil, err
	}

	grants := make([]Grant, 0, len(rules)+1)
	for _, r := range rules {
		grant, err := s.applyRule(ctx, p, r, progress.Level)
		if err != nil {
			zap.L().With(logFields...).Error("rule grant failed", zap.String("rule_id", r.ID), zap.Error(err))
			return nil, err
		}
		grants = append(grants, grant)
	}

	campaignGrants, err := s.applyCampaigns(ctx, p)
	if err != nil {
		zap.L().With(logFields...).Error("campaign grants failed", zap.Error(err))
		return nil, err
	}
	grants = append(grants, campaignGrants...)

	return grants, nil
}

func (s *Service) applyRule(ctx context.Context, p EventParams, r rule.AutomationRule, level int64) (Grant, error) {
	grant := Grant{RuleID: r.ID}

	attrs := map[string]any{
		"event_type": p.EventType,
		"user_level": level,
		"streak_id":  p.StreakID,
	}
	for k, v := range p.Attributes {
		attrs[k] = v
	}

	matched, err := s.evaluator.Evaluate(r.Conditions, attrs)
	if err != nil {
		zap.L().Warn("rule condition evaluation failed",
			zap.String("rule_id", r.ID), zap.Error(err))
		grant.Skipped = true
		grant.SkipReason = "condition evaluation failed"
		return grant, nil
	}
	if !matched {
		grant.Skipped = true
		grant.SkipReason = "conditions not met"
		return grant, nil
	}

	cdKey := cooldown.Key{
		TenantID:  p.TenantID,
		UserID:    p.UserID,
		EventType: p.EventType,
		Type:      r.CooldownType,
		StreakID:  p.StreakID,
		Interval:  time.Duration(r.CooldownSeconds) * time.Second,
		MaxPerDay: r.MaxPerDay,
	}
	if cdKey.Type == "" {
		cdKey.Type = cooldown.TypeNone
	}
	status, err := s.cooldowns.IsEligible(ctx, cdKey)
	if err != nil {
		return grant, err
	}
	if !status.Eligible {
		grant.Skipped = true
		grant.SkipReason = status.Reason
		return grant, nil
	}

	adj, err := s.softcaps.AdjustReward(ctx, p.TenantID, p.UserID,
		r.RewardAmount, r.XPAmount, stackMultipliers(r.BaseMultiplier, p.OccurredAt, level))
	if err != nil {
		return grant, err
	}

	grant.Multiplier = adj.EffectiveMultiplier
	grant.Capped = adj.CoinsCapped || adj.XPCapped
	grant.Coins = adj.Coins
	grant.XP = adj.XP

	var freshCoins, freshCoinsRaw, freshXP, freshXPRaw int64
	coinsDup, xpDup := false, false

	if adj.Coins > 0 {
		res, err := s.ledgers.ApplyTransaction(ctx, ledger.ApplyParams{
			TenantID:       p.TenantID,
			UserID:         p.UserID,
			Currency:       ledger.CurrencyCoins,
			Amount:         adj.Coins,
			Type:           ledger.TypeEarn,
			ReasonCode:     p.EventType,
			Source:         rollup.SourceAutomation,
			IdempotencyKey: fmt.Sprintf("%s:%s", p.IdempotencyKey, r.ID),
		})
		if err != nil {
			return grant, err
		}
		grant.TransactionID = res.Transaction.ID
		coinsDup = res.Duplicate
		if !coinsDup {
			freshCoins, freshCoinsRaw = adj.Coins, adj.CoinsRaw
		}
	}

	if adj.XP > 0 {
		res, err := s.ledgers.ApplyXPTransaction(ctx, ledger.ApplyParams{
			TenantID:       p.TenantID,
			UserID:         p.UserID,
			Amount:         adj.XP,
			Type:           ledger.TypeEarn,
			ReasonCode:     p.EventType,
			Source:         rollup.SourceAutomation,
			IdempotencyKey: fmt.Sprintf("%s:%s:xp", p.IdempotencyKey, r.ID),
		})
		if err != nil {
			return grant, err
		}
		xpDup = res.Apply.Duplicate
		if !xpDup {
			freshXP, freshXPRaw = adj.XP, adj.XPRaw
		}
	}

	// Each leg settles its own rollup delta. A retry that finds one leg
	// already committed still records whatever it paid fresh, so the daily
	// totals converge after a crash between the two commits.
	if freshCoins > 0 || freshXP > 0 {
		if err := s.rollups.RecordEarning(ctx, rollup.EarningParams{
			TenantID:     p.TenantID,
			UserID:       p.UserID,
			At:           p.OccurredAt,
			CoinsRaw:     freshCoinsRaw,
			CoinsReduced: freshCoins,
			XPRaw:        freshXPRaw,
			XPReduced:    freshXP,
			Events:       1,
		}); err != nil {
			return grant, err
		}
	}

	grant.Duplicate = (adj.Coins > 0 && coinsDup) || (adj.Coins == 0 && adj.XP > 0 && xpDup)
	if grant.Duplicate {
		return grant, nil
	}

	// Recorded after the grant commits: a crash in between re-allows one
	// trigger, but the derived idempotency key still blocks a double pay.
	if cdKey.Type != cooldown.TypeNone {
		if err := s.cooldowns.RecordTrigger(ctx, cdKey); err != nil {
			return grant, err
		}
	}

	return grant, nil
}

// errBudgetExhausted aborts the bonus transaction when the conditional
// budget reservation matched no row.
var errBudgetExhausted = errors.New("campaign budget exhausted")

func (s *Service) applyCampaigns(ctx context.Context, p EventParams) ([]Grant, error) {
	active, err := s.campaigns.ListActive(ctx, p.TenantID, p.EventType, p.OccurredAt)
	if err != nil {
		return nil, err
	}

	grants := make([]Grant, 0, len(active))
	for _, c := range active {
		grant := Grant{CampaignID: c.ID}
		key := fmt.Sprintf("%s:campaign:%s", p.IdempotencyKey, c.ID)

		if existing, err := s.ledgers.FindCommitted(ctx, s.db, p.TenantID, key); err != nil {
			return nil, err
		} else if existing != nil {
			grant.Duplicate = true
			grant.Coins = existing.Transaction.Amount
			grant.TransactionID = existing.Transaction.ID
			grants = append(grants, grant)
			continue
		}

		var applied *ledger.ApplyResult
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.campaigns.SpendBudget(tx, c.ID, c.BonusAmount)
			if err != nil {
				return err
			}
			if !ok {
				return errBudgetExhausted
			}

			applied, err = s.ledgers.ApplyTx(ctx, tx, ledger.ApplyParams{
				TenantID:       p.TenantID,
				UserID:         p.UserID,
				Currency:       ledger.CurrencyCoins,
				Amount:         c.BonusAmount,
				Type:           ledger.TypeEarn,
				ReasonCode:     p.EventType,
				Source:         rollup.SourceCampaign,
				IdempotencyKey: key,
			})
			return err
		})
		switch {
		case err == nil:
			grant.Coins = applied.Transaction.Amount
			grant.TransactionID = applied.Transaction.ID
			if rerr := s.rollups.RecordEarning(ctx, rollup.EarningParams{
				TenantID:     p.TenantID,
				UserID:       p.UserID,
				At:           p.OccurredAt,
				CoinsRaw:     c.BonusAmount,
				CoinsReduced: c.BonusAmount,
			}); rerr != nil {
				return nil, rerr
			}
		case errors.Is(err, errBudgetExhausted):
			grant.Skipped = true
			grant.SkipReason = "campaign budget exhausted"
		case errors.Is(err, gorm.ErrDuplicatedKey):
			// Raced a concurrent delivery; the budget spend rolled back
			// with the transaction.
			existing, rerr := s.ledgers.FindCommitted(ctx, s.db, p.TenantID, key)
			if rerr != nil {
				return nil, rerr
			}
			if existing == nil {
				return nil, err
			}
			grant.Duplicate = true
			grant.Coins = existing.Transaction.Amount
			grant.TransactionID = existing.Transaction.ID
		default:
			return nil, err
		}

		grants = append(grants, grant)
	}
	return grants, nil
}
