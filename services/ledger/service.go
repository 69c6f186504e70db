package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lekbanken/economy/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns the append-only transaction ledger and its balance
// projections. All writes go through a single database transaction that
// locks the account row, so per-account mutations are serialized.
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
	return &Service{
		db:   p.DB,
		node: p.Node,
	}
}

type ApplyParams struct {
	TenantID       string
	UserID         string
	Currency       string
	Amount         int64
	Type           string
	ReasonCode     string
	Source         string
	IdempotencyKey string
	ReversalOf     string
	Metadata       datatypes.JSON
}

type ApplyResult struct {
	Transaction *Transaction
	Balance     int64
	// Duplicate is set when the idempotency key had already been committed;
	// Transaction then holds the previously recorded row.
	Duplicate bool
}

func (p ApplyParams) validate() error {
	if p.TenantID == "" || p.UserID == "" {
		return errutil.BadRequest("tenant_id and user_id are required")
	}
	if p.Currency != CurrencyCoins && p.Currency != CurrencyXP {
		return errutil.BadRequest(fmt.Sprintf("unknown currency %q", p.Currency))
	}
	if p.IdempotencyKey == "" {
		return errutil.BadRequest("idempotency_key is required")
	}
	if p.Amount == 0 {
		return errutil.BadRequest("amount must be non-zero")
	}
	switch p.Type {
	case TypeEarn, TypeSpend, TypeReversal, TypeAdminAward, TypeBurn:
	default:
		return errutil.BadRequest(fmt.Sprintf("unknown transaction type %q", p.Type))
	}
	return nil
}

// ApplyTransaction commits one ledger transaction atomically. A duplicate
// idempotency key returns the previously committed transaction and the
// current balance instead of an error.
func (s *Service) ApplyTransaction(ctx context.Context, p ApplyParams) (*ApplyResult, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("tenant_id", p.TenantID),
		zap.String("idempotency_key", p.IdempotencyKey),
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	if res, err := s.FindCommitted(ctx, s.db, p.TenantID, p.IdempotencyKey); err != nil {
		return nil, err
	} else if res != nil {
		return res, nil
	}

	var result *ApplyResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.ApplyTx(ctx, tx, p)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race against a concurrent writer holding the same
			// key; the winner's row is authoritative.
			res, rerr := s.FindCommitted(ctx, s.db, p.TenantID, p.IdempotencyKey)
			if rerr != nil {
				return nil, rerr
			}
			if res != nil {
				return res, nil
			}
			return nil, errutil.Internal("duplicate key without committed transaction", errutil.WithErr(err))
		}
		zap.L().With(opts...).Error("failed to apply transaction", zap.Error(err))
		return nil, err
	}

	return result, nil
}

// ApplyTx runs the ledger write inside an already-open transaction so
// callers can compose it with other writes (burn logs, campaign budgets)
// in one atomic unit.
func (s *Service) ApplyTx(ctx context.Context, tx *gorm.DB, p ApplyParams) (*ApplyResult, error) {
	acct, err := s.lockAccount(tx, p.TenantID, p.UserID, p.Currency)
	if err != nil {
		return nil, err
	}

	earned, spent := acct.TotalEarned, acct.TotalSpent
	if p.Type == TypeReversal {
		if p.Amount >= 0 {
			spent -= p.Amount
		} else {
			earned += p.Amount
		}
	} else {
		if p.Amount >= 0 {
			earned += p.Amount
		} else {
			spent += -p.Amount
		}
	}

	balance := earned - spent
	if balance < 0 {
		return nil, errutil.InsufficientBalance(
			fmt.Sprintf("balance %d cannot cover amount %d", acct.Balance, p.Amount))
	}

	row := &Transaction{
		ID:             s.node.Generate().String(),
		TenantID:       p.TenantID,
		UserID:         p.UserID,
		Currency:       p.Currency,
		Amount:         p.Amount,
		Type:           p.Type,
		ReasonCode:     p.ReasonCode,
		Source:         p.Source,
		IdempotencyKey: p.IdempotencyKey,
		ReversalOf:     p.ReversalOf,
		Metadata:       p.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&Account{}).Where("id = ?", acct.ID).Updates(map[string]any{
		"balance":      balance,
		"total_earned": earned,
		"total_spent":  spent,
		"updated_at":   time.Now().UTC(),
	}).Error; err != nil {
		return nil, err
	}

	return &ApplyResult{Transaction: row, Balance: balance}, nil
}

// lockAccount fetches the account row under FOR UPDATE, creating it on
// first use. Losing the creation race falls back to re-reading the
// winner's row.
func (s *Service) lockAccount(tx *gorm.DB, tenantID, userID, currency string) (*Account, error) {
	var acct Account
	err := lockForUpdate(tx).
		Where("tenant_id = ? AND user_id = ? AND currency = ?", tenantID, userID, currency).
		First(&acct).Error
	if err == nil {
		return &acct, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	acct = Account{
		ID:        s.node.Generate().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&acct).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		if err := lockForUpdate(tx).
			Where("tenant_id = ? AND user_id = ? AND currency = ?", tenantID, userID, currency).
			First(&acct).Error; err != nil {
			return nil, err
		}
	}
	return &acct, nil
}

// lockForUpdate applies SELECT ... FOR UPDATE on engines that support it.
// SQLite has a single writer and rejects the clause.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// FindCommitted returns the read-back result for an already committed
// idempotency key, or nil when the key is unused. The balance read-back
// uses the committed transaction's own scope, so a retry whose arguments
// drifted still sees the original result.
func (s *Service) FindCommitted(ctx context.Context, tx *gorm.DB, tenantID, key string) (*ApplyResult, error) {
	var existing Transaction
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	balance, err := s.GetBalance(ctx, tenantID, existing.UserID, existing.Currency)
	if err != nil {
		return nil, err
	}
	return &ApplyResult{Transaction: &existing, Balance: balance, Duplicate: true}, nil
}

// Reverse records a compensating transaction for a previously committed
// one. The reversal references the original and nets the account back to
// its prior totals.
func (s *Service) Reverse(ctx context.Context, tenantID, transactionID, idempotencyKey string) (*ApplyResult, error) {
	var original Transaction
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, transactionID).
		First(&original).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("transaction not found")
	}
	if err != nil {
		return nil, err
	}
	if original.Type == TypeReversal {
		return nil, errutil.UnprocessableEntity("cannot reverse a reversal")
	}

	return s.ApplyTransaction(ctx, ApplyParams{
		TenantID:       original.TenantID,
		UserID:         original.UserID,
		Currency:       original.Currency,
		Amount:         -original.Amount,
		Type:           TypeReversal,
		ReasonCode:     "reversal",
		Source:         original.Source,
		IdempotencyKey: idempotencyKey,
		ReversalOf:     original.ID,
	})
}

type AwardParams struct {
	TenantID       string
	UserIDs        []string
	Amount         int64
	ReasonCode     string
	IdempotencyKey string
	Metadata       datatypes.JSON
}

type AwardResult struct {
	UserID string
	Result *ApplyResult
	Err    error
}

// AdminAwardCoins grants the same amount to each recipient. Each grant
// carries a per-recipient derived idempotency key, so retries skip
// recipients that already committed.
func (s *Service) AdminAwardCoins(ctx context.Context, p AwardParams) ([]AwardResult, error) {
	if p.Amount <= 0 {
		return nil, errutil.BadRequest("award amount must be positive")
	}
	if len(p.UserIDs) == 0 {
		return nil, errutil.BadRequest("at least one recipient is required")
	}
	if p.IdempotencyKey == "" {
		return nil, errutil.BadRequest("idempotency_key is required")
	}

	results := make([]AwardResult, 0, len(p.UserIDs))
	for _, userID := range p.UserIDs {
		res, err := s.ApplyTransaction(ctx, ApplyParams{
			TenantID:       p.TenantID,
			UserID:         userID,
			Currency:       CurrencyCoins,
			Amount:         p.Amount,
			Type:           TypeAdminAward,
			ReasonCode:     p.ReasonCode,
			Source:         "admin",
			IdempotencyKey: fmt.Sprintf("%s:%s", p.IdempotencyKey, userID),
			Metadata:       p.Metadata,
		})
		results = append(results, AwardResult{UserID: userID, Result: res, Err: err})
	}
	return results, nil
}

// GetBalance returns the current balance for the scope, zero when no
// account exists yet.
func (s *Service) GetBalance(ctx context.Context, tenantID, userID, currency string) (int64, error) {
	var acct Account
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND currency = ?", tenantID, userID, currency).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

type ListParams struct {
	TenantID string
	UserID   string
	Currency string
	Limit    int
}

func (s *Service) ListTransactions(ctx context.Context, p ListParams) ([]Transaction, error) {
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = 100
	}

	q := s.db.WithContext(ctx).Where("tenant_id = ?", p.TenantID)
	if p.UserID != "" {
		q = q.Where("user_id = ?", p.UserID)
	}
	if p.Currency != "" {
		q = q.Where("currency = ?", p.Currency)
	}

	var rows []Transaction
	if err := q.Order("created_at DESC").Limit(p.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type LeaderboardEntry struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// Leaderboard returns the top balances for a tenant and currency.
func (s *Service) Leaderboard(ctx context.Context, tenantID, currency string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var rows []LeaderboardEntry
	err := s.db.WithContext(ctx).Model(&Account{}).
		Select("user_id", "balance").
		Where("tenant_id = ? AND currency = ?", tenantID, currency).
		Order("balance DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
