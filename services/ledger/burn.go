package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lekbanken/economy/pkg/errutil"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BurnParams struct {
	TenantID       string
	UserID         string
	SinkID         string
	IdempotencyKey string
	Metadata       datatypes.JSON
}

// BurnResult reports the outcome of a burn attempt. Business rejections
// (sink closed, out of stock, insufficient balance, per-user limit) come
// back with Success=false and a reason rather than an error.
type BurnResult struct {
	Success       bool
	ErrorCode     errutil.CoreStatus
	ErrorMessage  string
	Log           *BurnLog
	Balance       int64
	Duplicate     bool
	TransactionID string
}

// BurnCoins spends coins against a sink. The stock decrement, the ledger
// debit and the burn log land in one database transaction, so a failure at
// any step leaves no partial debit behind.
func (s *Service) BurnCoins(ctx context.Context, p BurnParams) (*BurnResult, error) {
	if p.SinkID == "" {
		return nil, errutil.BadRequest("sink_id is required")
	}
	if p.IdempotencyKey == "" {
		return nil, errutil.BadRequest("idempotency_key is required")
	}

	if res, err := s.FindCommitted(ctx, s.db, p.TenantID, p.IdempotencyKey); err != nil {
		return nil, err
	} else if res != nil {
		return s.replayBurn(ctx, p, res)
	}

	var (
		result  *BurnResult
		bizFail *BurnResult
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sink BurnSink
		err := lockForUpdate(tx).
			Where("tenant_id = ? AND id = ?", p.TenantID, p.SinkID).
			First(&sink).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bizFail = burnRejected(errutil.StatusSinkUnavailable, "sink not found")
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if reason := sinkUnavailableReason(&sink, now); reason != "" {
			bizFail = burnRejected(errutil.StatusSinkUnavailable, reason)
			return nil
		}

		if sink.PerUserLimit > 0 {
			var used int64
			if err := tx.Model(&BurnLog{}).
				Where("tenant_id = ? AND user_id = ? AND sink_id = ? AND result_status = ?",
					p.TenantID, p.UserID, p.SinkID, BurnCompleted).
				Count(&used).Error; err != nil {
				return err
			}
			if used >= sink.PerUserLimit {
				bizFail = burnRejected(errutil.StatusSinkUnavailable, "per-user limit reached")
				return nil
			}
		}

		if sink.TotalStock > 0 {
			res := tx.Model(&BurnSink{}).
				Where("id = ? AND remaining_stock > 0", sink.ID).
				Update("remaining_stock", gorm.Expr("remaining_stock - 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				bizFail = burnRejected(errutil.StatusSinkUnavailable, "out of stock")
				return nil
			}
		}

		applied, err := s.ApplyTx(ctx, tx, ApplyParams{
			TenantID:       p.TenantID,
			UserID:         p.UserID,
			Currency:       CurrencyCoins,
			Amount:         -sink.CostCoins,
			Type:           TypeBurn,
			ReasonCode:     sink.SinkType,
			Source:         "burn",
			IdempotencyKey: p.IdempotencyKey,
			Metadata:       p.Metadata,
		})
		if err != nil {
			if errutil.Is(err, errutil.StatusInsufficientBalance) {
				bizFail = burnRejected(errutil.StatusInsufficientBalance, "insufficient balance")
				return errRollbackBurn // undo the stock decrement
			}
			return err
		}

		log := &BurnLog{
			ID:            s.node.Generate().String(),
			TenantID:      p.TenantID,
			UserID:        p.UserID,
			SinkID:        sink.ID,
			AmountSpent:   sink.CostCoins,
			ResultStatus:  BurnCompleted,
			TransactionID: applied.Transaction.ID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(log).Error; err != nil {
			return err
		}

		result = &BurnResult{
			Success:       true,
			Log:           log,
			Balance:       applied.Balance,
			TransactionID: applied.Transaction.ID,
		}
		return nil
	})
	if err != nil {
		if bizFail != nil {
			return bizFail, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if res, rerr := s.FindCommitted(ctx, s.db, p.TenantID, p.IdempotencyKey); rerr == nil && res != nil {
				return s.replayBurn(ctx, p, res)
			}
		}
		return nil, err
	}
	if bizFail != nil {
		return bizFail, nil
	}
	return result, nil
}

// errRollbackBurn aborts the burn transaction after a business rejection
// that must undo earlier writes in the same unit.
var errRollbackBurn = errors.New("burn rolled back")

func burnRejected(code errutil.CoreStatus, msg string) *BurnResult {
	return &BurnResult{Success: false, ErrorCode: code, ErrorMessage: msg}
}

func sinkUnavailableReason(sink *BurnSink, now time.Time) string {
	if !sink.IsAvailable {
		return "sink is disabled"
	}
	if sink.AvailableFrom != nil && now.Before(*sink.AvailableFrom) {
		return "sink not yet available"
	}
	if sink.AvailableUntil != nil && now.After(*sink.AvailableUntil) {
		return "sink availability window has ended"
	}
	return ""
}

// replayBurn reconstructs the response for a burn that already committed
// under the same idempotency key.
func (s *Service) replayBurn(ctx context.Context, p BurnParams, res *ApplyResult) (*BurnResult, error) {
	var log BurnLog
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND transaction_id = ?", p.TenantID, res.Transaction.ID).
		First(&log).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	out := &BurnResult{
		Success:       true,
		Balance:       res.Balance,
		Duplicate:     true,
		TransactionID: res.Transaction.ID,
	}
	if err == nil {
		out.Log = &log
	}
	return out, nil
}

// RefundBurn reverses a completed burn: restores the stock unit, credits
// the coins back and marks the log refunded. Admin operation.
func (s *Service) RefundBurn(ctx context.Context, tenantID, burnLogID string) (*BurnResult, error) {
	var result *BurnResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var log BurnLog
		err := lockForUpdate(tx).
			Where("tenant_id = ? AND id = ?", tenantID, burnLogID).
			First(&log).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errutil.NotFound("burn log not found")
		}
		if err != nil {
			return err
		}
		if log.ResultStatus == BurnRefunded {
			return errutil.Conflict("burn already refunded")
		}

		var sink BurnSink
		if err := tx.Where("id = ?", log.SinkID).First(&sink).Error; err != nil {
			return err
		}
		if sink.TotalStock > 0 {
			if err := tx.Model(&BurnSink{}).
				Where("id = ?", sink.ID).
				Update("remaining_stock", gorm.Expr("remaining_stock + 1")).Error; err != nil {
				return err
			}
		}

		applied, err := s.ApplyTx(ctx, tx, ApplyParams{
			TenantID:       tenantID,
			UserID:         log.UserID,
			Currency:       CurrencyCoins,
			Amount:         log.AmountSpent,
			Type:           TypeReversal,
			ReasonCode:     "burn_refund",
			Source:         "admin",
			IdempotencyKey: fmt.Sprintf("refund:%s", log.ID),
			ReversalOf:     log.TransactionID,
		})
		if err != nil {
			return err
		}

		if err := tx.Model(&BurnLog{}).Where("id = ?", log.ID).Updates(map[string]any{
			"result_status":         BurnRefunded,
			"refund_transaction_id": applied.Transaction.ID,
			"updated_at":            time.Now().UTC(),
		}).Error; err != nil {
			return err
		}

		log.ResultStatus = BurnRefunded
		log.RefundTransactionID = applied.Transaction.ID
		result = &BurnResult{
			Success:       true,
			Log:           &log,
			Balance:       applied.Balance,
			TransactionID: applied.Transaction.ID,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			zap.L().Warn("burn refund raced a concurrent refund", zap.String("burn_log_id", burnLogID))
			return nil, errutil.Conflict("burn already refunded")
		}
		return nil, err
	}
	return result, nil
}
