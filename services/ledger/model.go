package ledger

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CurrencyCoins = "coins"
	CurrencyXP    = "xp"
)

const (
	TypeEarn       = "earn"
	TypeSpend      = "spend"
	TypeReversal   = "reversal"
	TypeAdminAward = "admin_award"
	TypeBurn       = "burn"
)

// Account is the derived balance projection for one (tenant, user, currency)
// scope. Balance always equals TotalEarned - TotalSpent and never goes
// negative.
type Account struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;uniqueIndex:idx_account_scope"`
	UserID      string    `gorm:"column:user_id;uniqueIndex:idx_account_scope"`
	Currency    string    `gorm:"column:currency;uniqueIndex:idx_account_scope"`
	Balance     int64     `gorm:"column:balance"`
	TotalEarned int64     `gorm:"column:total_earned"`
	TotalSpent  int64     `gorm:"column:total_spent"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// Transaction is an immutable ledger row. Amount is signed: credits are
// positive, debits negative. The idempotency key is unique per tenant.
type Transaction struct {
	ID             string         `gorm:"column:id;primaryKey"`
	TenantID       string         `gorm:"column:tenant_id;uniqueIndex:idx_tx_idempotency"`
	UserID         string         `gorm:"column:user_id;index:idx_tx_user"`
	Currency       string         `gorm:"column:currency"`
	Amount         int64          `gorm:"column:amount"`
	Type           string         `gorm:"column:type"`
	ReasonCode     string         `gorm:"column:reason_code"`
	Source         string         `gorm:"column:source"`
	IdempotencyKey string         `gorm:"column:idempotency_key;uniqueIndex:idx_tx_idempotency"`
	ReversalOf     string         `gorm:"column:reversal_of"`
	Metadata       datatypes.JSON `gorm:"column:metadata"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
}

// BurnSink is a catalog entry coins can be spent on.
type BurnSink struct {
	ID             string         `gorm:"column:id;primaryKey"`
	TenantID       string         `gorm:"column:tenant_id;index:idx_sink_tenant"`
	SinkType       string         `gorm:"column:sink_type"`
	Name           string         `gorm:"column:name"`
	CostCoins      int64          `gorm:"column:cost_coins"`
	IsAvailable    bool           `gorm:"column:is_available"`
	AvailableFrom  *time.Time     `gorm:"column:available_from"`
	AvailableUntil *time.Time     `gorm:"column:available_until"`
	TotalStock     int64          `gorm:"column:total_stock"`
	RemainingStock int64          `gorm:"column:remaining_stock"`
	PerUserLimit   int64          `gorm:"column:per_user_limit"`
	Metadata       datatypes.JSON `gorm:"column:metadata"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

const (
	BurnCompleted = "completed"
	BurnRefunded  = "refunded"
)

// BurnLog records one completed burn against a sink.
type BurnLog struct {
	ID                  string    `gorm:"column:id;primaryKey"`
	TenantID            string    `gorm:"column:tenant_id;index:idx_burn_tenant"`
	UserID              string    `gorm:"column:user_id;index:idx_burn_user"`
	SinkID              string    `gorm:"column:sink_id"`
	AmountSpent         int64     `gorm:"column:amount_spent"`
	ResultStatus        string    `gorm:"column:result_status"`
	TransactionID       string    `gorm:"column:transaction_id"`
	RefundTransactionID string    `gorm:"column:refund_transaction_id"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

// XPPerLevel is the step of the level curve: a user at level N levels up
// once their cumulative xp reaches N * XPPerLevel.
const XPPerLevel int64 = 1000

// UserProgress is the xp/level projection for one (tenant, user).
type UserProgress struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;uniqueIndex:idx_progress_scope"`
	UserID      string    `gorm:"column:user_id;uniqueIndex:idx_progress_scope"`
	Level       int64     `gorm:"column:level"`
	CurrentXP   int64     `gorm:"column:current_xp"`
	NextLevelXP int64     `gorm:"column:next_level_xp"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// AdvanceXP applies gained xp and walks the level curve, handling multiple
// level-ups in one grant. CurrentXP is cumulative, never reset.
func (p *UserProgress) AdvanceXP(gained int64) {
	p.CurrentXP += gained
	if p.Level < 1 {
		p.Level = 1
	}
	for p.CurrentXP >= p.Level*XPPerLevel {
		p.Level++
	}
	p.NextLevelXP = p.Level * XPPerLevel
}
