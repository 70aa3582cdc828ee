package affiliate

import (
	"time"

	"github.com/shopspring/decimal"
)

type EarningStatus string

var (
	EarningPending   EarningStatus = "pending"
	EarningAvailable EarningStatus = "available"
)

type WithdrawalStatus string

var (
	WithdrawalSubmitted WithdrawalStatus = "submitted"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

// SourceOrderCommission tags earnings credited on order completion.
const SourceOrderCommission = "order_commission"

// Member carries the referral balances of a storefront user.
type Member struct {
	ID               string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Username         string          `gorm:"column:username;type:varchar(64);not null;uniqueIndex" json:"username"`
	InviteCode       string          `gorm:"column:invite_code;type:varchar(16);not null;uniqueIndex" json:"invite_code"`
	BalancePending   decimal.Decimal `gorm:"column:balance_pending;type:decimal(20,2);not null;default:0" json:"balance_pending"`
	BalanceAvailable decimal.Decimal `gorm:"column:balance_available;type:decimal(20,2);not null;default:0" json:"balance_available"`
	TotalEarned      decimal.Decimal `gorm:"column:total_earned;type:decimal(20,2);not null;default:0" json:"total_earned"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string { return "affiliate_members" }

// Referral is the single inviter edge of a member.
type Referral struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	InviterID string    `gorm:"column:inviter_id;type:varchar(32);not null;index" json:"inviter_id"`
	InviteeID string    `gorm:"column:invitee_id;type:varchar(32);not null;uniqueIndex" json:"invitee_id"`
	CodeUsed  string    `gorm:"column:code_used;type:varchar(16)" json:"code_used"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Referral) TableName() string { return "affiliate_referrals" }

// EarningRecord is unique per (order, payee).
type EarningRecord struct {
	ID        string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	MemberID  string          `gorm:"column:member_id;type:varchar(32);not null;uniqueIndex:uq_earning_order_member,priority:2;index:idx_earning_status_created,priority:3" json:"member_id"`
	Source    string          `gorm:"column:source;type:varchar(32);not null" json:"source"`
	OrderID   *string         `gorm:"column:order_id;type:varchar(32);uniqueIndex:uq_earning_order_member,priority:1" json:"order_id,omitempty"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Status    EarningStatus   `gorm:"column:status;type:varchar(20);not null;index:idx_earning_status_created,priority:1" json:"status"`
	CreatedAt time.Time       `gorm:"column:created_at;not null;index:idx_earning_status_created,priority:2" json:"created_at"`
	SettledAt *time.Time      `gorm:"column:settled_at" json:"settled_at,omitempty"`
}

func (EarningRecord) TableName() string { return "affiliate_earnings" }

type Withdrawal struct {
	ID        string           `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	MemberID  string           `gorm:"column:member_id;type:varchar(32);not null;index" json:"member_id"`
	Amount    decimal.Decimal  `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Status    WithdrawalStatus `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	Feedback  string           `gorm:"column:feedback;type:text" json:"feedback"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string { return "affiliate_withdrawals" }

type CreditRequest struct {
	OrderID     string
	BuyerID     string
	FinalAmount decimal.Decimal
}

type RegisterRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=64"`
	InviteCode string `json:"invite_code" validate:"omitempty,max=16"`
}

type Summary struct {
	MemberID         string          `json:"member_id"`
	InviteCode       string          `json:"invite_code"`
	BalancePending   decimal.Decimal `json:"balance_pending"`
	BalanceAvailable decimal.Decimal `json:"balance_available"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	Invitees         int64           `json:"invitees"`
	PendingRecords   int64           `json:"pending_records"`
}

func Models() []any {
	return []any{&Member{}, &Referral{}, &EarningRecord{}, &Withdrawal{}}
}
