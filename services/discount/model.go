package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

var (
	Percentage Kind = "percentage"
	Fixed      Kind = "fixed"
)

func (k Kind) String() string {
	switch k {
	case Percentage, Fixed:
		return string(k)
	default:
		return ""
	}
}

type DiscountCode struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Code           string          `gorm:"column:code;type:varchar(32);uniqueIndex;not null" json:"code"`
	Kind           Kind            `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Value          decimal.Decimal `gorm:"column:value;type:decimal(20,2);not null" json:"value"`
	MinOrderAmount decimal.Decimal `gorm:"column:min_order_amount;type:decimal(20,2);not null;default:0" json:"min_order_amount"`
	MaxUses        *int64          `gorm:"column:max_uses" json:"max_uses,omitempty"`
	UsedCount      int64           `gorm:"column:used_count;not null;default:0" json:"used_count"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ValidFrom      time.Time       `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidTo        *time.Time      `gorm:"column:valid_to" json:"valid_to,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (DiscountCode) TableName() string { return "discount_codes" }

// Quote is the priced result of applying a code to an order amount.
type Quote struct {
	Code           string          `json:"code,omitempty"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

type CreateRequest struct {
	Code           string          `json:"code" validate:"required,max=32"`
	Kind           Kind            `json:"kind" validate:"required,oneof=percentage fixed"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	MaxUses        *int64          `json:"max_uses,omitempty" validate:"omitempty,gte=1"`
	ValidFrom      *time.Time      `json:"valid_from,omitempty"`
	ValidTo        *time.Time      `json:"valid_to,omitempty"`
}
