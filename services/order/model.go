package order

import (
	"time"

	"storefront-core/pkg/db/pagination"

	"github.com/shopspring/decimal"
)

type Status string

var (
	PendingPayment Status = "pending_payment"
	UserPaid       Status = "user_paid"
	Shipped        Status = "shipped"
	Completed      Status = "completed"
	Rejected       Status = "rejected"
)

func (s Status) String() string {
	switch s {
	case PendingPayment, UserPaid, Shipped, Completed, Rejected:
		return string(s)
	default:
		return ""
	}
}

// FulfillmentMode records how a shipped order got its content.
type FulfillmentMode string

var (
	FulfillmentNone           FulfillmentMode = ""
	FulfillmentAuto           FulfillmentMode = "auto"
	FulfillmentManualRequired FulfillmentMode = "manual_required"
	FulfillmentManual         FulfillmentMode = "manual"
)

// Order.Status is a cache of the last audit log entry; Version increments on
// every status write.
type Order struct {
	ID              string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrderNo         string          `gorm:"column:order_no;type:varchar(16);not null;uniqueIndex" json:"order_no"`
	MemberID        string          `gorm:"column:member_id;type:varchar(32);not null;index:idx_orders_member_created,priority:1" json:"member_id"`
	DiscountID      *string         `gorm:"column:discount_id;type:varchar(32)" json:"discount_id,omitempty"`
	DiscountCode    string          `gorm:"column:discount_code;type:varchar(32)" json:"discount_code,omitempty"`
	OriginalAmount  decimal.Decimal `gorm:"column:original_amount;type:decimal(20,2);not null" json:"original_amount"`
	DiscountAmount  decimal.Decimal `gorm:"column:discount_amount;type:decimal(20,2);not null" json:"discount_amount"`
	FinalAmount     decimal.Decimal `gorm:"column:final_amount;type:decimal(20,2);not null" json:"final_amount"`
	Status          Status          `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	FulfillmentMode FulfillmentMode `gorm:"column:fulfillment_mode;type:varchar(20)" json:"fulfillment_mode,omitempty"`
	ShipContent     string          `gorm:"column:ship_content;type:text" json:"ship_content,omitempty"`
	RejectReason    string          `gorm:"column:reject_reason;type:text" json:"reject_reason,omitempty"`
	Version         int64           `gorm:"column:version;not null" json:"version"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null;index:idx_orders_member_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	Lines           []OrderLine     `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

func (Order) TableName() string { return "orders" }

// OrderLine freezes the product price at checkout.
type OrderLine struct {
	ID          string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrderID     string          `gorm:"column:order_id;type:varchar(32);not null;index" json:"order_id"`
	ProductID   string          `gorm:"column:product_id;type:varchar(32);not null" json:"product_id"`
	ProductName string          `gorm:"column:product_name;type:varchar(100)" json:"product_name"`
	Quantity    int64           `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(20,2);not null" json:"unit_price"`
}

func (OrderLine) TableName() string { return "order_lines" }

type LineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gte=1,lte=1000"`
}

type CreateOrderRequest struct {
	MemberID     string            `json:"user_id" validate:"required"`
	Lines        []LineRequest     `json:"lines" validate:"required,min=1,dive"`
	Customer     map[string]string `json:"customer"`
	DiscountCode string            `json:"discount_code" validate:"omitempty,max=32"`
}

type TransitionRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Target  Status `json:"target" validate:"required"`
	Reason  string `json:"reason"`
	// ShipContent is the operator-supplied content of a manual shipment.
	ShipContent string `json:"ship_content"`
}

type ListParams struct {
	MemberID string
	Status   Status
	pagination.Pagination
}

type ListResult struct {
	Orders   []*Order             `json:"orders"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func Models() []any {
	return []any{&Order{}, &OrderLine{}}
}
