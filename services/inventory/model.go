package inventory

import "time"

type UnitStatus string

var (
	Unsold UnitStatus = "unsold"
	Sold   UnitStatus = "sold"
)

func (s UnitStatus) String() string {
	switch s {
	case Unsold, Sold:
		return string(s)
	default:
		return ""
	}
}

// Unit is one serialized item of stock (a license key, voucher code...).
// It moves unsold -> sold exactly once.
type Unit struct {
	ID        string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	ProductID string     `gorm:"column:product_id;type:varchar(32);not null;index:idx_units_product_status,priority:1" json:"product_id"`
	Key       string     `gorm:"column:unit_key;type:varchar(255);not null" json:"key"`
	Status    UnitStatus `gorm:"column:status;type:varchar(20);not null;default:'unsold';index:idx_units_product_status,priority:2" json:"status"`
	SoldAt    *time.Time `gorm:"column:sold_at" json:"sold_at,omitempty"`
	OrderID   *string    `gorm:"column:order_id;type:varchar(32);index" json:"order_id,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Unit) TableName() string { return "inventory_units" }

type Line struct {
	ProductID string
	Quantity  int64
}

type LineAllocation struct {
	ProductID string   `json:"product_id"`
	Keys      []string `json:"keys"`
}

// Allocation is the outcome of a successful fulfillment.
type Allocation struct {
	OrderID string           `json:"order_id"`
	Lines   []LineAllocation `json:"lines"`
}

// Keys flattens the claimed keys in line order.
func (a *Allocation) Keys() []string {
	if a == nil {
		return nil
	}
	var out []string
	for _, l := range a.Lines {
		out = append(out, l.Keys...)
	}
	return out
}

type StockSummary struct {
	ProductID    string `json:"product_id"`
	Unsold       int64  `json:"unsold"`
	Sold         int64  `json:"sold"`
	VirtualStock int64  `json:"virtual_stock"`
	Available    int64  `json:"available"`
}
