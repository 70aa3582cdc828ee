package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Name         string          `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Category     string          `gorm:"column:category;type:varchar(50)" json:"category,omitempty"`
	Price        decimal.Decimal `gorm:"column:price;type:decimal(20,2);not null" json:"price"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	VirtualStock int64           `gorm:"column:virtual_stock;not null;default:0" json:"virtual_stock"`
	SoldCount    int64           `gorm:"column:sold_count;not null;default:0" json:"sold_count"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string { return "products" }
