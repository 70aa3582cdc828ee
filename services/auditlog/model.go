package auditlog

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Entry is one step of an order's history.
type Entry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Document is the full audit record of an order as stored and returned by
// every backend. Status always equals the status of the last history entry.
type Document struct {
	OrderID       string            `json:"order_id"`
	OrderNo       string            `json:"order_no"`
	MemberID      string            `json:"user_id"`
	Status        string            `json:"status"`
	Lines         []Line            `json:"lines"`
	Customer      map[string]string `json:"customer"`
	CreatedAt     time.Time         `json:"created_at"`
	History       []Entry           `json:"history"`
	AssignedUnits []string          `json:"assigned_units"`
}

// LastEntry returns the newest history entry, or nil for an empty document.
func (d *Document) LastEntry() *Entry {
	if d == nil || len(d.History) == 0 {
		return nil
	}
	return &d.History[len(d.History)-1]
}

func (d *Document) append(e Entry) {
	d.History = append(d.History, e)
	d.Status = e.Status
}

// header is the relational row holding the per-order document fields.
type header struct {
	OrderID       string         `gorm:"column:order_id;primaryKey;type:varchar(32)"`
	OrderNo       string         `gorm:"column:order_no;type:varchar(16);index"`
	MemberID      string         `gorm:"column:member_id;type:varchar(32);index"`
	Status        string         `gorm:"column:status;type:varchar(20)"`
	Lines         datatypes.JSON `gorm:"column:lines"`
	Customer      datatypes.JSON `gorm:"column:customer"`
	AssignedUnits datatypes.JSON `gorm:"column:assigned_units"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (header) TableName() string { return "order_audit_logs" }

// entry rows are append-only; (order_id, seq) is unique so two writers can
// never both record the same step.
type entry struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	OrderID   string    `gorm:"column:order_id;type:varchar(32);not null;uniqueIndex:uq_audit_order_seq,priority:1"`
	Seq       int       `gorm:"column:seq;not null;uniqueIndex:uq_audit_order_seq,priority:2"`
	Status    string    `gorm:"column:status;type:varchar(20);not null"`
	Message   string    `gorm:"column:message;type:text"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
}

func (entry) TableName() string { return "order_audit_entries" }

// Models lists the tables owned by the relational store.
func Models() []any {
	return []any{&header{}, &entry{}}
}
