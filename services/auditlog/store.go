package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront-core/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errutil.New(errutil.StatusNotFound, "audit log not found", errutil.WithReason("audit_log_not_found"))
	ErrAppendConflict = errutil.New(errutil.StatusConflict, "audit log was appended concurrently", errutil.WithReason("audit_append_conflict"))
	ErrExists         = errutil.New(errutil.StatusConflict, "audit log already exists", errutil.WithReason("audit_log_exists"))
)

// Store persists one append-only Document per order.
type Store interface {
	// WithTrx binds the store to tx when the backend can share it.
	WithTrx(tx *gorm.DB) Store
	Create(ctx context.Context, doc *Document) error
	Append(ctx context.Context, orderID string, e Entry) error
	AssignUnits(ctx context.Context, orderID string, keys []string) error
	Get(ctx context.Context, orderID string) (*Document, error)
}

type gormStore struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewGormStore(db *gorm.DB, node *snowflake.Node) Store {
	return &gormStore{db: db, node: node}
}

func (s *gormStore) WithTrx(tx *gorm.DB) Store {
	if tx == nil {
		return s
	}
	return &gormStore{db: tx, node: s.node}
}

func (s *gormStore) Create(ctx context.Context, doc *Document) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	if len(doc.History) == 0 {
		return errutil.ValidationFailed("audit log needs an initial entry", nil)
	}

	lines, err := json.Marshal(doc.Lines)
	if err != nil {
		return err
	}
	customer, err := json.Marshal(doc.Customer)
	if err != nil {
		return err
	}
	units, err := json.Marshal(nonNil(doc.AssignedUnits))
	if err != nil {
		return err
	}

	h := &header{
		OrderID:       doc.OrderID,
		OrderNo:       doc.OrderNo,
		MemberID:      doc.MemberID,
		Status:        doc.History[len(doc.History)-1].Status,
		Lines:         lines,
		Customer:      customer,
		AssignedUnits: units,
		CreatedAt:     doc.CreatedAt,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(h).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrExists
			}
			return err
		}
		for i, e := range doc.History {
			if err := s.insertEntry(tx, doc.OrderID, i+1, e); err != nil {
				return err
			}
		}
		doc.Status = h.Status
		return nil
	})
}

// Append adds e after the current last entry. A concurrent writer that took
// the same sequence number makes this call fail with ErrAppendConflict.
func (s *gormStore) Append(ctx context.Context, orderID string, e Entry) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last struct{ Seq int }
		if err := tx.Model(&entry{}).
			Select("COALESCE(MAX(seq), 0) AS seq").
			Where("order_id = ?", orderID).
			Scan(&last).Error; err != nil {
			return err
		}
		if last.Seq == 0 {
			return ErrNotFound
		}

		if err := s.insertEntry(tx, orderID, last.Seq+1, e); err != nil {
			return err
		}

		return tx.Model(&header{}).Where("order_id = ?", orderID).Update("status", e.Status).Error
	})
}

func (s *gormStore) AssignUnits(ctx context.Context, orderID string, keys []string) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}

	units, err := json.Marshal(nonNil(keys))
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&header{}).Where("order_id = ?", orderID).Update("assigned_units", datatypes.JSON(units))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) Get(ctx context.Context, orderID string) (*Document, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var h header
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&h).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rows []entry
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	doc := &Document{
		OrderID:   h.OrderID,
		OrderNo:   h.OrderNo,
		MemberID:  h.MemberID,
		CreatedAt: h.CreatedAt,
	}
	if err := unmarshalJSON(h.Lines, &doc.Lines); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(h.Customer, &doc.Customer); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(h.AssignedUnits, &doc.AssignedUnits); err != nil {
		return nil, err
	}
	for _, r := range rows {
		doc.append(Entry{Status: r.Status, Timestamp: r.Timestamp, Message: r.Message})
	}
	return doc, nil
}

func (s *gormStore) insertEntry(tx *gorm.DB, orderID string, seq int, e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	err := tx.Create(&entry{
		ID:        s.node.Generate().String(),
		OrderID:   orderID,
		Seq:       seq,
		Status:    e.Status,
		Message:   e.Message,
		Timestamp: ts,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAppendConflict
	}
	return err
}

func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
