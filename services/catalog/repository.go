package catalog

import (
	"context"
	"errors"

	"storefront-core/pkg/db/option"

	"gorm.io/gorm"
)

var ErrStockExhausted = errors.New("catalog: virtual stock exhausted")

// Repository is the product store used by ordering and inventory. Every
// method runs on the handle it was built with; use WithTrx to join a
// transaction.
type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	GetMany(ctx context.Context, ids []string, opts ...option.QueryOption) (map[string]*Product, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetVirtualStock(ctx context.Context, id string, stock int64) error
	DecrementVirtualStock(ctx context.Context, id string, qty int64) error
	AddSoldCount(ctx context.Context, id string, qty int64) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTrx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) Create(ctx context.Context, p *Product) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(p).Error
}

// Get returns gorm.ErrRecordNotFound for unknown ids.
func (r *gormRepository) Get(ctx context.Context, id string) (*Product, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var p Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetMany(ctx context.Context, ids []string, opts ...option.QueryOption) (map[string]*Product, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	out := make(map[string]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []*Product
	q := option.Apply(r.db.WithContext(ctx).Where("id IN ?", ids), opts...)
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (r *gormRepository) SetActive(ctx context.Context, id string, active bool) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	res := r.db.WithContext(ctx).Model(&Product{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) SetVirtualStock(ctx context.Context, id string, stock int64) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Model(&Product{}).Where("id = ?", id).Update("virtual_stock", stock).Error
}

// DecrementVirtualStock lowers the counter only when enough stock remains,
// returning ErrStockExhausted otherwise.
func (r *gormRepository) DecrementVirtualStock(ctx context.Context, id string, qty int64) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	res := r.db.WithContext(ctx).Model(&Product{}).
		Where("id = ? AND virtual_stock >= ?", id, qty).
		Update("virtual_stock", gorm.Expr("virtual_stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStockExhausted
	}
	return nil
}

func (r *gormRepository) AddSoldCount(ctx context.Context, id string, qty int64) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Model(&Product{}).Where("id = ?", id).
		Update("sold_count", gorm.Expr("sold_count + ?", qty)).Error
}
