package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront-core/pkg/errutil"
	"storefront-core/pkg/logger"
	"storefront-core/services/catalog"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientStock = errutil.New(errutil.StatusUnprocessableEntity, "not enough unsold units to fulfill the order", errutil.WithReason("insufficient_stock"))
	ErrUnitClaimed       = errutil.New(errutil.StatusConflict, "inventory unit was claimed by another order", errutil.WithReason("unit_claimed"))
	ErrProductNotFound   = errutil.New(errutil.StatusNotFound, "product not found", errutil.WithReason("product_not_found"))
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	catalog catalog.Repository
	now     func() time.Time
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Catalog catalog.Repository
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		catalog: p.Catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Available returns the unsold serialized count for productID, or the
// product's virtual stock when it has no unsold units.
func (s *Service) Available(ctx context.Context, productID string) (int64, error) {
	return s.AvailableTx(ctx, s.db, productID)
}

func (s *Service) AvailableTx(ctx context.Context, tx *gorm.DB, productID string) (int64, error) {
	unsold, err := s.countUnsold(ctx, tx, productID)
	if err != nil {
		return 0, err
	}
	if unsold > 0 {
		return unsold, nil
	}

	p, err := s.catalog.WithTrx(tx).Get(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}
	return p.VirtualStock, nil
}

func (s *Service) Stock(ctx context.Context, productID string) (*StockSummary, error) {
	p, err := s.catalog.Get(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status UnitStatus
		Total  int64
	}
	if err := s.db.WithContext(ctx).Model(&Unit{}).
		Select("status, COUNT(*) AS total").
		Where("product_id = ?", productID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := &StockSummary{ProductID: productID, VirtualStock: p.VirtualStock}
	for _, r := range rows {
		switch r.Status {
		case Unsold:
			out.Unsold = r.Total
		case Sold:
			out.Sold = r.Total
		}
	}
	out.Available = out.Unsold
	if out.Available == 0 {
		out.Available = p.VirtualStock
	}
	return out, nil
}

// Fulfill claims quantity unsold units per line for orderID inside tx. It
// either claims every unit or returns an error; the caller must roll tx back
// on error. ErrInsufficientStock means the order needs manual fulfillment,
// ErrUnitClaimed means a concurrent claim won and the caller should re-read.
func (s *Service) Fulfill(ctx context.Context, tx *gorm.DB, orderID string, lines []Line) (*Allocation, error) {
	log := logger.FromContext(ctx).With(zap.String("order_id", orderID))

	wanted, order := aggregate(lines)
	claimed := make(map[string][]string, len(order))
	now := s.now()

	for _, productID := range order {
		qty := wanted[productID]

		var candidates []Unit
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
			Where("product_id = ? AND status = ?", productID, Unsold).
			Order("created_at ASC, id ASC").
			Limit(int(qty)).
			Find(&candidates).Error
		if err != nil {
			return nil, err
		}

		if int64(len(candidates)) < qty {
			log.Info("serialized stock insufficient",
				zap.String("product_id", productID),
				zap.Int64("wanted", qty),
				zap.Int("available", len(candidates)),
			)
			return nil, errutil.Extend(ErrInsufficientStock, errutil.WithDetails(errutil.Detail{
				Field:   productID,
				Message: fmt.Sprintf("wanted %d, available %d", qty, len(candidates)),
			}))
		}

		for _, u := range candidates {
			if err := s.claim(ctx, tx, u.ID, orderID, now); err != nil {
				log.Warn("unit claim lost", zap.String("unit_id", u.ID), zap.Error(err))
				return nil, err
			}
			claimed[productID] = append(claimed[productID], u.Key)
		}
	}

	for _, productID := range order {
		if err := s.syncVirtualStock(ctx, tx, productID); err != nil {
			return nil, err
		}
	}

	alloc := &Allocation{OrderID: orderID}
	for _, productID := range order {
		alloc.Lines = append(alloc.Lines, LineAllocation{ProductID: productID, Keys: claimed[productID]})
	}

	log.Info("order fulfilled from serialized stock", zap.Int("units", len(alloc.Keys())))
	return alloc, nil
}

// claim is the per-unit compare-and-set: it only succeeds while the unit is
// still unsold.
func (s *Service) claim(ctx context.Context, tx *gorm.DB, unitID, orderID string, now time.Time) error {
	res := tx.WithContext(ctx).Model(&Unit{}).
		Where("id = ? AND status = ?", unitID, Unsold).
		Updates(map[string]any{
			"status":   Sold,
			"sold_at":  now,
			"order_id": orderID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Extend(ErrUnitClaimed, errutil.WithDetails(errutil.Detail{Field: "unit_id", Message: unitID}))
	}
	return nil
}

// ConsumeVirtual decrements virtual stock for lines shipped by hand. Products
// that carry serialized units are skipped since their counter is derived.
func (s *Service) ConsumeVirtual(ctx context.Context, tx *gorm.DB, lines []Line) error {
	wanted, order := aggregate(lines)
	repo := s.catalog.WithTrx(tx)

	for _, productID := range order {
		var total int64
		if err := tx.WithContext(ctx).Model(&Unit{}).Where("product_id = ?", productID).Count(&total).Error; err != nil {
			return err
		}
		if total > 0 {
			continue
		}

		if err := repo.DecrementVirtualStock(ctx, productID, wanted[productID]); err != nil {
			if errors.Is(err, catalog.ErrStockExhausted) {
				logger.FromContext(ctx).Warn("virtual stock below shipped quantity",
					zap.String("product_id", productID), zap.Int64("quantity", wanted[productID]))
				if err := repo.SetVirtualStock(ctx, productID, 0); err != nil {
					return err
				}
				continue
			}
			return err
		}
	}
	return nil
}

// ImportUnits adds keys as unsold units of productID. Blank and duplicate
// keys (within the batch or already stored) are skipped.
func (s *Service) ImportUnits(ctx context.Context, productID string, keys []string) (int, error) {
	log := logger.FromContext(ctx).With(zap.String("product_id", productID))

	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.catalog.WithTrx(tx).Get(ctx, productID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		var existing []string
		if err := tx.Model(&Unit{}).Where("product_id = ?", productID).Pluck("unit_key", &existing).Error; err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(existing)+len(keys))
		for _, k := range existing {
			seen[k] = struct{}{}
		}

		units := make([]*Unit, 0, len(keys))
		for _, raw := range keys {
			k := strings.TrimSpace(raw)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			units = append(units, &Unit{
				ID:        s.node.Generate().String(),
				ProductID: productID,
				Key:       k,
				Status:    Unsold,
			})
		}

		if len(units) > 0 {
			if err := tx.CreateInBatches(units, 100).Error; err != nil {
				return err
			}
		}
		inserted = len(units)

		return s.syncVirtualStock(ctx, tx, productID)
	})
	if err != nil {
		log.Error("failed to import units", zap.Error(err))
		return 0, err
	}

	log.Info("imported inventory units", zap.Int("inserted", inserted))
	return inserted, nil
}

// syncVirtualStock sets the product counter to its unsold unit count.
func (s *Service) syncVirtualStock(ctx context.Context, tx *gorm.DB, productID string) error {
	unsold, err := s.countUnsold(ctx, tx, productID)
	if err != nil {
		return err
	}
	return s.catalog.WithTrx(tx).SetVirtualStock(ctx, productID, unsold)
}

func (s *Service) countUnsold(ctx context.Context, db *gorm.DB, productID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&Unit{}).
		Where("product_id = ? AND status = ?", productID, Unsold).
		Count(&n).Error
	return n, err
}

// UnitsForOrder lists the keys assigned to orderID.
func (s *Service) UnitsForOrder(ctx context.Context, orderID string) ([]Unit, error) {
	var units []Unit
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("sold_at ASC, id ASC").Find(&units).Error
	return units, err
}

// aggregate sums quantities per product and returns the products sorted so
// concurrent fulfillments lock rows in the same order.
func aggregate(lines []Line) (map[string]int64, []string) {
	wanted := make(map[string]int64, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		wanted[l.ProductID] += l.Quantity
	}
	order := make([]string, 0, len(wanted))
	for id := range wanted {
		order = append(order, id)
	}
	sort.Strings(order)
	return wanted, order
}
