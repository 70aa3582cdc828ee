package order

import (
	"context"
	"errors"
	"sync/atomic"

	"storefront-core/pkg/logger"
	"storefront-core/services/auditlog"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	reconcileBatchSize   = 200
	reconcileParallelism = 8
)

// Reconcile rewrites the cached status of an order from the last entry of its
// audit log when the two disagree. It reports whether the row changed. The row
// is locked before the log is read so a transition cannot commit in between.
func (s *Service) Reconcile(ctx context.Context, id string) (bool, error) {
	log := logger.FromContext(ctx).With(zap.String("order_id", id))

	var (
		changed bool
		cached  Status
		logged  string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}

		doc, err := s.audit.WithTrx(tx).Get(ctx, id)
		if errors.Is(err, auditlog.ErrNotFound) {
			log.Warn("order has no audit log")
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		last := doc.LastEntry()
		if last == nil || string(o.Status) == last.Status {
			return nil
		}

		res := tx.Model(&Order{}).
			Where("id = ? AND version = ?", o.ID, o.Version).
			Updates(map[string]any{
				"status":  last.Status,
				"version": gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentTransition
		}
		changed, cached, logged = true, o.Status, last.Status
		return nil
	})
	if err != nil || !changed {
		return false, err
	}

	reconciledTotal.Inc()
	log.Warn("order status rebuilt from audit log",
		zap.String("cached", string(cached)),
		zap.String("logged", logged),
	)
	return true, nil
}

// ReconcileAll runs Reconcile over every order. Orders changed concurrently
// are skipped; they are consistent by construction.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	var changed atomic.Int64
	lastID := ""
	for {
		var ids []string
		q := s.db.WithContext(ctx).Model(&Order{}).Order("id ASC").Limit(reconcileBatchSize)
		if lastID != "" {
			q = q.Where("id > ?", lastID)
		}
		if err := q.Pluck("id", &ids).Error; err != nil {
			return int(changed.Load()), err
		}
		if len(ids) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(reconcileParallelism)
		for _, id := range ids {
			g.Go(func() error {
				ok, err := s.Reconcile(gctx, id)
				if errors.Is(err, ErrConcurrentTransition) {
					return nil
				}
				if err != nil && !errors.Is(err, ErrOrderNotFound) {
					return err
				}
				if ok {
					changed.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			log.Error("reconcile sweep aborted", zap.Error(err))
			return int(changed.Load()), err
		}

		lastID = ids[len(ids)-1]
		if len(ids) < reconcileBatchSize {
			break
		}
	}

	log.Info("reconcile sweep finished", zap.Int64("changed", changed.Load()))
	return int(changed.Load()), nil
}
