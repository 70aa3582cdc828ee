package schema

import (
	"storefront-core/pkg/config"
	"storefront-core/pkg/db"
	"storefront-core/services/affiliate"
	"storefront-core/services/auditlog"
	"storefront-core/services/catalog"
	"storefront-core/services/discount"
	"storefront-core/services/inventory"
	"storefront-core/services/order"
	"storefront-core/services/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("schema", fx.Invoke(Migrate))

// Models lists every table owned by this module.
func Models() []any {
	models := []any{&catalog.Product{}, &inventory.Unit{}, &discount.DiscountCode{}}
	models = append(models, order.Models()...)
	models = append(models, auditlog.Models()...)
	models = append(models, affiliate.Models()...)
	models = append(models, task.Models()...)
	return models
}

func Migrate(cfg *config.Config, conn *gorm.DB) error {
	if err := db.Migrate(cfg, conn, Models()...); err != nil {
		zap.L().Error("[DB] migration failed", zap.Error(err))
		return err
	}
	return nil
}
