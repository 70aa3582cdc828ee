package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"storefront-core/pkg/config"
	"storefront-core/pkg/db"
	"storefront-core/pkg/gen"
	"storefront-core/pkg/lock"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/minio"
	"storefront-core/pkg/otelcol"
	"storefront-core/pkg/profiling"
	"storefront-core/pkg/redis"
	"storefront-core/pkg/sequence"
	"storefront-core/pkg/task"
	"storefront-core/services/affiliate"
	"storefront-core/services/auditlog"
	"storefront-core/services/catalog"
	"storefront-core/services/discount"
	"storefront-core/services/inventory"
	"storefront-core/services/order"
	"storefront-core/services/schema"
	tasksvc "storefront-core/services/task"
)

// The worker runs scheduled settlement and audit reconciliation jobs.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		lock.Module,
		sequence.Module,
		minio.Client,
		schema.Module,

		catalog.Module,
		inventory.Module,
		discount.Module,
		affiliate.Module,
		auditlog.Module,
		order.Module,

		task.Client,
		task.Server,
		tasksvc.Module,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
