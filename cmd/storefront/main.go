package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"storefront-core/pkg/config"
	"storefront-core/pkg/db"
	"storefront-core/pkg/gen"
	"storefront-core/pkg/health"
	"storefront-core/pkg/httpapi"
	"storefront-core/pkg/lock"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/minio"
	"storefront-core/pkg/otelcol"
	"storefront-core/pkg/profiling"
	"storefront-core/pkg/redis"
	"storefront-core/pkg/sequence"
	"storefront-core/pkg/server"
	"storefront-core/services/affiliate"
	"storefront-core/services/auditlog"
	"storefront-core/services/catalog"
	"storefront-core/services/discount"
	"storefront-core/services/inventory"
	"storefront-core/services/order"
	"storefront-core/services/schema"
)

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

		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
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
