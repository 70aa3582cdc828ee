package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"storefront-core/pkg/config"
	"storefront-core/pkg/db"
	"storefront-core/pkg/gen"
	"storefront-core/pkg/logger"
	"storefront-core/services/catalog"
	"storefront-core/services/catalog/testdata"
	"storefront-core/services/discount"
	"storefront-core/services/inventory"
	"storefront-core/services/schema"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		schema.Module,
		catalog.Module,
		inventory.Module,
		discount.Module,
		testdata.SeedCatalog,
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}
