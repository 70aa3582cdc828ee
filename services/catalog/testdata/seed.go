package testdata

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront-core/pkg/errutil"
	"storefront-core/services/catalog"
	"storefront-core/services/discount"
	"storefront-core/services/inventory"
)

var SeedCatalog = fx.Module("seed.catalog",
	fx.Invoke(SeedStorefront),
)

type SeedParams struct {
	fx.In
	Catalog    catalog.Repository
	Inventory  *inventory.Service
	Discount   *discount.Service
	Shutdowner fx.Shutdowner
}

// SeedStorefront inserts a small demo catalog. Rows that already exist are
// left untouched.
func SeedStorefront(p SeedParams) error {
	ctx := context.Background()

	products := []catalog.Product{
		{ID: "steam-wallet-10", Name: "Steam Wallet 10", Category: "gift-card", Price: decimal.NewFromInt(10)},
		{ID: "vpn-1-month", Name: "VPN 1 Month", Category: "subscription", Price: decimal.RequireFromString("4.99"), VirtualStock: 500},
	}
	for i := range products {
		_, err := p.Catalog.Get(ctx, products[i].ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := p.Catalog.Create(ctx, &products[i]); err != nil {
			return err
		}
	}

	n, err := p.Inventory.ImportUnits(ctx, "steam-wallet-10", []string{
		"SW10-AAAA-0001", "SW10-AAAA-0002", "SW10-AAAA-0003",
	})
	if err != nil {
		return err
	}

	maxUses := int64(100)
	if _, err := p.Discount.Create(ctx, discount.CreateRequest{
		Code:    "WELCOME10",
		Kind:    discount.Percentage,
		Value:   decimal.NewFromInt(10),
		MaxUses: &maxUses,
	}); err != nil && !errutil.IsConcurrency(err) {
		return err
	}

	zap.L().Info("seed completed", zap.Int("products", len(products)), zap.Int("units_imported", n))
	return p.Shutdowner.Shutdown()
}
