package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront-core/services/testutil"
)

func TestDecrementVirtualStockGuarded(t *testing.T) {
	db := testutil.NewTestDB(t, &Product{})
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Product{ID: "p1", Name: "Key", Price: decimal.NewFromInt(10), IsActive: true, VirtualStock: 2}))

	require.NoError(t, repo.DecrementVirtualStock(ctx, "p1", 2))
	err := repo.DecrementVirtualStock(ctx, "p1", 1)
	require.True(t, errors.Is(err, ErrStockExhausted))

	p, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(0), p.VirtualStock)
}

func TestGetManyAndSoldCount(t *testing.T) {
	db := testutil.NewTestDB(t, &Product{})
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Product{ID: "a", Name: "A", Price: decimal.NewFromInt(1), IsActive: true}))
	require.NoError(t, repo.Create(ctx, &Product{ID: "b", Name: "B", Price: decimal.NewFromInt(2), IsActive: true}))
	require.NoError(t, repo.AddSoldCount(ctx, "b", 3))

	got, err := repo.GetMany(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(3), got["b"].SoldCount)

	_, err = repo.Get(ctx, "missing")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	require.True(t, errors.Is(repo.SetActive(ctx, "missing", false), gorm.ErrRecordNotFound))
}
