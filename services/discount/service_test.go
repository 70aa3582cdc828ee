package discount

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront-core/pkg/errutil"
	"storefront-core/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &DiscountCode{})
	return NewService(ServiceParams{DB: db, Node: testutil.NewNode(t)})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func TestApplyPercentage(t *testing.T) {
	q := Apply(&DiscountCode{Code: "TEN", Kind: Percentage, Value: dec("10")}, dec("100"))
	require.True(t, q.DiscountAmount.Equal(dec("10")))
	require.True(t, q.FinalAmount.Equal(dec("90")))
}

func TestApplyFixedClampsAtZero(t *testing.T) {
	q := Apply(&DiscountCode{Code: "BIG", Kind: Fixed, Value: dec("50")}, dec("30"))
	require.True(t, q.DiscountAmount.Equal(dec("30")))
	require.True(t, q.FinalAmount.IsZero())

	plain := Apply(nil, dec("30"))
	require.True(t, plain.FinalAmount.Equal(dec("30")))
	require.True(t, plain.DiscountAmount.IsZero())
}

func TestCheckRules(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	base := func() *DiscountCode {
		return &DiscountCode{Kind: Fixed, Value: dec("10"), MinOrderAmount: dec("50"), ValidFrom: now.Add(-time.Hour)}
	}

	require.NoError(t, Check(base(), dec("50"), now))

	require.True(t, errors.Is(Check(base(), dec("40"), now), ErrBelowMinimum))

	early := base()
	early.ValidFrom = now.Add(time.Hour)
	require.True(t, errors.Is(Check(early, dec("60"), now), ErrNotYetValid))

	late := base()
	late.ValidTo = ptr(now.Add(-time.Minute))
	require.True(t, errors.Is(Check(late, dec("60"), now), ErrExpired))

	used := base()
	used.MaxUses = ptr(int64(2))
	used.UsedCount = 2
	err := Check(used, dec("60"), now)
	require.True(t, errors.Is(err, ErrUsageExceeded))
	require.True(t, errutil.IsState(err))
}

func TestValidateIsReadOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Code: "ten", Kind: Percentage, Value: dec("10"), MaxUses: ptr(int64(1))})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		dc, err := svc.Validate(ctx, "TEN", dec("100"), time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, int64(0), dc.UsedCount)
	}

	q, err := svc.Preview(ctx, " ten ", dec("100"))
	require.NoError(t, err)
	require.True(t, q.FinalAmount.Equal(dec("90")))
}

func TestValidateUnknownAndInactive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Validate(ctx, "NOPE", dec("10"), time.Now())
	require.True(t, errors.Is(err, ErrCodeNotFound))
	require.True(t, errutil.IsNotFound(err))

	_, err = svc.Create(ctx, CreateRequest{Code: "OFF", Kind: Fixed, Value: dec("5")})
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(ctx, "off", false))

	_, err = svc.Validate(ctx, "OFF", dec("10"), time.Now())
	require.True(t, errors.Is(err, ErrCodeNotFound))
}

func TestBelowMinimumThroughService(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Code: "MIN50", Kind: Fixed, Value: dec("10"), MinOrderAmount: dec("50")})
	require.NoError(t, err)

	_, err = svc.Validate(ctx, "MIN50", dec("40"), time.Now().UTC())
	require.True(t, errors.Is(err, ErrBelowMinimum))
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Code: "", Kind: Fixed, Value: dec("5")})
	require.True(t, errutil.IsValidation(err))

	_, err = svc.Create(ctx, CreateRequest{Code: "PCT", Kind: Percentage, Value: dec("150")})
	require.True(t, errutil.IsValidation(err))

	_, err = svc.Create(ctx, CreateRequest{Code: "DUP", Kind: Fixed, Value: dec("5")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{Code: "dup", Kind: Fixed, Value: dec("5")})
	require.True(t, errutil.IsConcurrency(err))
}

func TestRedeemLastUseOnlyOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Code: "ONCE", Kind: Fixed, Value: dec("10"), MaxUses: ptr(int64(1))})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.db.Transaction(func(tx *gorm.DB) error {
				_, _, err := svc.Redeem(ctx, tx, "ONCE", dec("100"), time.Now().UTC())
				return err
			})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var ok, exceeded int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrUsageExceeded):
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, exceeded)

	var stored DiscountCode
	require.NoError(t, svc.db.Where("code = ?", "ONCE").Take(&stored).Error)
	require.Equal(t, int64(1), stored.UsedCount)
}
