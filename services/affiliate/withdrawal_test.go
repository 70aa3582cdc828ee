package affiliate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"storefront-core/pkg/errutil"
)

func TestRequestWithdrawalRules(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	seedMember(t, db, "7", "30.00")

	_, err := svc.RequestWithdrawal(ctx, "7", dec("0"))
	require.True(t, errutil.IsValidation(err))

	_, err = svc.RequestWithdrawal(ctx, "7", dec("-5"))
	require.True(t, errutil.IsValidation(err))

	_, err = svc.RequestWithdrawal(ctx, "7", dec("5"))
	require.True(t, errors.Is(err, ErrBelowMinWithdrawal))
	require.True(t, errutil.IsState(err))

	_, err = svc.RequestWithdrawal(ctx, "7", dec("30.01"))
	require.True(t, errors.Is(err, ErrInsufficientBalance))

	_, err = svc.RequestWithdrawal(ctx, "missing", dec("20"))
	require.True(t, errors.Is(err, ErrMemberNotFound))

	w, err := svc.RequestWithdrawal(ctx, "7", dec("20"))
	require.NoError(t, err)
	require.Equal(t, WithdrawalSubmitted, w.Status)

	// submitting does not hold the balance
	m := reloadMember(t, db, "7")
	require.True(t, m.BalanceAvailable.Equal(dec("30")))
}

func TestApproveWithdrawalDebitsBalance(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	seedMember(t, db, "7", "30.00")

	w, err := svc.RequestWithdrawal(ctx, "7", dec("20"))
	require.NoError(t, err)

	approved, err := svc.ApproveWithdrawal(ctx, w.ID, "paid out")
	require.NoError(t, err)
	require.Equal(t, WithdrawalApproved, approved.Status)

	m := reloadMember(t, db, "7")
	require.True(t, m.BalanceAvailable.Equal(dec("10")), m.BalanceAvailable.String())
	require.True(t, m.TotalEarned.Equal(dec("20")), m.TotalEarned.String())

	_, err = svc.ApproveWithdrawal(ctx, w.ID, "again")
	require.True(t, errors.Is(err, ErrWithdrawalNotPending))
	_, err = svc.RejectWithdrawal(ctx, w.ID, "too late")
	require.True(t, errors.Is(err, ErrWithdrawalNotPending))
}

func TestApproveRechecksBalanceAtApproval(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	seedMember(t, db, "7", "60.00")

	w, err := svc.RequestWithdrawal(ctx, "7", dec("50"))
	require.NoError(t, err)

	require.NoError(t, db.Model(&Member{}).Where("id = ?", "7").Update("balance_available", dec("30.00")).Error)

	_, err = svc.ApproveWithdrawal(ctx, w.ID, "")
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	require.True(t, errutil.IsState(err))

	m := reloadMember(t, db, "7")
	require.True(t, m.BalanceAvailable.Equal(dec("30")))
	require.True(t, m.TotalEarned.IsZero())
	require.True(t, m.BalancePending.IsZero())

	var stored Withdrawal
	require.NoError(t, db.Where("id = ?", w.ID).Take(&stored).Error)
	require.Equal(t, WithdrawalSubmitted, stored.Status)
}

func TestRejectWithdrawalLeavesBalance(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	seedMember(t, db, "7", "30.00")

	w, err := svc.RequestWithdrawal(ctx, "7", dec("15"))
	require.NoError(t, err)

	rejected, err := svc.RejectWithdrawal(ctx, w.ID, "account under review")
	require.NoError(t, err)
	require.Equal(t, WithdrawalRejected, rejected.Status)
	require.Equal(t, "account under review", rejected.Feedback)

	m := reloadMember(t, db, "7")
	require.True(t, m.BalanceAvailable.Equal(dec("30")))

	_, err = svc.RejectWithdrawal(ctx, "missing", "")
	require.True(t, errutil.IsNotFound(err))

	pending, err := svc.ListWithdrawals(ctx, WithdrawalSubmitted, 0)
	require.NoError(t, err)
	require.Empty(t, pending)
}
