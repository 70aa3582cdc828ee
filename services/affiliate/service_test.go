package affiliate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront-core/pkg/errutil"
	"storefront-core/pkg/lock"
	"storefront-core/pkg/rediskey"
	"storefront-core/services/testutil"
)

var fixedNow = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *lock.LocalLocker) {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	policy, err := NewPolicyHolder(Policy{
		CommissionRate:       dec("0.1"),
		SettlementPeriodDays: 7,
		MinWithdrawal:        dec("10"),
	})
	require.NoError(t, err)

	locker := lock.NewLocalLocker()
	svc := NewService(ServiceParams{DB: db, Node: testutil.NewNode(t), Policy: policy, Locker: locker})
	svc.now = func() time.Time { return fixedNow }
	return svc, db, locker
}

func seedMember(t *testing.T, db *gorm.DB, id string, available string) *Member {
	t.Helper()
	m := &Member{
		ID:               id,
		Username:         "user-" + id,
		InviteCode:       "CODE" + id,
		BalanceAvailable: dec(available),
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

func reloadMember(t *testing.T, db *gorm.DB, id string) Member {
	t.Helper()
	var m Member
	require.NoError(t, db.Where("id = ?", id).Take(&m).Error)
	return m
}

func TestCreditIsIdempotentPerOrderAndPayee(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	seedMember(t, db, "7", "0")
	seedMember(t, db, "8", "0")
	require.NoError(t, db.Create(&Referral{ID: "r1", InviterID: "7", InviteeID: "8", CodeUsed: "CODE7"}).Error)

	req := CreditRequest{OrderID: "42", BuyerID: "8", FinalAmount: dec("125.00")}
	rec, err := svc.Credit(ctx, nil, req)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.True(t, rec.Amount.Equal(dec("12.50")))

	again, err := svc.Credit(ctx, nil, req)
	require.NoError(t, err)
	require.Nil(t, again)

	var count int64
	require.NoError(t, db.Model(&EarningRecord{}).Where("order_id = ? AND member_id = ?", "42", "7").Count(&count).Error)
	require.EqualValues(t, 1, count)

	payee := reloadMember(t, db, "7")
	require.True(t, payee.BalancePending.Equal(dec("12.50")), payee.BalancePending.String())
}

func TestCreditWithoutReferrerIsNoop(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedMember(t, db, "8", "0")

	rec, err := svc.Credit(context.Background(), nil, CreditRequest{OrderID: "1", BuyerID: "8", FinalAmount: dec("50")})
	require.NoError(t, err)
	require.Nil(t, rec)

	var count int64
	require.NoError(t, db.Model(&EarningRecord{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreditInsideCallerTransactionRollsBack(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedMember(t, db, "7", "0")
	seedMember(t, db, "8", "0")
	require.NoError(t, db.Create(&Referral{ID: "r1", InviterID: "7", InviteeID: "8"}).Error)

	boom := errors.New("later step failed")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Credit(context.Background(), tx, CreditRequest{OrderID: "9", BuyerID: "8", FinalAmount: dec("20")}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	payee := reloadMember(t, db, "7")
	require.True(t, payee.BalancePending.IsZero())
}

func TestSettleMovesMaturedEarnings(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	m := seedMember(t, db, "7", "0")
	require.NoError(t, db.Model(m).Update("balance_pending", dec("15.50")).Error)

	old := "order-old"
	fresh := "order-fresh"
	require.NoError(t, db.Create(&EarningRecord{
		ID: "e1", MemberID: "7", Source: SourceOrderCommission, OrderID: &old,
		Amount: dec("12.50"), Status: EarningPending, CreatedAt: fixedNow.AddDate(0, 0, -10),
	}).Error)
	require.NoError(t, db.Create(&EarningRecord{
		ID: "e2", MemberID: "7", Source: SourceOrderCommission, OrderID: &fresh,
		Amount: dec("3.00"), Status: EarningPending, CreatedAt: fixedNow.AddDate(0, 0, -2),
	}).Error)

	n, err := svc.Settle(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var e1, e2 EarningRecord
	require.NoError(t, db.Where("id = ?", "e1").Take(&e1).Error)
	require.NoError(t, db.Where("id = ?", "e2").Take(&e2).Error)
	require.Equal(t, EarningAvailable, e1.Status)
	require.NotNil(t, e1.SettledAt)
	require.Equal(t, EarningPending, e2.Status)

	payee := reloadMember(t, db, "7")
	require.True(t, payee.BalancePending.Equal(dec("3.00")), payee.BalancePending.String())
	require.True(t, payee.BalanceAvailable.Equal(dec("12.50")), payee.BalanceAvailable.String())

	n, err = svc.Settle(ctx, 7)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSettleLeavesOrphanEarningPending(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	m := seedMember(t, db, "7", "0")
	require.NoError(t, db.Model(m).Update("balance_pending", dec("2.00")).Error)

	a, b := "order-a", "order-b"
	require.NoError(t, db.Create(&EarningRecord{
		ID: "e1", MemberID: "ghost", Source: SourceOrderCommission, OrderID: &a,
		Amount: dec("5.00"), Status: EarningPending, CreatedAt: fixedNow.AddDate(0, 0, -10),
	}).Error)
	require.NoError(t, db.Create(&EarningRecord{
		ID: "e2", MemberID: "7", Source: SourceOrderCommission, OrderID: &b,
		Amount: dec("2.00"), Status: EarningPending, CreatedAt: fixedNow.AddDate(0, 0, -10),
	}).Error)

	n, err := svc.Settle(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var orphan EarningRecord
	require.NoError(t, db.Where("id = ?", "e1").Take(&orphan).Error)
	require.Equal(t, EarningPending, orphan.Status)
	require.Nil(t, orphan.SettledAt)

	payee := reloadMember(t, db, "7")
	require.True(t, payee.BalancePending.IsZero(), payee.BalancePending.String())
	require.True(t, payee.BalanceAvailable.Equal(dec("2.00")), payee.BalanceAvailable.String())
}

func TestSettleUsesPolicyPeriodForNegativeArgument(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedMember(t, db, "7", "0")
	oid := "o"
	require.NoError(t, db.Create(&EarningRecord{
		ID: "e1", MemberID: "7", Source: SourceOrderCommission, OrderID: &oid,
		Amount: dec("1.00"), Status: EarningPending, CreatedAt: fixedNow.AddDate(0, 0, -6),
	}).Error)

	n, err := svc.Settle(context.Background(), -1)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSettleIsSingleFlight(t *testing.T) {
	svc, _, locker := newTestService(t)
	ctx := context.Background()

	held, err := locker.Obtain(ctx, rediskey.SettlementLockKey(), time.Minute)
	require.NoError(t, err)

	_, err = svc.Settle(ctx, 7)
	require.True(t, errors.Is(err, ErrSettlementInProgress))

	require.NoError(t, held.Release(ctx))
	_, err = svc.Settle(ctx, 7)
	require.NoError(t, err)
}

func TestRegisterLinksInviter(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	inviter, err := svc.Register(ctx, RegisterRequest{Username: "alice"})
	require.NoError(t, err)
	require.Len(t, inviter.InviteCode, inviteCodeLength)

	invitee, err := svc.Register(ctx, RegisterRequest{Username: "bob", InviteCode: inviter.InviteCode})
	require.NoError(t, err)

	var ref Referral
	require.NoError(t, db.Where("invitee_id = ?", invitee.ID).Take(&ref).Error)
	require.Equal(t, inviter.ID, ref.InviterID)

	summary, err := svc.Summary(ctx, inviter.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, summary.Invitees)

	_, err = svc.Register(ctx, RegisterRequest{Username: "alice"})
	require.True(t, errors.Is(err, ErrUsernameTaken))

	_, err = svc.Register(ctx, RegisterRequest{Username: "carol", InviteCode: "NOPE"})
	require.True(t, errutil.IsNotFound(err))

	_, err = svc.Register(ctx, RegisterRequest{Username: ""})
	require.True(t, errutil.IsValidation(err))
}

func TestUpdatePolicyValidates(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.UpdatePolicy(context.Background(), Policy{CommissionRate: dec("1.5"), MinWithdrawal: dec("10")})
	require.True(t, errutil.IsValidation(err))
	require.True(t, svc.Policy().CommissionRate.Equal(dec("0.1")))

	require.NoError(t, svc.UpdatePolicy(context.Background(), Policy{CommissionRate: dec("0.2"), SettlementPeriodDays: 3, MinWithdrawal: dec("5")}))
	require.True(t, svc.Policy().CommissionRate.Equal(dec("0.2")))
	require.Equal(t, 3, svc.Policy().SettlementPeriodDays)
}
