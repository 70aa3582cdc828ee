package auditlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront-core/pkg/config"
	"storefront-core/pkg/errutil"
	"storefront-core/services/testutil"
)

func newTestStore(t *testing.T) (Store, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	return NewGormStore(db, testutil.NewNode(t)), db
}

func sampleDoc(orderID string) *Document {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Document{
		OrderID:  orderID,
		OrderNo:  "123456",
		MemberID: "member-1",
		Lines: []Line{
			{ProductID: "p1", Name: "Key", Quantity: 2, UnitPrice: decimal.RequireFromString("12.5")},
		},
		Customer:  map[string]string{"email": "buyer@example.com"},
		CreatedAt: now,
		History:   []Entry{{Status: "pending_payment", Timestamp: now, Message: "order created"}},
	}
}

func TestCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleDoc("o1")))

	doc, err := store.Get(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, "pending_payment", doc.Status)
	require.Equal(t, "123456", doc.OrderNo)
	require.Len(t, doc.Lines, 1)
	require.True(t, doc.Lines[0].UnitPrice.Equal(decimal.RequireFromString("12.50")))
	require.Equal(t, "buyer@example.com", doc.Customer["email"])
	require.Empty(t, doc.AssignedUnits)

	err = store.Create(ctx, sampleDoc("o1"))
	require.True(t, errors.Is(err, ErrExists))
}

func TestAppendKeepsOrderAndStatus(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleDoc("o1")))

	require.NoError(t, store.Append(ctx, "o1", Entry{Status: "user_paid", Message: "paid"}))
	require.NoError(t, store.Append(ctx, "o1", Entry{Status: "shipped", Message: "K1"}))
	require.NoError(t, store.AssignUnits(ctx, "o1", []string{"K1"}))

	doc, err := store.Get(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, "shipped", doc.Status)
	require.Equal(t, "shipped", doc.LastEntry().Status)
	require.Equal(t, []string{"K1"}, doc.AssignedUnits)

	statuses := make([]string, 0, len(doc.History))
	for _, e := range doc.History {
		statuses = append(statuses, e.Status)
	}
	require.Equal(t, []string{"pending_payment", "user_paid", "shipped"}, statuses)
}

func TestAppendUnknownOrder(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Append(context.Background(), "missing", Entry{Status: "user_paid"})
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, errutil.IsNotFound(err))

	_, err = store.Get(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDuplicateSequenceIsConflict(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleDoc("o1")))

	gs := store.(*gormStore)
	err := gs.insertEntry(db, "o1", 1, Entry{Status: "user_paid"})
	require.True(t, errors.Is(err, ErrAppendConflict))
	require.True(t, errutil.IsConcurrency(err))
}

func TestAppendRollsBackWithOuterTransaction(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleDoc("o1")))

	boom := errors.New("side effect failed")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := store.WithTrx(tx).Append(ctx, "o1", Entry{Status: "user_paid"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	doc, err := store.Get(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, doc.History, 1)
	require.Equal(t, "pending_payment", doc.Status)
}

func TestNewStoreBackendSelection(t *testing.T) {
	db := testutil.NewTestDB(t)
	cfg := &config.Config{}

	store, err := NewStore(StoreParams{DB: db, Node: testutil.NewNode(t), Config: cfg})
	require.NoError(t, err)
	require.IsType(t, &gormStore{}, store)

	cfg.AuditLog.Backend = "minio"
	_, err = NewStore(StoreParams{DB: db, Node: testutil.NewNode(t), Config: cfg})
	require.Error(t, err)

	cfg.AuditLog.Backend = "tape"
	_, err = NewStore(StoreParams{DB: db, Node: testutil.NewNode(t), Config: cfg})
	require.Error(t, err)
}
