package order

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storefront-core/pkg/db/pagination"
)

func paginationOf(cursor string, limit int) pagination.Pagination {
	return pagination.Pagination{Cursor: cursor, Limit: limit}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{PendingPayment, UserPaid, true},
		{PendingPayment, Rejected, true},
		{PendingPayment, Shipped, false},
		{UserPaid, Shipped, true},
		{UserPaid, Completed, false},
		{Shipped, Completed, true},
		{Shipped, Rejected, true},
		{Completed, Rejected, false},
		{Completed, PendingPayment, false},
		{Rejected, PendingPayment, true},
		{Rejected, UserPaid, false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	require.Empty(t, NextStatuses(Completed))
	require.ElementsMatch(t, []Status{Shipped, Rejected}, NextStatuses(UserPaid))
}
