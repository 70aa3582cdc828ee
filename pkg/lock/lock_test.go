package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	first, err := l.Obtain(ctx, "k", time.Minute)
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "k", time.Minute)
	require.True(t, errors.Is(err, ErrNotObtained))

	other, err := l.Obtain(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	again, err := l.Obtain(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalLockerExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	_, err := l.Obtain(ctx, "k", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = l.Obtain(ctx, "k", time.Minute)
	require.NoError(t, err)
}
