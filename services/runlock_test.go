package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock(t *testing.T) {
	l := NewLocalLock()

	lease, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lease)

	busy, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.Nil(t, busy)

	lease.Release()
	lease.Release()

	select {
	case <-lease.Lost():
		t.Fatal("local lease reported lost")
	default:
	}

	again, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, again)
	again.Release()
}

func TestLeaseMarkLostIsIdempotent(t *testing.T) {
	lease := newLease(func() {})
	lease.markLost()
	lease.markLost()

	_, open := <-lease.Lost()
	assert.False(t, open)
}
