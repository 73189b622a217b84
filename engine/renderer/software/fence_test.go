package software

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFenceWaitReturnsImmediatelyWhenReached(t *testing.T) {
	f := NewFence(3)
	require.NoError(t, f.Wait(context.Background(), 2))
	require.NoError(t, f.Wait(context.Background(), 3))
}

func TestFenceWaitBlocksUntilSignal(t *testing.T) {
	f := NewFence(0)
	done := make(chan error, 1)
	go func() { done <- f.Wait(context.Background(), 2) }()

	f.signal(1)
	select {
	case <-done:
		t.Fatal("wait returned before its value was reached")
	case <-time.After(20 * time.Millisecond):
	}

	f.signal(2)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after signal")
	}
}

func TestFenceIsMonotonic(t *testing.T) {
	f := NewFence(0)
	f.signal(5)
	f.signal(4)
	assert.Equal(t, uint64(5), f.CompletedValue())
}

func TestFenceWaitHonoursContext(t *testing.T) {
	f := NewFence(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := f.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.waiters)
}
